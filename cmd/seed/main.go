package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/maya-ai/backend/internal/llm"
	"github.com/maya-ai/backend/internal/model"
	"github.com/maya-ai/backend/internal/store/milvus"
	"github.com/maya-ai/backend/pkg/config"
	appLogger "github.com/maya-ai/backend/pkg/logger"
)

// seedRecord accepts the loosely-typed scheme JSON as exported from the
// curation spreadsheet. Fields are coerced before insertion.
type seedRecord struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Category        string `json:"category"`
	Description     string `json:"description"`
	Benefits        any    `json:"benefits"`
	Eligibility     any    `json:"eligibility_criteria"`
	RequiredDocs    any    `json:"required_documents"`
	Tags            any    `json:"tags"`
	ApplicationMode string `json:"application_mode"`
	Link            string `json:"link"`
}

func main() {
	filePath := flag.String("file", "./data/schemes.json", "path to the scheme JSON file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Seeding scheme knowledge store", zap.String("file", *filePath))

	data, err := os.ReadFile(*filePath)
	if err != nil {
		appLogger.Fatal("Failed to read scheme file", zap.Error(err))
	}

	var records []seedRecord
	if err := json.Unmarshal(data, &records); err != nil {
		appLogger.Fatal("Failed to parse scheme file", zap.Error(err))
	}
	if len(records) == 0 {
		appLogger.Fatal("Scheme file contains no records")
	}

	schemes := make([]model.Scheme, 0, len(records))
	for i, r := range records {
		if r.ID == "" || r.Name == "" {
			appLogger.Warn("Skipping record without id or name", zap.Int("index", i))
			continue
		}
		scheme := model.Scheme{
			ID:              r.ID,
			Name:            r.Name,
			Category:        r.Category,
			Description:     r.Description,
			Benefits:        model.CoerceStringList(r.Benefits),
			Eligibility:     model.CoerceCriteria(r.Eligibility),
			RequiredDocs:    model.CoerceStringList(r.RequiredDocs),
			Tags:            model.CoerceStringList(r.Tags),
			ApplicationMode: r.ApplicationMode,
			Link:            r.Link,
		}
		scheme.Normalize()
		schemes = append(schemes, scheme)
	}

	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	ctx := context.Background()

	if err := milvusClient.EnsureCollection(ctx); err != nil {
		appLogger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	llmClient := llm.NewClient(llm.Config{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		Referer:        cfg.LLM.Referer,
		AppTitle:       cfg.LLM.AppTitle,
	})

	texts := make([]string, len(schemes))
	for i, s := range schemes {
		texts[i] = embeddingText(s)
	}

	embeddings, err := llmClient.GenerateBatchEmbeddings(ctx, texts)
	if err != nil {
		appLogger.Fatal("Failed to generate embeddings", zap.Error(err))
	}
	if len(embeddings) != len(schemes) {
		appLogger.Fatal("Embedding count mismatch",
			zap.Int("schemes", len(schemes)),
			zap.Int("embeddings", len(embeddings)),
		)
	}

	seeds := make([]milvus.SeedScheme, len(schemes))
	for i, s := range schemes {
		seeds[i] = milvus.SeedScheme{Scheme: s, Embedding: embeddings[i]}
	}

	if err := milvusClient.Insert(ctx, seeds); err != nil {
		appLogger.Fatal("Failed to insert schemes", zap.Error(err))
	}

	appLogger.Info("Seeding complete", zap.Int("schemes", len(seeds)))
}

// embeddingText flattens a scheme into the text that gets embedded. Name and
// tags carry most of the retrieval signal, so they lead.
func embeddingText(s model.Scheme) string {
	parts := []string{
		s.Name,
		s.Category,
		strings.Join(s.Tags, ", "),
		s.Description,
		strings.Join(s.Benefits, ". "),
	}
	return strings.Join(parts, "\n")
}
