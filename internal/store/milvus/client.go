package milvus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/maya-ai/backend/internal/model"
	"github.com/maya-ai/backend/pkg/logger"
)

// Client is the scheme knowledge store. Records are written once by the seed
// command and are read-only at serving time.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

// SeedScheme is one record as it enters the store, with its precomputed
// embedding attached.
type SeedScheme struct {
	Scheme    model.Scheme
	Embedding []float32
}

func NewClient(endpoint, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(context.Background(), endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	varchar := func(name string, maxLength string) *entity.Field {
		return &entity.Field{
			Name:     name,
			DataType: entity.FieldTypeVarChar,
			TypeParams: map[string]string{
				"max_length": maxLength,
			},
		}
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Government scheme records with embeddings",
		Fields: []*entity.Field{
			{
				Name:       "scheme_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			varchar("name", "512"),
			varchar("category", "128"),
			varchar("description", "4096"),
			varchar("benefits", "4096"),
			varchar("eligibility", "4096"),
			varchar("documents", "4096"),
			varchar("tags", "1024"),
			varchar("application_mode", "128"),
			varchar("link", "512"),
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.L2, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index definition: %w", err)
	}

	err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

func (m *Client) Insert(ctx context.Context, records []SeedScheme) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, len(records))
	embeddings := make([][]float32, len(records))
	names := make([]string, len(records))
	categories := make([]string, len(records))
	descriptions := make([]string, len(records))
	benefits := make([]string, len(records))
	eligibility := make([]string, len(records))
	documents := make([]string, len(records))
	tags := make([]string, len(records))
	modes := make([]string, len(records))
	links := make([]string, len(records))

	for i, record := range records {
		s := record.Scheme
		ids[i] = s.ID
		embeddings[i] = record.Embedding
		names[i] = s.Name
		categories[i] = s.Category
		descriptions[i] = s.Description
		benefits[i] = marshalField(s.Benefits)
		eligibility[i] = marshalField(s.Eligibility)
		documents[i] = marshalField(s.RequiredDocs)
		tags[i] = marshalField(s.Tags)
		modes[i] = s.ApplicationMode
		links[i] = s.Link
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("scheme_id", ids),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("name", names),
		entity.NewColumnVarChar("category", categories),
		entity.NewColumnVarChar("description", descriptions),
		entity.NewColumnVarChar("benefits", benefits),
		entity.NewColumnVarChar("eligibility", eligibility),
		entity.NewColumnVarChar("documents", documents),
		entity.NewColumnVarChar("tags", tags),
		entity.NewColumnVarChar("application_mode", modes),
		entity.NewColumnVarChar("link", links),
	)

	if err != nil {
		return fmt.Errorf("failed to insert schemes: %w", err)
	}

	err = m.client.Flush(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Schemes inserted into knowledge store", zap.Int("count", len(records)))

	return nil
}

// SearchNearest returns the k records closest to the query vector, ordered by
// ascending L2 distance. Loosely-typed fields come back coerced but the
// ranking annotations are left unset.
func (m *Client) SearchNearest(ctx context.Context, queryEmbedding []float32, k int) ([]model.Scheme, error) {
	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	outputFields := []string{
		"scheme_id", "name", "category", "description", "benefits",
		"eligibility", "documents", "tags", "application_mode", "link",
	}

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		"",
		outputFields,
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.L2,
		k,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	schemes := make([]model.Scheme, 0)
	for _, sr := range searchResult {
		getString := func(column string, i int) string {
			col := sr.Fields.GetColumn(column)
			if col == nil {
				return ""
			}
			value, err := col.Get(i)
			if err != nil {
				return ""
			}
			s, _ := value.(string)
			return s
		}

		for i := 0; i < sr.ResultCount; i++ {
			scheme := model.Scheme{
				ID:              getString("scheme_id", i),
				Name:            getString("name", i),
				Category:        getString("category", i),
				Description:     getString("description", i),
				Benefits:        model.CoerceStringList(getString("benefits", i)),
				Eligibility:     model.CoerceCriteria(getString("eligibility", i)),
				RequiredDocs:    model.CoerceStringList(getString("documents", i)),
				Tags:            model.CoerceStringList(getString("tags", i)),
				ApplicationMode: getString("application_mode", i),
				Link:            getString("link", i),
			}
			schemes = append(schemes, scheme)
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("k", k),
		zap.Int("results", len(schemes)),
	)

	return schemes, nil
}

func marshalField(value any) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(encoded)
}
