package ranking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/maya-ai/backend/internal/llm"
	"github.com/maya-ai/backend/internal/metrics"
	"github.com/maya-ai/backend/internal/model"
	"github.com/maya-ai/backend/pkg/logger"
	"github.com/maya-ai/backend/pkg/utils"
)

type Status string

const (
	StatusOK               Status = "ok"
	StatusNoMatches        Status = "no_matches"
	StatusStoreUnavailable Status = "store_unavailable"
	StatusJudgmentFallback Status = "judgment_fallback"
)

const (
	fallbackScore       = 50
	fallbackExplanation = "Retrieved from the scheme database as a potential match for your query."
	fallbackKeyBenefit  = "See the scheme's benefits list for details."

	fallbackSummary = "I found these schemes in our knowledge base that may match your query. " +
		"Have a look at the details below and ask me about eligibility or application steps for any of them."

	noMatchMessage = "I searched our database but couldn't find any government schemes that match your query. " +
		"Could you try rephrasing? For example, tell me your industry (e.g., 'textiles'), " +
		"your goal (e.g., 'loan for machinery'), or your business size."

	connectivityMessage = "I'm having trouble reaching the scheme database right now. " +
		"Please try again in a few minutes."
)

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type SchemeStore interface {
	SearchNearest(ctx context.Context, queryEmbedding []float32, k int) ([]model.Scheme, error)
}

type Judge interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32)
}

type Config struct {
	DefaultTopK   int
	RetrievalPad  int
	MaxRequestedK int
}

// Pipeline turns a free-text query into a ranked, display-ready scheme list.
// Run never returns an error: every failure mode degrades to a well-formed
// Result with a user-facing message.
type Pipeline struct {
	embedder Embedder
	store    SchemeStore
	judge    Judge
	cache    EmbeddingCache
	cfg      Config
}

type Result struct {
	Schemes []model.Scheme
	Summary string
	Status  Status
}

func NewPipeline(embedder Embedder, store SchemeStore, judge Judge, cache EmbeddingCache, cfg Config) *Pipeline {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 3
	}
	if cfg.RetrievalPad <= 0 {
		cfg.RetrievalPad = 5
	}
	if cfg.MaxRequestedK <= 0 {
		cfg.MaxRequestedK = 25
	}
	return &Pipeline{
		embedder: embedder,
		store:    store,
		judge:    judge,
		cache:    cache,
		cfg:      cfg,
	}
}

func (p *Pipeline) Run(ctx context.Context, query string) Result {
	start := time.Now()
	defer func() {
		metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	}()

	limit := p.cfg.DefaultTopK
	if requested := requestedCount(query); requested > 0 {
		limit = requested
		if limit > p.cfg.MaxRequestedK {
			limit = p.cfg.MaxRequestedK
		}
	}

	embedding, err := p.embedQuery(ctx, query)
	if err != nil || len(embedding) == 0 {
		logger.Warn("Query embedding unavailable", zap.Error(err))
		return Result{Summary: connectivityMessage, Status: StatusStoreUnavailable}
	}

	candidates, err := p.store.SearchNearest(ctx, embedding, limit+p.cfg.RetrievalPad)
	if err != nil {
		logger.Warn("Scheme retrieval failed", zap.Error(err))
		return Result{Summary: connectivityMessage, Status: StatusStoreUnavailable}
	}
	metrics.RetrievedCandidates.Observe(float64(len(candidates)))

	if len(candidates) == 0 {
		return Result{Summary: noMatchMessage, Status: StatusNoMatches}
	}

	for i := range candidates {
		candidates[i].Normalize()
	}

	judgment, err := p.judgeCandidates(ctx, query, candidates)
	if err != nil {
		logger.Warn("Relevance judgment unusable, returning retrieval order",
			zap.Int("candidates", len(candidates)),
			zap.Error(err),
		)
		metrics.JudgmentParseFailures.Inc()
		return Result{
			Schemes: truncate(annotateFallback(candidates), limit),
			Summary: fallbackSummary,
			Status:  StatusJudgmentFallback,
		}
	}

	ranked := mergeJudgment(candidates, judgment)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RelevanceScore > ranked[j].RelevanceScore
	})

	summary := judgment.ChatSummary
	if summary == "" {
		summary = fallbackSummary
	}

	return Result{
		Schemes: truncate(ranked, limit),
		Summary: summary,
		Status:  StatusOK,
	}
}

func (p *Pipeline) embedQuery(ctx context.Context, query string) ([]float32, error) {
	hash := utils.HashString(query)

	if p.cache != nil {
		if embedding, found := p.cache.GetEmbedding(ctx, hash); found {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			return embedding, nil
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
	}

	embedding, err := p.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}

	if p.cache != nil && len(embedding) > 0 {
		p.cache.SetEmbedding(ctx, hash, embedding)
	}

	return embedding, nil
}

func (p *Pipeline) judgeCandidates(ctx context.Context, query string, candidates []model.Scheme) (*Judgment, error) {
	resp, err := p.judge.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: judgeSystemPrompt,
		UserPrompt:   buildJudgePrompt(query, candidates),
		Temperature:  0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("judgment call failed: %w", err)
	}

	return ParseJudgment(resp.Content)
}

const judgeSystemPrompt = `You are a relevance analyst for Indian government business schemes.
Given a user query and candidate schemes, score each scheme's relevance to the query.

Respond with ONLY a JSON object of this exact shape:
{
  "chat_summary": "two or three sentences presenting the best matches to the user",
  "schemes": {
    "<scheme id>": {"relevance_score": 0-100, "explanation": "why it fits", "key_benefit": "single most useful benefit"}
  }
}
Include every candidate id. Do not add any text outside the JSON object.`

func buildJudgePrompt(query string, candidates []model.Scheme) string {
	var builder strings.Builder
	builder.WriteString("User query: ")
	builder.WriteString(query)
	builder.WriteString("\n\nCandidate schemes:\n")
	for _, scheme := range candidates {
		builder.WriteString(fmt.Sprintf("- id: %s\n  name: %s\n  description: %s\n",
			scheme.ID, scheme.Name, scheme.Description))
	}
	return builder.String()
}

// mergeJudgment annotates every candidate with its judgment entry, falling
// back to fixed defaults for ids the reasoning stage did not cover. No
// candidate is ever dropped here.
func mergeJudgment(candidates []model.Scheme, judgment *Judgment) []model.Scheme {
	merged := make([]model.Scheme, len(candidates))
	for i, candidate := range candidates {
		if entry, ok := judgment.Entries[candidate.ID]; ok {
			candidate.RelevanceScore = entry.RelevanceScore
			candidate.Explanation = entry.Explanation
			candidate.KeyBenefit = entry.KeyBenefit
			if candidate.Explanation == "" {
				candidate.Explanation = fallbackExplanation
			}
			if candidate.KeyBenefit == "" {
				candidate.KeyBenefit = fallbackKeyBenefit
			}
		} else {
			candidate.RelevanceScore = fallbackScore
			candidate.Explanation = fallbackExplanation
			candidate.KeyBenefit = fallbackKeyBenefit
		}
		merged[i] = candidate
	}
	return merged
}

func annotateFallback(candidates []model.Scheme) []model.Scheme {
	annotated := make([]model.Scheme, len(candidates))
	for i, candidate := range candidates {
		candidate.RelevanceScore = fallbackScore
		candidate.Explanation = fallbackExplanation
		candidate.KeyBenefit = fallbackKeyBenefit
		annotated[i] = candidate
	}
	return annotated
}

func truncate(schemes []model.Scheme, limit int) []model.Scheme {
	if len(schemes) <= limit {
		return schemes
	}
	return schemes[:limit]
}
