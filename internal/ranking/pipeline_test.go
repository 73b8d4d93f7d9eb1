package ranking

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maya-ai/backend/internal/llm"
	"github.com/maya-ai/backend/internal/model"
)

type fakeEmbedder struct {
	embedding []float32
	err       error
	calls     int
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.embedding, f.err
}

type fakeStore struct {
	schemes  []model.Scheme
	err      error
	lastK    int
	lastVec  []float32
	searches int
}

func (f *fakeStore) SearchNearest(ctx context.Context, queryEmbedding []float32, k int) ([]model.Scheme, error) {
	f.searches++
	f.lastK = k
	f.lastVec = queryEmbedding
	return f.schemes, f.err
}

type fakeJudge struct {
	content string
	err     error
	calls   int
}

func (f *fakeJudge) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.content}, nil
}

type fakeCache struct {
	embeddings map[string][]float32
	sets       int
}

func (f *fakeCache) GetEmbedding(ctx context.Context, textHash string) ([]float32, bool) {
	embedding, ok := f.embeddings[textHash]
	return embedding, ok
}

func (f *fakeCache) SetEmbedding(ctx context.Context, textHash string, embedding []float32) {
	f.sets++
	if f.embeddings == nil {
		f.embeddings = map[string][]float32{}
	}
	f.embeddings[textHash] = embedding
}

func makeSchemes(n int) []model.Scheme {
	schemes := make([]model.Scheme, n)
	for i := range schemes {
		schemes[i] = model.Scheme{
			ID:          fmt.Sprintf("scheme-%d", i+1),
			Name:        fmt.Sprintf("Scheme %d", i+1),
			Description: "A support scheme for small businesses",
		}
	}
	return schemes
}

func newTestPipeline(embedder Embedder, store SchemeStore, judge Judge, cache EmbeddingCache) *Pipeline {
	return NewPipeline(embedder, store, judge, cache, Config{
		DefaultTopK:   3,
		RetrievalPad:  5,
		MaxRequestedK: 25,
	})
}

func TestRunRanksByJudgmentScore(t *testing.T) {
	store := &fakeStore{schemes: makeSchemes(5)}
	judge := &fakeJudge{content: `{
		"chat_summary": "Here are the best matches.",
		"schemes": {
			"scheme-1": {"relevance_score": 40, "explanation": "weak fit", "key_benefit": "some support"},
			"scheme-3": {"relevance_score": 95, "explanation": "strong fit", "key_benefit": "big subsidy"},
			"scheme-5": {"relevance_score": 70, "explanation": "decent fit", "key_benefit": "low interest"}
		}
	}`}

	p := newTestPipeline(&fakeEmbedder{embedding: []float32{0.1, 0.2}}, store, judge, nil)
	result := p.Run(context.Background(), "loans for my textile unit")

	require.Equal(t, StatusOK, result.Status)
	require.Len(t, result.Schemes, 3)
	assert.Equal(t, "scheme-3", result.Schemes[0].ID)
	assert.Equal(t, 95, result.Schemes[0].RelevanceScore)
	assert.Equal(t, "scheme-5", result.Schemes[1].ID)
	assert.Equal(t, "Here are the best matches.", result.Summary)
	assert.Equal(t, 8, store.lastK, "retrieval should over-fetch past the display limit")
}

func TestRunDefaultsToThreeResultsDescending(t *testing.T) {
	store := &fakeStore{schemes: makeSchemes(6)}
	judge := &fakeJudge{content: `{
		"chat_summary": "Summary.",
		"schemes": {
			"scheme-1": {"relevance_score": 10, "explanation": "a", "key_benefit": "a"},
			"scheme-2": {"relevance_score": 80, "explanation": "b", "key_benefit": "b"},
			"scheme-3": {"relevance_score": 60, "explanation": "c", "key_benefit": "c"},
			"scheme-4": {"relevance_score": 90, "explanation": "d", "key_benefit": "d"},
			"scheme-5": {"relevance_score": 20, "explanation": "e", "key_benefit": "e"},
			"scheme-6": {"relevance_score": 55, "explanation": "f", "key_benefit": "f"}
		}
	}`}

	p := newTestPipeline(&fakeEmbedder{embedding: []float32{1}}, store, judge, nil)
	result := p.Run(context.Background(), "schemes for food processing")

	require.Len(t, result.Schemes, 3)
	for i := 1; i < len(result.Schemes); i++ {
		assert.GreaterOrEqual(t,
			result.Schemes[i-1].RelevanceScore,
			result.Schemes[i].RelevanceScore,
		)
	}
	assert.Equal(t, []string{"scheme-4", "scheme-2", "scheme-3"},
		[]string{result.Schemes[0].ID, result.Schemes[1].ID, result.Schemes[2].ID})
}

func TestRunHonorsRequestedCount(t *testing.T) {
	store := &fakeStore{schemes: makeSchemes(8)}
	judge := &fakeJudge{content: `{"chat_summary": "ok", "schemes": {}}`}

	p := newTestPipeline(&fakeEmbedder{embedding: []float32{1}}, store, judge, nil)
	result := p.Run(context.Background(), "show me top 5 schemes for exporters")

	assert.Len(t, result.Schemes, 5)
	assert.Equal(t, 10, store.lastK)
}

func TestRunRequestedTwoPicksHighestAcrossJudgedAndUnjudged(t *testing.T) {
	store := &fakeStore{schemes: makeSchemes(5)}
	judge := &fakeJudge{content: `{
		"chat_summary": "Top picks for women entrepreneurs.",
		"schemes": {
			"scheme-1": {"relevance_score": 30, "explanation": "a", "key_benefit": "a"},
			"scheme-2": {"relevance_score": 85, "explanation": "b", "key_benefit": "b"},
			"scheme-4": {"relevance_score": 40, "explanation": "c", "key_benefit": "c"}
		}
	}`}

	p := newTestPipeline(&fakeEmbedder{embedding: []float32{1}}, store, judge, nil)
	result := p.Run(context.Background(), "top 2 schemes for women entrepreneurs")

	require.Len(t, result.Schemes, 2)
	assert.Equal(t, "scheme-2", result.Schemes[0].ID)
	assert.Equal(t, 85, result.Schemes[0].RelevanceScore)
	// Unjudged candidates carry 50, which beats the judged 30 and 40.
	assert.Equal(t, fallbackScore, result.Schemes[1].RelevanceScore)
	assert.Contains(t, []string{"scheme-3", "scheme-5"}, result.Schemes[1].ID)
}

func TestRunClampsRequestedCount(t *testing.T) {
	store := &fakeStore{schemes: makeSchemes(30)}
	judge := &fakeJudge{content: `{"chat_summary": "ok", "schemes": {}}`}

	p := newTestPipeline(&fakeEmbedder{embedding: []float32{1}}, store, judge, nil)
	result := p.Run(context.Background(), "list 500 schemes")

	assert.Len(t, result.Schemes, 25)
}

func TestRunEmbeddingFailureReportsConnectivity(t *testing.T) {
	store := &fakeStore{}
	judge := &fakeJudge{}

	p := newTestPipeline(&fakeEmbedder{err: errors.New("provider down")}, store, judge, nil)
	result := p.Run(context.Background(), "schemes for women entrepreneurs")

	assert.Equal(t, StatusStoreUnavailable, result.Status)
	assert.Empty(t, result.Schemes)
	assert.Equal(t, connectivityMessage, result.Summary)
	assert.NotEqual(t, noMatchMessage, result.Summary,
		"connectivity problems must not read as an empty search")
	assert.Zero(t, store.searches)
	assert.Zero(t, judge.calls)
}

func TestRunRetrievalFailureReportsConnectivity(t *testing.T) {
	store := &fakeStore{err: errors.New("collection not loaded")}
	judge := &fakeJudge{}

	p := newTestPipeline(&fakeEmbedder{embedding: []float32{1}}, store, judge, nil)
	result := p.Run(context.Background(), "any schemes for dairy farming")

	assert.Equal(t, StatusStoreUnavailable, result.Status)
	assert.Empty(t, result.Schemes)
	assert.Equal(t, connectivityMessage, result.Summary)
	assert.Zero(t, judge.calls)
}

func TestRunZeroCandidatesReportsNoMatches(t *testing.T) {
	store := &fakeStore{schemes: nil}
	judge := &fakeJudge{}

	p := newTestPipeline(&fakeEmbedder{embedding: []float32{1}}, store, judge, nil)
	result := p.Run(context.Background(), "quantum computing grants")

	assert.Equal(t, StatusNoMatches, result.Status)
	assert.Empty(t, result.Schemes)
	assert.Equal(t, noMatchMessage, result.Summary)
	assert.Zero(t, judge.calls, "no judgment call without candidates")
}

func TestRunUnparsableJudgmentFallsBackToRetrievalOrder(t *testing.T) {
	store := &fakeStore{schemes: makeSchemes(5)}
	judge := &fakeJudge{content: "I think scheme-1 is the best, definitely check it out!"}

	p := newTestPipeline(&fakeEmbedder{embedding: []float32{1}}, store, judge, nil)
	result := p.Run(context.Background(), "machinery upgrade support")

	require.Equal(t, StatusJudgmentFallback, result.Status)
	require.Len(t, result.Schemes, 3)
	for i, scheme := range result.Schemes {
		assert.Equal(t, fmt.Sprintf("scheme-%d", i+1), scheme.ID, "retrieval order preserved")
		assert.Equal(t, fallbackScore, scheme.RelevanceScore)
		assert.NotEmpty(t, scheme.Explanation)
		assert.NotEmpty(t, scheme.KeyBenefit)
	}
	assert.Equal(t, fallbackSummary, result.Summary)
}

func TestRunJudgmentCallErrorFallsBack(t *testing.T) {
	store := &fakeStore{schemes: makeSchemes(4)}
	judge := &fakeJudge{err: errors.New("rate limited")}

	p := newTestPipeline(&fakeEmbedder{embedding: []float32{1}}, store, judge, nil)
	result := p.Run(context.Background(), "working capital schemes")

	assert.Equal(t, StatusJudgmentFallback, result.Status)
	assert.Len(t, result.Schemes, 3)
}

func TestRunUnjudgedCandidatesGetFallbackScore(t *testing.T) {
	store := &fakeStore{schemes: makeSchemes(3)}
	judge := &fakeJudge{content: `{
		"chat_summary": "One strong match.",
		"schemes": {
			"scheme-2": {"relevance_score": 90, "explanation": "great fit", "key_benefit": "grant"}
		}
	}`}

	p := newTestPipeline(&fakeEmbedder{embedding: []float32{1}}, store, judge, nil)
	result := p.Run(context.Background(), "grants for artisans")

	require.Len(t, result.Schemes, 3)
	assert.Equal(t, "scheme-2", result.Schemes[0].ID)
	assert.Equal(t, 90, result.Schemes[0].RelevanceScore)
	assert.Equal(t, fallbackScore, result.Schemes[1].RelevanceScore)
	assert.Equal(t, fallbackScore, result.Schemes[2].RelevanceScore)
	assert.Equal(t, fallbackExplanation, result.Schemes[1].Explanation)
}

func TestRunNoDuplicateIDs(t *testing.T) {
	store := &fakeStore{schemes: makeSchemes(5)}
	judge := &fakeJudge{content: `{
		"chat_summary": "ok",
		"schemes": {
			"scheme-1": {"relevance_score": 60, "explanation": "x", "key_benefit": "x"},
			"scheme-2": {"relevance_score": 60, "explanation": "y", "key_benefit": "y"}
		}
	}`}

	p := newTestPipeline(&fakeEmbedder{embedding: []float32{1}}, store, judge, nil)
	result := p.Run(context.Background(), "schemes please")

	seen := map[string]bool{}
	for _, scheme := range result.Schemes {
		assert.False(t, seen[scheme.ID], "duplicate id %s", scheme.ID)
		seen[scheme.ID] = true
	}
}

func TestRunStableOrderForTiedScores(t *testing.T) {
	store := &fakeStore{schemes: makeSchemes(4)}
	content := `{
		"chat_summary": "ok",
		"schemes": {
			"scheme-1": {"relevance_score": 50, "explanation": "a", "key_benefit": "a"},
			"scheme-2": {"relevance_score": 50, "explanation": "b", "key_benefit": "b"},
			"scheme-3": {"relevance_score": 50, "explanation": "c", "key_benefit": "c"},
			"scheme-4": {"relevance_score": 50, "explanation": "d", "key_benefit": "d"}
		}
	}`

	var firstOrder []string
	for run := 0; run < 3; run++ {
		judge := &fakeJudge{content: content}
		p := newTestPipeline(&fakeEmbedder{embedding: []float32{1}}, store, judge, nil)
		result := p.Run(context.Background(), "any schemes")

		var order []string
		for _, scheme := range result.Schemes {
			order = append(order, scheme.ID)
		}
		if firstOrder == nil {
			firstOrder = order
			continue
		}
		assert.Equal(t, firstOrder, order, "tied scores must keep retrieval order on every run")
	}
}

func TestRunNormalizesCandidatesBeforeDisplay(t *testing.T) {
	store := &fakeStore{schemes: []model.Scheme{{
		ID:          "scheme-1",
		Name:        "Raw Scheme",
		Description: "desc",
		// category and application mode deliberately unset
	}}}
	judge := &fakeJudge{content: `{"chat_summary": "ok", "schemes": {}}`}

	p := newTestPipeline(&fakeEmbedder{embedding: []float32{1}}, store, judge, nil)
	result := p.Run(context.Background(), "schemes")

	require.Len(t, result.Schemes, 1)
	assert.Equal(t, model.DefaultCategory, result.Schemes[0].Category)
	assert.Equal(t, model.DefaultApplicationMode, result.Schemes[0].ApplicationMode)
	assert.NotNil(t, result.Schemes[0].Benefits)
}

func TestRunUsesEmbeddingCache(t *testing.T) {
	embedder := &fakeEmbedder{embedding: []float32{0.5}}
	store := &fakeStore{schemes: makeSchemes(1)}
	judge := &fakeJudge{content: `{"chat_summary": "ok", "schemes": {}}`}
	cache := &fakeCache{}

	p := newTestPipeline(embedder, store, judge, cache)

	p.Run(context.Background(), "same query")
	p.Run(context.Background(), "same query")

	assert.Equal(t, 1, embedder.calls, "second run should hit the cache")
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, 2, store.searches)
}

func TestRunEmptySummaryFallsBackToDefault(t *testing.T) {
	store := &fakeStore{schemes: makeSchemes(2)}
	judge := &fakeJudge{content: `{
		"chat_summary": "",
		"schemes": {"scheme-1": {"relevance_score": 80, "explanation": "x", "key_benefit": "y"}}
	}`}

	p := newTestPipeline(&fakeEmbedder{embedding: []float32{1}}, store, judge, nil)
	result := p.Run(context.Background(), "schemes")

	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, fallbackSummary, result.Summary)
}
