package agents

import (
	"context"
	"fmt"

	"github.com/maya-ai/backend/internal/ranking"
)

type SchemeRanker interface {
	Run(ctx context.Context, query string) ranking.Result
}

// Engine is the compiled single-hop dispatch graph: router in, exactly one
// specialist, then done.
type Engine struct {
	runnable *Runnable
}

func NewEngine(generator TextGenerator, ranker SchemeRanker, searcher WebSearcher) (*Engine, error) {
	router := NewRouter(generator)

	graph := NewStateGraph()

	graph.AddNode("router", func(ctx context.Context, state ChatState) (ChatState, error) {
		return state.WithAgent(router.Route(ctx, state.LastUserMessage())), nil
	})
	graph.AddNode(AgentScheme, schemeNode(ranker))
	graph.AddNode(AgentMarket, marketNode(generator, searcher))
	graph.AddNode(AgentBrand, promptNode(generator, brandPromptTemplate))
	graph.AddNode(AgentFinance, promptNode(generator, financePromptTemplate))
	graph.AddNode(AgentMarketing, promptNode(generator, marketingPromptTemplate))
	graph.AddNode(AgentGeneral, generalNode(generator))
	graph.AddNode(AgentOffTopic, offTopicNode())

	graph.SetEntryPoint("router")

	graph.AddConditionalEdge("router",
		func(state ChatState) string { return state.CurrentAgent },
		map[string]string{
			AgentScheme:    AgentScheme,
			AgentMarket:    AgentMarket,
			AgentBrand:     AgentBrand,
			AgentFinance:   AgentFinance,
			AgentMarketing: AgentMarketing,
			AgentGeneral:   AgentGeneral,
			AgentOffTopic:  AgentOffTopic,
		},
	)

	for _, agent := range []string{
		AgentScheme, AgentMarket, AgentBrand,
		AgentFinance, AgentMarketing, AgentGeneral, AgentOffTopic,
	} {
		graph.AddEdge(agent, END)
	}

	runnable, err := graph.Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to compile dispatch graph: %w", err)
	}

	return &Engine{runnable: runnable}, nil
}

// Execute runs one conversation turn through the graph.
func (e *Engine) Execute(ctx context.Context, state ChatState) (ChatState, error) {
	return e.runnable.Run(ctx, state)
}

// schemeNode delegates to the retrieval and ranking pipeline. The pipeline
// never errors, so neither does this node: its summary is always the
// response text.
func schemeNode(ranker SchemeRanker) NodeFunc {
	return func(ctx context.Context, state ChatState) (ChatState, error) {
		result := ranker.Run(ctx, state.LastUserMessage())
		state.Schemes = result.Schemes
		state.PipelineStatus = result.Status
		return state.WithMessage(RoleAssistant, result.Summary), nil
	}
}
