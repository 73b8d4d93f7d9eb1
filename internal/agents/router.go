package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/maya-ai/backend/pkg/logger"
)

const (
	AgentScheme    = "scheme"
	AgentMarket    = "market"
	AgentBrand     = "brand"
	AgentFinance   = "finance"
	AgentMarketing = "marketing"
	AgentGeneral   = "general"
	AgentOffTopic  = "off_topic"
)

var validAgents = map[string]bool{
	AgentScheme:    true,
	AgentMarket:    true,
	AgentBrand:     true,
	AgentFinance:   true,
	AgentMarketing: true,
	AgentGeneral:   true,
	AgentOffTopic:  true,
}

const routerPrompt = `You are an intelligent intent classifier for the MAYA AI Assistant.
MAYA is STRICTLY focused on:
1. Government Schemes & Loans for Business/MSME
2. Market Research & Competitor Analysis
3. Branding & Marketing for Small Businesses
4. Financial Planning for Business

Classify the user's query into one of these categories:

1. 'scheme': Questions about government schemes, loans, subsidies, eligibility, application processes.
2. 'market': Questions about market trends, competitors, industry analysis.
3. 'brand': Questions about business names, logos, taglines, brand identity.
4. 'finance': Questions about business finance, pricing, cost management, profit margins.
5. 'marketing': Questions about advertising, social media promotion, sales strategies.
6. 'general': ONLY for greetings (Hello, Hi) or questions asking "Who are you?".
7. 'off_topic': ANY question that is NOT about Business, MSMEs, Schemes, or Markets (e.g., "Who won the cricket match?", "Tell me a joke", "Coding help", "Politics", "Movies").

Return ONLY the category name.`

type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Router classifies the latest user utterance into exactly one agent label.
// Unrecognized or failed classifications resolve to off_topic: a garbled
// label means "outside defined scope", not an error. The classification call
// is never retried.
type Router struct {
	generator TextGenerator
}

func NewRouter(generator TextGenerator) *Router {
	return &Router{generator: generator}
}

func (r *Router) Route(ctx context.Context, utterance string) string {
	prompt := fmt.Sprintf("%s\n\nUser Query: %s", routerPrompt, utterance)

	raw, err := r.generator.GenerateText(ctx, prompt)
	if err != nil {
		logger.Warn("Intent classification failed, treating as off_topic", zap.Error(err))
		return AgentOffTopic
	}

	label := strings.ToLower(strings.TrimSpace(raw))
	if !validAgents[label] {
		logger.Debug("Classifier returned unknown label", zap.String("label", label))
		return AgentOffTopic
	}

	logger.Debug("Routing turn", zap.String("agent", label))
	return label
}
