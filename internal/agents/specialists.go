package agents

import (
	"context"
	"fmt"
	"strings"
)

const greetingReply = "Hey there! What's up? I'm MAYA, India's Business AI assistant. " +
	"What can I help you with today?"

const offTopicReply = "I'm MAYA, India's Business AI assistant, and I focus strictly on " +
	"government schemes, market research, branding, finance, and marketing for small " +
	"businesses. That one's outside my lane, but ask me anything about starting or " +
	"growing your business!"

var greetings = map[string]bool{
	"hey":            true,
	"hi":             true,
	"hello":          true,
	"hi there":       true,
	"hey there":      true,
	"good morning":   true,
	"good afternoon": true,
	"good evening":   true,
}

const marketPromptTemplate = `You are an expert Market Research Analyst for MSMEs in India.
User Query: %s

Here is some real-time market data I found:
%s

Task:
Provide insights on market trends, competitor analysis, or industry outlook relevant to the user's query, using the provided market data.
Focus on actionable data for small businesses.
If the query is too vague, ask clarifying questions about their specific industry or location.

CRITICAL: Do NOT start with a greeting or self-introduction. Jump straight into the market insights.`

const brandPromptTemplate = `You are a creative Brand Consultant for MSMEs.
User Query: %s

Task:
Help the user with branding, business names, taglines, or brand identity.
Be creative, modern, and culturally relevant to the Indian market if applicable.
Provide 3-5 distinct options where appropriate.

CRITICAL: Do NOT start with a greeting or self-introduction. Jump straight into the branding suggestions.`

const financePromptTemplate = `You are a Financial Advisor for MSMEs.
User Query: %s

Task:
Provide advice on financial planning, loan eligibility (general), pricing strategies, or cost management.
Do NOT give specific legal or tax advice; provide general guidance.
If they ask about specific government schemes, briefly mention them but suggest asking the 'Scheme Navigator' for details.

CRITICAL: Do NOT start with a greeting or self-introduction. Jump straight into the financial advice.`

const marketingPromptTemplate = `You are a Marketing Strategist for small businesses.
User Query: %s

Task:
Suggest low-cost, high-impact marketing strategies (Digital Marketing, Social Media, Local SEO, etc.).
Tailor the advice to the specific business type mentioned in the query.
Focus on practical steps they can take immediately.

CRITICAL: Do NOT start with a greeting or self-introduction. Jump straight into the marketing strategies.`

const generalPromptTemplate = `The user has a general query: "%s"

Task:
Provide a helpful and direct answer.
CRITICAL: Do NOT include any greetings like "Hello", "Hi", or "I am MAYA".
Just answer the question directly.`

type WebSearcher interface {
	Snippets(ctx context.Context, query string) string
}

// promptNode builds a specialist node around a single-call prompt template.
func promptNode(generator TextGenerator, template string) NodeFunc {
	return func(ctx context.Context, state ChatState) (ChatState, error) {
		prompt := fmt.Sprintf(template, state.LastUserMessage())
		response, err := generator.GenerateText(ctx, prompt)
		if err != nil {
			return state, err
		}
		return state.WithMessage(RoleAssistant, response), nil
	}
}

// marketNode injects live web-search snippets into the analyst prompt. The
// searcher degrades internally, so a failed search still produces a turn.
func marketNode(generator TextGenerator, searcher WebSearcher) NodeFunc {
	return func(ctx context.Context, state ChatState) (ChatState, error) {
		query := state.LastUserMessage()
		snippets := searcher.Snippets(ctx, query)
		prompt := fmt.Sprintf(marketPromptTemplate, query, snippets)
		response, err := generator.GenerateText(ctx, prompt)
		if err != nil {
			return state, err
		}
		return state.WithMessage(RoleAssistant, response), nil
	}
}

// generalNode answers exact greetings from a canned reply without any
// generation call, and everything else through the general prompt.
func generalNode(generator TextGenerator) NodeFunc {
	return func(ctx context.Context, state ChatState) (ChatState, error) {
		utterance := state.LastUserMessage()
		cleaned := strings.ToLower(strings.TrimSpace(utterance))
		cleaned = strings.TrimRight(cleaned, "?!.")
		if greetings[cleaned] {
			return state.WithMessage(RoleAssistant, greetingReply), nil
		}

		prompt := fmt.Sprintf(generalPromptTemplate, utterance)
		response, err := generator.GenerateText(ctx, prompt)
		if err != nil {
			return state, err
		}
		return state.WithMessage(RoleAssistant, response), nil
	}
}

// offTopicNode is fully static. It never reaches for any external capability.
func offTopicNode() NodeFunc {
	return func(ctx context.Context, state ChatState) (ChatState, error) {
		return state.WithMessage(RoleAssistant, offTopicReply), nil
	}
}
