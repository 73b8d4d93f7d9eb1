package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJudgmentPlainJSON(t *testing.T) {
	judgment, err := ParseJudgment(`{
		"chat_summary": "Two good options.",
		"schemes": {
			"mudra": {"relevance_score": 85, "explanation": "fits micro units", "key_benefit": "collateral-free loan"},
			"cgtmse": {"relevance_score": 60, "explanation": "guarantee cover", "key_benefit": "credit guarantee"}
		}
	}`)

	require.NoError(t, err)
	assert.Equal(t, "Two good options.", judgment.ChatSummary)
	require.Len(t, judgment.Entries, 2)
	assert.Equal(t, 85, judgment.Entries["mudra"].RelevanceScore)
	assert.Equal(t, "credit guarantee", judgment.Entries["cgtmse"].KeyBenefit)
}

func TestParseJudgmentStripsMarkdownFences(t *testing.T) {
	judgment, err := ParseJudgment("```json\n" + `{
		"chat_summary": "ok",
		"schemes": {"a": {"relevance_score": 50, "explanation": "x", "key_benefit": "y"}}
	}` + "\n```")

	require.NoError(t, err)
	assert.Equal(t, 50, judgment.Entries["a"].RelevanceScore)
}

func TestParseJudgmentIsolatesObjectFromProse(t *testing.T) {
	judgment, err := ParseJudgment(`Sure! Here is the assessment you asked for:
{"chat_summary": "ok", "schemes": {"a": {"relevance_score": 70, "explanation": "x", "key_benefit": "y"}}}
Let me know if you need anything else.`)

	require.NoError(t, err)
	assert.Equal(t, 70, judgment.Entries["a"].RelevanceScore)
}

func TestParseJudgmentFloatScoreTruncates(t *testing.T) {
	judgment, err := ParseJudgment(`{"chat_summary": "ok", "schemes": {"a": {"relevance_score": 72.9, "explanation": "x", "key_benefit": "y"}}}`)

	require.NoError(t, err)
	assert.Equal(t, 72, judgment.Entries["a"].RelevanceScore)
}

func TestParseJudgmentClampsScores(t *testing.T) {
	judgment, err := ParseJudgment(`{
		"chat_summary": "ok",
		"schemes": {
			"hi": {"relevance_score": 130, "explanation": "x", "key_benefit": "y"},
			"lo": {"relevance_score": -5, "explanation": "x", "key_benefit": "y"}
		}
	}`)

	require.NoError(t, err)
	assert.Equal(t, 100, judgment.Entries["hi"].RelevanceScore)
	assert.Equal(t, 0, judgment.Entries["lo"].RelevanceScore)
}

func TestParseJudgmentRejectsDefects(t *testing.T) {
	cases := map[string]string{
		"empty input":       "",
		"no JSON object":    "the best scheme is mudra, trust me",
		"malformed JSON":    `{"chat_summary": "ok", "schemes": {`,
		"missing schemes":   `{"chat_summary": "ok"}`,
		"non-numeric score": `{"chat_summary": "ok", "schemes": {"a": {"relevance_score": "high", "explanation": "x", "key_benefit": "y"}}}`,
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseJudgment(input)
			assert.Error(t, err)
		})
	}
}

func TestParseJudgmentEmptySchemesMapIsValid(t *testing.T) {
	judgment, err := ParseJudgment(`{"chat_summary": "nothing matched well", "schemes": {}}`)

	require.NoError(t, err)
	assert.Empty(t, judgment.Entries)
	assert.Equal(t, "nothing matched well", judgment.ChatSummary)
}
