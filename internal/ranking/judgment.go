package ranking

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Judgment is the parsed relevance assessment for one retrieval batch. It is
// consumed immediately by the merge step and never persisted.
type Judgment struct {
	ChatSummary string
	Entries     map[string]JudgmentEntry
}

type JudgmentEntry struct {
	RelevanceScore int
	Explanation    string
	KeyBenefit     string
}

type rawJudgment struct {
	ChatSummary string              `json:"chat_summary"`
	Schemes     map[string]rawEntry `json:"schemes"`
}

type rawEntry struct {
	RelevanceScore json.Number `json:"relevance_score"`
	Explanation    string      `json:"explanation"`
	KeyBenefit     string      `json:"key_benefit"`
}

// ParseJudgment decodes the reasoning stage's output. The text is untrusted:
// fence markup is stripped and the shape is validated strictly. Any defect
// (malformed JSON, missing schemes map, non-numeric score) fails the whole
// judgment so the caller can take its total fallback.
func ParseJudgment(raw string) (*Judgment, error) {
	cleaned := stripFences(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("judgment is empty")
	}

	decoder := json.NewDecoder(strings.NewReader(cleaned))
	decoder.UseNumber()

	var parsed rawJudgment
	if err := decoder.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode judgment: %w", err)
	}

	if parsed.Schemes == nil {
		return nil, fmt.Errorf("judgment has no schemes map")
	}

	entries := make(map[string]JudgmentEntry, len(parsed.Schemes))
	for id, entry := range parsed.Schemes {
		score, err := entry.RelevanceScore.Float64()
		if err != nil {
			return nil, fmt.Errorf("non-numeric relevance score for %q: %w", id, err)
		}
		entries[id] = JudgmentEntry{
			RelevanceScore: clampScore(int(score)),
			Explanation:    entry.Explanation,
			KeyBenefit:     entry.KeyBenefit,
		}
	}

	return &Judgment{
		ChatSummary: strings.TrimSpace(parsed.ChatSummary),
		Entries:     entries,
	}, nil
}

// stripFences removes markdown code fences and isolates the outermost JSON
// object from any surrounding prose.
func stripFences(raw string) string {
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}

	return text[start : end+1]
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
