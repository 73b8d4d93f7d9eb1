package model

import (
	"encoding/json"
	"strings"
)

const (
	DefaultCategory        = "General"
	DefaultApplicationMode = "Online / Offline"
)

// Scheme is a read-only snapshot of one knowledge-base record for the duration
// of a single turn. The ranking annotations (RelevanceScore, Explanation,
// KeyBenefit) are zero until the ranking pipeline fills them in.
type Scheme struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Category        string   `json:"category"`
	Description     string   `json:"description"`
	Benefits        []string `json:"benefits"`
	Eligibility     any      `json:"eligibility_criteria"`
	RequiredDocs    []string `json:"required_documents"`
	Tags            []string `json:"tags"`
	ApplicationMode string   `json:"application_mode"`
	Link            string   `json:"link,omitempty"`
	RelevanceScore  int      `json:"relevance_score"`
	Explanation     string   `json:"explanation"`
	KeyBenefit      string   `json:"key_benefit"`
}

// CoerceStringList turns a loosely-typed field into a display-ready list.
// Native lists pass through, JSON-encoded lists are parsed, and anything
// unparsable is kept verbatim as a single entry rather than dropped.
func CoerceStringList(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case []string:
		return v
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				items = append(items, s)
			} else {
				encoded, _ := json.Marshal(item)
				items = append(items, string(encoded))
			}
		}
		return items
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		var parsed []string
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
		return []string{v}
	default:
		encoded, _ := json.Marshal(v)
		return []string{string(encoded)}
	}
}

// CoerceCriteria normalizes eligibility criteria: a native mapping passes
// through, a JSON-object string is parsed, an unparsable string is kept
// verbatim, nil stays nil.
func CoerceCriteria(raw any) any {
	switch v := raw.(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		var parsed map[string]any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
		return v
	default:
		return v
	}
}

// Normalize applies field defaults in place. It never fails and never
// discards data. Nil lists become empty lists so they encode as [] rather
// than null.
func (s *Scheme) Normalize() {
	if strings.TrimSpace(s.Category) == "" {
		s.Category = DefaultCategory
	}
	if strings.TrimSpace(s.ApplicationMode) == "" {
		s.ApplicationMode = DefaultApplicationMode
	}
	s.Benefits = emptyIfNil(s.Benefits)
	s.RequiredDocs = emptyIfNil(s.RequiredDocs)
	s.Tags = emptyIfNil(s.Tags)
	s.Eligibility = CoerceCriteria(s.Eligibility)
}

func emptyIfNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
