package ranking

import (
	"strconv"

	prose "github.com/jdkato/prose/v2"
)

// requestedCount scans the utterance for an explicit result count ("top 3
// schemes") and returns it, or 0 when no integer token is present. This is a
// best-effort heuristic: any integer token is accepted, so "businesses under
// 10 employees" reads as a count of 10. That mirrors the source behavior and
// is deliberately left as-is.
func requestedCount(utterance string) int {
	doc, err := prose.NewDocument(utterance,
		prose.WithExtraction(false),
		prose.WithTagging(false),
	)
	if err != nil {
		return 0
	}

	for _, tok := range doc.Tokens() {
		n, err := strconv.Atoi(tok.Text)
		if err != nil || n <= 0 {
			continue
		}
		return n
	}

	return 0
}
