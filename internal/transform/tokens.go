package transform

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/postpilot/internal/types"
)

// tokenCounter budgets prompt context so revision-heavy sessions do not
// overflow the model's context window.
type tokenCounter struct {
	enc *tiktoken.Tiktoken
	max int
}

func newTokenCounter(model string, maxTokens int) (*tokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &tokenCounter{enc: enc, max: maxTokens}, nil
}

func (t *tokenCounter) count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// trimHistory returns the most recent revisions that fit within budget
// tokens, preserving chronological order. The newest revisions carry the
// feedback the model must honor, so trimming drops the oldest first.
func (t *tokenCounter) trimHistory(history []types.Revision, budget int) []types.Revision {
	if budget <= 0 || len(history) == 0 {
		return nil
	}

	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := t.count(history[i].Feedback) + t.count(history[i].Draft)
		if used+cost > budget {
			break
		}
		used += cost
		start = i
	}
	return history[start:]
}
