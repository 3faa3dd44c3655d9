package llm

import (
	"context"
	"fmt"

	"github.com/ylol-app/ylol/internal/domain"
)

// MockLLM answers locally with a canned, mode-flavored reply in two bubbles.
type MockLLM struct{}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

func (m *MockLLM) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var said string
	if n := len(req.Context); n > 0 {
		said = req.Context[n-1].Content
	}

	var opener string
	switch req.Mode {
	case domain.ModeChallenging:
		opener = fmt.Sprintf("ok but %q... is that the whole story?", said)
	default:
		opener = fmt.Sprintf("i hear you. %q sounds like a lot.", said)
	}
	if len(req.Attachments) > 0 {
		opener += fmt.Sprintf(" (and thanks for the %d pic(s))", len(req.Attachments))
	}

	return opener + "\n\ntell me a bit more about how that feels?", nil
}
