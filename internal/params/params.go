// Package params pulls structured action parameters out of free-form
// conversation text.
package params

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Extractor fills out with the parameters an action needs, reading them from
// the conversation. Implementations: an LLM-backed extractor for production
// and a static map for tests.
type Extractor interface {
	Extract(ctx context.Context, conversation, instructions string, out any) error
}

// Static serves canned parameter sets keyed by a substring of the
// conversation. Deterministic extraction for tests and scripted runs.
type Static struct {
	byNeedle map[string]any
}

func NewStatic(byNeedle map[string]any) *Static {
	return &Static{byNeedle: byNeedle}
}

func (s *Static) Extract(_ context.Context, conversation, _ string, out any) error {
	for needle, params := range s.byNeedle {
		if needle != "" && !strings.Contains(conversation, needle) {
			continue
		}
		buf, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode static params: %w", err)
		}
		return json.Unmarshal(buf, out)
	}
	return fmt.Errorf("no static params match the conversation")
}
