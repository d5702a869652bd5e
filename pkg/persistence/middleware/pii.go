package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/clara/pkg/domain"
	"github.com/aretw0/clara/pkg/ports"
)

// Mask replaces the value of every masked key.
const Mask = "***"

// DefaultPIIPatterns match the customer fields collected at INTAKE.
var DefaultPIIPatterns = []string{`(?i)email`, `(?i)phone`, `(?i)customer_name`}

type piiMiddleware struct {
	next     ports.StateStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware masks, in the stored copy only, the values of workflow
// fields whose key matches one of the patterns, at any nesting depth.
// The workflow held by the engine is never modified.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		patterns[i] = re
	}
	return func(next ports.StateStore) ports.StateStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, requestID string, state *domain.WorkflowState) error {
	masked := state.Snapshot()
	for k, v := range masked.Fields {
		masked.Fields[k] = m.mask(k, v)
	}
	return m.next.Save(ctx, requestID, masked)
}

func (m *piiMiddleware) Load(ctx context.Context, requestID string) (*domain.WorkflowState, error) {
	return m.next.Load(ctx, requestID)
}

func (m *piiMiddleware) Delete(ctx context.Context, requestID string) error {
	return m.next.Delete(ctx, requestID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) matches(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}

// mask works on a snapshot, so it may rewrite nested values in place.
func (m *piiMiddleware) mask(key string, v any) any {
	if m.matches(key) {
		return Mask
	}
	switch t := v.(type) {
	case map[string]any:
		for k, vv := range t {
			t[k] = m.mask(k, vv)
		}
	case []any:
		for i, vv := range t {
			t[i] = m.mask("", vv)
		}
	}
	return v
}
