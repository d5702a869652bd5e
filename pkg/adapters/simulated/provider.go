// Package simulated provides in-process ATLAS and COMMON capability providers
// with canned responses. They back the demo CLI and the engine tests, and can
// be scripted with a fixed score, failures, latency or outages.
package simulated

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/clara/pkg/domain"
)

// ErrUnavailable is returned by every call of a provider built with Unavailable().
var ErrUnavailable = errors.New("simulated provider unavailable")

// Handler produces the output of one ability.
type Handler func(input map[string]any) map[string]any

// Call is one recorded invocation.
type Call struct {
	Ability string
	Input   map[string]any
}

// Provider is a scripted capability provider.
type Provider struct {
	kind     domain.Provider
	handlers map[string]Handler

	mu          sync.Mutex
	calls       []Call
	failures    map[string]string
	panics      map[string]bool
	unavailable bool
	latency     time.Duration
}

// Option configures a simulated provider.
type Option func(*Provider)

// WithFailure makes the ability report failure with the given message.
func WithFailure(ability, message string) Option {
	return func(p *Provider) {
		p.failures[ability] = message
	}
}

// WithPanic makes the ability panic, to exercise the invoker's recovery.
func WithPanic(ability string) Option {
	return func(p *Provider) {
		p.panics[ability] = true
	}
}

// Unavailable makes every call fail at the transport level.
func Unavailable() Option {
	return func(p *Provider) {
		p.unavailable = true
	}
}

// WithLatency delays every call. The delay honours the caller's deadline.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) {
		p.latency = d
	}
}

// WithOutput replaces the canned output of an ability.
func WithOutput(ability string, output map[string]any) Option {
	return func(p *Provider) {
		p.handlers[ability] = func(map[string]any) map[string]any { return maps.Clone(output) }
	}
}

// WithHandler replaces the behaviour of an ability.
func WithHandler(ability string, h Handler) Option {
	return func(p *Provider) {
		p.handlers[ability] = h
	}
}

// WithScore makes solution_evaluation rate the recommended solution with score.
// Only meaningful on the COMMON provider.
func WithScore(score int) Option {
	return func(p *Provider) {
		p.handlers["solution_evaluation"] = func(input map[string]any) map[string]any {
			return solutionEvaluation(input, score)
		}
	}
}

func newProvider(kind domain.Provider, handlers map[string]Handler, opts []Option) *Provider {
	p := &Provider{
		kind:     kind,
		handlers: handlers,
		failures: make(map[string]string),
		panics:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Kind returns ATLAS or COMMON.
func (p *Provider) Kind() domain.Provider {
	return p.kind
}

// Call implements ports.CapabilityProvider.
func (p *Provider) Call(ctx context.Context, ability string, input map[string]any) (domain.ProviderResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Ability: ability, Input: maps.Clone(input)})
	unavailable, latency := p.unavailable, p.latency
	failure, fails := p.failures[ability]
	panics := p.panics[ability]
	handler, known := p.handlers[ability]
	p.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return domain.ProviderResponse{}, ctx.Err()
		case <-timer.C:
		}
	}

	if unavailable {
		return domain.ProviderResponse{}, fmt.Errorf("%s: %w", p.kind, ErrUnavailable)
	}
	if panics {
		panic(fmt.Sprintf("simulated panic in %s", ability))
	}
	if fails {
		return domain.ProviderResponse{Success: false, Message: failure}, nil
	}
	if !known {
		return domain.ProviderResponse{Success: false, Message: fmt.Sprintf("unknown ability: %s", ability)}, nil
	}
	return domain.ProviderResponse{Success: true, Output: handler(input)}, nil
}

// Health implements ports.HealthChecker.
func (p *Provider) Health(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unavailable {
		return fmt.Errorf("%s: %w", p.kind, ErrUnavailable)
	}
	return nil
}

// Calls returns the recorded invocations in order.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// CallCount returns how many times the ability was invoked.
func (p *Provider) CallCount(ability string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c.Ability == ability {
			n++
		}
	}
	return n
}

// Abilities lists the abilities the provider answers.
func (p *Provider) Abilities() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.handlers))
	for name := range p.handlers {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// SetUnavailable toggles an outage at runtime.
func (p *Provider) SetUnavailable(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unavailable = v
}
