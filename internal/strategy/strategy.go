// Package strategy defines the Strategy interface for trading strategies and
// provides a Registry for constructing them by name.
package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Strategy is the interface that all trading strategies must implement.
// Strategies never mutate engine state directly: they inspect a read-only
// View and return the buy/sell intents the engine should attempt.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Init performs any one-time setup required before the strategy begins
	// processing snapshots.
	Init(ctx context.Context) error

	// Process is called once per replayed snapshot. It returns zero or more
	// intents; an error aborts the run unless the engine is configured to
	// continue on strategy errors.
	Process(ctx context.Context, view View) ([]Intent, error)
}

// Factory constructs a fresh strategy instance from string parameters.
// Every backtest run gets its own instance.
type Factory func(params map[string]string) (Strategy, error)

// Registry holds a named collection of strategy factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a Registry with the no-op strategy registered.
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
	}
	r.Register(NoOpName, func(map[string]string) (Strategy, error) { return NoOp{}, nil })
	return r
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Get retrieves a factory by name. The second return value indicates
// whether the strategy was found.
func (r *Registry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// New constructs the named strategy. An empty name selects the no-op
// strategy.
func (r *Registry) New(name string, params map[string]string) (Strategy, error) {
	if name == "" {
		name = NoOpName
	}
	f, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	s, err := f(params)
	if err != nil {
		return nil, fmt.Errorf("creating strategy %q: %w", name, err)
	}
	return s, nil
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
