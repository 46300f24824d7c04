package agent

import (
	"context"
	"sync"

	"github.com/halim/evo/pkg/dispatch"
	"github.com/halim/evo/pkg/tools"
)

// Switcher is a Planner whose underlying model can be swapped at runtime.
// Turns already in flight keep the planner they started with.
type Switcher struct {
	provider string
	apiKey   string

	mu      sync.RWMutex
	opts    Options
	current Planner
}

// NewSwitcher creates a switchable planner starting on opts.Model.
func NewSwitcher(provider, apiKey string, opts Options) (*Switcher, error) {
	planner, err := New(provider, apiKey, opts)
	if err != nil {
		return nil, err
	}
	return &Switcher{
		provider: provider,
		apiKey:   apiKey,
		opts:     opts,
		current:  planner,
	}, nil
}

// Plan implements dispatch.Planner.
func (s *Switcher) Plan(ctx context.Context, system string, transcript []dispatch.Message, schemas []tools.Schema) (dispatch.Plan, error) {
	s.mu.RLock()
	planner := s.current
	s.mu.RUnlock()
	return planner.Plan(ctx, system, transcript, schemas)
}

// Provider returns the provider name.
func (s *Switcher) Provider() string {
	return s.provider
}

// Model returns the active model.
func (s *Switcher) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Model()
}

// Switch replaces the active planner with one on the given model. The
// provider and credentials stay fixed.
func (s *Switcher) Switch(model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	opts := s.opts
	opts.Model = model
	planner, err := New(s.provider, s.apiKey, opts)
	if err != nil {
		return err
	}
	s.opts = opts
	s.current = planner
	return nil
}
