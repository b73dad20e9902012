package sequencer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/apsfactory/aps-core/internal/infrastructure/logging"
)

// counter is one module's sequence state. The mutex serializes Next
// calls for that module only; different modules never contend.
type counter struct {
	mu   sync.Mutex
	last int64
}

// Sequencer issues the per-module orderUpdateId sequence.
//
// Every module's sequence starts at 1 and is strictly monotonic: the
// value returned by Next is always the previous value plus one, even
// across restarts when a repository is attached. Sequences are
// partitioned by module serial; there is no global ordering.
type Sequencer struct {
	mu       sync.Mutex
	counters map[string]*counter

	repo   Repository
	logger *logging.Logger
}

// New creates a Sequencer with all sequences at zero. Attach
// persistence with Restore.
func New(repo Repository, logger *logging.Logger) *Sequencer {
	return &Sequencer{
		counters: make(map[string]*counter),
		repo:     repo,
		logger:   logger,
	}
}

// Restore loads persisted counters so sequences continue where the
// previous process stopped. Call once before the first Next.
func (s *Sequencer) Restore(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	values, err := s.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("restoring sequence counters: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for module, last := range values {
		s.counters[module] = &counter{last: last}
	}

	if s.logger != nil && len(values) > 0 {
		s.logger.Info("sequence counters restored", "modules", len(values))
	}
	return nil
}

// Next issues the next orderUpdateId for a module. The first call for
// a module returns 1. When a repository is attached the new value is
// persisted before it is returned; a persistence failure rolls the
// counter back so the sequence never skips.
func (s *Sequencer) Next(ctx context.Context, module string) (int64, error) {
	c := s.counterFor(module)

	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.last + 1
	if s.repo != nil {
		if err := s.repo.Save(ctx, module, next); err != nil {
			return 0, fmt.Errorf("persisting sequence for %s: %w", module, err)
		}
	}
	c.last = next
	return next, nil
}

// Rollback returns the most recently issued value to a module's
// sequence, so the next call to Next hands it out again. Only the
// current head can be returned; any other value is a no-op. Callers
// use this when a dispatch fails after drawing its number, keeping
// the wire sequence gapless.
func (s *Sequencer) Rollback(ctx context.Context, module string, issued int64) error {
	c := s.counterFor(module)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.last != issued {
		return nil
	}

	prev := issued - 1
	if s.repo != nil {
		if err := s.repo.Save(ctx, module, prev); err != nil {
			return fmt.Errorf("rolling back sequence for %s: %w", module, err)
		}
	}
	c.last = prev
	return nil
}

// Peek returns the value the next call to Next will issue, without
// consuming it.
func (s *Sequencer) Peek(module string) int64 {
	c := s.counterFor(module)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last + 1
}

// Reset sets a module's sequence back to the start, so the next issued
// value is 1. Operator-triggered only; resetting a sequence the module
// firmware still remembers will make it reject subsequent commands.
func (s *Sequencer) Reset(ctx context.Context, module string) error {
	c := s.counterFor(module)

	c.mu.Lock()
	defer c.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.Save(ctx, module, 0); err != nil {
			return fmt.Errorf("persisting sequence reset for %s: %w", module, err)
		}
	}
	c.last = 0

	if s.logger != nil {
		s.logger.Warn("sequence counter reset", "module", module)
	}
	return nil
}

// Snapshot returns the last issued value per module, sorted by module
// serial for stable output.
func (s *Sequencer) Snapshot() []ModuleSequence {
	s.mu.Lock()
	modules := make([]string, 0, len(s.counters))
	for module := range s.counters {
		modules = append(modules, module)
	}
	s.mu.Unlock()

	sort.Strings(modules)

	out := make([]ModuleSequence, 0, len(modules))
	for _, module := range modules {
		c := s.counterFor(module)
		c.mu.Lock()
		out = append(out, ModuleSequence{Module: module, Last: c.last})
		c.mu.Unlock()
	}
	return out
}

// ModuleSequence is one module's position in its sequence.
type ModuleSequence struct {
	Module string `json:"module"`
	Last   int64  `json:"last"`
}

// counterFor returns the counter for a module, creating it on first
// use.
func (s *Sequencer) counterFor(module string) *counter {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[module]
	if !ok {
		c = &counter{}
		s.counters[module] = c
	}
	return c
}
