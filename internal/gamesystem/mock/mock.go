// Package mock provides test doubles for the gamesystem.Evaluator and
// gamesystem.Source interfaces.
//
// All configuration fields should be set before the double is shared with
// the code under test. Call records are guarded by a mutex and can be read
// through the accessor methods once the test has finished driving the code.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/dicebot/internal/gamesystem"
)

// EvalCall records a single invocation of Evaluator.Eval.
type EvalCall struct {
	Ctx  context.Context
	Text string
}

// Evaluator is a mock implementation of gamesystem.Evaluator.
type Evaluator struct {
	mu sync.Mutex

	// SystemID is returned by ID.
	SystemID string

	// MatchFunc decides Matches. When nil every text matches.
	MatchFunc func(text string) bool

	// EvalFunc computes the result. When nil, Result and Err are returned.
	EvalFunc func(ctx context.Context, text string) (*gamesystem.Result, error)

	// Result is returned by Eval when EvalFunc is nil.
	Result *gamesystem.Result

	// Err is returned by Eval when EvalFunc is nil.
	Err error

	// HelpText is returned by Help.
	HelpText string

	evalCalls []EvalCall
}

// ID implements gamesystem.Evaluator.
func (e *Evaluator) ID() string { return e.SystemID }

// Matches implements gamesystem.Evaluator.
func (e *Evaluator) Matches(text string) bool {
	if e.MatchFunc == nil {
		return true
	}
	return e.MatchFunc(text)
}

// Eval implements gamesystem.Evaluator and records the call.
func (e *Evaluator) Eval(ctx context.Context, text string) (*gamesystem.Result, error) {
	e.mu.Lock()
	e.evalCalls = append(e.evalCalls, EvalCall{Ctx: ctx, Text: text})
	e.mu.Unlock()

	if e.EvalFunc != nil {
		return e.EvalFunc(ctx, text)
	}
	return e.Result, e.Err
}

// Help implements gamesystem.Evaluator.
func (e *Evaluator) Help() string { return e.HelpText }

// EvalCalls returns a copy of the recorded Eval calls.
func (e *Evaluator) EvalCalls() []EvalCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]EvalCall, len(e.evalCalls))
	copy(out, e.evalCalls)
	return out
}

// Texts returns the text of every recorded Eval call in order.
func (e *Evaluator) Texts() []string {
	calls := e.EvalCalls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Text
	}
	return out
}

// Source is a mock implementation of gamesystem.Source.
type Source struct {
	mu sync.Mutex

	// Descriptors is returned by Catalog.
	Descriptors []gamesystem.Descriptor

	// CatalogErr, if non-nil, is returned by Catalog.
	CatalogErr error

	// CatalogFunc, when set, replaces Descriptors and CatalogErr.
	CatalogFunc func(ctx context.Context) ([]gamesystem.Descriptor, error)

	// StaticEvaluators backs Static.
	StaticEvaluators map[string]gamesystem.Evaluator

	// DynamicEvaluators backs Dynamic. Ids missing from the map fail.
	DynamicEvaluators map[string]gamesystem.Evaluator

	// DynamicFunc, when set, replaces DynamicEvaluators.
	DynamicFunc func(ctx context.Context, id string) (gamesystem.Evaluator, error)

	catalogCalls int
	staticCalls  []string
	dynamicCalls []string
}

// Catalog implements gamesystem.Source.
func (s *Source) Catalog(ctx context.Context) ([]gamesystem.Descriptor, error) {
	s.mu.Lock()
	s.catalogCalls++
	s.mu.Unlock()

	if s.CatalogFunc != nil {
		return s.CatalogFunc(ctx)
	}
	if s.CatalogErr != nil {
		return nil, s.CatalogErr
	}
	out := make([]gamesystem.Descriptor, len(s.Descriptors))
	copy(out, s.Descriptors)
	return out, nil
}

// Static implements gamesystem.Source.
func (s *Source) Static(id string) (gamesystem.Evaluator, bool) {
	s.mu.Lock()
	s.staticCalls = append(s.staticCalls, id)
	s.mu.Unlock()

	ev, ok := s.StaticEvaluators[id]
	return ev, ok
}

// Dynamic implements gamesystem.Source.
func (s *Source) Dynamic(ctx context.Context, id string) (gamesystem.Evaluator, error) {
	s.mu.Lock()
	s.dynamicCalls = append(s.dynamicCalls, id)
	s.mu.Unlock()

	if s.DynamicFunc != nil {
		return s.DynamicFunc(ctx, id)
	}
	if ev, ok := s.DynamicEvaluators[id]; ok {
		return ev, nil
	}
	return nil, fmt.Errorf("mock: no dynamic evaluator for %q", id)
}

// CatalogCalls returns how often Catalog was called.
func (s *Source) CatalogCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalogCalls
}

// StaticCalls returns the ids passed to Static in order.
func (s *Source) StaticCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.staticCalls...)
}

// DynamicCalls returns the ids passed to Dynamic in order.
func (s *Source) DynamicCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.dynamicCalls...)
}
