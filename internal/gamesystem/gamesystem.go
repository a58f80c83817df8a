// Package gamesystem resolves game-system identifiers to dice evaluators.
//
// A game system is a named ruleset for interpreting dice-roll expressions
// (for example "Cthulhu" for Call of Cthulhu percentile checks). The
// [Registry] holds the catalog of known systems and lazily obtains an
// [Evaluator] for a requested id. Every catalog load and resolution runs on a
// serialised [loadqueue.Queue], so the catalog is always initialised before
// the first lookup observes it.
package gamesystem

import (
	"cmp"
	"context"
	"errors"
	"slices"
)

// DefaultID is the identifier of the generic system used when a message
// names no known system.
const DefaultID = "DiceBot"

// ErrUnknownSystem is returned when neither the static table nor a dynamic
// load can supply an evaluator.
var ErrUnknownSystem = errors.New("gamesystem: unknown game system")

// Descriptor describes one entry of the game-system catalog.
type Descriptor struct {
	// ID is the identifier used to resolve the system, e.g. "Cthulhu".
	ID string `yaml:"id"`

	// SortKey orders the catalog for display. It has no effect on
	// resolution.
	SortKey string `yaml:"sort_key"`

	// Name is the human-readable title.
	Name string `yaml:"name"`
}

// SortDescriptors orders ds ascending by SortKey. Descriptors with equal keys
// keep their relative order.
func SortDescriptors(ds []Descriptor) {
	slices.SortStableFunc(ds, func(a, b Descriptor) int {
		return cmp.Compare(a.SortKey, b.SortKey)
	})
}

// Result is the outcome of one evaluation.
type Result struct {
	// Text is the rendered roll, e.g. "(2D6) ＞ 7[3,4] ＞ 7".
	Text string

	// Secret marks a roll whose details should only be shown to its
	// recipients.
	Secret bool

	// Total is the final numeric value when HasTotal is set.
	Total    int
	HasTotal bool
}

// Evaluator evaluates dice commands for a single game system.
//
// Implementations must be safe for concurrent use.
type Evaluator interface {
	// ID returns the game-system identifier.
	ID() string

	// Matches reports whether text looks like a command of this system.
	Matches(text string) bool

	// Eval evaluates text. A nil result with a nil error means the system
	// declined the command.
	Eval(ctx context.Context, text string) (*Result, error)

	// Help returns a usage description of the system's commands.
	Help() string
}

// Source supplies the catalog and the evaluators behind it.
type Source interface {
	// Catalog returns every system this source knows about.
	Catalog(ctx context.Context) ([]Descriptor, error)

	// Static returns a compiled-in evaluator for id.
	Static(id string) (Evaluator, bool)

	// Dynamic loads an evaluator for id on demand, for example from a
	// definition file.
	Dynamic(ctx context.Context, id string) (Evaluator, error)
}
