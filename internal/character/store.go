package character

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the requested character does not exist.
var ErrNotFound = errors.New("character not found")

// ErrDuplicateID is returned by Add when a character with the same ID exists.
var ErrDuplicateID = errors.New("character with that ID already exists")

// Store manages the characters of a campaign.
//
// Characters returned by a store are deep copies; changing them has no
// effect until they are written back with [Store.Update].
//
// All implementations must be safe for concurrent use.
type Store interface {
	// Add creates a character. An empty ID is replaced by a generated one.
	// Returns [ErrDuplicateID] if a character with the same ID exists.
	Add(ctx context.Context, c Character) (Character, error)

	// Get retrieves a character by ID.
	// Returns [ErrNotFound] when no character with that ID exists.
	Get(ctx context.Context, id string) (Character, error)

	// FindByPlayer returns the first character (by ID) played by the given
	// chat user. Returns [ErrNotFound] when the user has no character.
	FindByPlayer(ctx context.Context, player string) (Character, error)

	// List returns all characters ordered by ID.
	List(ctx context.Context) ([]Character, error)

	// Update applies fn to the character with the given ID atomically. The
	// change is discarded when fn returns an error.
	// Returns [ErrNotFound] when no character with that ID exists.
	Update(ctx context.Context, id string, fn func(*Character) error) error

	// Remove deletes a character by ID.
	// Returns [ErrNotFound] when no character with that ID exists.
	Remove(ctx context.Context, id string) error

	// BulkImport adds characters one at a time and returns how many were
	// added before the first error.
	BulkImport(ctx context.Context, cs []Character) (int, error)
}
