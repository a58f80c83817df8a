package character

import (
	"cmp"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"slices"
	"sync"
)

var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// The zero value is ready to use.
type MemStore struct {
	mu    sync.RWMutex
	chars map[string]Character
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{chars: make(map[string]Character)}
}

// Add implements [Store.Add].
func (s *MemStore) Add(ctx context.Context, c Character) (Character, error) {
	if c.ID == "" {
		id, err := generateID()
		if err != nil {
			return Character{}, fmt.Errorf("character: generate id: %w", err)
		}
		c.ID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chars == nil {
		s.chars = make(map[string]Character)
	}
	if _, exists := s.chars[c.ID]; exists {
		return Character{}, ErrDuplicateID
	}
	s.chars[c.ID] = c.Clone()
	return c, nil
}

// Get implements [Store.Get].
func (s *MemStore) Get(ctx context.Context, id string) (Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chars[id]
	if !ok {
		return Character{}, ErrNotFound
	}
	return c.Clone(), nil
}

// FindByPlayer implements [Store.FindByPlayer].
func (s *MemStore) FindByPlayer(ctx context.Context, player string) (Character, error) {
	if player == "" {
		return Character{}, ErrNotFound
	}
	all, _ := s.List(ctx)
	for _, c := range all {
		if c.Player == player {
			return c, nil
		}
	}
	return Character{}, ErrNotFound
}

// List implements [Store.List].
func (s *MemStore) List(ctx context.Context) ([]Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Character, 0, len(s.chars))
	for _, c := range s.chars {
		out = append(out, c.Clone())
	}
	slices.SortFunc(out, func(a, b Character) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// Update implements [Store.Update].
func (s *MemStore) Update(ctx context.Context, id string, fn func(*Character) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chars[id]
	if !ok {
		return ErrNotFound
	}
	work := c.Clone()
	if err := fn(&work); err != nil {
		return err
	}
	work.ID = id
	s.chars[id] = work
	return nil
}

// Remove implements [Store.Remove].
func (s *MemStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chars[id]; !ok {
		return ErrNotFound
	}
	delete(s.chars, id)
	return nil
}

// BulkImport implements [Store.BulkImport].
func (s *MemStore) BulkImport(ctx context.Context, cs []Character) (int, error) {
	count := 0
	for _, c := range cs {
		if _, err := s.Add(ctx, c); err != nil {
			return count, fmt.Errorf("character: bulk import at index %d (name %q): %w", count, c.Name, err)
		}
		count++
	}
	return count, nil
}

// generateID produces a random 32-character hex string.
func generateID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
