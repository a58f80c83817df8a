package chat

import (
	"cmp"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	// ErrNotFound is returned when a message does not exist.
	ErrNotFound = errors.New("chat: message not found")

	// ErrNoTab is returned when a message is posted to an unknown tab.
	ErrNoTab = errors.New("chat: tab not found")
)

// Store keeps tabs and their messages.
//
// All implementations must be safe for concurrent use.
type Store interface {
	// EnsureTab creates the tab if it does not exist yet.
	EnsureTab(ctx context.Context, id, name string) error

	// Post appends m to its tab and returns it with a generated ID when
	// m.ID was empty. Returns [ErrNoTab] for an unknown tab.
	Post(ctx context.Context, m Message) (Message, error)

	// Message returns the message with the given ID or [ErrNotFound].
	Message(ctx context.Context, id string) (Message, error)

	// Messages returns the tab's messages ordered by timestamp. Messages
	// with equal timestamps keep their posting order.
	Messages(ctx context.Context, tabID string) ([]Message, error)
}

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory [Store] that keeps at most a fixed number of
// messages per tab.
type MemStore struct {
	limit int

	mu       sync.RWMutex
	tabs     map[string]*tab
	messages map[string]Message
}

type tab struct {
	name string
	ids  []string
}

// DefaultTabLimit is the number of messages a tab keeps by default.
const DefaultTabLimit = 1000

// NewMemStore returns a store that keeps the newest limit messages per tab.
// A limit <= 0 selects [DefaultTabLimit].
func NewMemStore(limit int) *MemStore {
	if limit <= 0 {
		limit = DefaultTabLimit
	}
	return &MemStore{
		limit:    limit,
		tabs:     make(map[string]*tab),
		messages: make(map[string]Message),
	}
}

// EnsureTab implements [Store.EnsureTab].
func (s *MemStore) EnsureTab(ctx context.Context, id, name string) error {
	if id == "" {
		return errors.New("chat: tab id must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tabs[id]; !ok {
		s.tabs[id] = &tab{name: name}
	}
	return nil
}

// Post implements [Store.Post].
func (s *MemStore) Post(ctx context.Context, m Message) (Message, error) {
	if m.ID == "" {
		id, err := generateID()
		if err != nil {
			return Message{}, fmt.Errorf("chat: generate id: %w", err)
		}
		m.ID = id
	}
	m = m.clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tabs[m.TabID]
	if !ok {
		return Message{}, fmt.Errorf("%w: %q", ErrNoTab, m.TabID)
	}
	if _, dup := s.messages[m.ID]; dup {
		return Message{}, fmt.Errorf("chat: duplicate message id %q", m.ID)
	}
	s.messages[m.ID] = m
	t.ids = append(t.ids, m.ID)

	if over := len(t.ids) - s.limit; over > 0 {
		for _, id := range t.ids[:over] {
			delete(s.messages, id)
		}
		t.ids = slices.Delete(t.ids, 0, over)
	}
	return m, nil
}

// Message implements [Store.Message].
func (s *MemStore) Message(ctx context.Context, id string) (Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return Message{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return m.clone(), nil
}

// Messages implements [Store.Messages].
func (s *MemStore) Messages(ctx context.Context, tabID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tabs[tabID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoTab, tabID)
	}
	out := make([]Message, 0, len(t.ids))
	for _, id := range t.ids {
		out = append(out, s.messages[id].clone())
	}
	slices.SortStableFunc(out, func(a, b Message) int { return cmp.Compare(a.Timestamp, b.Timestamp) })
	return out, nil
}

func generateID() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
