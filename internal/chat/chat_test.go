package chat_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MrWong99/dicebot/internal/chat"
)

func TestMessage_Markers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		msg        chat.Message
		wantSystem bool
		wantSecret bool
	}{
		{name: "player roll", msg: chat.Message{Tag: "DiceBot"}},
		{name: "dice result", msg: chat.Message{Tag: "system dicebot"}, wantSystem: true},
		{name: "secret result", msg: chat.Message{Tag: "system dicebot secret"}, wantSystem: true, wantSecret: true},
		{name: "flagged", msg: chat.Message{System: true}, wantSystem: true},
		{name: "marker is a whole word", msg: chat.Message{Tag: "systemic"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.msg.IsSystem(); got != tt.wantSystem {
				t.Errorf("IsSystem = %v, want %v", got, tt.wantSystem)
			}
			if got := tt.msg.IsSecret(); got != tt.wantSecret {
				t.Errorf("IsSecret = %v, want %v", got, tt.wantSecret)
			}
		})
	}

	if (&chat.Message{}).IsDirect() {
		t.Error("message without recipients reported as direct")
	}
	if !(&chat.Message{To: []string{"u1"}}).IsDirect() {
		t.Error("message with recipients not reported as direct")
	}
}

func TestMemStore_PostAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := chat.NewMemStore(0)

	if _, err := s.Post(ctx, chat.Message{TabID: "main", Text: "hi"}); !errors.Is(err, chat.ErrNoTab) {
		t.Fatalf("Post to unknown tab: err = %v, want ErrNoTab", err)
	}
	if err := s.EnsureTab(ctx, "main", "Main"); err != nil {
		t.Fatalf("EnsureTab: %v", err)
	}
	if err := s.EnsureTab(ctx, "", "nameless"); err == nil {
		t.Error("EnsureTab with empty id: expected error")
	}

	to := []string{"u1"}
	posted, err := s.Post(ctx, chat.Message{TabID: "main", Text: "2d6", To: to})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if posted.ID == "" {
		t.Fatal("Post did not assign an ID")
	}
	to[0] = "changed"

	got, err := s.Message(ctx, posted.ID)
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if got.Text != "2d6" || got.To[0] != "u1" {
		t.Errorf("Message = %+v", got)
	}
	if _, err := s.Post(ctx, chat.Message{ID: posted.ID, TabID: "main"}); err == nil {
		t.Error("Post with duplicate id: expected error")
	}
	if _, err := s.Message(ctx, "nope"); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("Message(nope) err = %v, want ErrNotFound", err)
	}
}

func TestMemStore_MessagesOrderedByTimestamp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := chat.NewMemStore(0)
	_ = s.EnsureTab(ctx, "main", "Main")

	for _, m := range []chat.Message{
		{ID: "later", TabID: "main", Timestamp: 200},
		{ID: "roll", TabID: "main", Timestamp: 100},
		{ID: "other", TabID: "main", Timestamp: 150},
		{ID: "result", TabID: "main", Timestamp: 101},
		{ID: "tie", TabID: "main", Timestamp: 101},
	} {
		if _, err := s.Post(ctx, m); err != nil {
			t.Fatalf("Post(%s): %v", m.ID, err)
		}
	}

	msgs, err := s.Messages(ctx, "main")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	want := []string{"roll", "result", "tie", "other", "later"}
	for i, m := range msgs {
		if m.ID != want[i] {
			t.Fatalf("Messages order = %v, want %v", ids(msgs), want)
		}
	}
	if _, err := s.Messages(ctx, "missing"); !errors.Is(err, chat.ErrNoTab) {
		t.Errorf("Messages(missing) err = %v, want ErrNoTab", err)
	}
}

func TestMemStore_Limit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := chat.NewMemStore(3)
	_ = s.EnsureTab(ctx, "main", "Main")

	for i := range 5 {
		if _, err := s.Post(ctx, chat.Message{ID: fmt.Sprint(i), TabID: "main", Timestamp: int64(i)}); err != nil {
			t.Fatalf("Post: %v", err)
		}
	}
	msgs, _ := s.Messages(ctx, "main")
	if len(msgs) != 3 || msgs[0].ID != "2" {
		t.Errorf("Messages = %v, want the newest three", ids(msgs))
	}
	if _, err := s.Message(ctx, "0"); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("evicted message still retrievable: %v", err)
	}
}

func ids(ms []chat.Message) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}
