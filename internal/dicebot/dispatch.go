package dicebot

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/dicebot/internal/chat"
	"github.com/MrWong99/dicebot/internal/observe"
)

// SystemSender is the From of every generated result message.
const SystemSender = "System-BCDice"

// Tags carried by generated result messages.
const (
	resultTag       = "system dicebot"
	secretResultTag = resultTag + " secret"
)

// Publisher accepts generated messages for delivery. [bus.Bus] implements it.
type Publisher interface {
	PublishOutbound(ctx context.Context, m chat.Message) error
}

// RollResult is the outcome of one [Controller.DiceRoll] call. An empty Text
// means nothing was rolled.
type RollResult struct {
	// ID is the game system that produced the result.
	ID     string
	Text   string
	Secret bool

	Total    int
	HasTotal bool
}

// Dispatcher turns roll results into system chat messages.
type Dispatcher struct {
	pub     Publisher
	metrics *observe.Metrics
}

// NewDispatcher returns a dispatcher publishing to pub.
func NewDispatcher(pub Publisher, m *observe.Metrics) *Dispatcher {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Dispatcher{pub: pub, metrics: m}
}

// Compose builds the result message answering original. The bool is false
// when res has no text.
func Compose(res RollResult, original *chat.Message) (chat.Message, bool) {
	if res.Text == "" {
		return chat.Message{}, false
	}
	m := chat.Message{
		TabID:      original.TabID,
		Text:       res.Text,
		Tag:        resultTag,
		From:       SystemSender,
		OriginFrom: original.From,
		Name:       fmt.Sprintf("%s : %s", systemName(res.ID), original.Name),
		Timestamp:  original.Timestamp + 1,
		System:     true,
	}
	if res.Secret {
		m.Tag = secretResultTag
		m.Name += " (Secret)"
	}
	if len(original.To) > 0 {
		m.To = slices.Clone(original.To)
		if original.From != "" && !slices.Contains(m.To, original.From) {
			m.To = append(m.To, original.From)
		}
	}
	return m, true
}

// Send publishes the result message for res. Results without text are
// dropped silently.
func (d *Dispatcher) Send(ctx context.Context, res RollResult, original *chat.Message) error {
	m, ok := Compose(res, original)
	if !ok {
		return nil
	}
	if err := d.pub.PublishOutbound(ctx, m); err != nil {
		return fmt.Errorf("dicebot: publish result for %s: %w", original.ID, err)
	}
	d.metrics.RecordDispatch(ctx, res.Secret)
	observe.Logger(ctx).Debug("dicebot: result dispatched",
		"message_id", original.ID, "system", systemName(res.ID), "secret", res.Secret)
	return nil
}

// systemName strips a version suffix ("Cthulhu:7th") from a system ID.
func systemName(id string) string {
	s, _, _ := strings.Cut(id, ":")
	return s
}
