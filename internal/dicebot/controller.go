// Package dicebot recognises dice-roll and resource commands in chat
// messages, evaluates them through the game-system registry and publishes
// the results back to chat as system messages.
//
// A [Controller] consumes [chat.Event] values, loads the referenced message
// and handles the roll path and the resource path of that message
// concurrently. Evaluator failures never escape: they are logged and the
// message simply produces no result.
package dicebot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/dicebot/internal/character"
	"github.com/MrWong99/dicebot/internal/chat"
	"github.com/MrWong99/dicebot/internal/gamesystem"
	"github.com/MrWong99/dicebot/internal/observe"
)

// SystemResolver yields the evaluator for a game type. Resolve falls back to
// the default system for unknown types, Lookup fails with
// [gamesystem.ErrUnknownSystem]. [gamesystem.Registry] implements it.
type SystemResolver interface {
	Resolve(ctx context.Context, gameType string) (gamesystem.Evaluator, error)
	Lookup(ctx context.Context, gameType string) (gamesystem.Evaluator, error)
}

// MessageSource loads chat messages by ID. [chat.MemStore] implements it.
type MessageSource interface {
	Message(ctx context.Context, id string) (chat.Message, error)
}

// EventSource yields chat events until it is closed. [bus.Bus] implements it.
type EventSource interface {
	ConsumeInbound(ctx context.Context) (chat.Event, bool)
}

// Roll outcomes recorded with [observe.Metrics.RecordRoll].
const (
	outcomeOK       = "ok"
	outcomeDeclined = "declined"
	outcomeError    = "error"
)

// repeatHeaderRe matches the "#N" line heading each repeated roll.
var repeatHeaderRe = regexp.MustCompile(`\n?(#\d+)\n`)

var errResourceGone = errors.New("dicebot: resource field no longer exists")

// Option configures a [Controller].
type Option func(*Controller)

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller reacts to chat events with dice results and resource updates.
type Controller struct {
	systems    SystemResolver
	messages   MessageSource
	chars      character.Store
	dispatcher *Dispatcher
	resources  *Resolver
	metrics    *observe.Metrics

	wg sync.WaitGroup
}

// NewController wires a controller. Results are published to pub.
func NewController(systems SystemResolver, messages MessageSource, chars character.Store, pub Publisher, opts ...Option) *Controller {
	c := &Controller{
		systems:  systems,
		messages: messages,
		chars:    chars,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.dispatcher = NewDispatcher(pub, c.metrics)
	c.resources = NewResolver(chars, c.metrics)
	return c
}

// Run consumes events until ctx is cancelled or src is closed, handling each
// event on its own goroutine. It returns after every started handler has
// finished.
func (c *Controller) Run(ctx context.Context, src EventSource) error {
	defer c.wg.Wait()
	for {
		ev, ok := src.ConsumeInbound(ctx)
		if !ok {
			return nil
		}
		c.wg.Go(func() { c.Handle(ctx, ev) })
	}
}

// Handle processes one chat event. Messages not sent from this client and
// system messages are ignored.
func (c *Controller) Handle(ctx context.Context, ev chat.Event) {
	c.metrics.InFlight.Add(ctx, 1)
	defer c.metrics.InFlight.Add(ctx, -1)

	m, err := c.messages.Message(ctx, ev.MessageID)
	if err != nil {
		observe.Logger(ctx).Debug("dicebot: event for unknown message", "message_id", ev.MessageID, "err", err)
		return
	}
	if !m.FromSelf || m.IsSystem() {
		return
	}

	ctx, span := observe.StartSpan(ctx, "dicebot.handle",
		trace.WithAttributes(attribute.String("message.id", m.ID)))
	defer span.End()

	var wg sync.WaitGroup
	wg.Go(func() { c.handleRoll(ctx, &m) })
	wg.Go(func() { c.handleResources(ctx, &m) })
	wg.Wait()
}

func (c *Controller) handleRoll(ctx context.Context, m *chat.Message) {
	cmd := Recognize(m)
	if !cmd.Valid() {
		return
	}
	res := c.DiceRoll(ctx, cmd.RollText(), cmd.GameType)
	if res.Text == "" {
		return
	}
	c.metrics.RecordCommand(ctx, "roll")
	if err := c.dispatcher.Send(ctx, res, m); err != nil {
		observe.Logger(ctx).Warn("dicebot: dispatch failed", "err", err)
	}
}

func (c *Controller) handleResources(ctx context.Context, m *chat.Message) {
	for _, rc := range ParseResources(Normalize(m.Text)) {
		c.metrics.RecordCommand(ctx, "resource")
		for _, target := range c.resources.Targets(ctx, rc, m) {
			if _, ok := c.resources.Field(ctx, rc, target); !ok {
				continue
			}
			res := c.DiceRoll(ctx, rc.RollText(), m.Tag)
			if res.Text == "" {
				continue
			}
			if res.HasTotal {
				change, err := c.applyResource(ctx, target.ID, rc, res.Total)
				if err != nil {
					observe.Logger(ctx).Warn("dicebot: resource not updated",
						"character", target.ID, "command", rc.String(), "err", err)
				} else {
					res.Text += fmt.Sprintf("\n[%s] %s", target.Name, change)
				}
			}
			if err := c.dispatcher.Send(ctx, res, m); err != nil {
				observe.Logger(ctx).Warn("dicebot: dispatch failed", "err", err)
			}
		}
	}
}

// applyResource updates the resource field atomically and describes the
// change as "HP : 12 → 9".
func (c *Controller) applyResource(ctx context.Context, id string, rc ResourceCommand, total int) (string, error) {
	var before, after string
	err := c.chars.Update(ctx, id, func(ch *character.Character) error {
		_, field := findResource(ch.Detail, rc.Name)
		if field == nil {
			return errResourceGone
		}
		v, err := rc.Apply(field.Value, total)
		if err != nil {
			return err
		}
		before, after = field.Value, v
		field.Value = v
		return nil
	})
	if err != nil {
		return "", err
	}
	observe.Logger(ctx).Info("dicebot: resource updated",
		"character", id, "resource", rc.Name, "from", before, "to", after)
	return fmt.Sprintf("%s : %s → %s", rc.Name, before, after), nil
}

// DiceRoll evaluates expr with the evaluator for gameType. It never fails: a
// declined expression, an unknown system or a misbehaving evaluator all yield
// a result with empty Text. Repeat headers are folded onto their roll line.
func (c *Controller) DiceRoll(ctx context.Context, expr, gameType string) (res RollResult) {
	ctx, span := observe.StartSpan(ctx, "dicebot.roll",
		trace.WithAttributes(attribute.String("game_type", gameType)))
	defer span.End()

	start := time.Now()
	system := gameType
	outcome := outcomeDeclined
	defer func() {
		if p := recover(); p != nil {
			observe.Logger(ctx).Error("dicebot: evaluator panicked", "system", system, "expr", expr, "panic", p)
			res = RollResult{ID: system}
			outcome = outcomeError
		}
		if outcome == outcomeError {
			span.SetStatus(codes.Error, "evaluation failed")
		}
		c.metrics.RecordRoll(ctx, system, outcome, time.Since(start).Seconds())
	}()

	ev, err := c.systems.Resolve(ctx, gameType)
	if err != nil {
		observe.Logger(ctx).Warn("dicebot: no evaluator", "game_type", gameType, "err", err)
		outcome = outcomeError
		return RollResult{ID: gameType}
	}
	system = ev.ID()
	if !ev.Matches(expr) {
		return RollResult{ID: system}
	}

	r, err := ev.Eval(ctx, expr)
	if err != nil {
		observe.Logger(ctx).Warn("dicebot: evaluation failed", "system", system, "expr", expr, "err", err)
		outcome = outcomeError
		return RollResult{ID: system}
	}
	if r == nil || r.Text == "" {
		return RollResult{ID: system}
	}

	outcome = outcomeOK
	span.SetAttributes(attribute.String("system", system), attribute.Bool("secret", r.Secret))
	return RollResult{
		ID:       system,
		Text:     repeatHeaderRe.ReplaceAllString(r.Text, "$1 "),
		Secret:   r.Secret,
		Total:    r.Total,
		HasTotal: r.HasTotal,
	}
}

// HelpMessage returns the help text of the game system for gameType, or ""
// if no evaluator is available.
func (c *Controller) HelpMessage(ctx context.Context, gameType string) string {
	ev, err := c.systems.Resolve(ctx, gameType)
	if err != nil {
		observe.Logger(ctx).Warn("dicebot: no evaluator for help", "game_type", gameType, "err", err)
		return ""
	}
	return ev.Help()
}

// Help returns the id and help text of the game system named gameType, or of
// the default system when gameType is empty. Unknown systems fail with
// [gamesystem.ErrUnknownSystem] instead of falling back.
func (c *Controller) Help(ctx context.Context, gameType string) (id, text string, err error) {
	ev, err := c.systems.Lookup(ctx, gameType)
	if err != nil {
		return "", "", err
	}
	return ev.ID(), ev.Help(), nil
}
