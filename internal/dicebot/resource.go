package dicebot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/MrWong99/dicebot/internal/character"
	"github.com/MrWong99/dicebot/internal/chat"
	"github.com/MrWong99/dicebot/internal/observe"
)

// ResourceContainers are the names of the detail element that holds a
// character's resources, in lookup order.
var ResourceContainers = []string{"リソース", "Resource"}

// Operator is the mutation a resource command requests.
type Operator byte

const (
	OpAdd      Operator = '+'
	OpSubtract Operator = '-'
	OpSet      Operator = '='
)

// ResourceCommand is one ":NAME<op>EXPR" directive.
type ResourceCommand struct {
	Name       string
	Operator   Operator
	Expression string

	// Targeting commands ("t:HP-3") apply to the characters the message
	// addresses instead of the speaker.
	Targeting bool
}

var (
	resourceTokenRe = regexp.MustCompile(`(?i)t?:[^:]+`)
	resourceSubRe   = regexp.MustCompile(`t?:([^+\-=:]*)([+\-=])([^:]+)`)
	nonCalcRe       = regexp.MustCompile(`[^\d()+\-*/=]`)
	digitsRe        = regexp.MustCompile(`^\d+$`)
)

// ParseResources extracts every resource command from normalised text. A
// whitespace-separated token may hold several directives (":HP-3:MP-1"); a
// token starting with "t" makes all of them targeting.
func ParseResources(text string) []ResourceCommand {
	var out []ResourceCommand
	for _, tok := range strings.Fields(text) {
		subs := resourceTokenRe.FindAllString(tok, -1)
		if subs == nil {
			continue
		}
		targeting := tok[0] == 't' || tok[0] == 'T'
		for _, sub := range subs {
			m := resourceSubRe.FindStringSubmatch(sub)
			if m == nil {
				continue
			}
			out = append(out, ResourceCommand{
				Name:       m[1],
				Operator:   Operator(m[2][0]),
				Expression: m[3],
				Targeting:  targeting,
			})
		}
	}
	return out
}

// IsCalculation reports whether the expression is plain arithmetic.
func (rc ResourceCommand) IsCalculation() bool {
	return !nonCalcRe.MatchString(rc.Expression)
}

// RollText is the text handed to the evaluator. Arithmetic is wrapped in a
// C() calculation carrying the sign of a subtraction; dice expressions pass
// through unchanged.
func (rc ResourceCommand) RollText() string {
	if !rc.IsCalculation() {
		return rc.Expression
	}
	if rc.Operator == OpSubtract {
		if digitsRe.MatchString(rc.Expression) {
			return "C(-" + rc.Expression + ")"
		}
		return "C(-(" + rc.Expression + "))"
	}
	return "C(" + rc.Expression + ")"
}

// ErrNotNumeric is returned by [ResourceCommand.Apply] when a relative
// change targets a non-numeric value.
var ErrNotNumeric = errors.New("dicebot: resource value is not numeric")

// Apply returns the new field value after a roll with the given total.
func (rc ResourceCommand) Apply(current string, total int) (string, error) {
	if rc.Operator == OpSet {
		return strconv.Itoa(total), nil
	}
	cur, err := strconv.Atoi(strings.TrimSpace(current))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrNotNumeric, current)
	}
	delta := total
	if rc.Operator == OpSubtract && !rc.IsCalculation() {
		delta = -total
	}
	return strconv.Itoa(cur + delta), nil
}

// String renders the command as typed.
func (rc ResourceCommand) String() string {
	prefix := ":"
	if rc.Targeting {
		prefix = "t:"
	}
	return prefix + rc.Name + string(rc.Operator) + rc.Expression
}

// findResource locates the named resource below the first resource
// container of detail.
func findResource(detail *character.Element, name string) (container, field *character.Element) {
	for _, c := range ResourceContainers {
		if container = detail.FirstByName(c); container != nil {
			break
		}
	}
	if container == nil {
		return nil, nil
	}
	return container, container.FirstByName(name)
}

// Resolver maps resource commands to characters and their resource fields.
// Missing data is logged and counted, never returned as an error.
type Resolver struct {
	chars   character.Store
	metrics *observe.Metrics
}

// NewResolver returns a resolver reading characters from chars.
func NewResolver(chars character.Store, m *observe.Metrics) *Resolver {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Resolver{chars: chars, metrics: m}
}

// Targets returns the characters rc applies to. Self commands resolve to the
// speaker's character; targeting commands to the message's addressed
// characters.
func (r *Resolver) Targets(ctx context.Context, rc ResourceCommand, m *chat.Message) []character.Character {
	log := observe.Logger(ctx).With("command", rc.String(), "message_id", m.ID)

	if !rc.Targeting {
		c, err := r.chars.Get(ctx, m.SpeakerID)
		if m.SpeakerID == "" || err != nil {
			log.Debug("dicebot: only characters have resources", "speaker", m.SpeakerID)
			r.metrics.RecordSkip(ctx, observe.SkipNotCharacter)
			return nil
		}
		return []character.Character{c}
	}

	if len(m.TargetIDs) == 0 {
		log.Debug("dicebot: no target selected")
		r.metrics.RecordSkip(ctx, observe.SkipNoTarget)
		return nil
	}
	out := make([]character.Character, 0, len(m.TargetIDs))
	for _, id := range m.TargetIDs {
		c, err := r.chars.Get(ctx, id)
		if err != nil {
			log.Debug("dicebot: target is not a character", "target", id)
			r.metrics.RecordSkip(ctx, observe.SkipNotCharacter)
			continue
		}
		out = append(out, c)
	}
	return out
}

// Field returns the resource field rc names on c.
func (r *Resolver) Field(ctx context.Context, rc ResourceCommand, c character.Character) (*character.Element, bool) {
	container, field := findResource(c.Detail, rc.Name)
	switch {
	case container == nil:
		observe.Logger(ctx).Debug("dicebot: character has no resources", "character", c.ID)
		r.metrics.RecordSkip(ctx, observe.SkipNoResourceField)
		return nil, false
	case field == nil:
		observe.Logger(ctx).Debug("dicebot: character lacks resource", "character", c.ID, "resource", rc.Name)
		r.metrics.RecordSkip(ctx, observe.SkipUnknownResource)
		return nil, false
	}
	return field, true
}
