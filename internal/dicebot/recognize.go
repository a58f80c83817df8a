package dicebot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"

	"github.com/MrWong99/dicebot/internal/chat"
)

// Normalize folds full-width letters, digits and symbols to their half-width
// forms and trims surrounding whitespace, so "２Ｄ６" reads as "2D6".
func Normalize(text string) string {
	return strings.TrimSpace(width.Fold.String(text))
}

// rollRe splits an optional repeat count from the roll expression.
var rollRe = regexp.MustCompile(`^(?:(\d+)?\s+)?(.*)`)

// IncomingCommand is a dice-roll command recognised in a chat message.
type IncomingCommand struct {
	// RawText is the normalised message text.
	RawText string

	// Expression is the roll expression without the repeat count.
	Expression string

	// Repeat is how often the expression is rolled.
	Repeat int

	GameType  string
	SpeakerID string
	TargetIDs []string
}

// Recognize parses m as a dice-roll command. "3 2D6" yields Repeat 3 and
// Expression "2D6"; text without a leading count has Repeat 1.
func Recognize(m *chat.Message) IncomingCommand {
	cmd := IncomingCommand{
		RawText:   Normalize(m.Text),
		Repeat:    1,
		GameType:  m.Tag,
		SpeakerID: m.SpeakerID,
		TargetIDs: m.TargetIDs,
	}
	sm := rollRe.FindStringSubmatch(cmd.RawText)
	if sm == nil {
		return cmd
	}
	if sm[1] != "" {
		n, err := strconv.Atoi(sm[1])
		if err != nil {
			n = 0
		}
		cmd.Repeat = n
	}
	cmd.Expression = sm[2]
	return cmd
}

// Valid reports whether the command should reach an evaluator.
func (c IncomingCommand) Valid() bool {
	return c.Expression != "" && c.Repeat >= 1
}

// RollText is the text handed to the evaluator. Repeats are expressed with
// the evaluator's own "xN" prefix.
func (c IncomingCommand) RollText() string {
	if c.Repeat > 1 {
		return fmt.Sprintf("x%d %s", c.Repeat, c.Expression)
	}
	return c.Expression
}
