// Package builtin provides the compiled-in game systems and the file-backed
// table systems that the registry loads on demand.
//
// Every system understands the generic commands: NdS dice arithmetic with an
// optional comparison ("2D6+1>=8"), literal calculations ("C(10-3)"), the
// "S" secret prefix ("S1D100") and the "xN" repeat prefix ("x3 2D6").
// Game-specific systems add their own commands on top.
package builtin

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/MrWong99/dicebot/internal/gamesystem"
)

// maxRepeat bounds the "xN" prefix.
const maxRepeat = 100

// sep separates the steps of a rendered roll.
const sep = " ＞ "

var repeatRe = regexp.MustCompile(`(?i)^x(\d+)\s+(.+)$`)

// command evaluates a single upper-cased command token. It returns nil when
// the token is not its command or is malformed.
type command func(r Roller, cmd string) *gamesystem.Result

// System is a game system assembled from commands. It implements
// [gamesystem.Evaluator].
type System struct {
	desc     gamesystem.Descriptor
	help     string
	roller   Roller
	pattern  *regexp.Regexp
	commands []command
}

var _ gamesystem.Evaluator = (*System)(nil)

// newSystem builds a system whose commands are tried in order before the
// generic ones. prefixes are regular expressions matching the start of each
// extra command and feed [System.Matches].
func newSystem(desc gamesystem.Descriptor, help string, r Roller, prefixes []string, cmds ...command) *System {
	if r == nil {
		r = DefaultRoller
	}
	alts := slices.Concat(prefixes, []string{`c\(`, `[-+*/()\d]*d\d`})
	return &System{
		desc:     desc,
		help:     help,
		roller:   r,
		pattern:  regexp.MustCompile(`(?i)^(?:x\d+\s+)?s?(?:` + strings.Join(alts, "|") + `)`),
		commands: slices.Concat(cmds, []command{calcCommand, diceCommand}),
	}
}

// Descriptor returns the catalog entry of the system.
func (s *System) Descriptor() gamesystem.Descriptor { return s.desc }

// ID implements [gamesystem.Evaluator].
func (s *System) ID() string { return s.desc.ID }

// Help implements [gamesystem.Evaluator].
func (s *System) Help() string { return s.help }

// Matches implements [gamesystem.Evaluator].
func (s *System) Matches(text string) bool {
	return s.pattern.MatchString(strings.TrimSpace(text))
}

// Eval implements [gamesystem.Evaluator]. Text after the first whitespace
// is a comment, except after a repeat prefix.
func (s *System) Eval(ctx context.Context, text string) (*gamesystem.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)

	if m := repeatRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > maxRepeat {
			return nil, nil
		}
		return s.repeat(ctx, n, m[2])
	}
	return s.evalOne(text), nil
}

func (s *System) repeat(ctx context.Context, n int, text string) (*gamesystem.Result, error) {
	var (
		parts  []string
		secret bool
	)
	for i := range n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := s.evalOne(text)
		if res == nil {
			return nil, nil
		}
		secret = secret || res.Secret
		parts = append(parts, fmt.Sprintf("#%d\n%s", i+1, res.Text))
	}
	return &gamesystem.Result{Text: strings.Join(parts, "\n\n"), Secret: secret}, nil
}

func (s *System) evalOne(text string) *gamesystem.Result {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	cmd := strings.ToUpper(fields[0])

	if res := s.run(cmd); res != nil {
		return res
	}
	if len(cmd) > 1 && cmd[0] == 'S' {
		if res := s.run(cmd[1:]); res != nil {
			res.Secret = true
			return res
		}
	}
	return nil
}

func (s *System) run(cmd string) *gamesystem.Result {
	for _, c := range s.commands {
		if res := c(s.roller, cmd); res != nil {
			return res
		}
	}
	return nil
}

var (
	calcRe = regexp.MustCompile(`^C\((.+)\)$`)
	diceRe = regexp.MustCompile(`^(.+?)(<=|>=|<>|!=|<|>|=)(-?\d+)$`)
)

// calcCommand evaluates "C(expr)" without dice.
func calcCommand(r Roller, cmd string) *gamesystem.Result {
	m := calcRe.FindStringSubmatch(cmd)
	if m == nil {
		return nil
	}
	n, err := parseExpr(m[1])
	if err != nil || n.hasDice() {
		return nil
	}
	v, _, err := n.eval(r)
	if err != nil {
		return nil
	}
	return &gamesystem.Result{
		Text:     "C(" + n.String() + ")" + sep + strconv.Itoa(v),
		Total:    v,
		HasTotal: true,
	}
}

// diceCommand evaluates dice arithmetic with an optional comparison.
func diceCommand(r Roller, cmd string) *gamesystem.Result {
	exprText, op, target := cmd, "", ""
	if m := diceRe.FindStringSubmatch(cmd); m != nil {
		exprText, op, target = m[1], m[2], m[3]
	}
	n, err := parseExpr(exprText)
	if err != nil || !n.hasDice() {
		return nil
	}
	v, shown, err := n.eval(r)
	if err != nil {
		return nil
	}

	label := n.String()
	steps := []string{"(" + label + op + target + ")"}
	if d, single := n.(*diceNode); !(single && d.count == 1) && shown != strconv.Itoa(v) {
		steps = append(steps, shown)
	}
	steps = append(steps, strconv.Itoa(v))
	if op != "" {
		t, err := strconv.Atoi(target)
		if err != nil {
			return nil
		}
		steps = append(steps, outcome(compare(op, v, t)))
	}
	return &gamesystem.Result{Text: strings.Join(steps, sep), Total: v, HasTotal: true}
}

func outcome(ok bool) string {
	if ok {
		return "Success"
	}
	return "Failure"
}
