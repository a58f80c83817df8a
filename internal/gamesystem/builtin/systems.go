package builtin

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/MrWong99/dicebot/internal/gamesystem"
)

const genericHelp = `Generic dice bot
  NdS           roll N S-sided dice and sum them, e.g. 2D6+1
  NdS>=T        compare the sum against T (<=, >=, <, >, =, <> are supported)
  C(expr)       calculate without dice, e.g. C(10-3*2)
  S<command>    secret roll, only the recipients see the details
  xN <command>  repeat the command N times (at most 100)
  N <command>   in chat, a leading count repeats the command N times
Text after the first space is a comment.`

// NewGeneric returns the default game system.
func NewGeneric(r Roller) *System {
	return newSystem(gamesystem.Descriptor{
		ID:      gamesystem.DefaultID,
		SortKey: "*",
		Name:    "DiceBot",
	}, genericHelp, r, nil)
}

const cthulhuHelp = `Call of Cthulhu (6th edition)
  CC<=T         1D100 skill check against T
                1: critical, 100: fumble
  CCB<=T        like CC with the 5% rule
                1-5: critical, 96-100: fumble
  RES(A-B)      resistance roll of active A against passive B
A roll at or below a fifth of the target is a special success.

` + genericHelp

var (
	ccRe  = regexp.MustCompile(`^CC(B)?<=(\d+)$`)
	resRe = regexp.MustCompile(`^RES\((-?\d+)-(-?\d+)\)$`)
)

// NewCthulhu returns the Call of Cthulhu system.
func NewCthulhu(r Roller) *System {
	return newSystem(gamesystem.Descriptor{
		ID:      "Cthulhu",
		SortKey: "くとうるふ",
		Name:    "Call of Cthulhu",
	}, cthulhuHelp, r, []string{`ccb?<=`, `res\(`}, skillCheck, resistanceRoll)
}

func skillCheck(r Roller, cmd string) *gamesystem.Result {
	m := ccRe.FindStringSubmatch(cmd)
	if m == nil {
		return nil
	}
	target, err := strconv.Atoi(m[2])
	if err != nil {
		return nil
	}
	critMax, fumbleMin := 1, 100
	if m[1] != "" {
		critMax, fumbleMin = 5, 96
	}
	v := roll(r, 100)
	return &gamesystem.Result{
		Text:     strings.Join([]string{"(1D100<=" + m[2] + ")", strconv.Itoa(v), cthulhuOutcome(v, target, critMax, fumbleMin)}, sep),
		Total:    v,
		HasTotal: true,
	}
}

func cthulhuOutcome(v, target, critMax, fumbleMin int) string {
	switch {
	case v <= target && v <= critMax:
		return "Critical"
	case v > target && v >= fumbleMin:
		return "Fumble"
	case v <= target/5:
		return "Special"
	case v <= target:
		return "Success"
	}
	return "Failure"
}

// resistanceRoll resolves RES(A-B): the target is 50 + 5*(A-B).
func resistanceRoll(r Roller, cmd string) *gamesystem.Result {
	m := resRe.FindStringSubmatch(cmd)
	if m == nil {
		return nil
	}
	active, err1 := strconv.Atoi(m[1])
	passive, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return nil
	}
	target := 50 + 5*(active-passive)
	v := roll(r, 100)
	var out string
	switch {
	case target >= 100:
		out = "Automatic success"
	case target <= 0:
		out = "Automatic failure"
	default:
		out = outcome(v <= target)
	}
	return &gamesystem.Result{
		Text:     strings.Join([]string{"(1D100<=" + strconv.Itoa(target) + ")", strconv.Itoa(v), out}, sep),
		Total:    v,
		HasTotal: true,
	}
}
