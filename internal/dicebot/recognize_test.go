package dicebot_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/dicebot/internal/chat"
	"github.com/MrWong99/dicebot/internal/dicebot"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{in: "２Ｄ６", want: "2D6"},
		{in: "  1d6  ", want: "1d6"},
		{in: "ＣＣＢ＜＝５０", want: "CCB<=50"},
		{in: "２　１ｄ６", want: "2 1d6"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		if got := dicebot.Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRecognize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		text       string
		wantExpr   string
		wantRepeat int
		wantValid  bool
		wantRoll   string
	}{
		{name: "plain", text: "2d6", wantExpr: "2d6", wantRepeat: 1, wantValid: true, wantRoll: "2d6"},
		{name: "repeat", text: "2 1d6", wantExpr: "1d6", wantRepeat: 2, wantValid: true, wantRoll: "x2 1d6"},
		{name: "comment kept", text: "2d6 attack", wantExpr: "2d6 attack", wantRepeat: 1, wantValid: true, wantRoll: "2d6 attack"},
		{name: "full width", text: "３ ２Ｄ６", wantExpr: "2D6", wantRepeat: 3, wantValid: true, wantRoll: "x3 2D6"},
		{name: "zero repeat", text: "0 1d6", wantExpr: "1d6", wantRepeat: 0},
		{name: "bare number", text: "3", wantExpr: "3", wantRepeat: 1, wantValid: true, wantRoll: "3"},
		{name: "empty", text: "   ", wantRepeat: 1},
		{name: "first line only", text: "1d6\nsecond line", wantExpr: "1d6", wantRepeat: 1, wantValid: true, wantRoll: "1d6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cmd := dicebot.Recognize(&chat.Message{Text: tt.text, Tag: "DiceBot", SpeakerID: "c1"})
			if cmd.Expression != tt.wantExpr || cmd.Repeat != tt.wantRepeat {
				t.Errorf("Recognize(%q) = expr %q repeat %d, want %q %d",
					tt.text, cmd.Expression, cmd.Repeat, tt.wantExpr, tt.wantRepeat)
			}
			if cmd.Valid() != tt.wantValid {
				t.Errorf("Valid = %v, want %v", cmd.Valid(), tt.wantValid)
			}
			if tt.wantValid && cmd.RollText() != tt.wantRoll {
				t.Errorf("RollText = %q, want %q", cmd.RollText(), tt.wantRoll)
			}
			if cmd.GameType != "DiceBot" || cmd.SpeakerID != "c1" {
				t.Errorf("message fields not carried: %+v", cmd)
			}
		})
	}
}

func TestParseResources(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want []dicebot.ResourceCommand
	}{
		{text: ":HP-3", want: []dicebot.ResourceCommand{{Name: "HP", Operator: dicebot.OpSubtract, Expression: "3"}}},
		{text: "t:HP+1d6", want: []dicebot.ResourceCommand{{Name: "HP", Operator: dicebot.OpAdd, Expression: "1d6", Targeting: true}}},
		{text: "T:MP=5", want: []dicebot.ResourceCommand{{Name: "MP", Operator: dicebot.OpSet, Expression: "5", Targeting: true}}},
		{text: ":HP-3:MP=5", want: []dicebot.ResourceCommand{
			{Name: "HP", Operator: dicebot.OpSubtract, Expression: "3"},
			{Name: "MP", Operator: dicebot.OpSet, Expression: "5"},
		}},
		{text: "drink :HP+2 then :SAN-1d3", want: []dicebot.ResourceCommand{
			{Name: "HP", Operator: dicebot.OpAdd, Expression: "2"},
			{Name: "SAN", Operator: dicebot.OpSubtract, Expression: "1d3"},
		}},
		{text: "2d6"},
		{text: ":HP"},
		{text: ""},
	}
	for _, tt := range tests {
		got := dicebot.ParseResources(tt.text)
		if !slices.Equal(got, tt.want) {
			t.Errorf("ParseResources(%q) = %+v, want %+v", tt.text, got, tt.want)
		}
	}
}

func TestResourceCommand_RollText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rc       dicebot.ResourceCommand
		wantCalc bool
		want     string
	}{
		{rc: dicebot.ResourceCommand{Operator: dicebot.OpSubtract, Expression: "3"}, wantCalc: true, want: "C(-3)"},
		{rc: dicebot.ResourceCommand{Operator: dicebot.OpSubtract, Expression: "1+2"}, wantCalc: true, want: "C(-(1+2))"},
		{rc: dicebot.ResourceCommand{Operator: dicebot.OpAdd, Expression: "3*2"}, wantCalc: true, want: "C(3*2)"},
		{rc: dicebot.ResourceCommand{Operator: dicebot.OpSet, Expression: "10"}, wantCalc: true, want: "C(10)"},
		{rc: dicebot.ResourceCommand{Operator: dicebot.OpSubtract, Expression: "1d6"}, want: "1d6"},
		{rc: dicebot.ResourceCommand{Operator: dicebot.OpAdd, Expression: "2d6+1"}, want: "2d6+1"},
	}
	for _, tt := range tests {
		if got := tt.rc.IsCalculation(); got != tt.wantCalc {
			t.Errorf("%v IsCalculation = %v, want %v", tt.rc, got, tt.wantCalc)
		}
		if got := tt.rc.RollText(); got != tt.want {
			t.Errorf("%v RollText = %q, want %q", tt.rc, got, tt.want)
		}
	}
}

func TestResourceCommand_Apply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rc      dicebot.ResourceCommand
		current string
		total   int
		want    string
		wantErr error
	}{
		{name: "calc subtract carries sign", rc: dicebot.ResourceCommand{Operator: dicebot.OpSubtract, Expression: "3"}, current: "12", total: -3, want: "9"},
		{name: "calc add", rc: dicebot.ResourceCommand{Operator: dicebot.OpAdd, Expression: "2"}, current: "12", total: 2, want: "14"},
		{name: "dice subtract", rc: dicebot.ResourceCommand{Operator: dicebot.OpSubtract, Expression: "1d6"}, current: "12", total: 4, want: "8"},
		{name: "dice add", rc: dicebot.ResourceCommand{Operator: dicebot.OpAdd, Expression: "1d6"}, current: " 12 ", total: 4, want: "16"},
		{name: "set ignores current", rc: dicebot.ResourceCommand{Operator: dicebot.OpSet, Expression: "5"}, current: "n/a", total: 5, want: "5"},
		{name: "non numeric", rc: dicebot.ResourceCommand{Operator: dicebot.OpAdd, Expression: "1"}, current: "full", total: 1, wantErr: dicebot.ErrNotNumeric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.rc.Apply(tt.current, tt.total)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Apply err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if got != tt.want {
				t.Errorf("Apply = %q, want %q", got, tt.want)
			}
		})
	}
}
