package mcp_test

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/dicebot/internal/character"
	"github.com/MrWong99/dicebot/internal/chat"
	"github.com/MrWong99/dicebot/internal/dicebot"
	"github.com/MrWong99/dicebot/internal/gamesystem"
	"github.com/MrWong99/dicebot/internal/gamesystem/builtin"
	"github.com/MrWong99/dicebot/internal/loadqueue"
	"github.com/MrWong99/dicebot/internal/mcp"
)

type fakeRoller struct {
	calls []string
}

func (f *fakeRoller) DiceRoll(_ context.Context, expr, gameType string) dicebot.RollResult {
	f.calls = append(f.calls, gameType+"|"+expr)
	switch expr {
	case "2d6":
		return dicebot.RollResult{ID: "DiceBot", Text: "(2D6) ＞ 7", Total: 7, HasTotal: true}
	case "x3 1d20":
		return dicebot.RollResult{ID: "DiceBot", Text: "#1 (1D20) ＞ 4\n#2 (1D20) ＞ 9\n#3 (1D20) ＞ 20"}
	case "S1d100":
		return dicebot.RollResult{ID: gameType, Text: "(1D100) ＞ 42", Secret: true, Total: 42, HasTotal: true}
	}
	return dicebot.RollResult{ID: "DiceBot"}
}

func (f *fakeRoller) Help(_ context.Context, gameType string) (string, string, error) {
	if gameType == "" || gameType == "DiceBot" {
		return "DiceBot", "NdS: roll N S-sided dice", nil
	}
	return "", "", gamesystem.ErrUnknownSystem
}

type fakeCatalog struct{}

func (fakeCatalog) Suggest(query string, limit int) []gamesystem.Descriptor {
	all := []gamesystem.Descriptor{
		{ID: "Cthulhu", Name: "Call of Cthulhu"},
		{ID: "DiceBot", Name: "DiceBot"},
		{ID: "SwordWorld2.5", Name: "Sword World 2.5"},
	}
	var out []gamesystem.Descriptor
	for _, d := range all {
		if strings.Contains(strings.ToLower(d.Name), strings.ToLower(query)) {
			out = append(out, d)
		}
	}
	return out[:min(limit, len(out))]
}

func (fakeCatalog) DefaultSystem() string { return gamesystem.DefaultID }

func connect(t *testing.T, roller *fakeRoller) *mcpsdk.ClientSession {
	t.Helper()
	return connectTo(t, mcp.New(roller, fakeCatalog{}, "test"))
}

// connectRegistry serves the tools from a real registry over the built-in
// game systems.
func connectRegistry(t *testing.T) *mcpsdk.ClientSession {
	t.Helper()
	q := loadqueue.New()
	t.Cleanup(q.Close)
	reg := gamesystem.NewRegistry(q, builtin.NewLibrary(""))
	reg.Init(context.Background())
	ctrl := dicebot.NewController(reg, chat.NewMemStore(0), character.NewMemStore(), nil)
	return connectTo(t, mcp.New(ctrl, reg, "test"))
}

func connectTo(t *testing.T, srv *mcp.Server) *mcpsdk.ClientSession {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	serverTransport, clientTransport := mcpsdk.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, serverTransport)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func call[T any](t *testing.T, cs *mcpsdk.ClientSession, name string, args map[string]any) (T, *mcpsdk.CallToolResult) {
	t.Helper()
	var out T
	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if res.IsError {
		return out, res
	}
	raw, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatalf("marshal structured content: %v", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s output %s: %v", name, raw, err)
	}
	return out, res
}

func TestServer_ListTools(t *testing.T) {
	t.Parallel()
	cs := connect(t, &fakeRoller{})

	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	if want := []string{"help", "list_systems", "roll"}; !slices.Equal(names, want) {
		t.Errorf("tools = %v, want %v", names, want)
	}
}

func TestServer_Roll(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		args      map[string]any
		wantCall  string
		wantText  string
		wantTotal int
		secret    bool
	}{
		{
			name:      "total",
			args:      map[string]any{"expression": "２ｄ６"},
			wantCall:  "|2d6",
			wantText:  "(2D6) ＞ 7",
			wantTotal: 7,
		},
		{
			name:     "repeat",
			args:     map[string]any{"expression": "3 1d20"},
			wantCall: "|x3 1d20",
			wantText: "#1 (1D20) ＞ 4\n#2 (1D20) ＞ 9\n#3 (1D20) ＞ 20",
		},
		{
			name:      "secret with system",
			args:      map[string]any{"expression": "S1d100", "system": "Cthulhu"},
			wantCall:  "Cthulhu|S1d100",
			wantText:  "(1D100) ＞ 42",
			wantTotal: 42,
			secret:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			roller := &fakeRoller{}
			out, res := call[mcp.RollOutput](t, connect(t, roller), "roll", tt.args)
			if res.IsError {
				t.Fatalf("roll failed: %+v", res.Content)
			}
			if len(roller.calls) != 1 || roller.calls[0] != tt.wantCall {
				t.Errorf("calls = %v, want [%s]", roller.calls, tt.wantCall)
			}
			if out.Text != tt.wantText || out.Secret != tt.secret {
				t.Errorf("output = %+v", out)
			}
			switch {
			case tt.wantTotal == 0 && out.Total != nil:
				t.Errorf("Total = %d, want none", *out.Total)
			case tt.wantTotal != 0 && (out.Total == nil || *out.Total != tt.wantTotal):
				t.Errorf("Total = %v, want %d", out.Total, tt.wantTotal)
			}
		})
	}
}

func TestServer_RollErrors(t *testing.T) {
	t.Parallel()

	for _, expr := range []string{"", "0 1d6", "hello"} {
		t.Run(expr, func(t *testing.T) {
			t.Parallel()
			_, res := call[mcp.RollOutput](t, connect(t, &fakeRoller{}), "roll", map[string]any{"expression": expr})
			if !res.IsError {
				t.Errorf("roll %q succeeded, want a tool error", expr)
			}
		})
	}
}

func TestServer_Help(t *testing.T) {
	t.Parallel()
	cs := connect(t, &fakeRoller{})

	out, res := call[mcp.HelpOutput](t, cs, "help", map[string]any{})
	if res.IsError || out.System != "DiceBot" || out.Text != "NdS: roll N S-sided dice" {
		t.Errorf("help = %+v (error %v)", out, res.IsError)
	}
	if _, res := call[mcp.HelpOutput](t, cs, "help", map[string]any{"system": "Nope"}); !res.IsError {
		t.Error("help for an unknown system succeeded")
	}
}

func TestServer_HelpWithRegistry(t *testing.T) {
	t.Parallel()
	cs := connectRegistry(t)

	tests := []struct {
		name       string
		args       map[string]any
		wantSystem string
		wantErr    bool
	}{
		{name: "named system", args: map[string]any{"system": "Cthulhu"}, wantSystem: "Cthulhu"},
		{name: "default system", args: map[string]any{}, wantSystem: "DiceBot"},
		{name: "unknown system", args: map[string]any{"system": "NoSuchSystem"}, wantErr: true},
	}
	for _, tt := range tests {
		out, res := call[mcp.HelpOutput](t, cs, "help", tt.args)
		if res.IsError != tt.wantErr {
			t.Errorf("%s: IsError = %v, want %v (%+v)", tt.name, res.IsError, tt.wantErr, out)
			continue
		}
		if !tt.wantErr && (out.System != tt.wantSystem || out.Text == "") {
			t.Errorf("%s: help = %+v, want %s help", tt.name, out, tt.wantSystem)
		}
	}
}

func TestServer_ListSystems(t *testing.T) {
	t.Parallel()
	cs := connect(t, &fakeRoller{})

	out, _ := call[mcp.ListSystemsOutput](t, cs, "list_systems", map[string]any{"query": "sword"})
	if out.Default != "DiceBot" || len(out.Systems) != 1 || out.Systems[0].ID != "SwordWorld2.5" {
		t.Errorf("list_systems(sword) = %+v", out)
	}

	out, _ = call[mcp.ListSystemsOutput](t, cs, "list_systems", map[string]any{"limit": 2})
	if len(out.Systems) != 2 {
		t.Errorf("list_systems(limit 2) returned %d systems", len(out.Systems))
	}

	out, _ = call[mcp.ListSystemsOutput](t, cs, "list_systems", map[string]any{"query": "zzz"})
	if out.Systems == nil || len(out.Systems) != 0 {
		t.Errorf("list_systems(zzz) = %+v, want an empty list", out.Systems)
	}
}
