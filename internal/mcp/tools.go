package mcp

import (
	"context"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/dicebot/internal/chat"
	"github.com/MrWong99/dicebot/internal/dicebot"
	"github.com/MrWong99/dicebot/internal/gamesystem"
)

const (
	defaultListLimit = 25
	maxListLimit     = 100
)

// RollInput is the input of the "roll" tool.
type RollInput struct {
	Expression string `json:"expression" jsonschema:"roll command, e.g. 2d6+1, CCB<=50 or \"3 1d20\" to roll three times"`
	System     string `json:"system,omitempty" jsonschema:"game system id; empty selects the default system"`
}

// RollOutput is the output of the "roll" tool.
type RollOutput struct {
	System string `json:"system" jsonschema:"game system that evaluated the roll"`
	Text   string `json:"text" jsonschema:"formatted result"`
	Secret bool   `json:"secret" jsonschema:"whether the roll was a secret roll"`
	Total  *int   `json:"total,omitempty" jsonschema:"numeric total when the result has one"`
}

// HelpInput is the input of the "help" tool.
type HelpInput struct {
	System string `json:"system,omitempty" jsonschema:"game system id; empty selects the default system"`
}

// HelpOutput is the output of the "help" tool.
type HelpOutput struct {
	System string `json:"system" jsonschema:"game system id"`
	Text   string `json:"text" jsonschema:"command reference"`
}

// ListSystemsInput is the input of the "list_systems" tool.
type ListSystemsInput struct {
	Query string `json:"query,omitempty" jsonschema:"part of a system id or name; empty lists all"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of systems returned (default 25, max 100)"`
}

// SystemInfo describes one game system.
type SystemInfo struct {
	ID   string `json:"id" jsonschema:"system id"`
	Name string `json:"name" jsonschema:"display name"`
}

// ListSystemsOutput is the output of the "list_systems" tool.
type ListSystemsOutput struct {
	Default string       `json:"default" jsonschema:"system used when none is given"`
	Systems []SystemInfo `json:"systems" jsonschema:"matching systems"`
}

func registerTools(s *mcpsdk.Server, roller Roller, catalog Catalog) {
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "roll",
		Description: "Rolls dice with a tabletop RPG game system",
	}, rollHandler(roller, catalog))
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "help",
		Description: "Describes the roll commands of a game system",
	}, helpHandler(roller, catalog))
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "list_systems",
		Description: "Searches the available game systems",
	}, listSystemsHandler(catalog))
}

func rollHandler(roller Roller, catalog Catalog) mcpsdk.ToolHandlerFor[RollInput, RollOutput] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, in RollInput) (*mcpsdk.CallToolResult, RollOutput, error) {
		cmd := dicebot.Recognize(&chat.Message{Text: in.Expression, Tag: in.System})
		if !cmd.Valid() {
			return nil, RollOutput{}, errors.New("nothing to roll")
		}
		res := roller.DiceRoll(ctx, cmd.RollText(), in.System)
		if res.Text == "" {
			return nil, RollOutput{}, fmt.Errorf("%q is not a command of %s", cmd.RawText, label(catalog, in.System))
		}
		out := RollOutput{System: res.ID, Text: res.Text, Secret: res.Secret}
		if res.HasTotal {
			out.Total = &res.Total
		}
		return nil, out, nil
	}
}

func helpHandler(roller Roller, catalog Catalog) mcpsdk.ToolHandlerFor[HelpInput, HelpOutput] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, in HelpInput) (*mcpsdk.CallToolResult, HelpOutput, error) {
		id, text, err := roller.Help(ctx, in.System)
		if errors.Is(err, gamesystem.ErrUnknownSystem) {
			return nil, HelpOutput{}, fmt.Errorf("unknown game system %s", in.System)
		}
		if err != nil {
			return nil, HelpOutput{}, fmt.Errorf("help for %s: %w", label(catalog, in.System), err)
		}
		return nil, HelpOutput{System: id, Text: text}, nil
	}
}

func listSystemsHandler(catalog Catalog) mcpsdk.ToolHandlerFor[ListSystemsInput, ListSystemsOutput] {
	return func(_ context.Context, _ *mcpsdk.CallToolRequest, in ListSystemsInput) (*mcpsdk.CallToolResult, ListSystemsOutput, error) {
		limit := in.Limit
		if limit <= 0 {
			limit = defaultListLimit
		}
		limit = min(limit, maxListLimit)

		out := ListSystemsOutput{Default: catalog.DefaultSystem(), Systems: []SystemInfo{}}
		for _, d := range catalog.Suggest(in.Query, limit) {
			out.Systems = append(out.Systems, SystemInfo{ID: d.ID, Name: d.Name})
		}
		return nil, out, nil
	}
}

func label(catalog Catalog, system string) string {
	if system == "" {
		return catalog.DefaultSystem()
	}
	return system
}
