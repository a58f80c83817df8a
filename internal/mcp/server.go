// Package mcp exposes the dice bot as a Model Context Protocol server, so
// assistants can roll dice, read game-system help and search the catalog.
//
// Three tools are registered:
//   - "roll":         evaluates a roll command with a game system.
//   - "help":         returns a game system's command reference.
//   - "list_systems": searches the game-system catalog.
//
// The server is stateless apart from the underlying [Roller] and [Catalog]
// and is served over streamable HTTP by [Server.Handler].
package mcp

import (
	"context"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/dicebot/internal/dicebot"
	"github.com/MrWong99/dicebot/internal/gamesystem"
)

const serverName = "dicebot"

// Roller evaluates roll commands. [dicebot.Controller] implements it.
type Roller interface {
	DiceRoll(ctx context.Context, expr, gameType string) dicebot.RollResult
	Help(ctx context.Context, gameType string) (id, text string, err error)
}

// Catalog lists game systems. [gamesystem.Registry] implements it.
type Catalog interface {
	Suggest(query string, limit int) []gamesystem.Descriptor
	DefaultSystem() string
}

// Server hosts the dice bot MCP tools.
type Server struct {
	sdk *mcpsdk.Server
}

// New creates a server whose tools roll with roller and browse catalog.
func New(roller Roller, catalog Catalog, version string) *Server {
	sdk := mcpsdk.NewServer(&mcpsdk.Implementation{Name: serverName, Version: version}, nil)
	registerTools(sdk, roller, catalog)
	return &Server{sdk: sdk}
}

// Handler serves the MCP streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.sdk }, nil)
}

// Connect serves one session over t, e.g. stdio or an in-memory transport.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.sdk.Connect(ctx, t, nil)
}
