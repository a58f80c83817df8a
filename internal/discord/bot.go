// Package discord connects the dice bot to Discord. It owns the
// discordgo.Session lifecycle, bridges channel messages into the chat store,
// delivers generated results and routes slash command interactions.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the bot token without the "Bot " prefix.
	Token string

	// GuildID scopes slash command registration. Empty registers global
	// commands.
	GuildID string

	// GMRoleID identifies game masters for privileged commands.
	GMRoleID string
}

// Bot owns the Discord gateway connection.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	router    *CommandRouter
	perms     *PermissionChecker
	bridge    *Bridge
	guildID   string
	commands  []*discordgo.ApplicationCommand
	closeOnce sync.Once
}

// New connects to Discord and wires message and interaction handlers.
// Messages are handed to bridge, which is attached to the new session.
// Handlers run under ctx.
func New(ctx context.Context, cfg Config, bridge *Bridge) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuilds

	b := &Bot{
		session: session,
		router:  NewCommandRouter(),
		perms:   NewPermissionChecker(cfg.GMRoleID),
		bridge:  bridge,
		guildID: cfg.GuildID,
	}

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})
	session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if err := b.bridge.OnMessageCreate(ctx, m); err != nil {
			slog.Warn("discord: message not bridged", "message_id", m.ID, "err", err)
		}
	})

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	bridge.Attach(session, session.State.User.ID)
	slog.Info("discord connected", "user", session.State.User.Username, "guild", cfg.GuildID)
	return b, nil
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Permissions returns the permission checker.
func (b *Bot) Permissions() *PermissionChecker {
	return b.perms
}

// Run registers slash commands with the Discord API and blocks until
// ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.RLock()
	appID := b.session.State.User.ID
	b.mu.RUnlock()

	if cmds := b.router.ApplicationCommands(); len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord commands registered", "count", len(registered))
	}

	<-ctx.Done()
	return nil
}

// Close unregisters commands and disconnects from Discord.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		appID := b.session.State.User.ID
		for _, cmd := range b.commands {
			if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
				slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
			}
		}
		if err := b.session.Close(); err != nil {
			closeErr = fmt.Errorf("discord: close session: %w", err)
		}
		slog.Info("discord bot closed")
	})
	return closeErr
}
