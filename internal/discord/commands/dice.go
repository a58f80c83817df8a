// Package commands implements the dice bot's Discord slash commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/dicebot/internal/chat"
	"github.com/MrWong99/dicebot/internal/dicebot"
	"github.com/MrWong99/dicebot/internal/discord"
	"github.com/MrWong99/dicebot/internal/gamesystem"
)

const (
	commandTimeout = 15 * time.Second
	maxEmbedText   = 4096
	listLimit      = 25
)

// Roller evaluates expressions. [dicebot.Controller] implements it.
type Roller interface {
	DiceRoll(ctx context.Context, expr, gameType string) dicebot.RollResult
	Help(ctx context.Context, gameType string) (id, text string, err error)
}

// Catalog lists and reloads game systems. [gamesystem.Registry] implements
// it.
type Catalog interface {
	Suggest(query string, limit int) []gamesystem.Descriptor
	DefaultSystem() string
	Reload(ctx context.Context) (int, error)
}

// ChannelSystems returns the game system configured for a channel.
// [discord.Bridge] implements it.
type ChannelSystems interface {
	ChannelSystem(channelID string) string
}

// DiceCommands holds the dependencies of the /dice command group.
type DiceCommands struct {
	roller   Roller
	catalog  Catalog
	channels ChannelSystems
	perms    *discord.PermissionChecker
}

// NewDiceCommands creates the /dice handlers and registers them with router.
func NewDiceCommands(router *discord.CommandRouter, roller Roller, catalog Catalog, channels ChannelSystems, perms *discord.PermissionChecker) *DiceCommands {
	dc := &DiceCommands{
		roller:   roller,
		catalog:  catalog,
		channels: channels,
		perms:    perms,
	}
	dc.Register(router)
	return dc
}

// Register registers the /dice command group with the router.
func (dc *DiceCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("dice", dc.Definition(), func(r discord.Responder, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(r, i, "Please use a subcommand: `/dice roll`, `/dice help`, `/dice systems` or `/dice reload`.")
	})
	router.RegisterHandler("dice/roll", dc.handleRoll)
	router.RegisterHandler("dice/help", dc.handleHelp)
	router.RegisterHandler("dice/systems", dc.handleSystems)
	router.RegisterHandler("dice/reload", dc.handleReload)
	router.RegisterAutocomplete("dice/roll", dc.autocompleteSystem)
	router.RegisterAutocomplete("dice/help", dc.autocompleteSystem)
}

// Definition returns the ApplicationCommand definition for Discord.
func (dc *DiceCommands) Definition() *discordgo.ApplicationCommand {
	systemOpt := &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionString,
		Name:         "system",
		Description:  "Game system (defaults to the channel's system)",
		Autocomplete: true,
	}
	return &discordgo.ApplicationCommand{
		Name:        "dice",
		Description: "Roll dice and browse game systems",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "roll",
				Description: "Roll a dice expression",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "expression",
						Description: "e.g. 2d6+1, CCB<=50 or \"3 1d20\"",
						Required:    true,
					},
					systemOpt,
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "help",
				Description: "Show the commands of a game system",
				Options:     []*discordgo.ApplicationCommandOption{systemOpt},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "systems",
				Description: "Search the available game systems",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "query",
						Description: "Part of a system ID or name",
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "reload",
				Description: "Reload custom game systems (GM only)",
			},
		},
	}
}

func (dc *DiceCommands) handleRoll(r discord.Responder, i *discordgo.InteractionCreate) {
	opts := discord.Options(i)
	var expr string
	if o, ok := opts["expression"]; ok {
		expr = o.StringValue()
	}
	system := dc.system(i, opts)

	cmd := dicebot.Recognize(&chat.Message{Text: expr, Tag: system})
	if !cmd.Valid() {
		discord.RespondEphemeral(r, i, "Nothing to roll.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	res := dc.roller.DiceRoll(ctx, cmd.RollText(), system)
	if res.Text == "" {
		discord.RespondEphemeral(r, i, fmt.Sprintf("`%s` is not a command of %s.", cmd.RawText, dc.label(system)))
		return
	}

	content := fmt.Sprintf("**%s : %s**\n%s", res.ID, userName(i), res.Text)
	if res.Secret {
		discord.RespondEphemeral(r, i, content)
		return
	}
	discord.Respond(r, i, content)
}

func (dc *DiceCommands) handleHelp(r discord.Responder, i *discordgo.InteractionCreate) {
	system := dc.system(i, discord.Options(i))

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	id, text, err := dc.roller.Help(ctx, system)
	if errors.Is(err, gamesystem.ErrUnknownSystem) {
		discord.RespondEphemeral(r, i, fmt.Sprintf("Unknown game system %s.", dc.label(system)))
		return
	}
	if err != nil {
		discord.RespondEphemeral(r, i, fmt.Sprintf("Help for %s is unavailable right now.", dc.label(system)))
		return
	}
	if runes := []rune(text); len(runes) > maxEmbedText {
		text = string(runes[:maxEmbedText-1]) + "…"
	}
	discord.RespondEmbed(r, i, &discordgo.MessageEmbed{
		Title:       id,
		Description: text,
	})
}

func (dc *DiceCommands) handleSystems(r discord.Responder, i *discordgo.InteractionCreate) {
	var query string
	if o, ok := discord.Options(i)["query"]; ok {
		query = o.StringValue()
	}
	found := dc.catalog.Suggest(query, listLimit)
	if len(found) == 0 {
		discord.RespondEphemeral(r, i, fmt.Sprintf("No game systems match %q.", query))
		return
	}

	var sb strings.Builder
	for _, d := range found {
		fmt.Fprintf(&sb, "`%s` %s\n", d.ID, d.Name)
	}
	discord.RespondEmbed(r, i, &discordgo.MessageEmbed{
		Title:       "Game systems",
		Description: sb.String(),
		Footer:      &discordgo.MessageEmbedFooter{Text: "Default: " + dc.catalog.DefaultSystem()},
	})
}

func (dc *DiceCommands) handleReload(r discord.Responder, i *discordgo.InteractionCreate) {
	if !dc.perms.IsGM(i) {
		discord.RespondEphemeral(r, i, "Only game masters can reload game systems.")
		return
	}
	discord.DeferReply(r, i)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	n, err := dc.catalog.Reload(ctx)
	if err != nil {
		discord.FollowUp(r, i, fmt.Sprintf("Reload failed: %v", err))
		return
	}
	discord.FollowUp(r, i, fmt.Sprintf("Reloaded %d game systems.", n))
}

func (dc *DiceCommands) autocompleteSystem(r discord.Responder, i *discordgo.InteractionCreate) {
	var query string
	if o, ok := discord.Options(i)["system"]; ok && o.Focused {
		query = o.StringValue()
	}
	found := dc.catalog.Suggest(query, listLimit)
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(found))
	for _, d := range found {
		name := d.ID
		if d.Name != "" && d.Name != d.ID {
			name = fmt.Sprintf("%s (%s)", d.Name, d.ID)
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: name, Value: d.ID})
	}
	discord.RespondChoices(r, i, choices)
}

// system picks the explicit system option, then the channel's system.
func (dc *DiceCommands) system(i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) string {
	if o, ok := opts["system"]; ok && o.StringValue() != "" {
		return o.StringValue()
	}
	if dc.channels != nil {
		return dc.channels.ChannelSystem(i.ChannelID)
	}
	return ""
}

func (dc *DiceCommands) label(system string) string {
	if system == "" {
		return dc.catalog.DefaultSystem()
	}
	return system
}

func userName(i *discordgo.InteractionCreate) string {
	u := i.User
	if i.Member != nil {
		if i.Member.Nick != "" {
			return i.Member.Nick
		}
		u = i.Member.User
	}
	if u == nil {
		return "unknown"
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}
