package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/dicebot/internal/discord/mock"
)

func TestPermissionChecker_IsGM(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		gmRoleID string
		member   *discordgo.Member
		want     bool
	}{
		{
			name:     "user with GM role",
			gmRoleID: "role-123",
			member:   &discordgo.Member{Roles: []string{"role-456", "role-123"}},
			want:     true,
		},
		{
			name:     "user without GM role",
			gmRoleID: "role-123",
			member:   &discordgo.Member{Roles: []string{"role-456"}},
		},
		{
			name:   "no role configured, manage server",
			member: &discordgo.Member{Permissions: discordgo.PermissionManageGuild},
			want:   true,
		},
		{
			name:   "no role configured, regular member",
			member: &discordgo.Member{Permissions: discordgo.PermissionSendMessages},
		},
		{
			name:     "direct message",
			gmRoleID: "role-123",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Member: tt.member}}
			if got := NewPermissionChecker(tt.gmRoleID).IsGM(i); got != tt.want {
				t.Errorf("IsGM() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCommandRouter_ApplicationCommands_Dedup(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	cmd := &discordgo.ApplicationCommand{Name: "dice"}
	noop := func(Responder, *discordgo.InteractionCreate) {}
	r.RegisterCommand("dice", cmd, noop)
	r.RegisterCommand("dice/roll", cmd, noop)
	r.RegisterHandler("dice/help", noop)

	cmds := r.ApplicationCommands()
	if len(cmds) != 1 || cmds[0].Name != "dice" {
		t.Fatalf("ApplicationCommands() = %v, want the single dice command", cmds)
	}
}

func command(typ discordgo.InteractionType, name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: typ,
		Data: discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}}
}

func subcommand(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Type:    discordgo.ApplicationCommandOptionSubCommand,
		Name:    name,
		Options: opts,
	}
}

func TestCommandRouter_Handle(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	var got []string
	r.RegisterCommand("dice", &discordgo.ApplicationCommand{Name: "dice"}, func(Responder, *discordgo.InteractionCreate) {
		got = append(got, "dice")
	})
	r.RegisterHandler("dice/roll", func(Responder, *discordgo.InteractionCreate) {
		got = append(got, "dice/roll")
	})
	r.RegisterAutocomplete("dice/roll", func(Responder, *discordgo.InteractionCreate) {
		got = append(got, "autocomplete dice/roll")
	})

	sess := &mock.Session{}
	r.Handle(sess, command(discordgo.InteractionApplicationCommand, "dice"))
	r.Handle(sess, command(discordgo.InteractionApplicationCommand, "dice", subcommand("roll")))
	r.Handle(sess, command(discordgo.InteractionApplicationCommandAutocomplete, "dice", subcommand("roll")))

	want := []string{"dice", "dice/roll", "autocomplete dice/roll"}
	if len(got) != len(want) {
		t.Fatalf("handled %v, want %v", got, want)
	}
	for idx := range want {
		if got[idx] != want[idx] {
			t.Errorf("handled[%d] = %q, want %q", idx, got[idx], want[idx])
		}
	}
	if len(sess.Responses()) != 0 {
		t.Errorf("router responded on its own: %v", sess.Responses())
	}
}

func TestCommandRouter_Handle_Unknown(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	sess := &mock.Session{}

	r.Handle(sess, command(discordgo.InteractionApplicationCommand, "nope"))
	resp := sess.LastResponse()
	if resp == nil || resp.Data.Content != "Unknown command." || resp.Data.Flags != discordgo.MessageFlagsEphemeral {
		t.Errorf("unknown command response = %+v", resp)
	}

	r.Handle(sess, command(discordgo.InteractionApplicationCommandAutocomplete, "nope"))
	resp = sess.LastResponse()
	if resp == nil || resp.Type != discordgo.InteractionApplicationCommandAutocompleteResult || len(resp.Data.Choices) != 0 {
		t.Errorf("unknown autocomplete response = %+v", resp)
	}
}

func TestOptions(t *testing.T) {
	t.Parallel()

	expr := &discordgo.ApplicationCommandInteractionDataOption{
		Type:  discordgo.ApplicationCommandOptionString,
		Name:  "expression",
		Value: "2d6",
	}
	opts := Options(command(discordgo.InteractionApplicationCommand, "dice", subcommand("roll", expr)))
	if o, ok := opts["expression"]; !ok || o.StringValue() != "2d6" {
		t.Errorf("Options() = %v, want the subcommand's expression", opts)
	}
}

func TestRespondChoices_Limit(t *testing.T) {
	t.Parallel()

	choices := make([]*discordgo.ApplicationCommandOptionChoice, 40)
	for i := range choices {
		choices[i] = &discordgo.ApplicationCommandOptionChoice{Name: "x", Value: "x"}
	}
	sess := &mock.Session{}
	RespondChoices(sess, command(discordgo.InteractionApplicationCommandAutocomplete, "dice"), choices)
	if got := len(sess.LastResponse().Data.Choices); got != maxChoices {
		t.Errorf("sent %d choices, want %d", got, maxChoices)
	}
}
