package config

import (
	"cmp"
	"maps"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ChannelSystemsChanged bool
	ChannelChanges        []ChannelDiff // sorted by channel ID

	RoomsChanged bool
	NewRooms     map[string]string

	// RestartRequired lists settings that changed but only take effect
	// after a restart.
	RestartRequired []string
}

// ChannelDiff describes the game-system change of one channel.
type ChannelDiff struct {
	ChannelID string
	Old, New  string
	Added     bool
	Removed   bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	for ch, oldSys := range old.Discord.ChannelSystems {
		newSys, ok := new.Discord.ChannelSystems[ch]
		switch {
		case !ok:
			d.ChannelChanges = append(d.ChannelChanges, ChannelDiff{ChannelID: ch, Old: oldSys, Removed: true})
		case newSys != oldSys:
			d.ChannelChanges = append(d.ChannelChanges, ChannelDiff{ChannelID: ch, Old: oldSys, New: newSys})
		}
	}
	for ch, newSys := range new.Discord.ChannelSystems {
		if _, ok := old.Discord.ChannelSystems[ch]; !ok {
			d.ChannelChanges = append(d.ChannelChanges, ChannelDiff{ChannelID: ch, New: newSys, Added: true})
		}
	}
	slices.SortFunc(d.ChannelChanges, func(a, b ChannelDiff) int {
		return cmp.Compare(a.ChannelID, b.ChannelID)
	})
	d.ChannelSystemsChanged = len(d.ChannelChanges) > 0

	if !maps.Equal(old.WebChat.Rooms, new.WebChat.Rooms) {
		d.RoomsChanged = true
		d.NewRooms = maps.Clone(new.WebChat.Rooms)
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.MCP != new.Server.MCP {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.DiceBot.DefaultSystem != new.DiceBot.DefaultSystem ||
		old.DiceBot.SystemsDir != new.DiceBot.SystemsDir ||
		!slices.Equal(old.DiceBot.DisabledSystems, new.DiceBot.DisabledSystems) {
		d.RestartRequired = append(d.RestartRequired, "dicebot")
	}
	if !slices.Equal(old.Campaign.CharacterFiles, new.Campaign.CharacterFiles) ||
		old.Campaign.PostgresDSN != new.Campaign.PostgresDSN {
		d.RestartRequired = append(d.RestartRequired, "campaign")
	}
	if old.Discord.Token != new.Discord.Token || old.Discord.GuildID != new.Discord.GuildID ||
		!maps.Equal(old.Discord.Players, new.Discord.Players) {
		d.RestartRequired = append(d.RestartRequired, "discord")
	}
	if old.WebChat.Enabled != new.WebChat.Enabled || old.WebChat.Path != new.WebChat.Path ||
		!slices.Equal(old.WebChat.OriginPatterns, new.WebChat.OriginPatterns) {
		d.RestartRequired = append(d.RestartRequired, "webchat")
	}

	return d
}
