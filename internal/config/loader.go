package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// systemIDRe matches game-system identifiers such as "Cthulhu" or
// "SwordWorld2.5".
var systemIDRe = regexp.MustCompile(`^[A-Za-z0-9_.:]+$`)

// reservedPaths are served by the ops listener itself.
var reservedPaths = []string{"/healthz", "/readyz", "/metrics", "/mcp"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// An empty document yields the zero config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Dice bot
	db := cfg.DiceBot
	if db.DefaultSystem != "" && !systemIDRe.MatchString(db.DefaultSystem) {
		errs = append(errs, fmt.Errorf("dicebot.default_system %q is not a valid system id", db.DefaultSystem))
	}
	if db.LoadTimeout < 0 {
		errs = append(errs, fmt.Errorf("dicebot.load_timeout %s must not be negative", db.LoadTimeout))
	}
	if db.BusBuffer < 0 {
		errs = append(errs, fmt.Errorf("dicebot.bus_buffer %d must not be negative", db.BusBuffer))
	}
	if db.Breaker.MaxFailures < 0 || db.Breaker.Cooldown < 0 {
		errs = append(errs, errors.New("dicebot.breaker values must not be negative"))
	}
	for i, id := range db.DisabledSystems {
		if id == "" {
			errs = append(errs, fmt.Errorf("dicebot.disabled_systems[%d] is empty", i))
		}
	}
	if db.DefaultSystem != "" && slices.Contains(db.DisabledSystems, db.DefaultSystem) {
		errs = append(errs, fmt.Errorf("dicebot.default_system %q is listed in dicebot.disabled_systems", db.DefaultSystem))
	}

	// Campaign
	for i, path := range cfg.Campaign.CharacterFiles {
		if path == "" {
			errs = append(errs, fmt.Errorf("campaign.character_files[%d] is empty", i))
		}
	}
	if cfg.Campaign.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("campaign.history_limit %d must not be negative", cfg.Campaign.HistoryLimit))
	}

	// Discord
	dc := cfg.Discord
	for channel, system := range dc.ChannelSystems {
		if channel == "" || system == "" {
			errs = append(errs, fmt.Errorf("discord.channel_systems entry %q: %q needs both a channel and a system", channel, system))
			continue
		}
		if slices.Contains(db.DisabledSystems, system) {
			slog.Warn("config: channel uses a disabled game system; rolls fall back to the default",
				"channel", channel, "system", system)
		}
	}
	for user, char := range dc.Players {
		if user == "" || char == "" {
			errs = append(errs, fmt.Errorf("discord.players entry %q: %q needs both a user and a character", user, char))
		}
	}
	if dc.Token == "" && (len(dc.ChannelSystems) > 0 || dc.GuildID != "") {
		slog.Warn("config: discord settings present but discord.token is empty; the Discord bridge stays disabled")
	}

	// Web chat
	wc := cfg.WebChat
	if wc.Path != "" && (!strings.HasPrefix(wc.Path, "/") || slices.Contains(reservedPaths, wc.Path)) {
		errs = append(errs, fmt.Errorf("webchat.path %q must start with / and not be one of %v", wc.Path, reservedPaths))
	}
	for room, system := range wc.Rooms {
		if room == "" || system == "" {
			errs = append(errs, fmt.Errorf("webchat.rooms entry %q: %q needs both a room and a system", room, system))
		}
	}
	if !wc.Enabled && len(wc.Rooms) > 0 {
		slog.Warn("config: webchat rooms configured but webchat.enabled is false")
	}

	return errors.Join(errs...)
}
