package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/dicebot/internal/config"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  mcp: true

dicebot:
  default_system: Cthulhu
  load_timeout: 5s
  systems_dir: ./systems
  disabled_systems:
    - Paranoia
  bus_buffer: 50
  breaker:
    max_failures: 2
    cooldown: 30s

campaign:
  character_files:
    - characters/party.yaml
  history_limit: 500
  postgres_dsn: postgres://dice@localhost/dice

discord:
  token: bot-token
  guild_id: "1234"
  gm_role_id: "42"
  channel_systems:
    "111": Cthulhu
    "222": DiceBot
  players:
    "9001": mina

webchat:
  enabled: true
  path: /chat
  rooms:
    tavern: SwordWorld2.5
  origin_patterns:
    - vtt.example.com
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.DiceBot.DefaultSystem != "Cthulhu" {
		t.Errorf("default_system: got %q", cfg.DiceBot.DefaultSystem)
	}
	if cfg.DiceBot.LoadTimeout != 5*time.Second {
		t.Errorf("load_timeout: got %s, want 5s", cfg.DiceBot.LoadTimeout)
	}
	if cfg.DiceBot.Breaker.MaxFailures != 2 || cfg.DiceBot.Breaker.Cooldown != 30*time.Second {
		t.Errorf("breaker = %+v", cfg.DiceBot.Breaker)
	}
	if len(cfg.DiceBot.DisabledSystems) != 1 || cfg.DiceBot.DisabledSystems[0] != "Paranoia" {
		t.Errorf("disabled_systems = %v", cfg.DiceBot.DisabledSystems)
	}
	if len(cfg.Campaign.CharacterFiles) != 1 || cfg.Campaign.HistoryLimit != 500 {
		t.Errorf("campaign = %+v", cfg.Campaign)
	}
	if cfg.Discord.ChannelSystems["111"] != "Cthulhu" || cfg.Discord.Players["9001"] != "mina" {
		t.Errorf("discord = %+v", cfg.Discord)
	}
	if !cfg.Server.MCP || cfg.Campaign.PostgresDSN != "postgres://dice@localhost/dice" {
		t.Errorf("mcp = %v, postgres_dsn = %q", cfg.Server.MCP, cfg.Campaign.PostgresDSN)
	}
	wc := cfg.WebChat
	if !wc.Enabled || wc.Path != "/chat" || wc.Rooms["tavern"] != "SwordWorld2.5" || len(wc.OriginPatterns) != 1 {
		t.Errorf("webchat = %+v", wc)
	}
}

func TestLoadFromReader_EmptyDocument(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != "" {
		t.Errorf("empty document should decode to the zero config, got %+v", cfg)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("dicebot:\n  default_sytem: Cthulhu\n"))
	if err == nil {
		t.Fatal("expected error for misspelled field, got nil")
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "dicebot.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DiceBot.DefaultSystem != "Cthulhu" {
		t.Errorf("default_system: got %q", cfg.DiceBot.DefaultSystem)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWithDefaults(t *testing.T) {
	t.Parallel()
	cfg := config.Config{}.WithDefaults()
	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("LogLevel = %q", cfg.Server.LogLevel)
	}
	if cfg.DiceBot.LoadTimeout != config.DefaultLoadTimeout {
		t.Errorf("LoadTimeout = %s", cfg.DiceBot.LoadTimeout)
	}
	if cfg.DiceBot.BusBuffer != config.DefaultBusBuffer {
		t.Errorf("BusBuffer = %d", cfg.DiceBot.BusBuffer)
	}
	if cfg.WebChat.Path != config.DefaultWebChatPath {
		t.Errorf("WebChat.Path = %q", cfg.WebChat.Path)
	}

	set := config.Config{DiceBot: config.DiceBotConfig{LoadTimeout: time.Second}}.WithDefaults()
	if set.DiceBot.LoadTimeout != time.Second {
		t.Errorf("explicit LoadTimeout overwritten: %s", set.DiceBot.LoadTimeout)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("verbose").IsValid() {
		t.Error("verbose should be invalid")
	}
}
