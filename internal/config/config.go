// Package config provides the configuration schema, loader and file watcher
// for the dice bot.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [Config.WithDefaults].
const (
	DefaultListenAddr  = ":8080"
	DefaultLoadTimeout = 10 * time.Second
	DefaultBusBuffer   = 100
	DefaultWebChatPath = "/ws"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	DiceBot  DiceBotConfig  `yaml:"dicebot"`
	Campaign CampaignConfig `yaml:"campaign"`
	Discord  DiscordConfig  `yaml:"discord"`
	WebChat  WebChatConfig  `yaml:"webchat"`
}

// ServerConfig holds the operational HTTP endpoint and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address serving /healthz, /readyz and /metrics.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the ops server. When nil, it runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// MCP mounts the Model Context Protocol endpoint at /mcp.
	MCP bool `yaml:"mcp"`
}

// TLSConfig holds TLS certificate paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// DiceBotConfig configures game-system loading and the event pipeline.
type DiceBotConfig struct {
	// DefaultSystem is used for messages without a game type.
	// Empty selects "DiceBot".
	DefaultSystem string `yaml:"default_system"`

	// LoadTimeout bounds each task in the game-system load queue.
	LoadTimeout time.Duration `yaml:"load_timeout"`

	// SystemsDir holds custom table systems as YAML files. Optional.
	SystemsDir string `yaml:"systems_dir"`

	// DisabledSystems are hidden from the catalog and never resolved.
	DisabledSystems []string `yaml:"disabled_systems"`

	// BusBuffer is the capacity of the inbound and outbound event queues.
	BusBuffer int `yaml:"bus_buffer"`

	// Breaker guards loading of custom systems.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the per-system circuit breaker. Zero values select
// the breaker's defaults.
type BreakerConfig struct {
	MaxFailures int           `yaml:"max_failures"`
	Cooldown    time.Duration `yaml:"cooldown"`
}

// CampaignConfig lists the game data loaded at startup.
type CampaignConfig struct {
	// CharacterFiles are YAML files of characters imported at startup.
	CharacterFiles []string `yaml:"character_files"`

	// HistoryLimit caps the messages kept per chat tab. Zero selects the
	// store's default.
	HistoryLimit int `yaml:"history_limit"`

	// PostgresDSN selects the PostgreSQL character store. Empty keeps
	// characters in memory.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// DiscordConfig configures the Discord chat bridge. An empty Token disables
// the bridge.
type DiscordConfig struct {
	Token   string `yaml:"token"`
	GuildID string `yaml:"guild_id"`

	// GMRoleID is the role allowed to reload game systems. Empty allows
	// members with the Manage Server permission only.
	GMRoleID string `yaml:"gm_role_id"`

	// ChannelSystems maps channel IDs to the game system used for rolls
	// in that channel. Hot-reloadable.
	ChannelSystems map[string]string `yaml:"channel_systems"`

	// Players maps Discord user IDs to the character they speak as.
	Players map[string]string `yaml:"players"`
}

// WebChatConfig configures the browser chat gateway served on the ops
// listener.
type WebChatConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is the WebSocket endpoint. Empty selects [DefaultWebChatPath].
	Path string `yaml:"path"`

	// Rooms maps room names to the game system used for rolls in that
	// room. Hot-reloadable.
	Rooms map[string]string `yaml:"rooms"`

	// OriginPatterns are the extra host patterns allowed to connect
	// cross-origin, e.g. "vtt.example.com".
	OriginPatterns []string `yaml:"origin_patterns"`
}

// WithDefaults returns a copy of c with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.DiceBot.LoadTimeout == 0 {
		c.DiceBot.LoadTimeout = DefaultLoadTimeout
	}
	if c.DiceBot.BusBuffer == 0 {
		c.DiceBot.BusBuffer = DefaultBusBuffer
	}
	if c.WebChat.Path == "" {
		c.WebChat.Path = DefaultWebChatPath
	}
	return c
}
