// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/smartdevs17/cosmos-validator-monitor/pkg/utils"
)

// DefaultMissedBlockThreshold applies to chains with missed block tracking and no explicit threshold
const DefaultMissedBlockThreshold = 50

// Config holds all configuration for the application
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Storage       StorageConfig           `mapstructure:"storage"`
	Cache         CacheConfig             `mapstructure:"cache"`
	Monitor       MonitorConfig           `mapstructure:"monitor"`
	Governance    GovernanceConfig        `mapstructure:"governance"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Server        ServerConfig            `mapstructure:"server"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Chains        map[string]*ChainConfig `mapstructure:"chains"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres, mysql
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// CacheConfig selects the signing-info cache backend
type CacheConfig struct {
	Type     string        `mapstructure:"type"` // memory, redis
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

// MonitorConfig contains poll loop configuration
type MonitorConfig struct {
	PollInterval                time.Duration `mapstructure:"poll_interval"`
	RequestTimeout              time.Duration `mapstructure:"request_timeout"`
	ConsecutiveFailureThreshold int           `mapstructure:"consecutive_failure_threshold"`
	ConcurrentChains            int           `mapstructure:"concurrent_chains"`
	RunOnStart                  bool          `mapstructure:"run_on_start"`
}

// GovernanceConfig controls proposal polling
type GovernanceConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	ProposalWindow int  `mapstructure:"proposal_window"`
	UpgradeEnabled bool `mapstructure:"upgrade_enabled"`
}

// NotificationConfig contains notification system configuration
type NotificationConfig struct {
	QueueSize   int            `mapstructure:"queue_size"`
	Workers     int            `mapstructure:"workers"`
	SendTimeout time.Duration  `mapstructure:"send_timeout"`
	Discord     DiscordConfig  `mapstructure:"discord"`
	Telegram    TelegramConfig `mapstructure:"telegram"`
	Webhook     WebhookConfig  `mapstructure:"webhook"`
}

// DiscordConfig contains the bot credentials
type DiscordConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Token            string `mapstructure:"token"`
	GuildID          string `mapstructure:"guild_id"`
	RegisterCommands bool   `mapstructure:"register_commands"`
}

// TelegramConfig mirrors alerts to a telegram chat
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	ChatID  int64  `mapstructure:"chat_id"`
}

// WebhookConfig mirrors alerts to HTTP endpoints
type WebhookConfig struct {
	Enabled    bool              `mapstructure:"enabled"`
	URLs       []string          `mapstructure:"urls"`
	Headers    map[string]string `mapstructure:"headers"`
	MaxRetries int               `mapstructure:"max_retries"`
	RetryDelay time.Duration     `mapstructure:"retry_delay"`
	Timeout    time.Duration     `mapstructure:"timeout"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// ChainConfig describes one monitored Cosmos SDK chain
type ChainConfig struct {
	ChainID               string   `mapstructure:"chain_id"`
	Name                  string   `mapstructure:"name"`
	RESTBaseURL           string   `mapstructure:"rest_base_url"`
	BackupURLs            []string `mapstructure:"backup_urls"`
	OperatorPrefix        string   `mapstructure:"operator_prefix"`
	ConsensusPrefix       string   `mapstructure:"consensus_prefix"`
	Denom                 string   `mapstructure:"denom"`
	Decimals              int32    `mapstructure:"decimals"`
	MissedBlockThreshold  int64    `mapstructure:"missed_block_threshold"`
	MissedBlocksSupported bool     `mapstructure:"missed_blocks_supported"`
	GovAPIVersion         string   `mapstructure:"gov_api_version"` // v1, v1beta1
}

// Endpoints returns the primary REST URL followed by the backups
func (c *ChainConfig) Endpoints() []string {
	out := make([]string, 0, 1+len(c.BackupURLs))
	out = append(out, strings.TrimRight(c.RESTBaseURL, "/"))
	for _, u := range c.BackupURLs {
		out = append(out, strings.TrimRight(u, "/"))
	}
	return out
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("VALMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		utils.GetLogger().Warn("Config file not found, using defaults and environment variables")
	}

	return decode(v)
}

// LoadFromString parses YAML configuration with the same defaults and overrides as Load
func LoadFromString(yaml string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	if err := v.ReadConfig(strings.NewReader(yaml)); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.UnmarshalExact(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if token := os.Getenv("DISCORD_BOT_TOKEN"); token != "" {
		config.Notifications.Discord.Token = token
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		config.Notifications.Telegram.Token = token
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.Cache.RedisURL = redisURL
	}

	config.normalizeChains()
	return &config, nil
}

// normalizeChains keys chains by lower-cased name and fills derived fields
func (c *Config) normalizeChains() {
	chains := make(map[string]*ChainConfig, len(c.Chains))
	for key, chain := range c.Chains {
		if chain == nil {
			chain = &ChainConfig{}
		}
		name := utils.NormalizeChainName(key)
		if chain.Name == "" {
			chain.Name = name
		}
		if chain.GovAPIVersion == "" {
			chain.GovAPIVersion = "v1"
		}
		if chain.MissedBlocksSupported && chain.MissedBlockThreshold == 0 {
			chain.MissedBlockThreshold = DefaultMissedBlockThreshold
		}
		chains[name] = chain
	}
	c.Chains = chains
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cosmos-validator-monitor")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.connection_string", "./data/validators.db")
	v.SetDefault("storage.max_connections", 10)
	v.SetDefault("storage.max_idle_time", "15m")

	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "1m")
	v.SetDefault("cache.prefix", "valmon:")

	v.SetDefault("monitor.poll_interval", "5m")
	v.SetDefault("monitor.request_timeout", "15s")
	v.SetDefault("monitor.consecutive_failure_threshold", 3)
	v.SetDefault("monitor.concurrent_chains", 4)
	v.SetDefault("monitor.run_on_start", true)

	v.SetDefault("governance.enabled", true)
	v.SetDefault("governance.proposal_window", 20)
	v.SetDefault("governance.upgrade_enabled", true)

	v.SetDefault("notifications.queue_size", 100)
	v.SetDefault("notifications.workers", 2)
	v.SetDefault("notifications.send_timeout", "10s")
	v.SetDefault("notifications.discord.enabled", true)
	v.SetDefault("notifications.discord.register_commands", true)
	v.SetDefault("notifications.telegram.enabled", false)
	v.SetDefault("notifications.webhook.enabled", false)
	v.SetDefault("notifications.webhook.max_retries", 3)
	v.SetDefault("notifications.webhook.retry_delay", "2s")
	v.SetDefault("notifications.webhook.timeout", "10s")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.enable_metrics", true)
	v.SetDefault("server.enable_health", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	switch c.Storage.Type {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	switch c.Cache.Type {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache.redis_url is required for redis cache")
		}
	default:
		return fmt.Errorf("unsupported cache type: %s", c.Cache.Type)
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor poll interval must be positive")
	}
	if c.Monitor.ConsecutiveFailureThreshold <= 0 {
		return fmt.Errorf("monitor consecutive failure threshold must be positive")
	}
	if c.Monitor.ConcurrentChains <= 0 {
		return fmt.Errorf("monitor concurrent chains must be positive")
	}
	if c.Governance.ProposalWindow <= 0 {
		return fmt.Errorf("governance proposal window must be positive")
	}
	if c.Notifications.Workers <= 0 || c.Notifications.QueueSize <= 0 {
		return fmt.Errorf("notification workers and queue size must be positive")
	}
	if c.Notifications.Discord.Enabled && c.Notifications.Discord.Token == "" {
		return fmt.Errorf("discord token is required when discord is enabled")
	}
	if c.Notifications.Telegram.Enabled && (c.Notifications.Telegram.Token == "" || c.Notifications.Telegram.ChatID == 0) {
		return fmt.Errorf("telegram token and chat_id are required when telegram is enabled")
	}
	if c.Notifications.Webhook.Enabled && len(c.Notifications.Webhook.URLs) == 0 {
		return fmt.Errorf("at least one webhook url is required when webhooks are enabled")
	}
	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}
	seen := make(map[string]string, len(c.Chains))
	for _, name := range c.ChainNames() {
		chain := c.Chains[name]
		if err := chain.Validate(); err != nil {
			return fmt.Errorf("chain %s: %w", name, err)
		}
		if other, ok := seen[chain.ChainID]; ok {
			return fmt.Errorf("chain %s: chain_id %s already used by %s", name, chain.ChainID, other)
		}
		seen[chain.ChainID] = name
	}
	return nil
}

// Validate checks a single chain entry
func (c *ChainConfig) Validate() error {
	if c.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	for _, raw := range append([]string{c.RESTBaseURL}, c.BackupURLs...) {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("invalid rest url %q", raw)
		}
	}
	if c.OperatorPrefix == "" {
		return fmt.Errorf("operator_prefix is required")
	}
	if c.MissedBlocksSupported && c.ConsensusPrefix == "" {
		return fmt.Errorf("consensus_prefix is required when missed blocks are supported")
	}
	if c.Denom == "" {
		return fmt.Errorf("denom is required")
	}
	if c.Decimals < 0 || c.Decimals > 18 {
		return fmt.Errorf("decimals must be between 0 and 18")
	}
	if c.MissedBlockThreshold < 0 {
		return fmt.Errorf("missed_block_threshold must not be negative")
	}
	switch c.GovAPIVersion {
	case "v1", "v1beta1":
	default:
		return fmt.Errorf("unsupported gov_api_version %q", c.GovAPIVersion)
	}
	return nil
}

// ChainNames returns configured chain names in sorted order
func (c *Config) ChainNames() []string {
	names := make([]string, 0, len(c.Chains))
	for name := range c.Chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Chain looks up a chain by name (case-insensitive) or chain id
func (c *Config) Chain(nameOrID string) (*ChainConfig, bool) {
	if chain, ok := c.Chains[utils.NormalizeChainName(nameOrID)]; ok {
		return chain, true
	}
	for _, chain := range c.Chains {
		if chain.ChainID == nameOrID {
			return chain, true
		}
	}
	return nil, false
}

// ChainByID looks up a chain by its chain id
func (c *Config) ChainByID(chainID string) (*ChainConfig, bool) {
	for _, chain := range c.Chains {
		if chain.ChainID == chainID {
			return chain, true
		}
	}
	return nil, false
}
