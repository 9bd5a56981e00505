package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for slackrelay. It is built once at
// startup and passed by value or pointer to constructors; nothing mutates it
// afterwards.
type Config struct {
	Slack   SlackConfig   `json:"slack" yaml:"slack"`
	Relay   RelayConfig   `json:"relay" yaml:"relay"`
	Webhook WebhookConfig `json:"webhook" yaml:"webhook"`
	Notify  NotifyConfig  `json:"notify" yaml:"notify"`
	Server  ServerConfig  `json:"server" yaml:"server"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

type SlackConfig struct {
	BotToken  string `json:"botToken" yaml:"botToken"`
	AppToken  string `json:"appToken,omitempty" yaml:"appToken,omitempty"` // Socket Mode; DMs are ignored without it
	ChannelID string `json:"channelId" yaml:"channelId"`                   // relay destination
}

type RelayConfig struct {
	IncludeMetadata bool    `json:"includeMetadata" yaml:"includeMetadata"`
	MaxRetries      int     `json:"maxRetries" yaml:"maxRetries"`
	RetryBaseDelay  float64 `json:"retryBaseDelay" yaml:"retryBaseDelay"` // seconds
}

// BaseDelay returns RetryBaseDelay as a duration.
func (r RelayConfig) BaseDelay() time.Duration {
	return time.Duration(r.RetryBaseDelay * float64(time.Second))
}

type WebhookConfig struct {
	APIKey string `json:"apiKey" yaml:"apiKey"`
	Path   string `json:"path" yaml:"path"`
	Async  bool   `json:"async" yaml:"async"` // acknowledge with 202 and relay in the background
}

type NotifyConfig struct {
	ChannelID   string `json:"channelId,omitempty" yaml:"channelId,omitempty"`
	GroupHandle string `json:"groupHandle" yaml:"groupHandle"`
}

type ServerConfig struct {
	Host        string   `json:"host" yaml:"host"`
	Port        int      `json:"port" yaml:"port"`
	CORSOrigins []string `json:"corsOrigins,omitempty" yaml:"corsOrigins,omitempty"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
	JSON  bool   `json:"json" yaml:"json"`
}

type TracingConfig struct {
	Endpoint    string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"` // OTLP/HTTP; empty disables export
	SampleRatio float64 `json:"sampleRatio" yaml:"sampleRatio"`
}

// LookupFunc resolves environment keys; os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored; existing variables are never overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load builds the configuration: defaults, then the optional YAML file at
// path, then environment overrides from lookup.
func Load(path string, lookup LookupFunc) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		path = ExpandPath(path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}
		// Substitute environment variables: ${VAR} and ${VAR:-default}
		data = []byte(ExpandEnvVars(string(data)))
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	if lookup != nil {
		if err := ApplyEnv(cfg, lookup); err != nil {
			return nil, err
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment keys onto cfg.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	var errs []string

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(strings.ToLower(v))
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: invalid boolean %q", key, v))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: invalid integer %q", key, v))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: invalid number %q", key, v))
				return
			}
			*dst = f
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			var out []string
			for _, item := range strings.Split(v, ",") {
				if item = strings.TrimSpace(item); item != "" {
					out = append(out, item)
				}
			}
			*dst = out
		}
	}

	str("SLACK_BOT_TOKEN", &cfg.Slack.BotToken)
	str("SLACK_APP_TOKEN", &cfg.Slack.AppToken)
	str("RELAY_CHANNEL_ID", &cfg.Slack.ChannelID)
	boolean("INCLUDE_METADATA", &cfg.Relay.IncludeMetadata)
	integer("MAX_RETRIES", &cfg.Relay.MaxRetries)
	float("RETRY_BASE_DELAY", &cfg.Relay.RetryBaseDelay)
	str("WEBHOOK_API_KEY", &cfg.Webhook.APIKey)
	str("WEBHOOK_PATH", &cfg.Webhook.Path)
	boolean("WEBHOOK_ASYNC", &cfg.Webhook.Async)
	str("NOTIFICATIONS_CHANNEL_ID", &cfg.Notify.ChannelID)
	str("OPLADMINS_GROUP_HANDLE", &cfg.Notify.GroupHandle)
	str("HOST", &cfg.Server.Host)
	integer("PORT", &cfg.Server.Port)
	list("CORS_ALLOWED_ORIGINS", &cfg.Server.CORSOrigins)
	str("LOG_LEVEL", &cfg.Logging.Level)
	boolean("LOG_JSON", &cfg.Logging.JSON)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Tracing.Endpoint)
	float("TRACING_SAMPLE_RATIO", &cfg.Tracing.SampleRatio)

	if len(errs) > 0 {
		return fmt.Errorf("environment errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes cfg as YAML, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks value ranges. Missing credentials are reported by
// RequireCredentials instead, so tooling can load partial configs.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Relay.MaxRetries < 0 || cfg.Relay.MaxRetries > 10 {
		errs = append(errs, "relay.maxRetries must be between 0 and 10")
	}
	if cfg.Relay.RetryBaseDelay <= 0 || cfg.Relay.RetryBaseDelay > 300 {
		errs = append(errs, "relay.retryBaseDelay must be > 0 and <= 300 seconds")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if !strings.HasPrefix(cfg.Webhook.Path, "/") {
		errs = append(errs, "webhook.path must start with /")
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
		// valid
	default:
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, "tracing.sampleRatio must be between 0 and 1")
	}
	if cfg.Notify.GroupHandle == "" {
		errs = append(errs, "notify.groupHandle must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// RequireCredentials reports settings the serve command cannot run without.
func RequireCredentials(cfg *Config) error {
	var missing []string
	if cfg.Slack.BotToken == "" {
		missing = append(missing, "SLACK_BOT_TOKEN")
	}
	if cfg.Slack.ChannelID == "" {
		missing = append(missing, "RELAY_CHANNEL_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
