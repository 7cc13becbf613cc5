package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for pixelbot.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Gemini  GeminiConfig  `yaml:"gemini"`
	Twilio  TwilioConfig  `yaml:"twilio"`
	Images  ImagesConfig  `yaml:"images"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`
	// PublicBaseURL is the externally reachable origin used to build image links
	// (e.g. an ngrok tunnel). Required.
	PublicBaseURL string `yaml:"publicBaseURL" env:"PUBLIC_BASE_URL"`
	WebhookPath   string `yaml:"webhookPath" env:"WEBHOOK_PATH"`
}

type GeminiConfig struct {
	APIKey  string        `yaml:"apiKey" env:"GEMINI_API_KEY"`
	Model   string        `yaml:"model" env:"GEMINI_MODEL"`
	Timeout time.Duration `yaml:"timeout" env:"GENERATION_TIMEOUT"` // 0 = HTTP client default
}

type TwilioConfig struct {
	AccountSID string `yaml:"accountSid" env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `yaml:"authToken" env:"TWILIO_AUTH_TOKEN"`
	// From is the outbound sender address, e.g. "whatsapp:+14155238886". Required.
	From string `yaml:"from" env:"TWILIO_FROM"`
}

type ImagesConfig struct {
	Dir            string        `yaml:"dir" env:"IMAGE_DIR"`
	Retention      time.Duration `yaml:"retention" env:"IMAGE_RETENTION"`
	MaxFiles       int           `yaml:"maxFiles" env:"IMAGE_MAX_FILES"`
	SweepInterval  time.Duration `yaml:"sweepInterval" env:"SWEEP_INTERVAL"`
	RegistryDBPath string        `yaml:"registryDbPath,omitempty" env:"REGISTRY_DB_PATH"` // empty = in-memory registry
	CleanupOnExit  bool          `yaml:"cleanupOnExit" env:"CLEANUP_ON_EXIT"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"` // "text" | "json"
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED"`
	Path    string `yaml:"path" env:"METRICS_PATH"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load builds a Config from defaults, an optional YAML file and the environment,
// in that order of precedence (environment wins). An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg, err := LoadUnvalidated(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadUnvalidated is Load without the final Validate step. Maintenance
// commands that never talk to Gemini or Twilio use it.
func LoadUnvalidated(path string) (*Config, error) {
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

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("cannot read environment: %w", err)
	}

	cfg.Images.Dir = ExpandPath(cfg.Images.Dir)
	cfg.Images.RegistryDBPath = ExpandPath(cfg.Images.RegistryDBPath)
	cfg.Server.PublicBaseURL = strings.TrimRight(cfg.Server.PublicBaseURL, "/")
	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes cfg as YAML, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values. Credentials, the public
// base URL and the outbound sender have no defaults and must be provided.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Gemini.APIKey == "" {
		errs = append(errs, "gemini.apiKey is required (GEMINI_API_KEY)")
	}
	if cfg.Gemini.Model == "" {
		errs = append(errs, "gemini.model must not be empty")
	}
	if cfg.Gemini.Timeout < 0 {
		errs = append(errs, "gemini.timeout must be >= 0")
	}

	if cfg.Twilio.AccountSID == "" {
		errs = append(errs, "twilio.accountSid is required (TWILIO_ACCOUNT_SID)")
	}
	if cfg.Twilio.AuthToken == "" {
		errs = append(errs, "twilio.authToken is required (TWILIO_AUTH_TOKEN)")
	}
	if cfg.Twilio.From == "" {
		errs = append(errs, "twilio.from is required (TWILIO_FROM)")
	}

	if cfg.Server.PublicBaseURL == "" {
		errs = append(errs, "server.publicBaseURL is required (PUBLIC_BASE_URL)")
	} else if u, err := url.Parse(cfg.Server.PublicBaseURL); err != nil || u.Host == "" ||
		(u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, "server.publicBaseURL must be an absolute http(s) URL")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if !strings.HasPrefix(cfg.Server.WebhookPath, "/") {
		errs = append(errs, "server.webhookPath must start with /")
	}

	if cfg.Images.Dir == "" {
		errs = append(errs, "images.dir must not be empty")
	}
	if cfg.Images.Retention <= 0 {
		errs = append(errs, "images.retention must be > 0")
	}
	if cfg.Images.MaxFiles < 1 {
		errs = append(errs, "images.maxFiles must be >= 1")
	}
	if cfg.Images.SweepInterval <= 0 {
		errs = append(errs, "images.sweepInterval must be > 0")
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "log.level must be one of: debug, info, warn, error")
	}
	switch cfg.Log.Format {
	case "text", "json":
		// valid
	default:
		errs = append(errs, "log.format must be one of: text, json")
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
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
