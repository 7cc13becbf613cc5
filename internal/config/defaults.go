package config

import "time"

const DefaultModel = "gemini-2.5-flash-image"

// Defaults returns a config with every optional value filled in. Credentials,
// the public base URL and the outbound sender are left empty on purpose.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        5000,
			WebhookPath: "/whatsapp",
		},
		Gemini: GeminiConfig{
			Model: DefaultModel,
		},
		Images: ImagesConfig{
			Dir:           ".",
			Retention:     time.Hour,
			MaxFiles:      500,
			SweepInterval: time.Minute,
			CleanupOnExit: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Path:    "/metrics",
		},
	}
}
