package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"pixelbot/internal/config"
	"pixelbot/internal/media"
	"pixelbot/internal/provider"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	var skipRemote bool

	cmd := &cobra.Command{
		Use:     "doctor",
		Aliases: []string{"status"},
		Short:   "Check configuration, storage and Gemini connectivity",
		Long: `Verifies that pixelbot's configuration is complete, the image directory
and registry database are writable, the listen port is free, and the
configured Gemini model is reachable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("pixelbot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			var r report

			cfg, err := config.LoadUnvalidated(configPath)
			if err != nil {
				r.fail("Config file", err.Error())
				return r.summary()
			}
			if configPath != "" {
				r.pass("Config file", configPath)
			} else {
				r.warn("Config file", "none (environment only)")
			}

			if err := config.Validate(cfg); err != nil {
				r.fail("Config validation", err.Error())
			} else {
				r.pass("Config validation", "valid")
			}

			if err := checkImageDir(cfg.Images.Dir); err != nil {
				r.fail("Image directory", err.Error())
			} else {
				r.pass("Image directory", cfg.Images.Dir)
			}

			if cfg.Images.RegistryDBPath == "" {
				r.pass("Image registry", "in-memory")
			} else if err := checkRegistry(cmd.Context(), cfg.Images.RegistryDBPath); err != nil {
				r.fail("Image registry", err.Error())
			} else {
				r.pass("Image registry", cfg.Images.RegistryDBPath)
			}

			if err := checkPort(cfg.Server.Addr()); err != nil {
				r.warn("Listen address", fmt.Sprintf("%s may be in use: %v", cfg.Server.Addr(), err))
			} else {
				r.pass("Listen address", cfg.Server.Addr()+" available")
			}

			switch {
			case skipRemote:
				r.warn("Gemini", "skipped")
			case cfg.Gemini.APIKey == "":
				r.fail("Gemini", "no API key")
			default:
				if err := checkGemini(cmd.Context(), cfg.Gemini); err != nil {
					r.fail("Gemini", err.Error())
				} else {
					r.pass("Gemini", cfg.Gemini.Model+" reachable")
				}
			}

			return r.summary()
		},
	}

	cmd.Flags().BoolVar(&skipRemote, "offline", false, "skip the Gemini connectivity check")
	return cmd
}

type report struct {
	passed, warned, failed int
}

func (r *report) pass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
	r.passed++
}

func (r *report) warn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
	r.warned++
}

func (r *report) fail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
	r.failed++
}

func (r *report) summary() error {
	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	return nil
}

func checkImageDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create: %w", err)
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func checkRegistry(ctx context.Context, dbPath string) error {
	reg, err := media.NewSQLiteRegistry(dbPath, logger)
	if err != nil {
		return err
	}
	defer reg.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	n, err := reg.Len(ctx)
	if err != nil {
		return fmt.Errorf("cannot query: %w", err)
	}
	logger.Debug("registry reachable", "records", n)
	return nil
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func checkGemini(ctx context.Context, cfg config.GeminiConfig) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	g, err := provider.NewGemini(ctx, provider.GeminiConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: 15 * time.Second,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	return g.Healthy(ctx)
}
