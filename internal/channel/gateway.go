package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"pixelbot/internal/domain"
	"pixelbot/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

// Gateway is the bot's single HTTP server: webhook, image hosting, health and
// optionally metrics.
type Gateway struct {
	addr   string
	mux    *http.ServeMux
	logger *slog.Logger
	server *http.Server
}

type GatewayConfig struct {
	Addr        string
	WebhookPath string // default /whatsapp
	MetricsPath string // empty disables the metrics endpoint
	Handler     Handler
	Store       domain.ImageStore
	Logger      *slog.Logger
}

func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/whatsapp"
	}

	mux := http.NewServeMux()
	mux.Handle("POST "+cfg.WebhookPath, NewWhatsApp(WhatsAppConfig{Handler: cfg.Handler, Logger: cfg.Logger}))
	mux.Handle("GET /images/{filename}", NewImages(cfg.Store, cfg.Logger))
	mux.HandleFunc("GET /health", Health)
	if cfg.MetricsPath != "" {
		mux.Handle("GET "+cfg.MetricsPath, metrics.Collector.Handler())
	}

	return &Gateway{addr: cfg.Addr, mux: mux, logger: cfg.Logger}
}

// Handler exposes the routes for embedding or httptest.
func (g *Gateway) Handler() http.Handler { return g.mux }

// Start listens on the configured address and serves until ctx is done, then
// shuts down gracefully.
func (g *Gateway) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("gateway listen %s: %w", g.addr, err)
	}
	return g.Serve(ctx, ln)
}

func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	g.server = &http.Server{
		Handler:           g.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      180 * time.Second, // generation runs inside the webhook request
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g.logger.Info("gateway started", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		g.logger.Info("gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return g.server.Shutdown(shutdownCtx)
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("gateway: %w", err)
	}
}
