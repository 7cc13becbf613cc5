package channel

import (
	"errors"
	"log/slog"
	"net/http"

	"pixelbot/internal/domain"
	"pixelbot/internal/metrics"
)

// Images serves stored images by filename. Mounted at GET /images/{filename}.
type Images struct {
	store  domain.ImageStore
	logger *slog.Logger
}

func NewImages(store domain.ImageStore, logger *slog.Logger) *Images {
	return &Images{store: store, logger: logger}
}

func (h *Images) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")

	f, info, err := h.store.Open(name)
	if err != nil {
		if !errors.Is(err, domain.ErrImageNotFound) {
			h.logger.Error("image open failed", "file", name, "err", err)
		}
		metrics.ImagesNotFound.Inc()
		http.Error(rw, "Image not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	metrics.ImagesServed.Inc()
	rw.Header().Set("Content-Type", "image/png")
	http.ServeContent(rw, r, info.Filename, info.ModTime, f)
}

// Health answers liveness probes.
func Health(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.Write([]byte("🚀 WhatsApp Image Bot is running with Nano Banana API!"))
}
