package channel

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/twilio/twilio-go/twiml"

	"pixelbot/internal/domain"
)

// Handler produces the acknowledgment for one inbound message.
// *pipeline.Pipeline satisfies it.
type Handler interface {
	Handle(ctx context.Context, msg domain.InboundMessage) domain.Reply
}

// WhatsApp serves the Twilio messaging webhook. Each POST runs the handler
// synchronously and answers with TwiML.
type WhatsApp struct {
	handler Handler
	logger  *slog.Logger
}

type WhatsAppConfig struct {
	Handler Handler
	Logger  *slog.Logger
}

func NewWhatsApp(cfg WhatsAppConfig) *WhatsApp {
	return &WhatsApp{handler: cfg.Handler, logger: cfg.Logger}
}

func (w *WhatsApp) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(rw, r.Body, 1<<20)
	if err := r.ParseForm(); err != nil {
		w.logger.Warn("whatsapp bad form", "err", err)
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	msg := domain.InboundMessage{
		From:       r.PostForm.Get("From"),
		Body:       r.PostForm.Get("Body"),
		ReceivedAt: time.Now(),
	}
	w.logger.Info("whatsapp message received", "from", msg.From, "text_len", len(msg.Body))

	// Twilio gives up on the webhook long before a slow generation finishes;
	// the image is still delivered through the Messages API.
	reply := w.handler.Handle(context.WithoutCancel(r.Context()), msg)

	body, err := renderTwiML(reply)
	if err != nil {
		w.logger.Error("twiml render failed", "err", err)
		http.Error(rw, "Internal error", http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/xml")
	rw.WriteHeader(http.StatusOK)
	rw.Write([]byte(body))
}

// renderTwiML returns an empty <Response/> for an empty reply and a single
// <Message> otherwise.
func renderTwiML(reply domain.Reply) (string, error) {
	var verbs []twiml.Element
	if !reply.Empty() {
		verbs = append(verbs, &twiml.MessagingMessage{Body: reply.Text})
	}
	return twiml.Messages(verbs)
}
