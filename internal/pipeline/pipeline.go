package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pixelbot/internal/domain"
	"pixelbot/internal/metrics"
)

const (
	successText = "✅ Your image has been generated and is on its way!"
	fallbackFmt = "⚠️ No image generated, but here's the response:\n%s"
	noticeText  = "❌ Sorry, I couldn't generate an image from that prompt. Please try something else!"
	errorText   = "❌ Sorry, an error occurred while processing your request. Please try again."
	captionFmt  = "🎨 Here's your generated image for: '%s'"
)

// Tracker registers a stored image so it is cleaned up later.
// *media.Janitor satisfies it.
type Tracker interface {
	Track(ctx context.Context, filename string) error
}

// Pipeline turns one inbound message into one synchronous acknowledgment,
// delivering any generated image out of band through the Sender.
type Pipeline struct {
	generator domain.ImageGenerator
	store     domain.ImageStore
	tracker   Tracker
	sender    domain.MediaSender
	baseURL   string
	from      string
	logger    *slog.Logger
}

type Config struct {
	Generator     domain.ImageGenerator
	Store         domain.ImageStore
	Tracker       Tracker
	Sender        domain.MediaSender
	PublicBaseURL string // externally reachable origin, no trailing slash needed
	From          string // outbound sender address
	Logger        *slog.Logger
}

func New(cfg Config) *Pipeline {
	return &Pipeline{
		generator: cfg.Generator,
		store:     cfg.Store,
		tracker:   cfg.Tracker,
		sender:    cfg.Sender,
		baseURL:   strings.TrimRight(cfg.PublicBaseURL, "/"),
		from:      cfg.From,
		logger:    cfg.Logger,
	}
}

// Handle never fails: every error is logged and mapped to the apology reply.
func (p *Pipeline) Handle(ctx context.Context, msg domain.InboundMessage) domain.Reply {
	metrics.MessagesTotal.Inc()

	prompt := strings.TrimSpace(msg.Body)
	if prompt == "" {
		metrics.Reply(metrics.OutcomeEmpty).Inc()
		return domain.Reply{}
	}

	start := time.Now()
	reply, outcome, err := p.process(ctx, msg.From, prompt)
	if err != nil {
		p.logFailure(msg, err)
		reply, outcome = domain.Reply{Text: errorText}, metrics.OutcomeError
	}
	metrics.Reply(outcome).Inc()

	p.logger.Info("message handled",
		"from", msg.From,
		"prompt_len", len(prompt),
		"outcome", outcome,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return reply
}

func (p *Pipeline) process(ctx context.Context, to, prompt string) (domain.Reply, string, error) {
	res, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return domain.Reply{}, "", &StageError{Stage: StageGenerate, Err: err}
	}
	if res == nil {
		res = &domain.GenerationResult{}
	}

	if !res.HasImage() {
		if res.Text != "" {
			return domain.Reply{Text: fmt.Sprintf(fallbackFmt, res.Text)}, metrics.OutcomeText, nil
		}
		return domain.Reply{Text: noticeText}, metrics.OutcomeNotice, nil
	}

	filename, err := p.store.Save(ctx, res.Image)
	if err != nil {
		return domain.Reply{}, "", &StageError{Stage: StagePersist, Err: err}
	}
	if err := p.tracker.Track(ctx, filename); err != nil {
		return domain.Reply{}, "", &StageError{Stage: StageRegister, Err: err, File: filename}
	}

	sid, err := p.sender.SendMedia(ctx, domain.MediaMessage{
		From:      p.from,
		To:        to,
		Caption:   fmt.Sprintf(captionFmt, prompt),
		MediaURLs: []string{p.ImageURL(filename)},
	})
	if err != nil {
		return domain.Reply{}, "", &StageError{Stage: StageDeliver, Err: err, File: filename}
	}

	p.logger.Info("image delivered", "to", to, "file", filename, "sid", sid)
	return domain.Reply{Text: successText}, metrics.OutcomeImage, nil
}

// ImageURL is the public address the messaging provider fetches the image from.
func (p *Pipeline) ImageURL(filename string) string {
	return p.baseURL + "/images/" + filename
}

func (p *Pipeline) logFailure(msg domain.InboundMessage, err error) {
	attrs := []any{"from", msg.From, "err", err}
	if se, ok := AsStageError(err); ok {
		metrics.PipelineError(se.Stage).Inc()
		attrs = append(attrs, "stage", se.Stage)
		if se.File != "" {
			// the file stays on disk until the janitor evicts it
			attrs = append(attrs, "orphaned_file", se.File)
		}
	}
	p.logger.Error("message processing failed", attrs...)
}
