package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"pixelbot/internal/domain"
)

// messageCreator is the slice of the Twilio REST client the sender uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender implements domain.MediaSender with the Twilio Messages API.
type TwilioSender struct {
	api    messageCreator
	logger *slog.Logger
}

type TwilioSenderConfig struct {
	AccountSID string
	AuthToken  string
	Logger     *slog.Logger
}

func NewTwilioSender(cfg TwilioSenderConfig) (*TwilioSender, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("twilio: account SID and auth token are required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSender{api: client.Api, logger: cfg.Logger}, nil
}

// SendMedia creates one outbound message and returns its SID.
// The Twilio client has no context support, so ctx is only checked up front.
func (s *TwilioSender) SendMedia(ctx context.Context, msg domain.MediaMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(msg.To)
	params.SetFrom(msg.From)
	params.SetBody(msg.Caption)
	if len(msg.MediaURLs) > 0 {
		params.SetMediaUrl(msg.MediaURLs)
	}

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("twilio create message: %w", err)
	}

	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	s.logger.Debug("twilio message created", "to", msg.To, "sid", sid, "media", len(msg.MediaURLs))
	return sid, nil
}
