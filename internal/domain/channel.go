package domain

import "context"

// MediaSender delivers a media message through the messaging provider and
// returns the provider's delivery identifier.
type MediaSender interface {
	SendMedia(ctx context.Context, msg MediaMessage) (string, error)
}
