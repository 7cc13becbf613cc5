package domain

import "time"

// InboundMessage is a single chat message delivered by the webhook.
type InboundMessage struct {
	From       string // sender address, e.g. "whatsapp:+15551234567"
	Body       string
	ReceivedAt time.Time
}

// MediaMessage is an outbound message carrying one or more media attachments.
type MediaMessage struct {
	From      string
	To        string
	Caption   string
	MediaURLs []string
}

// Reply is the synchronous acknowledgment returned to the webhook caller.
// A zero Reply renders as an empty response with no message.
type Reply struct {
	Text string
}

func (r Reply) Empty() bool { return r.Text == "" }
