package models

import "time"

// InboundMessage is a message received from a WhatsApp user.
type InboundMessage struct {
	// ID is the provider message id, used for deduplication. May be empty.
	ID   string
	From string
	Text string
	// Button is the title or payload of a quick-reply button, if the user tapped one.
	Button string
	// FirstContact marks a synthetic welcome event for a brand-new sender.
	FirstContact bool
	Time         time.Time
}

// OutboundMessage is a message sent to a WhatsApp user, optionally with quick-reply buttons.
type OutboundMessage struct {
	Text    string   `json:"text"`
	Buttons []string `json:"buttons,omitempty"`
}

// Text builds a plain outbound message.
func Text(body string) OutboundMessage {
	return OutboundMessage{Text: body}
}

// WithButtons builds an outbound message with quick-reply buttons.
func WithButtons(body string, buttons ...string) OutboundMessage {
	return OutboundMessage{Text: body, Buttons: buttons}
}
