// Package messaging connects the bot to a WhatsApp transport: it sends
// outbound messages (with quick-reply buttons where the provider supports
// them) and turns provider events into models.InboundMessage values.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avellano/avellano-bot/internal/models"
)

const (
	// DefaultChannelBufferSize defines the buffer size of the responses channel.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds how long an inbound message waits for room in the channel.
	DefaultChannelTimeout = 1 * time.Second
	// minPhoneDigits is the shortest accepted recipient.
	minPhoneDigits = 6
)

// ErrServiceStopped is returned by SendMessage after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

var phoneNumberRegex = regexp.MustCompile(`\D`)

// Service defines a pluggable WhatsApp transport.
type Service interface {
	// ValidateAndCanonicalizeRecipient strips everything but digits and
	// rejects numbers that are too short.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, msg models.OutboundMessage) error

	// Start begins any background processing (event handlers).
	Start(ctx context.Context) error

	// Stop stops background processing and closes Responses.
	Stop() error

	// Responses returns a channel of incoming user messages.
	Responses() <-chan models.InboundMessage
}

// CanonicalizePhone removes all non-numeric characters and checks the
// result has at least six digits.
func CanonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < minPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, minPhoneDigits)
	}
	return canonical, nil
}

// inbound holds the responses channel and stop state shared by the providers.
type inbound struct {
	name      string
	responses chan models.InboundMessage
	mu        sync.RWMutex
	stopped   bool
}

func (b *inbound) setup(name string) {
	b.name = name
	b.responses = make(chan models.InboundMessage, DefaultChannelBufferSize)
}

func (b *inbound) Responses() <-chan models.InboundMessage {
	return b.responses
}

func (b *inbound) isStopped() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stopped
}

// stop closes the responses channel once.
func (b *inbound) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	close(b.responses)
	slog.Info(b.name + " stopped and channels closed")
}

// emit pushes msg into the responses channel, dropping it when the service
// is stopped or the channel stays full for DefaultChannelTimeout.
func (b *inbound) emit(msg models.InboundMessage) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		slog.Warn(b.name+" dropping inbound message (service stopped)", "from", msg.From)
		return false
	}
	select {
	case b.responses <- msg:
		slog.Debug(b.name+" inbound message forwarded", "from", msg.From, "id", msg.ID)
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(b.name+" responses channel blocked, dropping message", "from", msg.From, "timeout", DefaultChannelTimeout)
		return false
	}
}

// numberedOptions renders buttons as a numbered list for transports without
// native buttons, and maps a numeric reply back to the button label. Options
// apply to the user's next message only.
type numberedOptions struct {
	mu      sync.Mutex
	pending map[string][]string
}

func newNumberedOptions() *numberedOptions {
	return &numberedOptions{pending: make(map[string][]string)}
}

// render returns the message text with the buttons appended as "1. label"
// lines and remembers them for to.
func (n *numberedOptions) render(to string, msg models.OutboundMessage) string {
	if len(msg.Buttons) == 0 {
		return msg.Text
	}
	var b strings.Builder
	b.WriteString(msg.Text)
	b.WriteString("\n")
	for i, label := range msg.Buttons {
		fmt.Fprintf(&b, "\n%d. %s", i+1, label)
	}
	n.mu.Lock()
	n.pending[to] = append([]string(nil), msg.Buttons...)
	n.mu.Unlock()
	return b.String()
}

// resolve consumes the options remembered for from. When text is the number
// of one of them, the label is returned as the button.
func (n *numberedOptions) resolve(from, text string) (button string) {
	n.mu.Lock()
	opts, ok := n.pending[from]
	delete(n.pending, from)
	n.mu.Unlock()
	if !ok {
		return ""
	}
	i, err := strconv.Atoi(strings.TrimRight(strings.TrimSpace(text), ".)"))
	if err != nil || i < 1 || i > len(opts) {
		return ""
	}
	return opts[i-1]
}

// message builds an inbound text message, resolving numbered replies.
func (n *numberedOptions) message(id, from, text string, at time.Time) models.InboundMessage {
	return models.InboundMessage{ID: id, From: from, Text: text, Button: n.resolve(from, text), Time: at}
}
