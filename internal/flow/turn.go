package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/session"
)

// Turn is one inbound message being handled by a flow.
type Turn struct {
	Phone string
	// Text is the trimmed message text as typed.
	Text string
	// Input and Button are the normalized text and button payload.
	Input        string
	Button       string
	FirstContact bool
	Session      session.Values
	Consent      ConsentState

	flow string
	r    *Router
}

// normalize trims and lower-cases user input.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Is reports whether the text or the button equals one of words.
func (t *Turn) Is(words ...string) bool {
	for _, w := range words {
		w = normalize(w)
		if w == "" {
			continue
		}
		if t.Input == w || t.Button == w {
			return true
		}
	}
	return false
}

// Reply sends msgs in order and logs each to the conversation. It stops at
// the first send failure.
func (t *Turn) Reply(ctx context.Context, msgs ...models.OutboundMessage) error {
	for _, m := range msgs {
		if err := t.r.send(ctx, t.Phone, m); err != nil {
			return err
		}
	}
	return nil
}

// Set merges partial into the session.
func (t *Turn) Set(ctx context.Context, partial session.Values) error {
	if err := t.r.deps.Sessions.Merge(ctx, t.Phone, partial); err != nil {
		return err
	}
	if t.Session == nil {
		t.Session = session.Values{}
	}
	for k, v := range partial {
		if v == "" {
			delete(t.Session, k)
		} else {
			t.Session[k] = v
		}
	}
	return nil
}

// Capture routes the user's next message to flow's continuation. guard is
// set alongside; the continuation only runs while the guard is present.
func (t *Turn) Capture(ctx context.Context, flow, guard string, extra session.Values) error {
	partial := session.Values{session.KeyCapture: flow}
	if guard != "" {
		partial[guard] = "true"
	}
	for k, v := range extra {
		partial[k] = v
	}
	slog.Debug("Turn.Capture", "phone", t.Phone, "flow", flow, "guard", guard)
	return t.Set(ctx, partial)
}

// Release drops the capture and the given keys.
func (t *Turn) Release(ctx context.Context, keys ...string) error {
	partial := session.Values{session.KeyCapture: ""}
	for _, k := range keys {
		partial[k] = ""
	}
	return t.Set(ctx, partial)
}

type consentReply int

const (
	replyUnknown consentReply = iota
	replyAccept
	replyReject
)

var (
	acceptWords = []string{"acepto", "si", "sí", "yes", "accept"}
	rejectWords = []string{"no acepto", "no accept", "not accept", "don't accept", "dont accept", "rechazo"}
)

// classifyConsent checks rejection first: most reject phrases contain an
// accept word.
func classifyConsent(input, button string) consentReply {
	if input == "no" {
		return replyReject
	}
	for _, w := range rejectWords {
		if strings.Contains(input, w) || strings.Contains(button, w) {
			return replyReject
		}
	}
	for _, w := range acceptWords {
		if strings.Contains(input, w) {
			return replyAccept
		}
	}
	if strings.Contains(button, "acepto") {
		return replyAccept
	}
	return replyUnknown
}
