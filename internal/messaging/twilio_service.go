package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/twiliowhatsapp"
)

// TwilioService implements Service using the Twilio API. Inbound messages
// arrive through WebhookHandler; buttons become numbered options.
type TwilioService struct {
	inbound
	client   twiliowhatsapp.TwilioWhatsAppSender
	numbered *numberedOptions
}

// NewTwilioService creates a TwilioService over a real Twilio client or a MockClient.
func NewTwilioService(client twiliowhatsapp.TwilioWhatsAppSender) *TwilioService {
	s := &TwilioService{client: client, numbered: newNumberedOptions()}
	s.setup("TwilioService")
	return s
}

func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := CanonicalizePhone(strings.TrimPrefix(recipient, "whatsapp:"))
	if err == nil && canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, err
}

// Start is a no-op; Twilio pushes events to the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

func (s *TwilioService) Stop() error {
	s.stop()
	return nil
}

func (s *TwilioService) SendMessage(ctx context.Context, to string, msg models.OutboundMessage) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonical, s.numbered.render(canonical, msg)); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", canonical, err)
	}
	return nil
}

// WebhookHandler handles inbound Twilio webhook requests (form encoded) and
// emits them into Responses.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from, err := s.ValidateAndCanonicalizeRecipient(r.FormValue("From"))
	body := r.FormValue("Body")
	button := firstNonEmpty(r.FormValue("ButtonText"), r.FormValue("ButtonPayload"))
	if err != nil || (body == "" && button == "") {
		slog.Warn("Twilio webhook missing fields", "from", r.FormValue("From"), "body_length", len(body))
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	msg := s.numbered.message(r.FormValue("MessageSid"), from, body, time.Now())
	if button != "" {
		msg.Button = button
	}
	slog.Info("Inbound WhatsApp message from Twilio", "from", from, "sid", msg.ID)
	s.emit(msg)

	// Empty TwiML: replies go out through the REST API.
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "<Response></Response>")
}
