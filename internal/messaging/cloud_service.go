package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/avellano/avellano-bot/internal/models"
)

const (
	// DefaultGraphAPIVersion is the Graph API version used when none is configured.
	DefaultGraphAPIVersion = "v21.0"
	// DefaultGraphBaseURL is the Graph API host.
	DefaultGraphBaseURL = "https://graph.facebook.com"
	// MaxReplyButtons is the most reply buttons an interactive message can carry.
	MaxReplyButtons = 3
	// MaxButtonTitle is the longest button title, in runes.
	MaxButtonTitle = 20
)

// CloudOpts configures the WhatsApp Cloud API transport.
type CloudOpts struct {
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string
	APIVersion    string
	BaseURL       string
	HTTPClient    *http.Client
}

// CloudOption configures a CloudService.
type CloudOption func(*CloudOpts)

func WithAPIVersion(v string) CloudOption {
	return func(o *CloudOpts) { o.APIVersion = v }
}

// WithGraphBaseURL points the client at another host (tests).
func WithGraphBaseURL(url string) CloudOption {
	return func(o *CloudOpts) { o.BaseURL = url }
}

func WithHTTPClient(c *http.Client) CloudOption {
	return func(o *CloudOpts) { o.HTTPClient = c }
}

// CloudService implements Service over the Meta WhatsApp Cloud API. Inbound
// messages arrive through WebhookHandler.
type CloudService struct {
	inbound
	cfg      CloudOpts
	endpoint string
	client   *http.Client
	numbered *numberedOptions
}

// NewCloudService creates the Cloud API transport. The access token, phone
// number id and webhook verify token are required.
func NewCloudService(accessToken, phoneNumberID, verifyToken string, opts ...CloudOption) (*CloudService, error) {
	cfg := CloudOpts{
		AccessToken:   accessToken,
		PhoneNumberID: phoneNumberID,
		VerifyToken:   verifyToken,
		APIVersion:    DefaultGraphAPIVersion,
		BaseURL:       DefaultGraphBaseURL,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.AccessToken == "":
		return nil, fmt.Errorf("cloud API access token is required")
	case cfg.PhoneNumberID == "":
		return nil, fmt.Errorf("cloud API phone number id is required")
	case cfg.VerifyToken == "":
		return nil, fmt.Errorf("cloud API webhook verify token is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	s := &CloudService{
		cfg:      cfg,
		endpoint: fmt.Sprintf("%s/%s/%s/messages", cfg.BaseURL, cfg.APIVersion, cfg.PhoneNumberID),
		client:   cfg.HTTPClient,
		numbered: newNumberedOptions(),
	}
	s.setup("CloudService")
	return s, nil
}

func (s *CloudService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// Start is a no-op; the Cloud API pushes events to the webhook.
func (s *CloudService) Start(ctx context.Context) error {
	slog.Info("CloudService started", "phone_number_id", s.cfg.PhoneNumberID, "api_version", s.cfg.APIVersion)
	return nil
}

func (s *CloudService) Stop() error {
	s.stop()
	return nil
}

// SendMessage sends text, or an interactive reply-button message when msg has
// between one and three buttons. More buttons fall back to a numbered list.
func (s *CloudService) SendMessage(ctx context.Context, to string, msg models.OutboundMessage) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("CloudService SendMessage validation error", "error", err, "to", to)
		return err
	}
	if err := s.post(ctx, s.payload(canonical, msg)); err != nil {
		slog.Error("CloudService SendMessage failed", "error", err, "to", canonical)
		return fmt.Errorf("failed to send message to %s: %w", canonical, err)
	}
	slog.Debug("CloudService message sent", "to", canonical, "buttons", len(msg.Buttons))
	return nil
}

func (s *CloudService) payload(to string, msg models.OutboundMessage) map[string]interface{} {
	p := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
	}
	if len(msg.Buttons) == 0 || len(msg.Buttons) > MaxReplyButtons {
		p["type"] = "text"
		p["text"] = map[string]interface{}{"preview_url": false, "body": s.numbered.render(to, msg)}
		return p
	}
	buttons := make([]map[string]interface{}, 0, len(msg.Buttons))
	for _, label := range msg.Buttons {
		buttons = append(buttons, map[string]interface{}{
			"type":  "reply",
			"reply": map[string]string{"id": label, "title": truncateRunes(label, MaxButtonTitle)},
		})
	}
	p["type"] = "interactive"
	p["interactive"] = map[string]interface{}{
		"type":   "button",
		"body":   map[string]string{"text": msg.Text},
		"action": map[string]interface{}{"buttons": buttons},
	}
	return p
}

func (s *CloudService) post(ctx context.Context, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// cloudWebhook is the subset of the webhook notification the bot reads.
type cloudWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Messages []cloudMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type cloudMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply,omitempty"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply,omitempty"`
	} `json:"interactive,omitempty"`
	Button *struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button,omitempty"`
}

// toInbound converts a webhook message. ok is false for message types the
// bot does not handle (media, reactions, locations).
func (m cloudMessage) toInbound(numbered *numberedOptions) (models.InboundMessage, bool) {
	in := models.InboundMessage{ID: m.ID, From: m.From, Time: time.Now()}
	if sec, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil {
		in.Time = time.Unix(sec, 0)
	}
	switch m.Type {
	case "text":
		if m.Text == nil {
			return in, false
		}
		in.Text = m.Text.Body
		in.Button = numbered.resolve(m.From, in.Text)
	case "interactive":
		if m.Interactive == nil {
			return in, false
		}
		numbered.resolve(m.From, "")
		switch {
		case m.Interactive.ButtonReply != nil:
			in.Button = firstNonEmpty(m.Interactive.ButtonReply.ID, m.Interactive.ButtonReply.Title)
		case m.Interactive.ListReply != nil:
			in.Button = firstNonEmpty(m.Interactive.ListReply.ID, m.Interactive.ListReply.Title)
		default:
			return in, false
		}
	case "button":
		if m.Button == nil {
			return in, false
		}
		in.Button = firstNonEmpty(m.Button.Text, m.Button.Payload)
	default:
		return in, false
	}
	return in, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// WebhookHandler serves the Cloud API webhook: GET answers the subscription
// challenge, POST delivers message notifications.
func (s *CloudService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.verify(w, r)
	case http.MethodPost:
		s.receive(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *CloudService) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != s.cfg.VerifyToken {
		slog.Warn("CloudService webhook verification rejected", "mode", q.Get("hub.mode"))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	slog.Info("CloudService webhook verified")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, q.Get("hub.challenge"))
}

func (s *CloudService) receive(w http.ResponseWriter, r *http.Request) {
	var hook cloudWebhook
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&hook); err != nil {
		slog.Error("CloudService failed to decode webhook", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	for _, entry := range hook.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				in, ok := m.toInbound(s.numbered)
				if !ok {
					slog.Debug("CloudService ignoring message type", "type", m.Type, "from", m.From)
					continue
				}
				s.emit(in)
			}
		}
	}
	// Statuses and unknown fields are acknowledged so Meta stops retrying.
	w.WriteHeader(http.StatusOK)
}
