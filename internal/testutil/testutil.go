// Package testutil provides common test helpers for the Avellano bot packages.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/store"
)

// NewSQLiteStore opens a throwaway SQLite store under t.TempDir.
func NewSQLiteStore(t testing.TB) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(store.WithSQLiteDSN(filepath.Join(t.TempDir(), "avellano.db")))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// SeedCustomer upserts c and fails the test on error.
func SeedCustomer(t testing.TB, st store.CustomerRepo, c models.Customer) *models.Customer {
	t.Helper()
	if err := st.UpsertCustomer(context.Background(), &c); err != nil {
		t.Fatalf("failed to seed customer %s: %v", c.Phone, err)
	}
	return &c
}

// SentMessage is one message captured by RecordingSender.
type SentMessage struct {
	To  string
	Msg models.OutboundMessage
}

// RecordingSender captures outbound WhatsApp messages. Set Err to make every
// send fail, or FailFor to fail sends to specific recipients.
type RecordingSender struct {
	mu      sync.Mutex
	sent    []SentMessage
	Err     error
	FailFor map[string]error
}

// ErrSendFailed is a convenience error for failing sends.
var ErrSendFailed = errors.New("send failed")

func (r *RecordingSender) SendMessage(_ context.Context, to string, msg models.OutboundMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if err, ok := r.FailFor[to]; ok {
		return err
	}
	r.sent = append(r.sent, SentMessage{To: to, Msg: msg})
	return nil
}

// Sent returns a copy of every captured message.
func (r *RecordingSender) Sent() []SentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SentMessage(nil), r.sent...)
}

// To returns the messages sent to one recipient.
func (r *RecordingSender) To(phone string) []models.OutboundMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.OutboundMessage
	for _, s := range r.sent {
		if s.To == phone {
			out = append(out, s.Msg)
		}
	}
	return out
}

// Last returns the most recent message to phone.
func (r *RecordingSender) Last(phone string) (models.OutboundMessage, bool) {
	msgs := r.To(phone)
	if len(msgs) == 0 {
		return models.OutboundMessage{}, false
	}
	return msgs[len(msgs)-1], true
}

// Reset forgets captured messages.
func (r *RecordingSender) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

// AnyContains reports whether some message to phone contains substr.
func (r *RecordingSender) AnyContains(phone, substr string) bool {
	for _, m := range r.To(phone) {
		if strings.Contains(m.Text, substr) {
			return true
		}
	}
	return false
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t testing.TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// Envelope is the decoded form of every API response.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Total   *int            `json:"total"`
}

// DecodeEnvelope decodes the response body and checks the success flag.
func DecodeEnvelope(t testing.TB, rr *httptest.ResponseRecorder, wantSuccess bool) Envelope {
	t.Helper()
	var env Envelope
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if env.Success != wantSuccess {
		t.Errorf("expected success=%v, got %v (error %q)", wantSuccess, env.Success, env.Error)
	}
	return env
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t testing.TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	} else {
		reqBody = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t testing.TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t testing.TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
