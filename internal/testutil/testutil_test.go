package testutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/avellano/avellano-bot/internal/models"
)

func TestRecordingSender(t *testing.T) {
	s := &RecordingSender{FailFor: map[string]error{"573999": ErrSendFailed}}
	ctx := context.Background()
	if err := s.SendMessage(ctx, "573001", models.Text("hola")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.SendMessage(ctx, "573001", models.WithButtons("menu", "🛒 Pedido"))
	s.SendMessage(ctx, "573002", models.Text("otro"))
	if err := s.SendMessage(ctx, "573999", models.Text("x")); err != ErrSendFailed {
		t.Errorf("expected ErrSendFailed, got %v", err)
	}

	if got := len(s.To("573001")); got != 2 {
		t.Errorf("expected 2 messages to 573001, got %d", got)
	}
	last, ok := s.Last("573001")
	if !ok || len(last.Buttons) != 1 {
		t.Errorf("unexpected last message %+v", last)
	}
	if !s.AnyContains("573002", "otro") {
		t.Error("expected AnyContains to find message")
	}
	if len(s.Sent()) != 3 {
		t.Errorf("expected 3 recorded messages, got %d", len(s.Sent()))
	}
	s.Reset()
	if len(s.Sent()) != 0 {
		t.Error("expected Reset to clear messages")
	}
}

func TestNewSQLiteStoreAndSeed(t *testing.T) {
	st := NewSQLiteStore(t)
	SeedCustomer(t, st, models.Customer{Phone: "573001", Type: models.CustomerHome})
	c, err := st.GetCustomer(context.Background(), "573001")
	if err != nil {
		t.Fatalf("GetCustomer failed: %v", err)
	}
	if c.Type != models.CustomerHome {
		t.Errorf("unexpected type %s", c.Type)
	}
}

func TestDecodeEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.WriteHeader(http.StatusOK)
	rr.Body.WriteString(`{"success":true,"data":{"a":1},"total":3}`)
	env := DecodeEnvelope(t, rr, true)
	if env.Total == nil || *env.Total != 3 {
		t.Errorf("unexpected total %v", env.Total)
	}
	var data map[string]int
	MustUnmarshalJSON(t, env.Data, &data)
	if data["a"] != 1 {
		t.Errorf("unexpected data %v", data)
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	req := CreateHTTPRequest(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "a@b.co"})
	if req.Header.Get("Content-Type") != "application/json" {
		t.Error("expected JSON content type")
	}
	AssertHTTPStatus(t, http.StatusOK, http.StatusOK, "same status")
}
