package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	err := mock.SendMessage(ctx, "573001234567", "Hola")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.SentMessages))
	}

	if mock.SentMessages[0].Body != "Hola" {
		t.Errorf("expected body %q, got %q", "Hola", mock.SentMessages[0].Body)
	}

	mock.Err = errors.New("rate limited")
	if err := mock.SendMessage(ctx, "573001234567", "otra"); err == nil {
		t.Error("expected configured error")
	}
	if len(mock.SentMessages) != 1 {
		t.Errorf("failed send must not be recorded, got %d messages", len(mock.SentMessages))
	}
}

func TestAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"573001234567", "whatsapp:+573001234567"},
		{"+573001234567", "whatsapp:+573001234567"},
		{" whatsapp:+14155238886 ", "whatsapp:+14155238886"},
	}
	for _, tt := range tests {
		if got := Address(tt.in); got != tt.want {
			t.Errorf("Address(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(WithFromWhats("+14155238886")); err == nil {
		t.Error("expected error without account credentials")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("secret")); err == nil {
		t.Error("expected error without sending number")
	}
	c, err := NewClient(WithAccountSID("AC123"), WithAuthToken("secret"), WithFromWhats("14155238886"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.fromWhats != "whatsapp:+14155238886" {
		t.Errorf("unexpected from address %q", c.fromWhats)
	}
}
