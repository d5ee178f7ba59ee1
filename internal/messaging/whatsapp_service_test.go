package messaging

import (
	"context"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/whatsapp"
)

func incoming(from, id string, msg *waE2E.Message) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Sender: types.NewJID(from, types.DefaultUserServer)},
			ID:            types.MessageID(id),
			Timestamp:     time.Unix(1717236000, 0),
		},
		Message: msg,
	}
}

func TestWhatsAppService_SendMessage(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := svc.SendMessage(context.Background(), "+57 300 123 4567", models.WithButtons("Menú principal", "Hacer pedido", "Recetas")); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	sent := mock.Sent()
	if len(sent) != 1 || sent[0].To != "573001234567" {
		t.Fatalf("unexpected sent messages %+v", sent)
	}
	if sent[0].Body != "Menú principal\n\n1. Hacer pedido\n2. Recetas" {
		t.Errorf("unexpected body %q", sent[0].Body)
	}
}

func TestWhatsAppService_HandleIncomingMessage(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	svc.SendMessage(context.Background(), "573001234567", models.WithButtons("¿Aceptas?", "Acepto", "No acepto"))

	svc.handleEvent(incoming("573001234567", "ABC1", &waE2E.Message{Conversation: proto.String("2")}))
	m := <-svc.Responses()
	if m.ID != "ABC1" || m.From != "573001234567" || m.Text != "2" || m.Button != "No acepto" {
		t.Errorf("unexpected inbound %+v", m)
	}

	ext := &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("hola")}}
	svc.handleEvent(incoming("573001234567", "ABC2", ext))
	if m := <-svc.Responses(); m.Text != "hola" || m.Button != "" {
		t.Errorf("unexpected inbound %+v", m)
	}

	// Non-text and own messages are ignored.
	svc.handleEvent(incoming("573001234567", "ABC3", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}))
	own := incoming("573001234567", "ABC4", &waE2E.Message{Conversation: proto.String("eco")})
	own.Info.IsFromMe = true
	svc.handleEvent(own)
	select {
	case m := <-svc.Responses():
		t.Errorf("expected no message, got %+v", m)
	default:
	}

	svc.Stop()
	if _, ok := <-svc.Responses(); ok {
		t.Error("expected closed responses channel after Stop")
	}
}
