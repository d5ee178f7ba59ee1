package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/whatsapp"
)

// WhatsAppService implements Service using the whatsmeow-based WhatsApp Web
// client. WhatsApp Web has no reply buttons, so buttons become numbered options.
type WhatsAppService struct {
	inbound
	client    whatsapp.WhatsAppSender
	waClient  *whatsapp.Client
	numbered  *numberedOptions
	handlerID uint32
	once      sync.Once
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given WhatsAppSender.
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	s := &WhatsAppService{client: client, numbered: newNumberedOptions()}
	s.setup("WhatsAppService")
	if waClient, ok := client.(*whatsapp.Client); ok {
		s.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}
	return s
}

func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// Start registers the whatsmeow event handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
		return nil
	}
	s.once.Do(func() {
		s.handlerID = s.waClient.GetClient().AddEventHandler(s.handleEvent)
		slog.Debug("WhatsAppService event handler registered")
	})
	return nil
}

// Stop removes the event handler and closes Responses.
func (s *WhatsAppService) Stop() error {
	if s.waClient != nil && s.waClient.GetClient() != nil && s.handlerID != 0 {
		s.waClient.GetClient().RemoveEventHandler(s.handlerID)
	}
	s.stop()
	return nil
}

func (s *WhatsAppService) SendMessage(ctx context.Context, to string, msg models.OutboundMessage) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendMessage validation error", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonical, s.numbered.render(canonical, msg)); err != nil {
		slog.Error("WhatsAppService SendMessage error", "error", err, "to", canonical)
		return fmt.Errorf("failed to send message to %s: %w", canonical, err)
	}
	slog.Debug("WhatsAppService message sent", "to", canonical)
	return nil
}

func (s *WhatsAppService) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		s.handleIncomingMessage(v)
	case *events.Connected:
		slog.Info("WhatsAppService connected")
	case *events.Disconnected:
		slog.Warn("WhatsAppService disconnected")
	}
}

// handleIncomingMessage forwards text messages from users. Group chats,
// our own messages and non-text messages are ignored.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}
	var text string
	switch {
	case evt.Message.Conversation != nil:
		text = evt.Message.GetConversation()
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		text = evt.Message.ExtendedTextMessage.GetText()
	default:
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}
	s.emit(s.numbered.message(string(evt.Info.ID), evt.Info.Sender.User, text, evt.Info.Timestamp))
}
