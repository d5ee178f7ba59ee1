// Package whatsapp wraps the whatsmeow client for the WhatsApp Web transport.
//
// It logs the bot's number in (terminal QR, PNG QR file or numeric code) and
// sends plain text messages.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mdp/qrterminal/v3"
	qrcode "github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/avellano/avellano-bot/internal/store"
)

const (
	// DefaultSQLitePath is the default path for the whatsmeow device database.
	DefaultSQLitePath = "/var/lib/avellano/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users.
	JIDSuffix = "s.whatsapp.net"
	// qrPNGSize is the side of the PNG login QR in pixels.
	qrPNGSize = 256
)

// WhatsAppSender sends WhatsApp text messages (real client or mock).
type WhatsAppSender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow database connection string
	QRPath      string // where to write the login QR; a .png path gets an image
	NumericCode bool   // print the raw login code instead of a QR
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput writes the login QR code to path instead of stdout.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithNumericCode prints the login code as text instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// Client wraps the whatsmeow client.
type Client struct {
	waClient *whatsmeow.Client
}

// dbDriver picks the SQL driver for dsn and reports whether an SQLite DSN is
// missing the foreign-keys pragma whatsmeow recommends.
func dbDriver(dsn string) (driver string, missingForeignKeys bool) {
	if store.DetectDSNType(dsn) == "postgres" {
		return "postgres", false
	}
	return "sqlite3", !strings.Contains(dsn, "foreign_keys")
}

// NewClient opens the device store, logs in when needed and connects.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("WhatsApp NewClient options set", "DBDSN_set", cfg.DBDSN != "", "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)

	dsn := cfg.DBDSN
	if dsn == "" {
		dsn = DefaultSQLitePath
		slog.Debug("No WhatsApp database DSN provided, using default SQLite path", "default_path", dsn)
	}
	driver, missingFK := dbDriver(dsn)
	if missingFK {
		slog.Warn("SQLite database for WhatsApp does not appear to have foreign keys enabled; "+
			"consider adding '?_foreign_keys=on' to the DSN", "dsn_example", "file:"+dsn+"?_foreign_keys=on")
	}

	ctx := context.Background()
	container, err := sqlstore.New(ctx, driver, dsn, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		slog.Error("Failed to initialize WhatsApp DB store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("Failed to get first device from store", "error", err)
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))
	if waClient.Store.ID == nil {
		slog.Info("WhatsApp login required; starting QR code flow")
		qrChan, _ := waClient.GetQRChannel(ctx)
		if err := waClient.Connect(); err != nil {
			slog.Error("Failed to connect to WhatsApp during login", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
		}
		for evt := range qrChan {
			if evt.Event != "code" {
				slog.Info("WhatsApp login event", "event", evt.Event)
				continue
			}
			if err := writeLoginCode(cfg, evt.Code); err != nil {
				slog.Error("Failed to write WhatsApp login code", "error", err)
			}
		}
	} else if err := waClient.Connect(); err != nil {
		slog.Error("Failed to connect to WhatsApp server", "error", err)
		return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
	}
	slog.Info("WhatsApp client connected successfully")
	return &Client{waClient: waClient}, nil
}

// writeLoginCode renders one login code as configured: numeric text, a PNG
// QR image or a terminal QR.
func writeLoginCode(cfg Opts, code string) error {
	if cfg.QRPath != "" && !cfg.NumericCode && strings.HasSuffix(strings.ToLower(cfg.QRPath), ".png") {
		if err := qrcode.WriteFile(code, qrcode.Medium, qrPNGSize, cfg.QRPath); err != nil {
			return fmt.Errorf("failed to write QR image: %w", err)
		}
		slog.Info("WhatsApp login QR written", "path", cfg.QRPath)
		return nil
	}
	w := io.Writer(os.Stdout)
	if cfg.QRPath != "" {
		f, err := os.Create(cfg.QRPath)
		if err != nil {
			return fmt.Errorf("failed to create QR file: %w", err)
		}
		defer f.Close()
		w = f
	}
	renderLoginCode(w, code, cfg.NumericCode)
	return nil
}

func renderLoginCode(w io.Writer, code string, numeric bool) {
	if numeric {
		fmt.Fprintln(w, code)
		return
	}
	qrterminal.GenerateHalfBlock(code, qrterminal.L, w)
}

// SendMessage sends a text message to a phone number (digits only).
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if c.waClient == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if to == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}

	jid := types.NewJID(to, JIDSuffix)
	if _, err := c.waClient.SendMessage(ctx, jid, &waE2E.Message{Conversation: &body}); err != nil {
		slog.Error("Failed to send WhatsApp message", "error", err, "to", to)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	slog.Debug("WhatsApp message sent successfully", "to", to, "body_length", len(body))
	return nil
}

// GetClient returns the underlying whatsmeow client for event handling.
func (c *Client) GetClient() *whatsmeow.Client {
	return c.waClient
}

// Disconnect closes the websocket.
func (c *Client) Disconnect() {
	if c.waClient != nil {
		c.waClient.Disconnect()
	}
}

// SentMessage is a message captured by MockClient.
type SentMessage struct {
	To   string
	Body string
}

// MockClient records messages instead of sending them. Use it in tests in
// place of NewClient.
type MockClient struct {
	mu   sync.Mutex
	sent []SentMessage
	Err  error
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, SentMessage{To: to, Body: body})
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *MockClient) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}
