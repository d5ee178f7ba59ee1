package store

import (
	"time"
)

// DedupRecord is one inbound provider message id seen by the bot.
type DedupRecord struct {
	MessageID   string     `json:"message_id"`
	Recipient   string     `json:"recipient"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo guards against processing a redelivered webhook twice.
type DedupRepo interface {
	// RecordInbound inserts the message id. Returns false if it was already recorded.
	RecordInbound(messageID, from string) (bool, error)

	// MarkProcessed sets the processed_at timestamp for a message.
	MarkProcessed(messageID string) error

	// PruneInbound deletes records received before the cutoff.
	PruneInbound(before time.Time) (int, error)
}
