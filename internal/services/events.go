package services

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/nebulasphere007-cell/MockZen/types"
)

const publishTimeout = 5 * time.Second

// Publisher sends raw payloads to a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// LedgerEvents publishes committed ledger entries as JSON.
type LedgerEvents struct {
	publisher Publisher
	topic     string
}

func NewLedgerEvents(publisher Publisher, topic string) *LedgerEvents {
	return &LedgerEvents{publisher: publisher, topic: topic}
}

func (e *LedgerEvents) PublishLedgerEntry(ctx context.Context, entry types.LedgerEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	_, err = e.publisher.Publish(ctx, e.topic, data, map[string]string{
		"account_id": entry.AccountID.String(),
		"reason":     entry.Reason,
		"delta":      strconv.FormatInt(entry.Delta, 10),
	})
	return err
}
