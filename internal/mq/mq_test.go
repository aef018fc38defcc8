package mq

import (
	"context"
	"testing"
	"time"

	"github.com/nebulasphere007-cell/MockZen/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_DefaultsToDiscard(t *testing.T) {
	backend, err := Open(context.Background(), config.MQConfig{})
	require.NoError(t, err)
	assert.IsType(t, Discard{}, backend)

	id, err := backend.Publish(context.Background(), "ledger-events", []byte(`{}`), nil)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.NoError(t, backend.Close())
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.MQConfig{Backend: "kafka"})
	assert.ErrorContains(t, err, "unknown mq backend")
}

func TestOpen_RequiresBackendSettings(t *testing.T) {
	_, err := Open(context.Background(), config.MQConfig{Backend: "rabbitmq"})
	assert.ErrorContains(t, err, "rabbitmq url is required")

	_, err = Open(context.Background(), config.MQConfig{Backend: "pubsub"})
	assert.ErrorContains(t, err, "pubsub project id is required")
}

func TestDiscard_SubscribeReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := Discard{}.Subscribe(ctx, "ledger-events", func(context.Context, Message) error {
		t.Fatal("no messages expected")
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHeadersToAttributes(t *testing.T) {
	assert.Nil(t, headersToAttributes(nil))

	attrs := headersToAttributes(amqp.Table{
		"account_id": "abc",
		"raw":        []byte("bytes"),
		"delta":      int64(-3),
	})
	assert.Equal(t, map[string]string{"account_id": "abc", "raw": "bytes", "delta": "-3"}, attrs)
}
