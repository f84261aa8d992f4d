package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublishing(t *testing.T) {
	body, err := json.Marshal(JobMessage{JobID: "abc"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"jobId":"abc"}`, string(body))

	a := newPublishing(body)
	b := newPublishing(body)
	assert.Equal(t, amqp.Persistent, a.DeliveryMode)
	assert.Equal(t, "application/json", a.ContentType)
	assert.Len(t, a.MessageId, 26)
	assert.NotEqual(t, a.MessageId, b.MessageId)
	assert.Empty(t, a.Expiration)
}

func TestRetryPublishing(t *testing.T) {
	msg := retryPublishing([]byte(`{"jobId":"abc"}`), 3, 1500*time.Millisecond)
	assert.Equal(t, "1500", msg.Expiration)
	assert.Equal(t, 3, attemptOf(msg.Headers))
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
}

func TestPublishJob_RedialsClosedConnection(t *testing.T) {
	dials := 0
	p := &Publisher{queue: "jobs"}
	p.open = func() (*amqp.Connection, *amqp.Channel, error) {
		dials++
		return nil, nil, errors.New("connection refused")
	}

	err := p.PublishJob(context.Background(), "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rabbitmq reconnect: connection refused")

	err = p.PublishJob(context.Background(), "abc")
	require.Error(t, err)
	assert.Equal(t, 2, dials, "every publish retries the dial while the broker is down")

	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.PublishJob(context.Background(), "abc"), amqp.ErrClosed)
	assert.Equal(t, 2, dials)
}
