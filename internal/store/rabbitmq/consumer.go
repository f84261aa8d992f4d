package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

var ErrDeliveriesClosed = errors.New("rabbitmq: delivery channel closed")

// Handler processes one job id. A nil error acks the message; an error means
// the handler could not do its own bookkeeping and the message is retried.
type Handler func(ctx context.Context, jobID string) error

// RetryPolicy bounds queue-level redelivery of messages whose handler failed.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Delay is the parking time before retry number attempt+1: BaseDelay * 2^attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

type decision int

const (
	decisionAck decision = iota
	decisionRetry
	decisionDeadLetter
)

func decide(err error, attempt int, p RetryPolicy) decision {
	if err == nil {
		return decisionAck
	}
	if attempt < p.MaxRetries {
		return decisionRetry
	}
	return decisionDeadLetter
}

type Consumer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	policy RetryPolicy
	log    zerolog.Logger

	republish func(ctx context.Context, routingKey string, msg amqp.Publishing) error
	consume   func() (<-chan amqp.Delivery, error)
}

// NewConsumer opens a dedicated channel with prefetch 1: the broker hands
// this consumer exactly one unacked message at a time.
func NewConsumer(url, queue string, policy RetryPolicy, log zerolog.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := declareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	c := &Consumer{
		conn:   conn,
		ch:     ch,
		queue:  queue,
		policy: policy,
		log:    log.With().Str("component", "consumer").Str("queue", queue).Logger(),
	}
	c.republish = func(ctx context.Context, routingKey string, msg amqp.Publishing) error {
		return ch.PublishWithContext(ctx, "", routingKey, false, false, msg)
	}
	c.consume = func() (<-chan amqp.Delivery, error) {
		return ch.Consume(queue, "", false, false, false, false, nil)
	}
	return c, nil
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Run consumes until ctx is cancelled or the broker closes the channel.
// Messages are handled strictly one after another. A nil return means ctx
// ended; ErrDeliveriesClosed means the broker went away and the process
// should exit non-zero so its supervisor restarts it.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	msgs, err := c.consume()
	if err != nil {
		return err
	}

	c.log.Info().Int("max_retries", c.policy.MaxRetries).Msg("consumer started")
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("consumer shutting down")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.handle(ctx, d, h)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, h Handler) {
	var m JobMessage
	if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
		c.log.Error().Err(err).Str("message_id", d.MessageId).Msg("bad message, dead-lettering")
		_ = d.Nack(false, false)
		return
	}

	// once dequeued, a job runs to a terminal outcome even during shutdown
	jobCtx := context.WithoutCancel(ctx)

	attempt := attemptOf(d.Headers)
	err := h(jobCtx, m.JobID)
	lg := c.log.With().Str("job_id", m.JobID).Int("attempt", attempt).Logger()

	switch decide(err, attempt, c.policy) {
	case decisionAck:
		if err := d.Ack(false); err != nil {
			lg.Error().Err(err).Msg("ack failed")
		}

	case decisionRetry:
		delay := c.policy.Delay(attempt)
		if pubErr := c.republish(jobCtx, retryQueue(c.queue), retryPublishing(d.Body, attempt+1, delay)); pubErr != nil {
			lg.Error().Err(pubErr).AnErr("cause", err).Msg("retry publish failed, requeueing")
			_ = d.Nack(false, true)
			return
		}
		lg.Warn().Err(err).Dur("delay", delay).Msg("job handler failed, scheduled retry")
		_ = d.Ack(false)

	case decisionDeadLetter:
		lg.Error().Err(err).Msg("retries exhausted, dead-lettering")
		_ = d.Nack(false, false)
	}
}
