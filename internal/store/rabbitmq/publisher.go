package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	// amqp channels are not safe for concurrent publishes
	mu     sync.Mutex
	closed bool

	open func() (*amqp.Connection, *amqp.Channel, error)
}

// NewPublisher dials the broker and declares the topology. When the broker
// later drops the connection, the next publish dials again.
func NewPublisher(url, queue string) (*Publisher, error) {
	p := &Publisher{queue: queue}
	p.open = func() (*amqp.Connection, *amqp.Channel, error) { return dialTopology(url, queue) }

	conn, ch, err := p.open()
	if err != nil {
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return p, nil
}

func dialTopology(url, queue string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if err := declareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// reconnect replaces a closed channel. The caller holds p.mu.
func (p *Publisher) reconnect() error {
	if p.closed {
		return amqp.ErrClosed
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	if p.conn != nil && !p.conn.IsClosed() {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil

	conn, ch, err := p.open()
	if err != nil {
		return fmt.Errorf("rabbitmq reconnect: %w", err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// PublishJob enqueues a job id on the main queue as a persistent message.
func (p *Publisher) PublishJob(ctx context.Context, jobID string) error {
	body, err := json.Marshal(JobMessage{JobID: jobID})
	if err != nil {
		return err
	}
	return p.publish(ctx, p.queue, newPublishing(body))
}

func (p *Publisher) publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.reconnect(); err != nil {
		return err
	}
	return p.ch.PublishWithContext(cctx,
		"",         // default exchange
		routingKey, // routing key = queue
		false,
		false,
		msg,
	)
}

func newPublishing(body []byte) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ulid.Make().String(),
		Body:         body,
		Timestamp:    time.Now(),
	}
}

// retryPublishing builds the message parked on the retry queue until its
// per-message TTL dead-letters it back to the main queue.
func retryPublishing(body []byte, attempt int, delay time.Duration) amqp.Publishing {
	msg := newPublishing(body)
	msg.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	msg.Headers = amqp.Table{attemptHeader: int32(attempt)}
	return msg
}
