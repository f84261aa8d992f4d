package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// JobMessage is the only payload on the wire: the job row is the source of truth.
type JobMessage struct {
	JobID string `json:"jobId"`
}

const attemptHeader = "x-attempt"

func retryQueue(queue string) string      { return queue + ".retry" }
func deadLetterQueue(queue string) string { return queue + ".dlq" }

// declareTopology declares the three durable queues shared by the api and
// the worker:
//
//	main  --reject-->  dlq
//	retry --ttl------> main
func declareTopology(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(
		deadLetterQueue(queue),
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return err
	}

	// messages carry their own expiration; when it fires they go back to main
	if _, err := ch.QueueDeclare(
		retryQueue(queue),
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": queue,
		},
	); err != nil {
		return err
	}

	_, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": deadLetterQueue(queue),
		},
	)
	return err
}

// attemptOf reads the retry counter a message was republished with.
func attemptOf(h amqp.Table) int {
	switch v := h[attemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	case int8:
		return int(v)
	}
	return 0
}
