package amqp

import (
	"context"

	"github.com/rabbitmq/amqp091-go"

	"ledger/internal/log"
)

// Disposition is what Settle did with a delivery.
type Disposition int

const (
	Acked Disposition = iota
	Requeued
	DeadLettered
)

// maxDeliveries bounds how often a failing message is handed to a handler.
const maxDeliveries = 3

// deliveryAttempt returns which attempt d is, counting from 1. Quorum queues
// report prior deliveries in x-delivery-count; classic queues only flag a
// redelivery, which then counts as the last attempt.
func deliveryAttempt(d amqp091.Delivery) int {
	switch n := d.Headers["x-delivery-count"].(type) {
	case int64:
		return int(n) + 1
	case int32:
		return int(n) + 1
	case int:
		return n + 1
	}
	if d.Redelivered {
		return maxDeliveries
	}
	return 1
}

// Settle decodes d, runs handler and acknowledges the delivery. Malformed
// messages are dead-lettered at once. A failing handler gets the message
// again until it has seen it maxDeliveries times, then it is dead-lettered.
func Settle(ctx context.Context, logger *log.Logger, d amqp091.Delivery, handler func(context.Context, *LedgerEventMessage) error) Disposition {
	msg, err := LedgerEventMessageFromJSON(d.Body)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to unmarshal message", log.FieldError, err)
		nack(ctx, logger, d, false)
		return DeadLettered
	}

	if err := handler(ctx, msg); err != nil {
		attempt := deliveryAttempt(d)
		requeue := attempt < maxDeliveries
		logger.ErrorContext(ctx, "Failed to handle message",
			log.FieldError, err,
			log.FieldKind, msg.Kind,
			log.FieldUsername, msg.Username,
			"attempt", attempt,
			"requeue", requeue)
		nack(ctx, logger, d, requeue)
		if requeue {
			return Requeued
		}
		return DeadLettered
	}

	if err := d.Ack(false); err != nil {
		logger.ErrorContext(ctx, "Failed to ack message", log.FieldError, err)
	}
	return Acked
}

func nack(ctx context.Context, logger *log.Logger, d amqp091.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		logger.ErrorContext(ctx, "Failed to nack message", log.FieldError, err, "requeue", requeue)
	}
}
