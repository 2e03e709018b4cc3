package amqp

import (
	"context"
	"errors"
	"fmt"

	applog "eiademand/internal/log"
	"eiademand/internal/report"
)

// ReportHandler processes one decoded report summary.
type ReportHandler func(ctx context.Context, msg *report.Message) error

type deliveryAction int

const (
	actionAck deliveryAction = iota
	actionRequeue
	actionDrop
)

// ErrPermanent marks a handler failure that a redelivery cannot fix.
var ErrPermanent = errors.New("permanent failure")

// ConsumeReports delivers report summaries from the queue to handler until
// ctx is done. Undecodable messages and permanent failures are dropped,
// other handler errors requeue the message.
func (c *Client) ConsumeReports(ctx context.Context, handler ReportHandler) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("start consuming: channel is not open")
	}

	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "Started consuming report summaries", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			switch c.dispatch(ctx, delivery.Body, handler) {
			case actionAck:
				delivery.Ack(false)
			case actionRequeue:
				delivery.Nack(false, true)
			case actionDrop:
				delivery.Nack(false, false)
			}
		}
	}
}

func (c *Client) dispatch(ctx context.Context, body []byte, handler ReportHandler) deliveryAction {
	msg, err := report.MessageFromJSON(body)
	if err != nil {
		applog.LogError(ctx, "Failed to unmarshal report message", err, applog.ComponentAMQP, "consume", applog.NewFields())
		return actionDrop
	}

	if err := handler(ctx, msg); err != nil {
		c.logger.ErrorContext(ctx, "Failed to handle report message",
			applog.FieldError, err,
			"id", msg.ID,
			applog.FieldDataset, msg.Dataset)
		if errors.Is(err, ErrPermanent) {
			return actionDrop
		}
		return actionRequeue
	}

	c.logger.DebugContext(ctx, "Processed report message", "id", msg.ID, applog.FieldDataset, msg.Dataset)
	return actionAck
}
