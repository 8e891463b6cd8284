package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
)

// SagaResumer continues sagas left in a non-terminal state.
type SagaResumer interface {
	Resume(ctx context.Context, orderID string) error
}

// Processor handles reconciliation queue messages: it resumes crashed
// sagas and surfaces compensation failures to operators. Compensation
// failures are deliberately never auto-retried here; the message is the
// durable record an operator works from.
type Processor struct {
	log   *slog.Logger
	sagas SagaResumer
}

// NewProcessor creates a worker processor.
func NewProcessor(log *slog.Logger, sagas SagaResumer) *Processor {
	return &Processor{log: log, sagas: sagas}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: Lambda will retry. If failed too many times, message goes to DLQ.
			p.log.Error("worker error", "message_id", rec.MessageId, "err", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg ReconciliationMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	switch msg.Kind {
	case KindResume:
		p.log.Info("resuming saga", "order_id", msg.OrderID)
		if err := p.sagas.Resume(ctx, msg.OrderID); err != nil {
			return fmt.Errorf("resume saga for order %s: %w", msg.OrderID, err)
		}
		return nil

	case KindCompensationFailed:
		// Requires manual intervention; log loudly and swallow so the
		// queue does not loop the alert forever.
		p.log.Error("saga compensation failed, manual reconciliation required",
			"order_id", msg.OrderID, "saga_id", msg.SagaID,
			"step", msg.Step, "detail", msg.Error)
		return nil

	default:
		p.log.Warn("unknown reconciliation message kind", "kind", msg.Kind, "order_id", msg.OrderID)
		return nil
	}
}
