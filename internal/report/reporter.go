package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/jimbolo/convtrack/internal/ledger"
	"github.com/jimbolo/convtrack/internal/logger"
	"github.com/jimbolo/convtrack/internal/retry"
	"github.com/jimbolo/convtrack/pkg/models"
)

// Reporter dispatches accepted events with bounded linear-backoff retry and
// records every successful dispatch in the ledger.
type Reporter struct {
	sink      models.SinkConfig
	sender    Sender
	policy    retry.Policy
	scheduler *retry.Scheduler
	ledger    ledger.Ledger
}

// NewReporter creates a reporter. The scheduler owns pending retries and is
// stopped by the caller on teardown.
func NewReporter(sink models.SinkConfig, sender Sender, scheduler *retry.Scheduler, l ledger.Ledger) *Reporter {
	return &Reporter{
		sink:      sink,
		sender:    sender,
		policy:    retry.MergePolicies(&sink.Retry, nil),
		scheduler: scheduler,
		ledger:    l,
	}
}

// Report dispatches the conversion for event. The first attempt runs before
// Report returns; failed attempts are retried in the background after
// delay*attempt. The returned error reflects only the first attempt.
func (r *Reporter) Report(ctx context.Context, event models.TrackingEvent) error {
	l := logger.L().With("event_id", event.ID, "source", event.Source, "sender", r.sender.Name())

	payload, err := BuildPayload(&event, r.sink)
	if errors.Is(err, ErrSinkNotConfigured) {
		l.Warn("Conversion sink id or label missing, conversion not reported")
		return err
	}

	op := func(opCtx context.Context, attempt int) error {
		event.RetryCount = attempt
		if err := r.sender.Send(opCtx, payload); err != nil {
			return err
		}
		rec := models.ConversionRecord{
			EventID:         event.ID,
			Source:          event.Source,
			Payload:         payload,
			ConfidenceScore: event.ConfidenceScore,
		}
		// The sink accepted the conversion; a ledger failure must not
		// trigger a second dispatch.
		rec, lerr := r.ledger.Append(context.WithoutCancel(opCtx), rec)
		if lerr != nil {
			l.Error("Failed to record conversion", "error", lerr)
			return nil
		}
		l.Info("Conversion reported", "record_id", rec.ID, "transaction_id", payload.TransactionID,
			"value", payload.Value, "currency", payload.Currency, "retry_count", attempt)
		return nil
	}
	giveUp := func(err error) {
		l.Error("Conversion dropped after exhausting retries", "transaction_id", payload.TransactionID, "error", err)
	}

	if err := r.scheduler.Run("report:"+event.ID, r.policy, op, giveUp); err != nil {
		return fmt.Errorf("conversion dispatch failed: %w", err)
	}
	return nil
}
