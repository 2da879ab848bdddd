package services

import (
	"context"
	"time"

	"bridge/relayer/internal/models"
	"bridge/relayer/internal/stores"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// RetryEvent makes a stuck event eligible for a fresh submission on the next
// pass. Events with a transaction still in flight are refused, a fresh
// submission next to them could mirror the event twice. Abandoned events are
// final: the cursor may already have moved past them.
func RetryEvent(ctx context.Context, events stores.EventLog, id string) (*models.EventRecord, error) {
	rec, err := events.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch rec.Status {
	case models.StatusFailed, models.StatusReverted, models.StatusFailedToSend:
	default:
		return nil, errors.Wrapf(ErrInvalidTransition, "cannot retry %s event %s", rec.Status, id)
	}

	prev := rec.Status
	if prev != models.StatusFailedToSend {
		// the stored tx reverted, it must not be settled again
		rec.RawTx = ""
	}
	rec.Status = models.StatusFailedToSend
	rec.Reverts = 0
	rec.Attempts = 0
	rec.Error = "retry requested by operator"
	rec.UpdatedAt = time.Time{}
	if err := events.Put(ctx, rec); err != nil {
		return nil, err
	}
	log.Info().Str("event", id).Str("from", string(prev)).Msg("[Operator] [Retry] event reset")
	return rec, nil
}

// AbandonEvent gives up on an event. It stops holding the scan cursor.
func AbandonEvent(ctx context.Context, events stores.EventLog, id string, reason string) (*models.EventRecord, error) {
	rec, err := events.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == models.StatusConfirmed || rec.Status.InFlight() {
		return nil, errors.Wrapf(ErrInvalidTransition, "cannot abandon %s event %s", rec.Status, id)
	}

	prev := rec.Status
	rec.Status = models.StatusAbandoned
	if reason == "" {
		reason = "abandoned by operator"
	}
	rec.Error = reason
	rec.UpdatedAt = time.Now()
	if err := events.Put(ctx, rec); err != nil {
		return nil, err
	}
	log.Warn().Str("event", id).Str("from", string(prev)).Str("reason", reason).Msg("[Operator] [Abandon] event abandoned")
	return rec, nil
}
