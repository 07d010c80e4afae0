package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/algoprep/algoprep-backend/internal/model"
	"github.com/algoprep/algoprep-backend/internal/service"
)

const deadlineSweepBatch = 100

// DeadlineWorker sweeps for in-progress attempts whose exam window has fully
// elapsed and force-submits them. The live session connection normally closes
// an attempt on time; the sweeper catches clients that disconnected and never
// came back, so the timer invariant holds even with no connection open.
type DeadlineWorker struct {
	attempts *service.AttemptService
	lister   ExpiredLister
	interval time.Duration
	log      zerolog.Logger
}

// ExpiredLister yields in-progress attempts past their deadline.
type ExpiredLister interface {
	ListExpired(ctx context.Context, limit int) ([]model.ExamAttempt, error)
}

func NewDeadlineWorker(attempts *service.AttemptService, lister ExpiredLister, interval time.Duration, log zerolog.Logger) *DeadlineWorker {
	return &DeadlineWorker{
		attempts: attempts,
		lister:   lister,
		interval: interval,
		log:      log.With().Str("component", "deadline_worker").Logger(),
	}
}

func (w *DeadlineWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("DeadlineWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("DeadlineWorker stopping")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *DeadlineWorker) sweep(ctx context.Context) {
	expired, err := w.lister.ListExpired(ctx, deadlineSweepBatch)
	if err != nil {
		w.log.Error().Err(err).Msg("Expired attempt query failed")
		return
	}
	if len(expired) == 0 {
		return
	}

	w.log.Info().Int("count", len(expired)).Msg("Sweeping expired attempts")
	for i := range expired {
		attempt := &expired[i]
		// Finalize is exactly-once; losing a race against a live connection's
		// own timeout submit is harmless. Nil counters make Finish resolve
		// them from the persisted audit trail.
		if _, err := w.attempts.Finish(ctx, attempt, model.SubmitReasonTime, nil); err != nil {
			w.log.Error().Err(err).
				Str("attempt_id", attempt.ID.String()).
				Msg("Forced time submit failed")
		}
	}
}
