package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/algoprep/algoprep-backend/internal/config"
	"github.com/algoprep/algoprep-backend/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ViolationWorker drains the violation queue and persists events in batches.
// Violations are counted live on the session connection; this path is the
// durable audit trail, so it batches aggressively and requeues on DB failure.
type ViolationWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewViolationWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "violation_worker").Logger(),
	}
}

func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")

	buffer := make([]*model.ViolationEvent, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlush = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistViolationsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue // Queue empty, loop back to check the flush timer
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var event model.ViolationEvent
		if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
			// Malformed JSON can never succeed on retry. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed violation event")
			continue
		}
		if !model.ValidViolationKind(event.Kind) {
			w.log.Error().Str("kind", string(event.Kind)).Msg("Discarding violation with unknown kind")
			continue
		}

		buffer = append(buffer, &event)
	}
}

// flushSafe attempts bulk insert, then row-by-row fallback, then requeue.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []*model.ViolationEvent) {
	if len(batch) == 0 {
		return
	}
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *ViolationWorker) bulkInsert(ctx context.Context, batch []*model.ViolationEvent) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, e := range batch {
		rows = append(rows, []interface{}{
			e.AttemptID, e.UserID, e.ExamID, string(e.Kind), e.Detail, e.RecordedAt,
		})
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"attempt_violations"},
		[]string{"attempt_id", "user_id", "exam_id", "kind", "detail", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *ViolationWorker) fallbackInsert(ctx context.Context, batch []*model.ViolationEvent) {
	requeueList := make([]*model.ViolationEvent, 0)

	for _, e := range batch {
		_, err := w.pool.Exec(ctx,
			`INSERT INTO attempt_violations (attempt_id, user_id, exam_id, kind, detail, recorded_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			e.AttemptID, e.UserID, e.ExamID, string(e.Kind), e.Detail, e.RecordedAt,
		)
		if err != nil {
			w.log.Error().Err(err).
				Str("attempt_id", e.AttemptID.String()).
				Msg("Insert failed, requeueing")
			requeueList = append(requeueList, e)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *ViolationWorker) requeue(ctx context.Context, items []*model.ViolationEvent) {
	pipe := w.rdb.Pipeline()
	for _, e := range items {
		data, _ := json.Marshal(e)
		pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue violations to Redis. Data loss occurred.")
	} else {
		w.log.Info().Int("count", len(items)).Msg("Requeued failed violations back to Redis")
		// Avoid thrashing if the DB is down hard
		time.Sleep(2 * time.Second)
	}
}

func (w *ViolationWorker) shutdown(buffer []*model.ViolationEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
