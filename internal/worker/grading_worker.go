package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/algoprep/algoprep-backend/internal/config"
	"github.com/algoprep/algoprep-backend/internal/grading"
	"github.com/algoprep/algoprep-backend/internal/model"
	"github.com/algoprep/algoprep-backend/internal/repository"
)

const (
	GradePollTimeout = 1 * time.Second

	// GradeMaxRetries bounds how often a failing attempt is requeued before it
	// is parked on the dead-letter list for manual inspection.
	GradeMaxRetries = 5
)

// GradingWorker drains the grading queue one attempt at a time. Grading runs
// submissions against the execution gateway, so there is nothing to gain from
// batching; an attempt that fails on storage errors is requeued up to
// GradeMaxRetries times, while an attempt that grades to zero everywhere
// still completes normally.
type GradingWorker struct {
	attemptRepo    *repository.AttemptRepository
	examRepo       *repository.ExamRepository
	submissionRepo *repository.SubmissionRepository
	questionRepo   *repository.QuestionRepository
	userRepo       *repository.UserRepository
	grader         *grading.Grader
	rdb            *redis.Client
	log            zerolog.Logger

	// failures tracks consecutive requeues per attempt id. Only the worker
	// goroutine touches it.
	failures map[string]int
}

func NewGradingWorker(
	attemptRepo *repository.AttemptRepository,
	examRepo *repository.ExamRepository,
	submissionRepo *repository.SubmissionRepository,
	questionRepo *repository.QuestionRepository,
	userRepo *repository.UserRepository,
	grader *grading.Grader,
	rdb *redis.Client,
	log zerolog.Logger,
) *GradingWorker {
	return &GradingWorker{
		attemptRepo:    attemptRepo,
		examRepo:       examRepo,
		submissionRepo: submissionRepo,
		questionRepo:   questionRepo,
		userRepo:       userRepo,
		grader:         grader,
		rdb:            rdb,
		log:            log.With().Str("component", "grading_worker").Logger(),
		failures:       make(map[string]int),
	}
}

func (w *GradingWorker) Start(ctx context.Context) {
	w.log.Info().Msg("GradingWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("GradingWorker stopping")
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, GradePollTimeout, config.WorkerKey.GradeAttemptsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue
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

		attemptID, err := uuid.Parse(result[1])
		if err != nil {
			w.log.Error().Str("data", result[1]).Msg("Discarding malformed attempt id")
			continue
		}

		if err := w.gradeAttempt(ctx, attemptID); err != nil {
			if w.noteFailure(attemptID.String()) {
				w.log.Error().Err(err).
					Str("attempt_id", attemptID.String()).
					Int("retries", GradeMaxRetries).
					Msg("Retry budget exhausted, parking attempt on dead-letter list")
				w.rdb.RPush(ctx, config.WorkerKey.GradeAttemptsDeadLetter, attemptID.String())
				continue
			}
			w.log.Error().Err(err).
				Str("attempt_id", attemptID.String()).
				Msg("Grading failed, requeueing attempt")
			w.rdb.RPush(ctx, config.WorkerKey.GradeAttemptsQueue, attemptID.String())
			time.Sleep(2 * time.Second)
			continue
		}
		delete(w.failures, attemptID.String())
	}
}

// noteFailure counts one more consecutive failure for an attempt and reports
// whether the retry budget is exhausted. Once exhausted the counter is reset
// so a manual requeue from the dead-letter list gets a fresh budget.
func (w *GradingWorker) noteFailure(attemptID string) bool {
	w.failures[attemptID]++
	if w.failures[attemptID] >= GradeMaxRetries {
		delete(w.failures, attemptID)
		return true
	}
	return false
}

// gradeAttempt scores every question of a finalized attempt and rolls the
// total up into the attempt row and the user's aggregates. Questions without
// a submission row contribute zero. A returned error means a storage failure
// and the whole attempt will be retried; grading itself never fails an
// attempt, it only degrades individual scores.
func (w *GradingWorker) gradeAttempt(ctx context.Context, attemptID uuid.UUID) error {
	attempt, err := w.attemptRepo.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			w.log.Error().Str("attempt_id", attemptID.String()).Msg("Discarding grade job for unknown attempt")
			return nil
		}
		return err
	}

	switch attempt.Status {
	case model.AttemptStatusSubmitted, model.AttemptStatusAutoSubmitted:
	case model.AttemptStatusGraded:
		w.log.Info().Str("attempt_id", attemptID.String()).Msg("Attempt already graded, skipping")
		return nil
	default:
		w.log.Error().
			Str("attempt_id", attemptID.String()).
			Str("status", string(attempt.Status)).
			Msg("Discarding grade job for non-finalized attempt")
		return nil
	}

	exam, err := w.examRepo.GetByID(ctx, attempt.ExamID)
	if err != nil {
		return err
	}

	questions, err := w.questionRepo.ListByExam(ctx, attempt.ExamID)
	if err != nil {
		return err
	}
	byID := make(map[uuid.UUID]*model.ExamQuestion, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	submissions, err := w.submissionRepo.ListByAttempt(ctx, attemptID)
	if err != nil {
		return err
	}

	total := 0
	for _, qid := range attempt.QuestionIDs {
		q, ok := byID[qid]
		if !ok {
			w.log.Warn().Str("question_id", qid.String()).Msg("Skipping missing question during grading")
			continue
		}
		sub, ok := submissions[qid]
		if !ok {
			// Never touched; zero marks, nothing to record.
			continue
		}

		breakdown := w.grader.Grade(ctx, q, sub.Code, exam.Language)
		if err := w.submissionRepo.SetGrade(ctx, sub.ID, breakdown); err != nil {
			return err
		}
		total += breakdown.Score
	}

	if err := w.attemptRepo.SetGraded(ctx, attemptID, float64(total)); err != nil {
		return err
	}
	if err := w.userRepo.ApplyGradedAttempt(ctx, attempt.UserID, float64(total)); err != nil {
		return err
	}

	w.log.Info().
		Str("attempt_id", attemptID.String()).
		Int("user_id", attempt.UserID).
		Int("final_score", total).
		Msg("Attempt graded")
	return nil
}
