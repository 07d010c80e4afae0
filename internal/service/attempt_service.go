package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/algoprep/algoprep-backend/internal/config"
	"github.com/algoprep/algoprep-backend/internal/executor"
	"github.com/algoprep/algoprep-backend/internal/model"
	"github.com/algoprep/algoprep-backend/internal/repository"
	"github.com/algoprep/algoprep-backend/internal/selector"
)

// Domain errors.
var (
	ErrExamNotPublished   = errors.New("exam is not published")
	ErrNoActiveAttempt    = errors.New("no active attempt for this exam")
	ErrQuestionNotInSet   = errors.New("question is not part of this attempt")
	ErrAttemptGraceLocked = errors.New("attempt is locked pending forced submission")
)

// QuestionStatus describes a question's progress within an attempt.
type QuestionStatus string

const (
	QuestionUnanswered QuestionStatus = "unanswered"
	QuestionEdited     QuestionStatus = "edited"
	QuestionSubmitted  QuestionStatus = "submitted"
)

// QuestionView is one question as seen from inside a running attempt: the
// student-safe question plus the latest code the server knows about.
type QuestionView struct {
	model.QuestionForStudent
	Status QuestionStatus `json:"status"`
	Code   string         `json:"code"`
}

// AttemptState is the full resumable state of a running attempt. The remaining
// time is computed server-side from the persisted start instant, so reconnecting
// clients can never extend their window.
type AttemptState struct {
	Attempt          *model.ExamAttempt `json:"attempt"`
	ExamTitle        string             `json:"exam_title"`
	DurationMinutes  int                `json:"duration_minutes"`
	ViolationLimit   int                `json:"violation_limit"`
	RemainingSeconds int                `json:"remaining_seconds"`
	Questions        []QuestionView     `json:"questions"`
}

// SubmitOutcome records the result of one question's forced submission during
// finalization. Failures are captured per item, never aborting the finish.
type SubmitOutcome struct {
	QuestionID uuid.UUID `json:"question_id"`
	Submitted  bool      `json:"submitted"`
	Error      string    `json:"error,omitempty"`
}

// FinishResult is the outcome of finalizing an attempt.
type FinishResult struct {
	// Finalized is false when another finalizer (user submit, deadline sweep,
	// violation cutoff) already transitioned the attempt.
	Finalized bool            `json:"finalized"`
	Outcomes  []SubmitOutcome `json:"outcomes"`
}

// AttemptService is the exam session controller: it owns the attempt
// lifecycle from start through forced or voluntary finish, and everything the
// student does in between.
type AttemptService struct {
	examRepo       *repository.ExamRepository
	questionRepo   *repository.QuestionRepository
	attemptRepo    *repository.AttemptRepository
	submissionRepo *repository.SubmissionRepository
	selector       *selector.Selector
	exec           *executor.Client
	rdb            *redis.Client
	log            zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	attemptRepo *repository.AttemptRepository,
	submissionRepo *repository.SubmissionRepository,
	sel *selector.Selector,
	exec *executor.Client,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		examRepo:       examRepo,
		questionRepo:   questionRepo,
		attemptRepo:    attemptRepo,
		submissionRepo: submissionRepo,
		selector:       sel,
		exec:           exec,
		rdb:            rdb,
		log:            log.With().Str("component", "attempt_service").Logger(),
	}
}

// Start begins an attempt, or resumes the existing in-progress one. Two
// concurrent starts race on the partial unique index; the loser recovers by
// loading the winner's attempt, so both ends of the race see the same session.
func (s *AttemptService) Start(ctx context.Context, userID int, examID uuid.UUID) (*AttemptState, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotPublished
	}

	existing, err := s.attemptRepo.GetActive(ctx, examID, userID)
	if err == nil {
		s.log.Info().
			Str("attempt_id", existing.ID.String()).
			Int("user_id", userID).
			Msg("Resuming in-progress attempt")
		return s.buildState(ctx, exam, existing)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get active attempt: %w", err)
	}

	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	pool := make([]uuid.UUID, len(questions))
	for i, q := range questions {
		pool[i] = q.ID
	}
	selected := s.selector.Select(ctx, userID, examID, pool, exam.QuestionCount)

	attempt := &model.ExamAttempt{
		ExamID:      examID,
		UserID:      userID,
		Status:      model.AttemptStatusInProgress,
		QuestionIDs: selected,
	}
	err = s.attemptRepo.CreateActive(ctx, attempt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race against a concurrent start; adopt the winner.
		attempt, err = s.attemptRepo.GetActive(ctx, examID, userID)
		if err != nil {
			return nil, fmt.Errorf("recover concurrent start: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	} else {
		s.cacheSessionState(ctx, exam, attempt)
		s.log.Info().
			Str("attempt_id", attempt.ID.String()).
			Str("exam_id", examID.String()).
			Int("user_id", userID).
			Int("questions", len(attempt.QuestionIDs)).
			Msg("Attempt started")
	}

	return s.buildState(ctx, exam, attempt)
}

// cacheSessionState records which exam the user is currently sitting, so a
// reloading client can find its way back without knowing the exam id. The
// database row is authoritative; cache failures are logged, not fatal.
func (s *AttemptService) cacheSessionState(ctx context.Context, exam *model.Exam, attempt *model.ExamAttempt) {
	ttl := time.Duration(exam.DurationMinutes)*time.Minute + time.Hour
	err := s.rdb.Set(ctx, config.CacheKey.UserActiveExamKey(attempt.UserID), exam.ID.String(), ttl).Err()
	if err != nil {
		s.log.Warn().Err(err).
			Str("attempt_id", attempt.ID.String()).
			Msg("Session cache write failed")
	}
}

// ActiveExamID looks up the exam the user is currently sitting, if any.
func (s *AttemptService) ActiveExamID(ctx context.Context, userID int) (uuid.UUID, error) {
	val, err := s.rdb.Get(ctx, config.CacheKey.UserActiveExamKey(userID)).Result()
	if err == redis.Nil {
		return uuid.Nil, ErrNoActiveAttempt
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("active exam lookup: %w", err)
	}
	examID, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse cached exam id: %w", err)
	}
	return examID, nil
}

// State returns the resumable state of the user's active attempt.
func (s *AttemptService) State(ctx context.Context, userID int, examID uuid.UUID) (*AttemptState, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	attempt, err := s.getActive(ctx, userID, examID)
	if err != nil {
		return nil, err
	}
	return s.buildState(ctx, exam, attempt)
}

// Active returns the user's in-progress attempt on an exam, or
// ErrNoActiveAttempt.
func (s *AttemptService) Active(ctx context.Context, userID int, examID uuid.UUID) (*model.ExamAttempt, error) {
	return s.getActive(ctx, userID, examID)
}

func (s *AttemptService) getActive(ctx context.Context, userID int, examID uuid.UUID) (*model.ExamAttempt, error) {
	attempt, err := s.attemptRepo.GetActive(ctx, examID, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoActiveAttempt
	}
	if err != nil {
		return nil, fmt.Errorf("get active attempt: %w", err)
	}
	return attempt, nil
}

func (s *AttemptService) buildState(ctx context.Context, exam *model.Exam, attempt *model.ExamAttempt) (*AttemptState, error) {
	questions, err := s.questionRepo.ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	byID := make(map[uuid.UUID]*model.ExamQuestion, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	submissions, err := s.submissionRepo.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	drafts, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptDraftsKey(exam.ID.String(), attempt.UserID)).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Draft read failed")
		drafts = map[string]string{}
	}

	views := make([]QuestionView, 0, len(attempt.QuestionIDs))
	for _, qid := range attempt.QuestionIDs {
		q, ok := byID[qid]
		if !ok {
			// Question removed after the attempt started; skip rather than fail
			// the whole session.
			s.log.Warn().Str("question_id", qid.String()).Msg("Attempt references missing question")
			continue
		}

		view := QuestionView{
			QuestionForStudent: q.ForStudent(),
			Status:             QuestionUnanswered,
			Code:               q.StarterCode,
		}
		if sub, ok := submissions[qid]; ok && sub.Locked {
			view.Status = QuestionSubmitted
			view.Code = sub.Code
		} else if draft, ok := drafts[qid.String()]; ok {
			view.Status = QuestionEdited
			view.Code = draft
		}
		views = append(views, view)
	}

	remaining := attempt.Remaining(time.Now(), exam.DurationMinutes)
	return &AttemptState{
		Attempt:          attempt,
		ExamTitle:        exam.Title,
		DurationMinutes:  exam.DurationMinutes,
		ViolationLimit:   exam.ViolationLimit,
		RemainingSeconds: int(remaining.Seconds()),
		Questions:        views,
	}, nil
}

// SaveDraft persists in-progress code for a question without locking it.
// Drafts live in Redis keyed per (exam, user); they survive reconnects and
// feed the forced submission on finish.
func (s *AttemptService) SaveDraft(ctx context.Context, userID int, examID, questionID uuid.UUID, code string) error {
	attempt, err := s.getActive(ctx, userID, examID)
	if err != nil {
		return err
	}
	if !inSet(attempt.QuestionIDs, questionID) {
		return ErrQuestionNotInSet
	}
	if s.graceLocked(ctx, attempt.ID) {
		return ErrAttemptGraceLocked
	}

	key := config.CacheKey.AttemptDraftsKey(examID.String(), userID)
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, questionID.String(), code)
	pipe.Expire(ctx, key, 24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// SubmitQuestion locks in a question's final code. Once locked the question
// accepts no further writes; repository.ErrSubmissionLocked surfaces on retry.
func (s *AttemptService) SubmitQuestion(ctx context.Context, userID int, examID, questionID uuid.UUID, code string) (*model.ExamSubmission, error) {
	attempt, err := s.getActive(ctx, userID, examID)
	if err != nil {
		return nil, err
	}
	if !inSet(attempt.QuestionIDs, questionID) {
		return nil, ErrQuestionNotInSet
	}
	if s.graceLocked(ctx, attempt.ID) {
		return nil, ErrAttemptGraceLocked
	}

	sub := &model.ExamSubmission{
		AttemptID:  attempt.ID,
		QuestionID: questionID,
		Code:       code,
	}
	if err := s.submissionRepo.Upsert(ctx, sub, true); err != nil {
		return nil, err
	}

	if err := s.rdb.HDel(ctx, config.CacheKey.AttemptDraftsKey(examID.String(), userID), questionID.String()).Err(); err != nil {
		s.log.Warn().Err(err).Str("question_id", questionID.String()).Msg("Draft cleanup failed")
	}
	return sub, nil
}

// RunCode executes code against the gateway without scoring it, in the exam's
// language. Only allowed while an attempt is in progress.
func (s *AttemptService) RunCode(ctx context.Context, userID int, examID uuid.UUID, code, stdin string) (*executor.Result, error) {
	if _, err := s.getActive(ctx, userID, examID); err != nil {
		return nil, err
	}
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return s.exec.Execute(ctx, executor.Request{
		Language: exam.Language,
		Source:   code,
		Stdin:    stdin,
	})
}

// graceLocked reports whether the attempt is inside the violation grace
// window, during which no further writes are accepted. A cache read failure
// fails open; the grace timer force-submits the attempt regardless.
func (s *AttemptService) graceLocked(ctx context.Context, attemptID uuid.UUID) bool {
	n, err := s.rdb.Exists(ctx, config.CacheKey.AttemptGraceLockKey(attemptID.String())).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Grace lock read failed")
		return false
	}
	return n > 0
}

// FinishByUser finalizes the caller's active attempt as a voluntary submission.
// The violation counters are resolved from the durable audit trail inside
// Finish; the in-progress row never carries them.
func (s *AttemptService) FinishByUser(ctx context.Context, userID int, examID uuid.UUID) (*FinishResult, error) {
	attempt, err := s.getActive(ctx, userID, examID)
	if err != nil {
		return nil, err
	}
	return s.Finish(ctx, attempt, model.SubmitReasonUser, nil)
}

// ViolationCounts aggregates the attempt's per-kind violation counters from
// the persisted audit trail plus events still waiting on the persistence
// queue. Events the persistence worker has popped but not yet flushed are
// invisible to both sources; that window is bounded by its batch timeout.
func (s *AttemptService) ViolationCounts(ctx context.Context, attemptID uuid.UUID) (map[model.ViolationKind]int, error) {
	counts, err := s.attemptRepo.CountViolationsByKind(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("count violations: %w", err)
	}

	queued, err := s.rdb.LRange(ctx, config.WorkerKey.PersistViolationsQueue, 0, -1).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Violation queue scan failed")
		return counts, nil
	}
	for _, raw := range queued {
		var event model.ViolationEvent
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			continue
		}
		if event.AttemptID == attemptID && model.ValidViolationKind(event.Kind) {
			counts[event.Kind]++
		}
	}
	return counts, nil
}

// Finish force-submits every remaining draft concurrently, then transitions
// the attempt to its terminal status exactly once and queues it for grading.
// Nil violationCounts means the caller has no live monitor; the counters are
// resolved from the audit trail instead, so every finish path persists them.
// A submission failure for one question never blocks the others or the
// finalization itself; each per-question outcome is captured and returned.
func (s *AttemptService) Finish(
	ctx context.Context,
	attempt *model.ExamAttempt,
	reason model.SubmitReason,
	violationCounts map[model.ViolationKind]int,
) (*FinishResult, error) {
	exam, err := s.examRepo.GetByID(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	if violationCounts == nil {
		violationCounts, err = s.ViolationCounts(ctx, attempt.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Violation counter resolve failed")
			violationCounts = map[model.ViolationKind]int{}
		}
	}

	outcomes := s.flushDrafts(ctx, attempt)

	status := model.AttemptStatusSubmitted
	if reason != model.SubmitReasonUser {
		status = model.AttemptStatusAutoSubmitted
	}
	elapsed := int(attempt.Elapsed(time.Now(), exam.DurationMinutes).Minutes())

	finalized, err := s.attemptRepo.Finalize(ctx, attempt.ID, status, reason, elapsed, violationCounts)
	if err != nil {
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}
	if !finalized {
		s.log.Info().
			Str("attempt_id", attempt.ID.String()).
			Str("reason", string(reason)).
			Msg("Attempt already finalized, skipping")
		return &FinishResult{Finalized: false, Outcomes: outcomes}, nil
	}

	if err := s.rdb.LPush(ctx, config.WorkerKey.GradeAttemptsQueue, attempt.ID.String()).Err(); err != nil {
		// The deadline sweeper does not cover grading; surface loudly so the
		// attempt can be re-queued by hand.
		s.log.Error().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Grade enqueue failed")
	}
	s.clearSessionState(ctx, attempt)

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("reason", string(reason)).
		Int("forced_submissions", len(outcomes)).
		Msg("Attempt finalized")
	return &FinishResult{Finalized: true, Outcomes: outcomes}, nil
}

// flushDrafts submits every drafted-but-unsubmitted question concurrently.
func (s *AttemptService) flushDrafts(ctx context.Context, attempt *model.ExamAttempt) []SubmitOutcome {
	drafts, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptDraftsKey(attempt.ExamID.String(), attempt.UserID)).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Draft read failed during finish")
		return nil
	}

	type pending struct {
		questionID uuid.UUID
		code       string
	}
	var work []pending
	for field, code := range drafts {
		qid, err := uuid.Parse(field)
		if err != nil || !inSet(attempt.QuestionIDs, qid) {
			continue
		}
		work = append(work, pending{questionID: qid, code: code})
	}
	if len(work) == 0 {
		return nil
	}

	outcomes := make([]SubmitOutcome, len(work))
	var wg sync.WaitGroup
	for i, p := range work {
		wg.Add(1)
		go func(i int, p pending) {
			defer wg.Done()
			outcome := SubmitOutcome{QuestionID: p.questionID}
			err := s.submissionRepo.Upsert(ctx, &model.ExamSubmission{
				AttemptID:  attempt.ID,
				QuestionID: p.questionID,
				Code:       p.code,
			}, true)
			switch {
			case err == nil:
				outcome.Submitted = true
			case errors.Is(err, repository.ErrSubmissionLocked):
				// Already submitted explicitly; the draft was stale.
				outcome.Submitted = true
			default:
				outcome.Error = err.Error()
				s.log.Error().Err(err).
					Str("attempt_id", attempt.ID.String()).
					Str("question_id", p.questionID.String()).
					Msg("Forced submission failed")
			}
			outcomes[i] = outcome
		}(i, p)
	}
	wg.Wait()
	return outcomes
}

func (s *AttemptService) clearSessionState(ctx context.Context, attempt *model.ExamAttempt) {
	err := s.rdb.Del(ctx,
		config.CacheKey.AttemptDraftsKey(attempt.ExamID.String(), attempt.UserID),
		config.CacheKey.UserActiveExamKey(attempt.UserID),
	).Err()
	if err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Session cache cleanup failed")
	}
}

// History lists the user's finished attempts, newest first.
func (s *AttemptService) History(ctx context.Context, userID int, limit int) ([]model.ExamAttempt, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	attempts, err := s.attemptRepo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if attempts == nil {
		attempts = []model.ExamAttempt{}
	}
	return attempts, nil
}

func inSet(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
