package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/algoprep/algoprep-backend/internal/config"
	"github.com/algoprep/algoprep-backend/internal/middleware"
	"github.com/algoprep/algoprep-backend/internal/model"
	"github.com/algoprep/algoprep-backend/internal/monitor"
	"github.com/algoprep/algoprep-backend/internal/service"
	ws "github.com/algoprep/algoprep-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allow-list permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler owns the live exam session stream: violation monitoring,
// server-authoritative time ticks, and the forced submit on timeout or
// violation threshold. One Monitor lives per connection and dies with it.
type WSHandler struct {
	cfg            *config.Config
	examService    *service.ExamService
	attemptService *service.AttemptService
	rdb            *redis.Client
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	cfg *config.Config,
	examService *service.ExamService,
	attemptService *service.AttemptService,
	rdb *redis.Client,
	log zerolog.Logger,
) *WSHandler {
	return &WSHandler{
		cfg:            cfg,
		examService:    examService,
		attemptService: attemptService,
		rdb:            rdb,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(cfg.AllowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/exams/:exam_id/stream
// Upgrades to WebSocket for violation signals and remaining-time ticks.
func (h *WSHandler) ExamStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}

	rawConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(rawConn)
	defer conn.Close()

	ctx := context.Background()
	userID := claims.UserID

	attempt, err := h.attemptService.Active(ctx, userID, examID)
	if err != nil {
		conn.WriteError("no active attempt for this exam")
		return
	}
	exam, err := h.examService.GetByID(ctx, examID)
	if err != nil {
		conn.WriteError("exam lookup failed")
		return
	}

	wsLog := h.log.With().
		Int("user_id", userID).
		Str("attempt_id", attempt.ID.String()).
		Logger()
	wsLog.Info().Msg("Session stream connected")

	// Counters survive reconnects: the monitor starts from what the audit
	// trail already holds for this attempt, not from zero.
	seed, err := h.attemptService.ViolationCounts(ctx, attempt.ID)
	if err != nil {
		wsLog.Warn().Err(err).Msg("Violation counter seed failed, starting from zero")
	}

	session := &examSession{
		handler: h,
		conn:    conn,
		log:     wsLog,
		attempt: attempt,
		exam:    exam,
		done:    make(chan struct{}),
	}
	session.mon = monitor.New(monitor.Config{
		Limit:               violationLimit(exam, h.cfg),
		Coalescing:          h.cfg.ViolationCoalescing,
		Suppression:         h.cfg.SubmitSuppression,
		DevtoolsThresholdPx: h.cfg.DevtoolsThresholdPx,
		Seed:                seed,
		OnViolation:         session.onViolation,
		OnThreshold:         session.onThreshold,
	})
	session.mon.Start()
	defer session.teardown()

	go session.tickLoop(exam.DurationMinutes)
	session.readLoop()
}

func violationLimit(exam *model.Exam, cfg *config.Config) int {
	if exam.ViolationLimit > 0 {
		return exam.ViolationLimit
	}
	return cfg.ViolationLimit
}

// examSession is the per-connection state of one live attempt stream.
type examSession struct {
	handler *WSHandler
	conn    *ws.Conn
	log     zerolog.Logger
	attempt *model.ExamAttempt
	exam    *model.Exam
	mon     *monitor.Monitor

	teardownOnce sync.Once
	finishOnce   sync.Once
	done         chan struct{}
}

func (s *examSession) teardown() {
	s.teardownOnce.Do(func() {
		s.mon.Close()
		close(s.done)
	})
}

func (s *examSession) readLoop() {
	for {
		var msg ws.RequestPayload
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				s.log.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionSignal:
			s.handleSignal(&msg)
		case ws.ActionViewport:
			s.mon.ReportViewport(msg.OuterWidth, msg.OuterHeight, msg.InnerWidth, msg.InnerHeight)
		case ws.ActionDialog:
			s.mon.SetDialogOpen(msg.Open)
		case ws.ActionSubmitted:
			s.mon.NoteSubmission()
		case ws.ActionPing:
			s.conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			s.log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			s.conn.WriteError("unknown action: " + string(msg.Action))
		}
	}
}

func (s *examSession) handleSignal(msg *ws.RequestPayload) {
	if msg.Signal == "" {
		s.conn.WriteError("signal is required")
		return
	}
	if warning := s.mon.Observe(monitor.Signal(msg.Signal)); warning != nil {
		s.conn.WriteTyped(ws.WarningResponse{Event: ws.EventWarning, Warning: *warning})
	}
}

// onViolation runs for every counted violation: queue it for durable
// persistence. The warning itself is pushed by whichever path recorded it.
func (s *examSession) onViolation(kind model.ViolationKind, warning monitor.Warning) {
	event := model.ViolationEvent{
		AttemptID:  s.attempt.ID,
		UserID:     s.attempt.UserID,
		ExamID:     s.attempt.ExamID,
		Kind:       kind,
		RecordedAt: time.Now(),
	}
	payload, _ := json.Marshal(event)
	if err := s.handler.rdb.RPush(context.Background(), config.WorkerKey.PersistViolationsQueue, payload).Err(); err != nil {
		s.log.Error().Err(err).Str("kind", string(kind)).Msg("Violation enqueue failed")
	}

	// Violations recorded by the background devtools check have no signal
	// handler to surface them; push those from here.
	if kind == model.ViolationDevtools {
		s.conn.WriteTyped(ws.WarningResponse{Event: ws.EventWarning, Warning: warning})
	}
}

// onThreshold fires exactly once when the violation limit is reached. The
// attempt is grace-locked first so draft saves and submits are rejected for
// the rest of the window; the client gets the window to show the student what
// happened, then the attempt is force-submitted whether or not the connection
// is still up.
func (s *examSession) onThreshold(total int) {
	grace := s.handler.cfg.ViolationGrace
	s.log.Warn().Int("total", total).Dur("grace", grace).Msg("Violation threshold reached")

	lockKey := config.CacheKey.AttemptGraceLockKey(s.attempt.ID.String())
	if err := s.handler.rdb.Set(context.Background(), lockKey, "1", grace+30*time.Second).Err(); err != nil {
		s.log.Error().Err(err).Msg("Grace lock write failed")
	}

	s.conn.WriteTyped(ws.GraceResponse{
		Event:   ws.EventGrace,
		Seconds: int(grace.Seconds()),
		Total:   total,
	})
	time.AfterFunc(grace, func() {
		s.finish(model.SubmitReasonViolation)
	})
}

func (s *examSession) tickLoop(durationMinutes int) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			remaining := s.attempt.Remaining(time.Now(), durationMinutes)
			s.conn.WriteTyped(ws.TickResponse{
				Event:            ws.EventTick,
				RemainingSeconds: int(remaining.Seconds()),
			})
			if remaining <= 0 {
				s.finish(model.SubmitReasonTime)
				return
			}
		}
	}
}

// finish force-submits the attempt. Safe to race with a voluntary submit or
// the deadline sweeper; the attempt finalizes exactly once regardless.
func (s *examSession) finish(reason model.SubmitReason) {
	s.finishOnce.Do(func() {
		counts := s.mon.Counts()
		s.teardown()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		result, err := s.handler.attemptService.Finish(ctx, s.attempt, reason, counts)
		if err != nil {
			s.log.Error().Err(err).Str("reason", string(reason)).Msg("Forced submit failed")
			s.conn.WriteError("submit failed")
			return
		}
		if result.Finalized {
			s.log.Info().Str("reason", string(reason)).Msg("Attempt force-submitted")
		}
		s.conn.WriteTyped(ws.AutoSubmitResponse{Event: ws.EventAutoSubmit, Reason: string(reason)})
		s.conn.Close()
	})
}
