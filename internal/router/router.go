package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/algoprep/algoprep-backend/internal/config"
	"github.com/algoprep/algoprep-backend/internal/handler"
	"github.com/algoprep/algoprep-backend/internal/middleware"
	"github.com/algoprep/algoprep-backend/internal/response"
	"github.com/algoprep/algoprep-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth        *handler.AuthHandler
	Exam        *handler.ExamHandler
	Attempt     *handler.AttemptHandler
	Leaderboard *handler.LeaderboardHandler
	WS          *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Every response carries a request id in its metadata.
	router.Use(response.RequestIDMiddleware())

	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── Auth (public, rate limited) ───────────────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/login", handlers.Auth.Login)

		auth.POST("/logout", middleware.RequireAuth(authService), handlers.Auth.Logout)
		auth.GET("/me", middleware.RequireAuth(authService), handlers.Auth.Me)
	}

	// ─── Leaderboard (public, cacheable) ───────────────────────────────
	router.GET("/api/v1/leaderboard", middleware.CacheControl(30), handlers.Leaderboard.List)

	// ─── Catalog and sessions (JWT) ────────────────────────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.RequireAuth(authService))
	{
		api.GET("/exams", handlers.Exam.Catalog)
		api.GET("/exams/:exam_id", handlers.Exam.Get)

		api.GET("/attempts", handlers.Attempt.History)
		api.GET("/attempts/active", handlers.Attempt.ActiveExam)

		api.POST("/exams/:exam_id/attempts", handlers.Attempt.Start)
		api.GET("/exams/:exam_id/attempts/active", handlers.Attempt.State)
		api.PUT("/exams/:exam_id/attempts/active/questions/:question_id/draft", handlers.Attempt.SaveDraft)
		api.POST("/exams/:exam_id/attempts/active/questions/:question_id/submit", handlers.Attempt.Submit)
		api.POST("/exams/:exam_id/attempts/active/run", handlers.Attempt.Run)
		api.POST("/exams/:exam_id/attempts/active/finish", handlers.Attempt.Finish)
	}

	// ─── Instructor authoring (JWT + role) ─────────────────────────────
	instructor := router.Group("/api/v1/instructor")
	instructor.Use(middleware.RequireAuth(authService), middleware.RequireInstructor())
	{
		instructor.GET("/exams", handlers.Exam.ListMine)
		instructor.POST("/exams", handlers.Exam.Create)
		instructor.PUT("/exams/:exam_id", handlers.Exam.Update)
		instructor.GET("/exams/:exam_id/questions", handlers.Exam.ListQuestions)
		instructor.POST("/exams/:exam_id/questions", handlers.Exam.AddQuestion)
		instructor.POST("/exams/:exam_id/publish", handlers.Exam.Publish)
	}

	// ─── WebSocket session stream (query-token auth) ───────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/exams/:exam_id/stream", handlers.WS.ExamStream)
	}

	return router
}
