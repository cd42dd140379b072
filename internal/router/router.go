package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runner/internal/config"
	"github.com/stemsi/exstem-runner/internal/handler"
	"github.com/stemsi/exstem-runner/internal/middleware"
	"github.com/stemsi/exstem-runner/internal/response"
	"github.com/stemsi/exstem-runner/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.ExamSessionHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	limiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID first so the access log and handlers share its logger.
	router.Use(response.RequestIDMiddleware(log))
	router.Use(middleware.AccessLog())
	router.Use(middleware.Brotli(middleware.DefaultBrotliOptions))

	router.GET("/health", handlers.System.Health)
	router.GET("/api/v1/system/status", handlers.System.Status)

	// ─── Student Group (JWT + Single Device) ───────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
		limiter.Middleware(),
		middleware.NoStore(),
	)
	{
		studentAPI.POST("/exams/:exam_id/session", handlers.Session.StartSession)
		studentAPI.GET("/exams/:exam_id/session", handlers.Session.GetSession)
		studentAPI.DELETE("/exams/:exam_id/session", handlers.Session.AbandonSession)
		studentAPI.POST("/exams/:exam_id/submit", handlers.Session.SubmitSession)
		studentAPI.GET("/exams/:exam_id/result", handlers.Session.GetResult)
	}

	// ─── WebSocket Group (token in query) ──────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		ws.GET("/student/exams/:exam_id/stream", handlers.WS.ExamWebSocketStream)
	}

	return router
}
