package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mailmirror/core/internal/auth/jwt"
	"github.com/mailmirror/core/internal/health"
	"github.com/mailmirror/core/internal/middleware"
	"github.com/mailmirror/core/internal/monitoring"
	"github.com/mailmirror/core/internal/orchestrator"
	"github.com/mailmirror/core/internal/store"
)

// RouterDependencies collects everything the HTTP surface needs.
type RouterDependencies struct {
	Store        store.Store
	Orchestrator *orchestrator.Orchestrator
	JWTManager   *jwt.Manager
	Health       *health.Checker
	Metrics      *monitoring.Metrics
	Logger       *zap.Logger
	ClientURL    string
}

// NewRouter builds the full gin.Engine: ambient middleware, health and
// metrics endpoints, and the authenticated /accounts, /emails, and
// /search routes §6 describes.
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.PanicMetrics(deps.Metrics, deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.HTTPMetrics(deps.Metrics))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.ErrorHandler(deps.Logger))
	router.Use(gincors.New(gincors.Config{
		AllowOrigins:     []string{deps.ClientURL},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health/live", gin.WrapH(deps.Health.LiveHandler()))
	router.GET("/health/ready", gin.WrapH(deps.Health.ReadyHandler()))
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))

	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, deps.Logger)
	accounts := NewAccountHandler(deps.Orchestrator, deps.Store)
	emails := NewEmailHandler(deps.Store, deps.Store)
	search := NewSearchHandler(deps.Store)
	jsonBody := middleware.ValidateContentType("application/json")

	v1 := router.Group("/v1", jwtAuth.RequireAuth())
	{
		v1.POST("/accounts", jsonBody, accounts.Onboard)
		v1.GET("/accounts", accounts.List)
		v1.GET("/accounts/:id", accounts.Get)
		v1.PATCH("/accounts/:id", jsonBody, accounts.Update)
		v1.DELETE("/accounts/:id", accounts.Delete)

		v1.GET("/emails", emails.List)
		v1.GET("/emails/:id", emails.Get)
		v1.PATCH("/emails/:id/read-status", jsonBody, emails.UpdateReadStatus)
		v1.DELETE("/emails/:id", emails.Delete)

		v1.GET("/search", search.Search)
	}

	return router
}
