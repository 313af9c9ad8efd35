package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	userdom "github.com/workhub/escrow-backend/internal/domain/user"
	httpH "github.com/workhub/escrow-backend/internal/http/handlers"
	httpMW "github.com/workhub/escrow-backend/internal/http/middleware"
	"github.com/workhub/escrow-backend/internal/observability"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log     *logger.Logger
	Metrics *observability.Metrics

	AuthHandler    *httpH.AuthHandler
	AuthMiddleware *httpMW.AuthMiddleware

	JobHandler        *httpH.JobHandler
	WorkHandler       *httpH.WorkHandler
	DisputeHandler    *httpH.DisputeHandler
	ReputationHandler *httpH.ReputationHandler
	OpsHandler        *httpH.OpsHandler

	HealthHandler *httpH.HealthHandler

	CORSOrigins string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(otelgin.Middleware(observability.TracerName))
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	r.Use(httpMW.Metrics(cfg.Metrics))
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Auth (public)
		if cfg.AuthHandler != nil {
			api.POST("/register", cfg.AuthHandler.Register)
			api.POST("/login", cfg.AuthHandler.Login)
			api.POST("/refresh", cfg.AuthHandler.Refresh)
		}
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Jobs
		if cfg.JobHandler != nil {
			protected.POST("/jobs", cfg.JobHandler.Create)
			protected.GET("/jobs", cfg.JobHandler.ListMine)
			protected.GET("/jobs/:id", cfg.JobHandler.Get)
			protected.POST("/jobs/:id/applications", cfg.JobHandler.Apply)
			protected.POST("/jobs/:id/fund", cfg.JobHandler.Fund)
			protected.POST("/jobs/:id/select", cfg.JobHandler.SelectApplicant)
			protected.POST("/jobs/:id/sign", cfg.JobHandler.Sign)
			protected.POST("/jobs/:id/reject-contract", cfg.JobHandler.RejectContract)
			protected.POST("/jobs/:id/cancel", cfg.JobHandler.Cancel)
			protected.POST("/jobs/:id/withdraw", cfg.JobHandler.Withdraw)
		}

		// Work
		if cfg.WorkHandler != nil {
			protected.POST("/jobs/:id/submissions", cfg.WorkHandler.Submit)
			protected.GET("/jobs/:id/submissions", cfg.WorkHandler.List)
			protected.POST("/jobs/:id/approve", cfg.WorkHandler.Approve)
			protected.POST("/jobs/:id/request-revision", cfg.WorkHandler.RequestRevision)
		}

		// Disputes
		if cfg.DisputeHandler != nil {
			protected.POST("/jobs/:id/disputes", cfg.DisputeHandler.Open)
			protected.GET("/jobs/:id/dispute", cfg.DisputeHandler.GetByJob)
			protected.GET("/disputes/:id", cfg.DisputeHandler.Get)
			protected.POST("/disputes/:id/rebuttal", cfg.DisputeHandler.SubmitRebuttal)
			protected.POST("/disputes/:id/settle", cfg.DisputeHandler.Settle)
		}
		if cfg.DisputeHandler != nil && cfg.AuthMiddleware != nil {
			arbiter := protected.Group("/")
			arbiter.Use(cfg.AuthMiddleware.RequireRole(userdom.RoleArbiter))
			arbiter.POST("/disputes/:id/rounds/:roundID/votes", cfg.DisputeHandler.CastVote)
		}

		// Reputation
		if cfg.ReputationHandler != nil {
			protected.GET("/users/:id/reputation", cfg.ReputationHandler.GetScore)
			protected.GET("/jobs/:id/reputation-events", cfg.ReputationHandler.ListEventsByJob)
		}

		// Ops
		if cfg.OpsHandler != nil {
			protected.GET("/ops/incidents", cfg.OpsHandler.ListOpenIncidents)
			protected.GET("/jobs/:id/intents", cfg.OpsHandler.ListJobIntents)
			protected.POST("/ops/sweep", cfg.OpsHandler.ForceSweep)
		}
	}

	return r
}
