package main

import (
	"context"
	"fmt"
	"os"
	"time"

	dataagg "github.com/workhub/escrow-backend/internal/data/aggregates"
	"github.com/workhub/escrow-backend/internal/data/db"
	disputesrepo "github.com/workhub/escrow-backend/internal/data/repos/disputes"
	jobsrepo "github.com/workhub/escrow-backend/internal/data/repos/jobs"
	ledgerrepo "github.com/workhub/escrow-backend/internal/data/repos/ledger"
	reputationrepo "github.com/workhub/escrow-backend/internal/data/repos/reputation"
	userrepo "github.com/workhub/escrow-backend/internal/data/repos/user"
	httpserver "github.com/workhub/escrow-backend/internal/http"
	httpH "github.com/workhub/escrow-backend/internal/http/handlers"
	httpMW "github.com/workhub/escrow-backend/internal/http/middleware"
	"github.com/workhub/escrow-backend/internal/observability"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
	"github.com/workhub/escrow-backend/internal/platform/ledger"
	"github.com/workhub/escrow-backend/internal/services"
	"github.com/workhub/escrow-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
	refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)
	committeeBeacon := utils.GetEnv("COMMITTEE_BEACON", "workhub-committee-v1", log)
	corsOrigins := utils.GetEnv("CORS_ORIGINS", "", log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Tracing
	if shutdown := observability.InitTracing(context.Background(), log, observability.TracingConfig{
		ServiceName: observability.TracerName,
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "", log),
	}); shutdown != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				log.Warn("otel shutdown failed", "error", err)
			}
		}()
	}

	// Metrics
	metrics := observability.Init(log)
	if metrics != nil {
		metricsAddr := utils.GetEnv("METRICS_ADDR", ":9091", log)
		metrics.StartServer(context.Background(), log, metricsAddr)
		metrics.StartPostgresCollector(context.Background(), log, thePG)
		metrics.StartEscrowCollector(context.Background(), log, thePG)
		if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
			metrics.StartRedisCollector(context.Background(), log, redisAddr)
		}
	}

	// Repos
	log.Info("Setting up repos from main...")
	users := userrepo.NewUserRepo(thePG, log)
	jobs := jobsrepo.NewJobRepo(thePG, log)
	applications := jobsrepo.NewApplicationRepo(thePG, log)
	terms := jobsrepo.NewContractTermRepo(thePG, log)
	contracts := jobsrepo.NewJobContractRepo(thePG, log)
	submissions := jobsrepo.NewSubmissionRepo(thePG, log)
	history := jobsrepo.NewHistoryRepo(thePG, log)
	disputes := disputesrepo.NewDisputeRepo(thePG, log)
	rounds := disputesrepo.NewRoundRepo(thePG, log)
	votes := disputesrepo.NewVoteRepo(thePG, log)
	scores := reputationrepo.NewScoreRepo(thePG, log)
	intents := ledgerrepo.NewIntentRepo(thePG, log)
	incidents := ledgerrepo.NewIncidentRepo(thePG, log)

	// Ledger gateway
	gateway, err := ledger.NewFromEnv(log)
	if err != nil {
		log.Warn("Ledger gateway unavailable, using in-memory fake", "error", err)
		gateway = ledger.NewFake()
	}

	// Event bus
	var bus services.EventBus
	bus, err = services.NewRedisEventBus(log)
	if err != nil {
		log.Warn("Redis event bus unavailable, events disabled", "error", err)
		bus = services.NoopEventBus{}
	}

	// Aggregates
	log.Info("Setting up aggregates from main...")
	base := dataagg.BaseDeps{
		DB:    thePG,
		Log:   log,
		Hooks: dataagg.NewObservabilityHooks(metrics),
	}
	windows := dataagg.LifecycleWindows{
		Application:          utils.GetEnvAsDuration("APPLICATION_WINDOW", 10*time.Minute, log),
		Sign:                 utils.GetEnvAsDuration("SIGN_WINDOW", 90*time.Second, log),
		Submission:           utils.GetEnvAsDuration("SUBMISSION_WINDOW", 10*time.Minute, log),
		Review:               utils.GetEnvAsDuration("REVIEW_WINDOW", 5*time.Minute, log),
		CancelAfterRefundBps: utils.GetEnvAsInt("CANCEL_AFTER_REFUND_BPS", 6000, log),
		WithdrawPenaltyBps:   utils.GetEnvAsInt("WITHDRAW_PENALTY_BPS", 1200, log),
	}
	disputeWindows := dataagg.DisputeWindows{
		Evidence: utils.GetEnvAsDuration("EVIDENCE_WINDOW", 3*time.Minute, log),
		Vote:     utils.GetEnvAsDuration("VOTE_WINDOW", 3*time.Minute, log),
	}
	jobAgg := dataagg.NewJobAggregate(dataagg.JobAggregateDeps{
		Base:         base,
		Jobs:         jobs,
		Applications: applications,
		Terms:        terms,
		Contracts:    contracts,
		Submissions:  submissions,
		History:      history,
		Reputation:   scores,
		Users:        users,
		Intents:      intents,
		Incidents:    incidents,
		Gateway:      gateway,
		Windows:      windows,
	})
	disputeAgg := dataagg.NewDisputeAggregate(dataagg.DisputeAggregateDeps{
		Base:       base,
		Disputes:   disputes,
		Rounds:     rounds,
		Votes:      votes,
		Jobs:       jobs,
		History:    history,
		Reputation: scores,
		Users:      users,
		Intents:    intents,
		Incidents:  incidents,
		Gateway:    gateway,
		Windows:    disputeWindows,
	})

	// Services
	log.Info("Setting up services from main...")
	authService := services.NewAuthService(thePG, log, users, jwtSecretKey,
		time.Duration(accessTokenTTL)*time.Second, time.Duration(refreshTokenTTL)*time.Second)
	escrowService := services.NewEscrowService(thePG, log, jobs, applications, terms, contracts, submissions, history, jobAgg, bus)
	workService := services.NewWorkService(log, submissions, jobAgg, bus)
	disputeService := services.NewDisputeService(log, disputes, rounds, votes, users, disputeAgg, bus, committeeBeacon)
	reputationService := services.NewReputationService(log, scores)

	scheduler := services.NewDeadlineScheduler(log, jobs, disputes, rounds, intents, jobAgg, disputeService, metrics)
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	// Handlers
	log.Info("Setting up handlers from main...")
	authHandler := httpH.NewAuthHandler(authService)
	jobHandler := httpH.NewJobHandler(log, escrowService)
	workHandler := httpH.NewWorkHandler(log, workService)
	disputeHandler := httpH.NewDisputeHandler(log, disputeService)
	reputationHandler := httpH.NewReputationHandler(log, reputationService)
	opsHandler := httpH.NewOpsHandler(log, incidents, intents, scheduler)
	healthHandler := httpH.NewHealthHandler()

	// Middleware
	authMiddleware := httpMW.NewAuthMiddleware(log, authService)

	// Router
	log.Info("Setting up router from main...")
	srv := httpserver.NewServer(httpserver.RouterConfig{
		Log:               log,
		Metrics:           metrics,
		AuthHandler:       authHandler,
		AuthMiddleware:    authMiddleware,
		JobHandler:        jobHandler,
		WorkHandler:       workHandler,
		DisputeHandler:    disputeHandler,
		ReputationHandler: reputationHandler,
		OpsHandler:        opsHandler,
		HealthHandler:     healthHandler,
		CORSOrigins:       corsOrigins,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Server listening", "port", port)
	if err := srv.Run(":" + port); err != nil {
		log.Fatal("Server failed", "error", err)
	}
}
