package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/acadex/acadex-api/internal/config"
	"github.com/acadex/acadex-api/internal/database"
	"github.com/acadex/acadex-api/internal/evaluation"
	"github.com/acadex/acadex-api/internal/handler"
	"github.com/acadex/acadex-api/internal/middleware"
	"github.com/acadex/acadex-api/internal/models"
	"github.com/acadex/acadex-api/internal/observability"
	"github.com/acadex/acadex-api/internal/repository"
	"github.com/acadex/acadex-api/internal/router"
	"github.com/acadex/acadex-api/internal/service"
	"github.com/acadex/acadex-api/pkg/ai"
	"github.com/acadex/acadex-api/pkg/githubfetch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	observability.RegisterMetrics()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Assignment{},
		&models.AssignmentFile{},
		&models.EvaluationResult{},
		&models.EvaluationDetail{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	gateway := ai.NewGateway(ai.Config{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.Eval.Model,
		Temperature: cfg.Eval.Temperature,
		Timeout:     cfg.CallTimeout,
		Logger:      logger,
	})

	resultCache := evaluation.NewResultCache(redisClient, cfg.Eval.CacheEnabled, cfg.Eval.CacheTTL, logger)
	consensus := evaluation.NewConsensusEvaluator(gateway, resultCache, cfg.Eval, logger)
	fetcher := githubfetch.NewClient(cfg.GitHubToken, logger)
	events := service.NewEventPublisher(natsConn, logger)

	assignmentRepo := repository.NewAssignmentRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)

	uploadService := service.NewUploadService(cfg.UploadDir, cfg.UploadMaxSizeMB, logger)
	evaluationService := service.NewEvaluationService(uploadService, gateway, consensus, resultCache, assignmentRepo, validate, events, cfg.Eval.ScorePrecision, logger)
	slideService := service.NewSlideEvaluationService(uploadService, gateway, resultCache, assignmentRepo, validate, events, cfg.Eval.ScorePrecision, logger)
	repoService := service.NewRepoEvaluationService(fetcher, gateway, resultCache, assignmentRepo, validate, events, service.RepoBudget{
		FileCeiling:  cfg.RepoFileCeiling,
		PerFileChars: cfg.RepoPerFileChars,
		TotalChars:   cfg.RepoTotalChars,
	}, cfg.Eval.ScorePrecision, logger)
	reEvaluationService := service.NewReEvaluationService(evaluationRepo, gateway, consensus, resultCache, validate, cfg.Eval.ScorePrecision, logger)
	debugService := service.NewDebugService(cfg.Eval, resultCache, consensus, validate, logger)

	uploadHandler := handler.NewUploadHandler(uploadService, logger)
	evaluationHandler := handler.NewEvaluationHandler(evaluationService, slideService, repoService, reEvaluationService, logger)
	debugHandler := handler.NewDebugHandler(debugService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxSizeMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		UploadHandler:     uploadHandler,
		EvaluationHandler: evaluationHandler,
		DebugHandler:      debugHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
