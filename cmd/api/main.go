package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/ctf-go-api/internal/config"
	"github.com/noah-isme/ctf-go-api/internal/database"
	"github.com/noah-isme/ctf-go-api/internal/handler"
	"github.com/noah-isme/ctf-go-api/internal/middleware"
	"github.com/noah-isme/ctf-go-api/internal/repository"
	"github.com/noah-isme/ctf-go-api/internal/router"
	"github.com/noah-isme/ctf-go-api/internal/service"
	cloud "github.com/noah-isme/ctf-go-api/pkg/cloudinary"
	"github.com/noah-isme/ctf-go-api/pkg/orchestrator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	client, closeClient, err := newOrchestrator(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create orchestrator client: %v", err)
	}
	defer closeClient()

	var storage service.AttachmentStorage
	if cfg.UploadsEnabled() {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		storage = uploader
	} else {
		logger.Warn().Msg("cloudinary credentials missing, challenge attachments disabled")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	challengeRepo := repository.NewChallengeRepository(db)
	instanceRepo := repository.NewRunningChallengeRepository(db)
	teardownRepo := repository.NewTeardownRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	events := service.NewEventPublisher(natsConn, cfg.EventPrefix, logger)
	registry := service.NewInstanceRegistry(redisClient, cfg.EventPrefix)

	instanceService := service.NewInstanceService(challengeRepo, instanceRepo, teardownRepo, client, registry, events, service.InstanceSettings{
		Deploy: service.DeploySettings{
			BaseDomain:         cfg.BaseDomain,
			TLSCert:            cfg.TLSCert,
			ImagePullSecrets:   cfg.ImagePullSecrets,
			MaxSubdomainLength: cfg.MaxSubdomainLength,
		},
		TTL:        cfg.InstanceTTL,
		FlagPrefix: cfg.FlagPrefix,
	}, logger)
	challengeService := service.NewChallengeService(challengeRepo, instanceRepo, submissionRepo, cfg.BaseDomain, logger)
	flagService := service.NewFlagService(challengeRepo, instanceRepo, submissionRepo, instanceService, events, validate, logger)
	adminChallengeService := service.NewAdminChallengeService(challengeRepo, instanceRepo, storage, validate, logger)
	authService := service.NewAuthService(userRepo, validate, cfg.JWTSecret, cfg.JWTTTL, logger)

	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: logger})
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:           handler.NewAuthHandler(authService, logger),
		ChallengeHandler:      handler.NewChallengeHandler(challengeService, instanceService, flagService, logger),
		InstanceHandler:       handler.NewInstanceHandler(instanceService, logger),
		AdminChallengeHandler: handler.NewAdminChallengeHandler(adminChallengeService, logger),
		HealthProbes:          probes,
		JWTMiddleware:         middleware.JWTProtected(cfg.JWTSecret),
		SubmitLimiter:         middleware.RateLimit("flag_submit", cfg.SubmitRateLimit, cfg.SubmitRateWindow),
	})

	reaperCtx, stopReaper := context.WithCancel(context.Background())
	var reaperDone sync.WaitGroup
	reaperDone.Add(1)
	go func() {
		defer reaperDone.Done()
		service.NewInstanceReaper(instanceService, cfg.ReaperInterval, logger).Run(reaperCtx)
	}()

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)

	stopReaper()
	reaperDone.Wait()
}

func newOrchestrator(cfg config.Config, logger zerolog.Logger) (orchestrator.Client, func(), error) {
	switch cfg.OrchestratorProvider {
	case config.ProviderDocker:
		client, err := orchestrator.NewDockerClient(orchestrator.DockerConfig{
			Host:       cfg.DockerHost,
			Network:    cfg.DockerNetwork,
			BaseDomain: cfg.BaseDomain,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, func() { _ = client.Close() }, nil
	default:
		client, err := orchestrator.NewHTTPClient(orchestrator.HTTPConfig{
			BaseURL:   cfg.OrchestratorURL,
			Namespace: cfg.OrchestratorNamespace,
			Timeout:   cfg.OrchestratorTimeout,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	}
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
