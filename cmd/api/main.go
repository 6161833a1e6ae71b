package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-roster-api/internal/config"
	"github.com/noah-isme/gema-roster-api/internal/database"
	"github.com/noah-isme/gema-roster-api/internal/handler"
	"github.com/noah-isme/gema-roster-api/internal/middleware"
	"github.com/noah-isme/gema-roster-api/internal/repository"
	"github.com/noah-isme/gema-roster-api/internal/router"
	"github.com/noah-isme/gema-roster-api/internal/service"
	cloud "github.com/noah-isme/gema-roster-api/pkg/cloudinary"
	"github.com/noah-isme/gema-roster-api/pkg/issuer"
	"github.com/noah-isme/gema-roster-api/pkg/mail"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis not configured, sessions are kept in memory and resend cooldown is disabled")
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New(validator.WithRequiredStructEnabled())

	identityRepo := repository.NewIdentityRepository(db)
	userRepo := repository.NewUserProfileRepository(db)
	studentRepo := repository.NewStudentProfileRepository(db)
	classRepo := repository.NewClassRepository(db)
	recordRepo := repository.NewStudentRecordRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)
	tx := repository.NewTransactor(db)

	sessions := service.NewSessionService(redisClient, cfg.SessionChannel, natsConn, cfg.SessionTTL, logger)
	sessions.Start(rootCtx)

	identities := service.NewIdentityStore(identityRepo, userRepo, cfg.BcryptCost, logger)
	activityService := service.NewActivityService(activityRepo, logger)

	codeIssuer, err := newCodeIssuer(cfg, identities, validate, logger)
	if err != nil {
		log.Fatalf("failed to configure verification code delivery: %v", err)
	}

	verificationService := service.NewVerificationService(studentRepo, identities, codeIssuer, redisClient, cfg.ResendCooldown, activityService, logger)
	authService := service.NewAuthService(identities, userRepo, studentRepo, tx, sessions, activityService, logger)
	tokenService, err := service.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("failed to configure tokens: %v", err)
	}
	studentService := service.NewStudentService(studentRepo, classRepo, recordRepo, userRepo, tx, verificationService, activityService, validate, logger)
	classService := service.NewClassService(classRepo, studentRepo, tx, activityService, validate, logger)
	recordService := service.NewRecordService(recordRepo, studentRepo, activityService, validate, logger)
	dashboardService := service.NewDashboardService(repository.NewDashboardRepository(db), redisClient, cfg.DashboardCacheTTL, logger)

	var uploadService service.ImageUploadService
	if cfg.CloudinaryConfigured() {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		uploadService = service.NewImageUploadService(service.CloudinaryStorage(uploader), cfg.UploadMaxSizeMB, logger)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.CORSOrigins,
		AccessLog:    cfg.AppEnv == "development",
	})
	router.Register(app, router.Dependencies{
		AppName:          cfg.AppName,
		Health:           healthInfo(cfg, redisClient, natsConn),
		AuthHandler:      handler.NewAuthHandler(authService, tokenService, verificationService, validate, logger),
		SessionHandler:   handler.NewSessionHandler(sessions, authService, logger),
		ClassHandler:     handler.NewClassHandler(classService, logger),
		StudentHandler:   handler.NewStudentHandler(studentService, verificationService, uploadService, logger),
		RecordHandler:    handler.NewRecordHandler(recordService, logger),
		ActivityHandler:  handler.NewActivityHandler(activityService, logger),
		DashboardHandler: handler.NewDashboardHandler(dashboardService, logger),
		JWTMiddleware:    middleware.JWTProtected(cfg.JWTSecret),
		ResendLimiter:    middleware.RateLimit("resend-code", cfg.ResendRateLimit, time.Minute),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(rootCtx, app)
}

// newCodeIssuer talks to a separate relay when one is configured and otherwise runs the relay in process.
func newCodeIssuer(cfg config.Config, identities service.IdentityStore, validate *validator.Validate, logger zerolog.Logger) (service.CodeIssuer, error) {
	if cfg.RelayURL != "" {
		return issuer.New(cfg.RelayURL, cfg.RelayTimeout)
	}

	sender, err := mail.NewSender(cfg.Mail.Provider, mail.SendGridConfig{
		APIKey:    cfg.Mail.SendGridAPIKey,
		FromName:  cfg.Mail.FromName,
		FromEmail: cfg.Mail.FromEmail,
		AppName:   cfg.AppName,
	}, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("provider", sender.Provider()).Msg("relay url not configured, delivering codes in process")

	relay := service.NewRelayService(identities, sender, false, cfg.AppName, validate, logger)
	return service.RelayIssuer{Relay: relay}, nil
}

func healthInfo(cfg config.Config, redisClient *redis.Client, natsConn *nats.Conn) handler.HealthInfo {
	info := handler.HealthInfo{
		Service:     cfg.AppName,
		Environment: strings.ToLower(cfg.AppEnv),
	}
	if redisClient != nil {
		info.Redis = func() bool {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return redisClient.Ping(ctx).Err() == nil
		}
	}
	if natsConn != nil {
		info.NATS = natsConn.IsConnected
	}
	return info
}

func waitForShutdown(ctx context.Context, app *fiber.App) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
