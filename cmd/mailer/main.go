package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-roster-api/internal/config"
	"github.com/noah-isme/gema-roster-api/internal/database"
	"github.com/noah-isme/gema-roster-api/internal/handler"
	"github.com/noah-isme/gema-roster-api/internal/middleware"
	"github.com/noah-isme/gema-roster-api/internal/repository"
	"github.com/noah-isme/gema-roster-api/internal/router"
	"github.com/noah-isme/gema-roster-api/internal/service"
	cloud "github.com/noah-isme/gema-roster-api/pkg/cloudinary"
	"github.com/noah-isme/gema-roster-api/pkg/mail"
)

func main() {
	cfg, err := config.LoadMailer()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName+" relay").Logger()

	// Without a database the relay only mails codes; sign-in then relies on the roster code alone.
	var identities service.IdentityStore
	if cfg.DatabaseURL != "" {
		db, err := database.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		if err := database.Migrate(db); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
		identities = service.NewIdentityStore(repository.NewIdentityRepository(db), repository.NewUserProfileRepository(db), cfg.BcryptCost, logger)
	} else {
		logger.Warn().Msg("database not configured, identity provisioning disabled")
	}

	sender, err := mail.NewSender(cfg.Mail.Provider, mail.SendGridConfig{
		APIKey:    cfg.Mail.SendGridAPIKey,
		FromName:  cfg.Mail.FromName,
		FromEmail: cfg.Mail.FromEmail,
		AppName:   cfg.AppName,
	}, logger)
	if err != nil {
		log.Fatalf("failed to configure mail delivery: %v", err)
	}

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

	validate := validator.New(validator.WithRequiredStructEnabled())
	relayService := service.NewRelayService(identities, sender, uploadService != nil, cfg.AppName, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName + " relay",
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{
		Logger:         &logger,
		AllowOrigins:   cfg.CORSOrigins,
		MetricPrefixes: []string{"/send-verification-code", "/upload", "/admin-status"},
		AccessLog:      cfg.AppEnv == "development",
	})
	banner := fmt.Sprintf("%s verification relay is running (mail: %s)", cfg.AppName, sender.Provider())
	router.RegisterRelay(app, handler.NewRelayHandler(relayService, uploadService, banner, logger))

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start relay: %v", err)
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

	log.Println("relay stopped")
}
