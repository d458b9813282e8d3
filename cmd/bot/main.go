package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/NaJiKuN/AIPoweredProBot/internal/admin"
	"github.com/NaJiKuN/AIPoweredProBot/internal/ai"
	"github.com/NaJiKuN/AIPoweredProBot/internal/config"
	"github.com/NaJiKuN/AIPoweredProBot/internal/database"
	"github.com/NaJiKuN/AIPoweredProBot/internal/ledger"
	"github.com/NaJiKuN/AIPoweredProBot/internal/payment"
	"github.com/NaJiKuN/AIPoweredProBot/internal/repository"
	"github.com/NaJiKuN/AIPoweredProBot/internal/service"
	"github.com/NaJiKuN/AIPoweredProBot/internal/storage"
	"github.com/NaJiKuN/AIPoweredProBot/internal/telegram"
	"github.com/NaJiKuN/AIPoweredProBot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	db, err := database.Connect(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	entitlementRepo := repository.NewEntitlementRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	apiKeyRepo := repository.NewAPIKeyRepository(db)

	entitle := ledger.New(logr, userRepo, entitlementRepo, walletRepo, usageRepo, ledger.TrialPolicy{
		Requests: cfg.TrialRequests,
		Days:     cfg.TrialDays,
	})

	userService := service.NewUserService(cfg, logr, userRepo)
	keyService := service.NewAPIKeyService(logr, apiKeyRepo)
	aiClient := ai.NewClient(cfg.AIGatewayURL, cfg.RequestTimeout, keyService, logr)
	generationService := service.NewGenerationService(logr, entitle, keyService, aiClient)
	broadcastService := service.NewBroadcastService(logr, userService, cfg.BroadcastWorkers)
	payments := payment.NewClient(cfg.PlisioAPIKey, cfg.PlisioBaseURL)

	var uploader telegram.AttachmentStorage
	if cfg.AttachmentsEnabled() {
		s3Uploader, err := storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		uploader = s3Uploader
	}

	bot := telegram.NewBot(cfg, botAPI, logr, userService, generationService, entitle, payments, uploader)

	adminServer := admin.NewServer(cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr, userService, keyService, broadcastService, bot, entitle, usageRepo)
	go func() {
		if err := adminServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("admin server stopped", "err", err)
		}
	}()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}
}
