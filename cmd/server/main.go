package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"hound-api/internal/api"
	"hound-api/internal/config"
	"hound-api/internal/database"
	"hound-api/internal/services"
	"hound-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatal("Failed to initialize config:", err)
	}
	cfg := config.AppConfig

	// Initialize logging
	logging.InitLogging(cfg.LogLevel, cfg.IsRelease())

	// Initialize database
	if err := database.InitDatabase(cfg); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	db := database.GetDB()

	decoder, err := services.LoadJWSDecoder(cfg.AppStore.BundleID, cfg.AppStore.RootCertPath)
	if err != nil {
		log.Fatal("Failed to initialize App Store decoder:", err)
	}
	decoder.WithAppAppleID(cfg.AppStore.AppAppleID)
	if !decoder.Verifying() {
		logging.Warnf("APPSTORE_ROOT_CERT_PATH not set, App Store signatures will not be verified")
	}

	appStore, err := services.NewAppStoreClient(cfg.AppStore, decoder)
	if err != nil {
		log.Fatal("Failed to initialize App Store client:", err)
	}

	var locker services.UserLocker = services.NewLocalUserLocker()
	var limiter services.RateLimiter = services.NoopRateLimiter{}
	if rdb := database.GetRedis(); rdb != nil {
		locker = services.NewRedisUserLocker(rdb, cfg.UserLockTTL)
		limiter = services.NewRedisRateLimiter(rdb, "receipt", cfg.ReceiptRateLimit)
	} else {
		logging.Warnf("Redis not configured, ledger locks are process-local and receipt uploads are not rate limited")
	}

	var sender services.PushSender = services.LogPushSender{}
	if cfg.PushRelayURL != "" {
		sender = services.NewHTTPPushSender(cfg.PushRelayURL, cfg.PushRelaySecret)
	}
	dispatcher := services.NewPushDispatcher(sender, cfg.PushQueueSize, cfg.PushWorkers)
	dispatcher.Start()

	families := services.NewDatabaseFamilyDirectory(db)
	ledger := services.NewLedgerService(db, cfg.AppStore.Environment, services.DefaultCatalog(), families, locker)
	handlers := &api.Handlers{
		Notifications: services.NewNotificationService(db, decoder, ledger, dispatcher),
		Receipts:      services.NewReceiptService(families, appStore, ledger, limiter),
		Ledger:        ledger,
	}

	// Set Gin mode
	gin.SetMode(cfg.Mode)

	// Create Gin engine
	r := gin.Default()

	// Setup routes
	api.SetupRoutes(r, handlers, families)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logging.Infof("Starting server on port %s (App Store environment: %s)", cfg.Port, cfg.AppStore.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Infof("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Errorf("Server forced to shutdown: %v", err)
	}
	if err := dispatcher.Stop(ctx); err != nil {
		logging.Warnf("Push dispatcher did not drain: %v", err)
	}
	if err := database.CloseDatabase(); err != nil {
		logging.Errorf("Failed to close database: %v", err)
	}
	logging.Infof("Server exited")
}
