package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FS-FORMS/internal"
	"FS-FORMS/internal/config"
	"FS-FORMS/internal/handlers"
	"FS-FORMS/internal/services"
	"FS-FORMS/internal/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	logger := config.GetLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	config.SetLogLevel(cfg.Logging.Level)

	if err := internal.InitDB(cfg); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer internal.CloseDB()

	ctx := context.Background()
	if err := config.ConnectRedis(ctx, cfg.Redis); err != nil {
		// The cache and lock are optional; run without them.
		config.LogError(logger, "main", "main", "connect redis", cfg.Redis.Address, err)
	}
	defer config.CloseRedis()

	var store storage.ObjectStore
	var uploadDir string
	if cfg.GCS.BucketName != "" {
		gcsClient, err := storage.NewGCSClient(ctx, cfg.GCS.BucketName, cfg.GCS.ProjectID, cfg.GCS.CredentialsPath)
		if err != nil {
			logger.Fatalf("Failed to initialize GCS client: %v", err)
		}
		defer gcsClient.Close()
		store = gcsClient
		logger.WithField("bucket", cfg.GCS.BucketName).Info("Storing page backgrounds in GCS")
	} else {
		localStore, err := storage.NewLocalStore(cfg.Uploads.Dir, "/uploads")
		if err != nil {
			logger.Fatalf("Failed to initialize local upload store: %v", err)
		}
		store = localStore
		uploadDir = localStore.Dir()
		logger.WithField("dir", cfg.Uploads.Dir).Info("GCS_BUCKET_NAME not set; storing page backgrounds on disk")
	}

	templateService := services.NewTemplateService(internal.DB, cfg.Redis.CacheTTL)
	submissionService := services.NewSubmissionService(internal.DB, templateService)
	backgroundService := services.NewBackgroundService(store, templateService)
	activityLogService := services.NewActivityLogService(internal.DB)

	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if !cfg.Server.IsProduction() {
		r.Use(gin.Logger())
	}

	router := &handlers.Router{
		DB:                 internal.DB,
		AllowOrigins:       cfg.Server.AllowOrigins,
		UploadDir:          uploadDir,
		TemplateService:    templateService,
		SubmissionService:  submissionService,
		BackgroundService:  backgroundService,
		ActivityLogService: activityLogService,
	}
	router.Setup(r)

	var cleanupService *handlers.FileCleanupService
	if uploadDir != "" {
		cleanupService = handlers.NewFileCleanupService(uploadDir, cfg.Uploads.MaxAge, templateService.BackgroundRefs)
		cleanupService.Start()
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Infof("Starting server on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	if cleanupService != nil {
		cleanupService.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		config.LogError(logger, "main", "main", "server shutdown", nil, err)
	}
	activityLogService.Wait()
	logger.Info("Server stopped")
}
