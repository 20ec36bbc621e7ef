// cmd/main.go
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lmittmann/tint"
	"github.com/rs/cors"

	"learn_track/internal/config"
	"learn_track/internal/handlers"
	"learn_track/internal/middleware"
	"learn_track/internal/repository"
	"learn_track/internal/service"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

func main() {
	// 設定ファイル読み込み用の一時的なロガー
	tempLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(tempLogger)
	log.Println("Config Loading...")

	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		slog.Error("Error loading configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// === 設定に基づいて slog ロガーを初期化 ===
	logLevel := new(slog.LevelVar)
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "info":
		logLevel.Set(slog.LevelInfo)
	case "warn", "warning":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	default:
		logLevel.Set(slog.LevelInfo)
		slog.Warn("Unknown log level specified in config, defaulting to INFO", slog.String("level", cfg.Log.Level))
	}

	var handler slog.Handler
	appEnv := os.Getenv("APP_ENV")
	if strings.ToLower(appEnv) == "dev" {
		tintOpts := &tint.Options{
			Level:      logLevel,
			TimeFormat: time.RFC3339,
		}
		handler = tint.NewHandler(os.Stderr, tintOpts)
		tempLogger.Info("Using TINT log handler", slog.String("APP_ENV", appEnv))
	} else {
		jsonOpts := &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}
		handler = slog.NewJSONHandler(os.Stderr, jsonOpts)
		tempLogger.Info("Using JSON log handler", slog.String("APP_ENV", appEnv))
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	slog.Info("Application starting...")

	// 2. Initialize Database Connection (GORM)
	db, err := repository.NewDB(cfg.Database.URL, logger)
	if err != nil {
		slog.Error("Error initializing database", slog.Any("error", err))
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		slog.Error("Error getting underlying sql.DB from GORM", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := sqlDB.Close(); err != nil {
			slog.Error("Error closing database connection", slog.Any("error", err))
		} else {
			slog.Info("Database connection closed.")
		}
	}()

	if err := repository.AutoMigrate(db); err != nil {
		slog.Error("Error running database migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// 3. Dependency Injection
	videoRepo := repository.NewGormVideoRepository()
	progressRepo := repository.NewGormProgressRepository()
	assessmentRepo := repository.NewGormAssessmentRepository()
	attemptRepo := repository.NewGormAttemptRepository()
	answerRepo := repository.NewGormAnswerRepository()
	certRepo := repository.NewGormCertificateRepository()

	var notifier service.Notifier
	if cfg.Webhook.URL != "" {
		notifier = service.NewWebhookNotifier(cfg)
	} else {
		slog.Warn("Webhook URL is not configured, submission notices will only be logged")
		notifier = &service.LogNotifier{}
	}

	var mailer service.Mailer
	if cfg.SES.Enabled {
		mailer = service.NewSESMailer(cfg)
	} else {
		slog.Warn("SES is disabled, certificate mails will only be logged")
		mailer = &service.LogMailer{}
	}

	progressService := service.NewProgressService(db, progressRepo, videoRepo, cfg)
	sessionService := service.NewSessionService(db, attemptRepo, answerRepo, assessmentRepo, progressRepo, notifier, cfg, logger)
	certificateService := service.NewCertificateService(db, certRepo, assessmentRepo, attemptRepo, mailer, logger)

	progressHandler := handlers.NewProgressHandler(progressService)
	attemptHandler := handlers.NewAttemptHandler(sessionService)
	certificateHandler := handlers.NewCertificateHandler(certificateService)

	// 4. Setup Router
	r := chi.NewRouter()

	// Middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.LoggingMiddleware(logger))

	corsOptions := cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
		Debug:            false,
	}
	corsHandler := cors.New(corsOptions)
	r.Use(corsHandler.Handler)

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// API Routes
	r.Route("/api/v1", func(r chi.Router) {
		// すべてのAPIは外部IdPのJWTが必要
		r.Use(middleware.JWTAuthMiddleware(cfg))

		// Video progress routes
		r.Route("/videos/{video_id}", func(r chi.Router) {
			r.Post("/progress", progressHandler.ReportProgress)
			r.Get("/progress", progressHandler.ResumePosition)
			r.Post("/ended", progressHandler.MarkVideoEnded)
		})

		// Course routes
		r.Route("/courses/{course_id}", func(r chi.Router) {
			r.Get("/resume", progressHandler.ResumeVideo)
			r.Get("/progress", progressHandler.CourseProgress)
			r.Post("/certificate", certificateHandler.Issue)
		})

		// Assessment attempt routes
		r.Post("/assessments/{assessment_id}/attempts", attemptHandler.StartAttempt)
		r.Route("/attempts/{attempt_id}", func(r chi.Router) {
			r.Get("/", attemptHandler.GetAttempt)
			r.Put("/answers/{question_id}", attemptHandler.SetAnswer)
			r.Post("/submit", attemptHandler.Submit)
		})

		// Certificate routes
		r.Get("/certificates", certificateHandler.List)
	})

	// Health Check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := sqlDB.PingContext(ctx); err != nil {
			slog.ErrorContext(ctx, "Health check failed: could not ping DB", slog.Any("error", err))
			http.Error(w, "Health check failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// 5. Start Server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", slog.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Could not listen on port", slog.String("port", cfg.Server.Port), slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	// 進行中セッションのタイマー停止と保存待ち回答の書き出し
	sessionService.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", slog.Any("error", err))
	}

	slog.Info("Server exited gracefully")
}
