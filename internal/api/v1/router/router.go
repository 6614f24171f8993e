package router

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"app/internal/ai"
	"app/internal/api/v1/handler"
	"app/internal/calendar"
	"app/internal/config"
	"app/internal/extract"
	"app/internal/middleware"
	"app/internal/pubsub"
	"app/internal/repository"
	"app/internal/service"
	"app/internal/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsmiddleware "github.com/aws/smithy-go/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

func New(cfg *config.Config, logger zerolog.Logger) (http.Handler, *pgxpool.Pool, error) {
	logger.Info().Str("environment", cfg.Environment).Msg("Router initialized")

	// 1. Open DB connection pool
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if cfg.Environment == "development" {
		dsn += "?sslmode=disable"
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create DB pool")
		return nil, nil, err
	}
	if err := pool.Ping(context.Background()); err != nil {
		logger.Error().Err(err).Msg("Failed to ping DB")
		return nil, nil, err
	}
	logger.Info().Msg("Database connection successful")

	// 2. Initialize S3 client
	s3Config, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
		awsconfig.WithAPIOptions([]func(*awsmiddleware.Stack) error{removeDisableGzip()}),
	)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load S3 config")
		return nil, nil, err
	}
	s3Client := s3.NewFromConfig(s3Config, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3URL)
		o.UsePathStyle = true
	})
	objectStore := storage.NewS3Store(s3Client, cfg.S3Bucket)

	// 3. Initialize validator
	validate := validator.New(validator.WithRequiredStructEnabled())

	// 4. Optional GCP collaborators: Pub/Sub events and calendar token storage
	// are skipped when no project is configured.
	var reportEvents *pubsub.ReportEvents
	var tokenStore service.TokenStore
	if cfg.GCPProjectID != "" {
		publisher, err := pubsub.NewPublisher(context.Background(), cfg)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create Pub/Sub publisher")
			return nil, nil, err
		}
		reportEvents = pubsub.NewReportEvents(publisher, cfg.ReportEventsTopic)

		tokenStore, err = service.NewTokenStore(context.Background(), cfg)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create token store")
			return nil, nil, err
		}
	} else {
		logger.Warn().Msg("GCP project not configured; report events and calendar sync disabled")
	}

	var eventWriter calendar.EventWriter
	if gc := calendar.NewGoogleCalendar(cfg); gc != nil {
		eventWriter = gc
	}

	// 5. AI client and text extraction
	completer := ai.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, time.Duration(cfg.OpenAITimeoutSec)*time.Second)
	extractor := extract.NewService(extract.NewTesseractOCR(""), cfg.ReportTextMaxChars)

	// 6. Initialize repositories & services & handlers
	usageRepo := repository.NewUsageRepo(pool)
	reportRepo := repository.NewReportRepo(pool)
	messageRepo := repository.NewMessageRepo(pool)
	appointmentRepo := repository.NewAppointmentRepo(pool)

	usageSvc := service.NewUsageService(usageRepo, logger)
	reportSvc := service.NewReportService(reportRepo, usageSvc, extractor, completer, objectStore, reportEvents, cfg.AnalysisModel, cfg.MaxReportSizeMB, logger)
	chatSvc := service.NewChatService(messageRepo, usageSvc, extractor, completer, cfg.ChatModel, cfg.VisionModel, cfg.ChatHistoryLimit, logger)
	appointmentSvc := service.NewAppointmentService(appointmentRepo, eventWriter, tokenStore, logger)

	usageHandler := handler.NewUsageHandler(usageSvc, logger)
	reportHandler := handler.NewReportHandler(reportSvc, cfg.MaxReportSizeMB, logger)
	chatHandler := handler.NewChatHandler(chatSvc, validate, logger)
	appointmentHandler := handler.NewAppointmentHandler(appointmentSvc, validate, logger)

	// 7. Initialize middleware
	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret)

	// 8. Create ServeMux router
	mux := http.NewServeMux()

	apiV1Mux := http.NewServeMux()
	usageHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	reportHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	chatHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	appointmentHandler.RegisterRoutes(apiV1Mux, authMiddleware)

	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// 9. Apply CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(c.Handler(mux)), pool, nil
}

// removeDisableGzip is a workaround for S3 signature errors with some S3-compatible services.
// See: https://github.com/supabase/storage/issues/577
func removeDisableGzip() func(*awsmiddleware.Stack) error {
	return func(stack *awsmiddleware.Stack) error {
		if _, ok := stack.Finalize.Get("DisableAcceptEncodingGzip"); ok {
			_, err := stack.Finalize.Remove("DisableAcceptEncodingGzip")
			return err
		}
		return nil
	}
}
