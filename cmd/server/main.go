package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/propvoice/enquiry-agent/internal/adapter/ai/deepgram"
	"github.com/propvoice/enquiry-agent/internal/adapter/ai/groq"
	"github.com/propvoice/enquiry-agent/internal/adapter/ai/sarvam"
	"github.com/propvoice/enquiry-agent/internal/adapter/http/fiber/handlers"
	"github.com/propvoice/enquiry-agent/internal/adapter/http/fiber/middleware"
	"github.com/propvoice/enquiry-agent/internal/adapter/storage/jsonfile"
	"github.com/propvoice/enquiry-agent/internal/adapter/telephony/exotel"
	wsAdapter "github.com/propvoice/enquiry-agent/internal/adapter/websocket"
	"github.com/propvoice/enquiry-agent/internal/observability/telemetry"
	"github.com/propvoice/enquiry-agent/internal/ports"
	"github.com/propvoice/enquiry-agent/internal/service/conversation"
	"github.com/propvoice/enquiry-agent/internal/service/dialer"
	"github.com/propvoice/enquiry-agent/internal/service/session"
	"github.com/propvoice/enquiry-agent/pkg/config"
)

const (
	serviceName    = "propvoice-enquiry-agent"
	serviceVersion = "v1.0.0"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// 2. Initialize Logger
	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting enquiry agent",
		zap.String("service", serviceName),
		zap.String("version", serviceVersion),
	)

	// 3. Initialize OpenTelemetry (Distributed Tracing)
	if cfg.Telemetry.TracingEnabled {
		tracerProvider, err := telemetry.InitTracer(serviceName, cfg.Telemetry.JaegerEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := tracerProvider.Shutdown(context.Background()); err != nil {
				logger.Error("Error shutting down tracer provider", zap.Error(err))
			}
		}()
	}

	// 4. Initialize Enquiry Store
	repo, err := jsonfile.NewEnquiryRepository(cfg.Storage.EnquiriesFile, logger)
	if err != nil {
		logger.Fatal("Failed to open enquiry store", zap.Error(err))
	}

	// 5. Initialize Telephony Client
	exotelClient := exotel.NewClient(cfg.Exotel, logger)

	// 6. Initialize Session Manager with per-call provider factories
	providers := session.Providers{
		NewSpeechToText: func() ports.SpeechToText {
			return deepgram.NewLiveClient(cfg.Deepgram, logger)
		},
		NewTextToSpeech: func() ports.TextToSpeech {
			return sarvam.NewClient(cfg.Sarvam, logger)
		},
		NewChatCompletion: func() ports.ChatCompletion {
			return groq.NewClient(cfg.Groq, logger)
		},
	}
	sessions := session.NewManager(repo, providers, session.ManagerConfig{
		AgentName:   cfg.Project.AgentName,
		CompanyName: cfg.Project.CompanyName,
		ProjectName: cfg.Project.Name,
		GraceDelay:  cfg.Call.GraceDelay,
		Engine: conversation.Options{
			Model:           cfg.Groq.Model,
			FallbackModel:   cfg.Groq.FallbackModel,
			Temperature:     cfg.Groq.Temperature,
			TopP:            cfg.Groq.TopP,
			MaxTokens:       cfg.Groq.MaxTokens,
			MaxHistoryTurns: cfg.Call.MaxHistoryTurns,
		},
	}, logger)

	// 7. Initialize Dialer
	callDialer := dialer.New(exotelClient, repo, cfg.Exotel.PhoneNumber, cfg.Call.Delay, logger)

	// 8. Initialize Fiber HTTP Server
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		ServerHeader:          serviceName,
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	// Global Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(middleware.NewCORS(cfg.HTTP))

	// Metrics endpoint for Prometheus
	app.Get("/metrics", func(c *fiber.Ctx) error {
		handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		handler(c.Context())
		return nil
	})

	// 9. HTTP Routes
	enquiryHandler := handlers.NewEnquiryHandler(repo, callDialer, sessions, exotelClient, logger)
	app.Post("/submit-enquiry", enquiryHandler.SubmitEnquiry)
	app.Get("/enquiries", enquiryHandler.ListEnquiries)
	app.Get("/enquiries/:id", enquiryHandler.GetEnquiry)
	app.Post("/enquiries/:id/hangup", enquiryHandler.Hangup)
	app.Get("/exotel-webhook", enquiryHandler.ExotelWebhook)
	app.Post("/exotel-webhook", enquiryHandler.ExotelWebhook)
	app.Get("/health", enquiryHandler.Health)

	// 10. Telephony Stream WebSocket
	streamHandler := wsAdapter.NewStreamHandler(sessions, logger)
	wsAdapter.SetupStreamRoutes(app, streamHandler)

	// 11. Start HTTP Server
	go func() {
		logger.Info("Starting HTTP Server", zap.Int("port", cfg.HTTP.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
			logger.Fatal("HTTP Server failed", zap.Error(err))
		}
	}()

	// 12. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	sessions.ShutdownAll()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited gracefully")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	logCfg := zap.NewProductionConfig()
	logCfg.Level = zap.NewAtomicLevelAt(lvl)
	return logCfg.Build()
}
