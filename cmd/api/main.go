// Package main is the entry point for the warm transfer API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shiftdesk/warm-transfer/internal/clock"
	"github.com/shiftdesk/warm-transfer/internal/config"
	"github.com/shiftdesk/warm-transfer/internal/coordinator"
	"github.com/shiftdesk/warm-transfer/internal/events"
	"github.com/shiftdesk/warm-transfer/internal/handler"
	"github.com/shiftdesk/warm-transfer/internal/llm"
	"github.com/shiftdesk/warm-transfer/internal/middleware"
	"github.com/shiftdesk/warm-transfer/internal/model"
	"github.com/shiftdesk/warm-transfer/internal/registry"
	"github.com/shiftdesk/warm-transfer/internal/roomsvc"
	"github.com/shiftdesk/warm-transfer/internal/store"
	"github.com/shiftdesk/warm-transfer/internal/summarizer"
	"github.com/shiftdesk/warm-transfer/internal/telephony"
	"github.com/shiftdesk/warm-transfer/internal/token"
	"github.com/shiftdesk/warm-transfer/pkg/logger"
	"github.com/shiftdesk/warm-transfer/pkg/tracing"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", zap.Error(err))
		os.Exit(1)
	}

	log.Info("starting API server",
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.ServerPort),
	)

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, cfg.ServiceName, cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS when configured. A configured but unreachable
	// broker is fatal; no broker at all just disables event publishing.
	var pub *events.Publisher
	if cfg.NATSURL != "" {
		pub, err = events.Connect(ctx, cfg.NATSURL, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer pub.Close()
	} else {
		log.Info("NATS not configured, event publishing disabled")
	}

	// Open the call and transcript store
	var st store.Store
	if cfg.DBPath != "" {
		db, err := store.OpenSQLite(store.SQLiteConfig{Path: cfg.DBPath, Logger: log})
		if err != nil {
			log.Error("failed to open database", zap.String("path", cfg.DBPath), zap.Error(err))
			os.Exit(1)
		}
		defer db.Close()
		st = db
		log.Info("using SQLite store", zap.String("path", cfg.DBPath))
	} else {
		st = store.NewMemory(clock.Real())
		log.Info("using in-memory store")
	}

	// Initialize the summarizer provider chain
	summarizerSvc := summarizer.New(summarizer.Config{
		Providers:   summarizerProviders(cfg, log),
		Timeout:     cfg.SummarizerTimeout,
		MaxAttempts: cfg.SummarizerAttempts,
		MaxInput:    cfg.SummarizerMaxInput,
		Logger:      log,
	})
	if names := summarizerSvc.ProviderNames(); len(names) > 0 {
		log.Info("summarizer providers configured", zap.Strings("providers", names))
	} else {
		log.Warn("no summarizer providers configured, summaries will use the local fallback")
	}

	// Room provider credentials and admin client
	minter := token.NewMinter(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.TokenTTL)
	roomClient := roomsvc.New(roomsvc.Config{
		URL:    cfg.LiveKitURL,
		Tokens: minter,
		Logger: log,
	})

	// Telephony gateway and call monitors
	var callbackURL string
	if cfg.BaseURL != "" {
		callbackURL = strings.TrimRight(cfg.BaseURL, "/") + "/webhooks/telephony"
	}
	gateway := telephony.NewGateway(telephony.GatewayConfig{
		AccountSID:        cfg.TwilioAccountSID,
		AuthToken:         cfg.TwilioAuthToken,
		From:              cfg.TwilioPhoneNumber,
		StatusCallbackURL: callbackURL,
		MaxRetries:        cfg.TwilioMaxRetries,
		RetryDelay:        cfg.TwilioRetryDelay,
		Logger:            log,
	})
	monitors := telephony.NewMonitorRegistry(telephony.MonitorConfig{
		Gateway: gateway,
		Rooms:   roomClient,
		Calls:   st,
		Logger:  log,
		OnStatus: func(ctx context.Context, record *model.CallRecord) {
			pub.CallStatusChanged(ctx, record)
		},
	})
	if !gateway.Configured() {
		log.Info("telephony not configured, phone transfers disabled")
	}

	// Room registry with background sweeper. Evicted rooms also lose
	// their transfer lock so the lock table cannot grow unbounded.
	locks := registry.NewLockTable(nil)
	reg := registry.New(registry.Config{
		RoomTimeout:   cfg.RoomTimeout,
		SweepInterval: cfg.RoomSweepInterval,
		Logger:        log,
		OnEvict: func(room string) {
			locks.Evict(room)
		},
	})
	runCtx, stopBackground := context.WithCancel(ctx)
	go reg.Run(runCtx)

	// Initialize the transfer coordinator
	coord := coordinator.New(coordinator.Config{
		Store:          st,
		Registry:       reg,
		Locks:          locks,
		Minter:         minter,
		Summarizer:     summarizerSvc,
		Rooms:          roomClient,
		Gateway:        gateway,
		Monitors:       monitors,
		Events:         pub,
		Logger:         log,
		LockWait:       cfg.TransferLockWait,
		CallerIdentity: cfg.CallerIdentity,
		TokenTTL:       cfg.TokenTTL,
	})

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(pub, st, summarizerSvc.ProviderNames(), cfg.TelephonyConfigured(), cfg.LiveKitURL != "")
	roomHandler := handler.NewRoomHandler(coord, log)
	transferHandler := handler.NewTransferHandler(coord, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Correlation-ID"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Status webhook. The telephony provider cannot present our API
	// token, so this stays outside the authenticated group.
	r.Post("/webhooks/telephony", transferHandler.Webhook)

	// API routes with authentication
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.APIAuth(cfg.APIAuthToken))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Use(middleware.RequestBounds)

		r.Post("/rooms", roomHandler.Create)
		r.Post("/rooms/join", roomHandler.Join)
		r.Post("/rooms/membership", roomHandler.Membership)
		r.Get("/rooms/{room}/summary", roomHandler.Summary)
		r.Get("/rooms/{room}/state", roomHandler.State)

		r.Post("/transfer", transferHandler.Transfer)
		r.Post("/transfer/phone", transferHandler.PhoneTransfer)
		r.Get("/calls/{room}", transferHandler.CallStatus)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	// Stop the sweeper and wait out the call monitors before the
	// deferred store and NATS teardown.
	stopBackground()
	monitors.Shutdown()

	log.Info("server stopped")
}

// summarizerProviders builds the completion provider chain in priority
// order: Groq first for latency, then OpenAI, then Anthropic. A client
// that fails to construct is skipped with a warning rather than
// blocking startup.
func summarizerProviders(cfg *config.Config, log *logger.Logger) []summarizer.Provider {
	var providers []summarizer.Provider
	if cfg.GroqAPIKey != "" {
		client, err := llm.NewOpenAICompatClient("groq", cfg.GroqAPIKey, groqBaseURL)
		if err != nil {
			log.Warn("failed to create Groq client", zap.Error(err))
		} else {
			providers = append(providers, summarizer.Provider{Client: client, Model: cfg.GroqModel, MaxTokens: 160, Temperature: 0.3})
		}
	}
	if cfg.OpenAIAPIKey != "" {
		client, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey)
		if err != nil {
			log.Warn("failed to create OpenAI client", zap.Error(err))
		} else {
			providers = append(providers, summarizer.Provider{Client: client, Model: cfg.OpenAIModel, MaxTokens: 120, Temperature: 0.3})
		}
	}
	if cfg.AnthropicAPIKey != "" {
		client, err := llm.NewAnthropicClient(cfg.AnthropicAPIKey)
		if err != nil {
			log.Warn("failed to create Anthropic client", zap.Error(err))
		} else {
			providers = append(providers, summarizer.Provider{Client: client, Model: cfg.AnthropicModel, MaxTokens: 160, Temperature: 0.3})
		}
	}
	return providers
}
