package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/b00y0h/barberbot/internal/business"
	"github.com/b00y0h/barberbot/internal/call"
	"github.com/b00y0h/barberbot/internal/config"
	"github.com/b00y0h/barberbot/internal/dialogue"
	"github.com/b00y0h/barberbot/internal/llm"
	"github.com/b00y0h/barberbot/internal/observability"
	"github.com/b00y0h/barberbot/internal/resilience"
	"github.com/b00y0h/barberbot/internal/store"
	"github.com/b00y0h/barberbot/internal/stt"
	"github.com/b00y0h/barberbot/internal/telephony"
	"github.com/b00y0h/barberbot/internal/tts"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	ctx := context.Background()

	profile, err := business.Load(cfg.BusinessProfilePath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.BusinessProfilePath).Msg("Failed to load business profile")
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("Failed to open store")
	}
	defer st.Close()

	awsCfg, err := cfg.AWSConfig(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load AWS configuration")
	}

	bedrockBreaker := resilience.NewCircuitBreaker("bedrock", cfg.CircuitBreakerMaxFailures, cfg.CircuitResetTimeout())
	provider := llm.NewBreaker(llm.NewBedrock(awsCfg, cfg.ConversationModel), bedrockBreaker)

	engine := dialogue.NewEngine(provider, st, profile, dialogue.Config{
		Model:             cfg.ConversationModel,
		SummaryModel:      cfg.SummaryModel,
		MaxTokens:         int32(cfg.LLMMaxTokens),
		Temperature:       float32(cfg.LLMTemperature),
		MaxToolIterations: cfg.MaxToolIterations,
	})

	// Missing TTS credentials degrade calls to silent rather than stopping the server
	ttsFactory, ttsErr := tts.NewFactory(cfg, awsCfg)
	if ttsErr != nil {
		logger.Error().Err(ttsErr).Str("provider", cfg.TTSProvider).Msg("TTS unavailable")
	}

	manager := call.NewManager(call.Options{
		Engine:        engine,
		Store:         st,
		STT:           stt.NewFactory(cfg, awsCfg),
		TTS:           ttsFactory,
		Debounce:      cfg.UtteranceDebounce(),
		TurnEnd:       call.TurnEnd(cfg.TurnEndSignal),
		GreetingDelay: cfg.GreetingDelay(),
	})

	var dialer *telephony.Dialer
	if cfg.TwilioAccountSID != "" {
		dialer, err = telephony.NewDialer(telephony.DialerConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			From:       cfg.TwilioPhoneNumber,
			StreamURL:  cfg.MediaStreamURL(),
			StatusURL:  cfg.PublicBaseURL + "/voice/status",
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Outbound calling disabled")
		}
	}

	readiness := observability.NewReadiness()
	readiness.Register("store", st.Ping)
	readiness.Register("bedrock", func(ctx context.Context) error {
		if provider.State() == resilience.StateOpen {
			requests, failures := bedrockBreaker.Stats()
			return fmt.Errorf("%w: %d of %d requests failed", resilience.ErrCircuitOpen, failures, requests)
		}
		return nil
	})
	readiness.Register("tts", func(ctx context.Context) error { return ttsErr })
	readiness.Register("stt", sttConfigured(cfg))

	mux := http.NewServeMux()
	mux.Handle("/voice/stream", telephony.NewMediaStreamHandler(manager))
	telephony.NewWebhooks(telephony.WebhookConfig{
		PublicBaseURL: cfg.PublicBaseURL,
		StreamURL:     cfg.MediaStreamURL(),
		AuthToken:     cfg.TwilioAuthToken,
		AdminKey:      cfg.AdminAPIKey,
	}, manager, dialer).Register(mux)
	mux.HandleFunc("/health", observability.HealthCheckHandler(manager.ActiveCount))
	mux.HandleFunc("/ready", observability.ReadinessHandler(readiness))

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// No WriteTimeout: the media stream websocket lives as long as the call
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var grpcHealth *observability.GRPCHealth
	if cfg.GRPCHealthPort != "" {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCHealthPort))
		if err != nil {
			logger.Fatal().Err(err).Str("port", cfg.GRPCHealthPort).Msg("Failed to listen for gRPC health")
		}
		grpcHealth = observability.NewGRPCHealth(readiness, 10*time.Second)
		go func() {
			if err := grpcHealth.Serve(lis); err != nil {
				logger.Error().Err(err).Msg("gRPC health server stopped")
			}
		}()
	}

	printBanner(profile.Name, cfg.Port, cfg.MediaStreamURL())

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("business", profile.Name).
			Str("stt", cfg.STTProvider).
			Str("tts", cfg.TTSProvider).
			Str("store", cfg.StoreDriver).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if grpcHealth != nil {
		grpcHealth.Stop()
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error ending active calls")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.StoreDriver != "postgres" {
		return store.NewMemory(), nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// the database may still be starting alongside the server
	var pg *store.Postgres
	err := resilience.Retry(connectCtx, resilience.DefaultRetryConfig(), func(ctx context.Context) error {
		var err error
		pg, err = store.NewPostgres(ctx, cfg.DatabaseURL)
		return err
	}, func(err error) bool { return connectCtx.Err() == nil })
	if err != nil {
		return nil, err
	}
	return pg, nil
}

// sttConfigured checks credentials only, so probes do not open billable sessions
func sttConfigured(cfg *config.Config) observability.HealthCheckFunc {
	return func(ctx context.Context) error {
		if cfg.STTProvider == "deepgram" && cfg.DeepgramAPIKey == "" {
			return &resilience.ConfigurationError{Provider: "deepgram", Field: "DEEPGRAM_API_KEY"}
		}
		return nil
	}
}
