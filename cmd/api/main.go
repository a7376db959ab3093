// Command api runs the Digisinans chat-widget API server. With
// USE_MEMORY_QUEUE=true (the default) it also runs the completion workers
// in-process, so a single binary serves the whole pipeline.
package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/digitalelevon/digisinans-agency-web/cmd/mainconfig"
	"github.com/digitalelevon/digisinans-agency-web/internal/api/router"
	"github.com/digitalelevon/digisinans-agency-web/internal/chat"
	"github.com/digitalelevon/digisinans-agency-web/internal/chat/widget"
	"github.com/digitalelevon/digisinans-agency-web/internal/completion"
	appconfig "github.com/digitalelevon/digisinans-agency-web/internal/config"
	"github.com/digitalelevon/digisinans-agency-web/internal/leads"
	"github.com/digitalelevon/digisinans-agency-web/internal/notify"
	"github.com/digitalelevon/digisinans-agency-web/internal/observability/metrics"
	"github.com/digitalelevon/digisinans-agency-web/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting digisinans agency API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	chatMetrics := metrics.NewChatMetrics(prometheus.DefaultRegisterer)

	// Lead storage: Postgres when configured, in-memory otherwise.
	var leadsRepo leads.Repository
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create pgx pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		leadsRepo = leads.NewPostgresRepository(pool)
		logger.Info("lead storage: postgres")
	} else {
		leadsRepo = leads.NewInMemoryRepository()
		logger.Warn("lead storage: in-memory (DATABASE_URL not set)")
	}

	// Transcript storage: Redis when configured, in-memory otherwise.
	var transcript chat.TranscriptStore
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		defer func() { _ = redisClient.Close() }()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to ping redis", "error", err)
			os.Exit(1)
		}
		transcript = chat.NewRedisTranscriptStore(redisClient)
		logger.Info("transcript storage: redis")
	} else {
		transcript = chat.NewMemoryTranscriptStore()
		logger.Warn("transcript storage: in-memory (REDIS_ADDR not set)")
	}

	llmClient, provider, model := buildLLMClient(ctx, cfg, logger)
	adapter := completion.NewAdapter(llmClient, provider, model, logger,
		completion.WithAdapterMetrics(chatMetrics),
	)

	captureOpts := []leads.CaptureOption{
		leads.WithNameReplyMaxChars(cfg.NameReplyMaxChars),
		leads.WithPlaceholderName(cfg.LeadPlaceholderName),
		leads.WithCaptureMetrics(chatMetrics),
	}
	if sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sender != nil {
		if notifier := notify.NewLeadNotifier(sender, cfg.LeadNotifyEmail, logger); notifier != nil {
			captureOpts = append(captureOpts, leads.WithNotifier(notifier))
		}
	}
	capture := leads.NewCaptureManager(leadsRepo, logger, captureOpts...)

	sessions := chat.NewRegistry()

	// Queue: in-memory by default, SQS for multi-process deployments where
	// the standalone chat-worker binary consumes the turns. Split mode needs
	// Redis, which carries the shared turn state and the reply channel back
	// from the worker processes.
	var memQueue *chat.MemoryQueue
	var publisher *chat.Publisher
	var handlerOpts []chat.HandlerOption
	if cfg.UseMemoryQueue {
		memQueue = chat.NewMemoryQueue(256)
		publisher = chat.NewPublisher(memQueue, logger)
	} else {
		if redisClient == nil {
			logger.Error("REDIS_ADDR is required when USE_MEMORY_QUEUE=false")
			os.Exit(1)
		}
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		sqsQueue := chat.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ChatQueueURL)
		publisher = chat.NewPublisher(sqsQueue, logger)
		handlerOpts = append(handlerOpts, chat.WithSharedSessionState(chat.NewRedisSessionState(redisClient)))
	}

	chatHandler := chat.NewHandler(publisher, sessions, transcript, widget.JS, logger, handlerOpts...)

	var worker *chat.Worker
	var subscriber *chat.ReplySubscriber
	if memQueue != nil {
		worker = chat.NewWorker(memQueue, sessions, adapter, logger,
			chat.WithWorkerCount(cfg.WorkerCount),
			chat.WithTranscriptStore(transcript),
			chat.WithCapture(capture),
			chat.WithMessenger(chat.NewWebSocketMessenger(chatHandler, logger)),
		)
		worker.Run(ctx)
	} else {
		subscriber = chat.NewReplySubscriber(redisClient, chatHandler, logger)
		subscriber.Run(ctx)
	}

	r := router.New(&router.Config{
		Logger:             logger,
		ChatHandler:        chatHandler,
		LeadsHandler:       leads.NewHandler(leadsRepo, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ChatRateLimit:      5,
		ChatRateBurst:      10,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if worker != nil {
		if err := worker.Shutdown(shutdownCtx); err != nil {
			logger.Error("worker forced to shutdown", "error", err)
		}
	}
	if subscriber != nil {
		if err := subscriber.Shutdown(shutdownCtx); err != nil {
			logger.Error("reply subscriber forced to shutdown", "error", err)
		}
	}

	logger.Info("server stopped")
}

// buildLLMClient selects the completion provider. A nil client is a valid
// outcome: the adapter then answers every turn with the credentials
// fallback instead of crashing the pipeline.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (completion.LLMClient, string, string) {
	switch cfg.LLMProvider {
	case "bedrock":
		if cfg.BedrockModelID == "" {
			logger.Warn("BEDROCK_MODEL_ID not set; chat replies degrade to the fallback message")
			return nil, "bedrock", ""
		}
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config for bedrock", "error", err)
			return nil, "bedrock", cfg.BedrockModelID
		}
		return completion.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg)), "bedrock", cfg.BedrockModelID
	default:
		if cfg.GeminiAPIKey == "" {
			logger.Warn("GEMINI_API_KEY not set; chat replies degrade to the fallback message")
			return nil, "gemini", cfg.GeminiModelID
		}
		client, err := completion.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to create gemini client", "error", err)
			return nil, "gemini", cfg.GeminiModelID
		}
		return client, "gemini", cfg.GeminiModelID
	}
}
