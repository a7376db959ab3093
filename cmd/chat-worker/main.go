// Command chat-worker consumes queued chat turns from SQS and runs the
// completion-plus-capture pipeline for deployments where the API server and
// the workers scale independently. The conversation lives in the shared
// Redis transcript, turn-taking and lead identity go through the shared
// session state, and replies reach connected visitors over Redis pub/sub.
package main

import (
	"context"
	"crypto/tls"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/digitalelevon/digisinans-agency-web/cmd/mainconfig"
	"github.com/digitalelevon/digisinans-agency-web/internal/chat"
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
	logger.Info("starting digisinans chat worker", "env", cfg.Env)

	ctx := context.Background()
	chatMetrics := metrics.NewChatMetrics(prometheus.DefaultRegisterer)

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	if cfg.ChatQueueURL == "" {
		logger.Error("CHAT_QUEUE_URL is required")
		os.Exit(1)
	}
	queue := chat.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ChatQueueURL)

	var leadsRepo leads.Repository
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create pgx pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		leadsRepo = leads.NewPostgresRepository(pool)
	} else {
		leadsRepo = leads.NewInMemoryRepository()
		logger.Warn("lead storage: in-memory (DATABASE_URL not set)")
	}

	// Redis is mandatory here: without the shared transcript, session state,
	// and reply channel the API server never sees this worker's output.
	if cfg.RedisAddr == "" {
		logger.Error("REDIS_ADDR is required")
		os.Exit(1)
	}
	redisOpts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to ping redis", "error", err)
		os.Exit(1)
	}
	transcript := chat.NewRedisTranscriptStore(redisClient)

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

	worker := chat.NewWorker(queue, chat.NewRegistry(), adapter, logger,
		chat.WithWorkerCount(cfg.WorkerCount),
		chat.WithTranscriptStore(transcript),
		chat.WithCapture(capture),
		chat.WithSharedState(chat.NewRedisSessionState(redisClient)),
		chat.WithMessenger(chat.NewRedisReplyMessenger(redisClient)),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	worker.Run(runCtx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down chat worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := worker.Shutdown(shutdownCtx); err != nil {
		logger.Error("chat worker shutdown timed out", "error", err)
		os.Exit(1)
	}
	logger.Info("chat worker stopped")
}

// buildLLMClient mirrors cmd/api: a nil client degrades every reply to the
// credentials fallback instead of failing the worker.
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
