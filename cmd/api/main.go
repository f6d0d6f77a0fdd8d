package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jobman-auth/internal/application/auth"
	"github.com/jobman-auth/internal/config"
	"github.com/jobman-auth/internal/infrastructure/broker"
	"github.com/jobman-auth/internal/infrastructure/dynamo"
	jwtinfra "github.com/jobman-auth/internal/infrastructure/jwt"
	s3infra "github.com/jobman-auth/internal/infrastructure/s3"
	"github.com/jobman-auth/internal/infrastructure/search"
	"github.com/jobman-auth/internal/infrastructure/sns"
	"github.com/jobman-auth/internal/observability/metrics"
	"github.com/jobman-auth/internal/pkg/errutil"
	"github.com/jobman-auth/internal/pkg/logging"
	transporthttp "github.com/jobman-auth/internal/transport/http"
	"github.com/joho/godotenv"
)

const serviceName = "auth"

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logger := logging.NewLogger(logging.Config{
		ServiceName: serviceName,
		Environment: cfg.AppEnv,
		Level:       cfg.LogLevel,
	})
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Info("no .env file found, reading from environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister(serviceName)

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)
	users := dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users, cfg.DynamoTables.Identities,
		dynamo.NewCounter(dynamoClient, cfg.DynamoTables.Counters))

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		logger.Error("jwt provider unavailable", "error", err)
		os.Exit(1)
	}

	s3Store := s3infra.NewStore(s3infra.NewClient(cfg), cfg.S3BucketName, cfg.S3PublicBaseURL)

	brokerManager := broker.NewManager(broker.Options{
		URL:         cfg.RabbitMQEndpoint,
		DialTimeout: cfg.BrokerDialTimeout,
		RetryAfter:  cfg.BrokerRetryAfter,
	}, logger)
	var publisher auth.Publisher
	switch cfg.NotifyTransport {
	case config.TransportSNS:
		snsClient, err := sns.NewClient(cfg)
		if err != nil {
			logger.Error("sns client unavailable", "error", err)
			os.Exit(1)
		}
		publisher = sns.NewPublisher(snsClient, cfg.SNSTopicARN, logger)
	default:
		// A failed eager connect is retried on the first publish.
		_ = brokerManager.Connect(ctx)
		publisher = broker.NewPublisher(brokerManager, logger)
	}

	searchClient, err := search.NewClient(cfg.ElasticSearchURL, nil, logger)
	if err != nil {
		errutil.LogError(ctx, logger, "search client unavailable", err)
		os.Exit(1)
	}
	policy := search.RetryPolicy{
		Interval:    cfg.HealthRetryInterval,
		MaxInterval: cfg.HealthRetryMaxInterval,
		Jitter:      cfg.HealthRetryJitter,
	}
	if err := search.WaitForHealthy(ctx, searchClient, policy.Backoff(), logger); err != nil {
		logger.Info("startup interrupted", "error", err)
		_ = brokerManager.Close()
		return
	}
	searchClient.EnsureIndex(ctx, cfg.ElasticSearchIndex)

	authSvc := auth.NewService(users, s3Store, publisher, jwtProvider, cfg.ClientURL, logger)
	router := transporthttp.NewRouter(ctx, cfg, &transporthttp.Deps{
		AuthService: authSvc,
		Verifier:    jwtProvider,
	}, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "pid", os.Getpid())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
	if err := brokerManager.Close(); err != nil {
		logger.Error("close broker", "error", err)
	}
	logger.Info("server stopped")
}
