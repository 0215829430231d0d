// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"matching-workers/internal/common/auth"
	awsclient "matching-workers/internal/common/aws"
	"matching-workers/internal/common/camunda"
	"matching-workers/internal/common/config"
	"matching-workers/internal/common/database"
	"matching-workers/internal/common/directory"
	"matching-workers/internal/common/logger"
	"matching-workers/internal/common/observability"

	// Queue Workers (4)
	eu "matching-workers/internal/workers/queue/enroll-user"
	qs "matching-workers/internal/workers/queue/queue-status"
	se "matching-workers/internal/workers/queue/sweep-expired"
	wu "matching-workers/internal/workers/queue/withdraw-user"

	// Matching Workers (5)
	fm "matching-workers/internal/workers/matching/find-match"
	mh "matching-workers/internal/workers/matching/match-history"
	ms "matching-workers/internal/workers/matching/matching-stats"
	ro "matching-workers/internal/workers/matching/record-outcome"
	sf "matching-workers/internal/workers/matching/submit-feedback"

	// Analytics Workers (3)
	fr "matching-workers/internal/workers/analytics/fairness-report"
	ga "matching-workers/internal/workers/analytics/global-analytics"
	ow "matching-workers/internal/workers/analytics/optimize-weights"

	// Data Access Workers (1)
	qp "matching-workers/internal/workers/data-access/query-postgresql"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("worker-manager")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var camundaClient *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		camundaClient, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         time.Duration(cfg.Camunda.RequestTimeout) * time.Millisecond,
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zeebeClient := camundaClient.GetClient()
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		// Test the connection
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init External Service Clients ---
	keycloakClient := auth.NewKeycloakClient(
		cfg.Auth.Keycloak.URL,
		cfg.Auth.Keycloak.Realm,
		cfg.Auth.Keycloak.ClientID,
		cfg.Auth.Keycloak.ClientSecret,
	)

	directoryClient := directory.NewClient(cfg.Directory)

	// SNS and SES are optional: the dependent handlers degrade to skipping
	// notification when the topic ARN or sender address is left empty.
	var snsClient *awsclient.SNSClient
	matchTopicARN := ""
	if cfg.Integrations.AWS.SNS.Enabled {
		snsClient, err = awsclient.NewSNSClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns client failed", zap.Error(err))
		}
		matchTopicARN = cfg.Integrations.AWS.SNS.MatchTopicARN
	}

	var sesClient *awsclient.SESClient
	feedbackFromEmail := ""
	if cfg.Integrations.AWS.SES.Enabled {
		sesClient, err = awsclient.NewSESClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Fatal("ses client failed", zap.Error(err))
		}
		feedbackFromEmail = cfg.Integrations.AWS.SES.FromEmail
	}

	zapLog.Info("All external service clients initialized")

	// --- START: Register ALL 13 Workers ---

	// --- 1. Queue Workers (4) ---
	if cfg.Workers[eu.TaskType].Enabled {
		handler := eu.NewHandler(
			&eu.Config{
				Timeout: time.Duration(cfg.Workers[eu.TaskType].Timeout) * time.Millisecond,
			},
			pg.DB, log,
		)
		startWorker(zeebeClient, eu.TaskType, cfg.Workers[eu.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[wu.TaskType].Enabled {
		handler := wu.NewHandler(
			&wu.Config{
				Timeout: time.Duration(cfg.Workers[wu.TaskType].Timeout) * time.Millisecond,
			},
			pg.DB, log,
		)
		startWorker(zeebeClient, wu.TaskType, cfg.Workers[wu.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[se.TaskType].Enabled {
		handler := se.NewHandler(
			&se.Config{
				Timeout: time.Duration(cfg.Workers[se.TaskType].Timeout) * time.Millisecond,
			},
			pg.DB, log,
		)
		startWorker(zeebeClient, se.TaskType, cfg.Workers[se.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[qs.TaskType].Enabled {
		handler := qs.NewHandler(
			&qs.Config{
				Timeout:    time.Duration(cfg.Workers[qs.TaskType].Timeout) * time.Millisecond,
				CacheTTL:   time.Minute,
				WaitWindow: time.Duration(cfg.Matching.WaitEstimateWindow) * time.Hour,
			},
			pg.DB, redis.Client, log,
		)
		startWorker(zeebeClient, qs.TaskType, cfg.Workers[qs.TaskType], handler.Handle, zapLog)
	}

	// --- 2. Matching Workers (5) ---
	if cfg.Workers[fm.TaskType].Enabled {
		handler := fm.NewHandler(
			&fm.Config{
				Timeout:         time.Duration(cfg.Workers[fm.TaskType].Timeout) * time.Millisecond,
				MinScore:        cfg.Matching.MinScore,
				Experiment:      cfg.Experiments.ActiveExperiment,
				Variants:        cfg.Experiments.Variants,
				MatchTopicARN:   matchTopicARN,
				ProfileCacheTTL: time.Duration(cfg.Matching.ProfileCacheTTL) * time.Second,
				WeightsCacheTTL: time.Duration(cfg.Matching.WeightsCacheTTL) * time.Second,
			},
			pg.DB, redis.Client, directoryClient, snsClient, log,
		)
		startWorker(zeebeClient, fm.TaskType, cfg.Workers[fm.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[ro.TaskType].Enabled {
		handler := ro.NewHandler(
			&ro.Config{
				Timeout:           time.Duration(cfg.Workers[ro.TaskType].Timeout) * time.Millisecond,
				AnalyticsIndex:    cfg.Database.Elasticsearch.Index,
				FeedbackFromEmail: feedbackFromEmail,
			},
			pg.DB, esClient, sesClient, log,
		)
		startWorker(zeebeClient, ro.TaskType, cfg.Workers[ro.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[sf.TaskType].Enabled {
		handler := sf.NewHandler(
			&sf.Config{
				Timeout:        time.Duration(cfg.Workers[sf.TaskType].Timeout) * time.Millisecond,
				AnalyticsIndex: cfg.Database.Elasticsearch.Index,
			},
			pg.DB, esClient, log,
		)
		startWorker(zeebeClient, sf.TaskType, cfg.Workers[sf.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[mh.TaskType].Enabled {
		handler := mh.NewHandler(
			&mh.Config{
				Timeout:      time.Duration(cfg.Workers[mh.TaskType].Timeout) * time.Millisecond,
				DefaultLimit: 20,
				MaxLimit:     100,
			},
			pg.DB, log,
		)
		startWorker(zeebeClient, mh.TaskType, cfg.Workers[mh.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[ms.TaskType].Enabled {
		handler := ms.NewHandler(
			&ms.Config{
				Timeout: time.Duration(cfg.Workers[ms.TaskType].Timeout) * time.Millisecond,
			},
			pg.DB, log,
		)
		startWorker(zeebeClient, ms.TaskType, cfg.Workers[ms.TaskType], handler.Handle, zapLog)
	}

	// --- 3. Analytics Workers (3) ---
	if cfg.Workers[ow.TaskType].Enabled {
		handler := ow.NewHandler(
			&ow.Config{
				Timeout:           time.Duration(cfg.Workers[ow.TaskType].Timeout) * time.Millisecond,
				MinSamples:        cfg.Matching.MinSamples,
				BatchLimit:        cfg.Matching.BatchLimit,
				WeightFloor:       cfg.Matching.WeightFloor,
				DecisionThreshold: cfg.Matching.DecisionThreshold,
				AdminRole:         cfg.Auth.AdminRole,
			},
			pg.DB, keycloakClient, log,
		)
		startWorker(zeebeClient, ow.TaskType, cfg.Workers[ow.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[fr.TaskType].Enabled {
		handler := fr.NewHandler(
			&fr.Config{
				Timeout:            time.Duration(cfg.Workers[fr.TaskType].Timeout) * time.Millisecond,
				Window:             30 * 24 * time.Hour,
				DisparityThreshold: cfg.Fairness.DisparityThreshold,
				MinSegmentSize:     cfg.Fairness.MinSegmentSize,
				Experiment:         cfg.Experiments.ActiveExperiment,
				SignificanceZ:      cfg.Experiments.SignificanceZ,
				AdminRole:          cfg.Auth.AdminRole,
			},
			pg.DB, directoryClient, keycloakClient, log,
		)
		startWorker(zeebeClient, fr.TaskType, cfg.Workers[fr.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[ga.TaskType].Enabled {
		handler := ga.NewHandler(
			&ga.Config{
				Timeout:        time.Duration(cfg.Workers[ga.TaskType].Timeout) * time.Millisecond,
				AnalyticsIndex: cfg.Database.Elasticsearch.Index,
				AdminRole:      cfg.Auth.AdminRole,
				DefaultRange:   30 * 24 * time.Hour,
			},
			esClient, keycloakClient, log,
		)
		startWorker(zeebeClient, ga.TaskType, cfg.Workers[ga.TaskType], handler.Handle, zapLog)
	}

	// --- 4. Data Access Workers (1) ---
	if cfg.Workers[qp.TaskType].Enabled {
		handler := qp.NewHandler(
			&qp.Config{
				Timeout: time.Duration(cfg.Workers[qp.TaskType].Timeout) * time.Millisecond,
			},
			pg.DB, log,
		)
		startWorker(zeebeClient, qp.TaskType, cfg.Workers[qp.TaskType], handler.Handle, zapLog)
	}

	zapLog.Info("All 13 workers registered successfully")

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := camundaClient.HealthCheck(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "not ready",
					"error":  err.Error(),
					"time":   time.Now().Format(time.RFC3339),
				})
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_ = shutdownCtx

	if err := zeebeClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func startWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handlerFunc func(worker.JobClient, entities.Job), log *zap.Logger) {
	if !wcfg.Enabled {
		log.Info("worker disabled", zap.String("taskType", taskType))
		return
	}

	client.NewJobWorker().
		JobType(taskType).
		Handler(handlerFunc).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	log.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
}
