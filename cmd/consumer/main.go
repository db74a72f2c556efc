package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/companion-matching/internal/config"
	"github.com/example/companion-matching/internal/ingest"
	"github.com/example/companion-matching/internal/logging"
	"github.com/example/companion-matching/internal/models"
	"github.com/example/companion-matching/internal/storage"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total intent events consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total undecodable intent events",
	})
	storeUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_store_updates_total",
		Help: "Total intents written to the redis index",
	})
	storeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_store_errors_total",
		Help: "Total intents the redis index rejected after retries",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, storeUpdates, storeErrors)
}

const (
	upsertAttempts = 3
	upsertDelay    = 200 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to a config file")
	metricsAddr := flag.String("metrics-addr", "", "address to serve prometheus metrics on; overrides metrics_addr")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)

	brokers := cfg.KafkaBrokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	redisAddr := cfg.RedisAddr
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	store := storage.NewRedisStoreFromAddr(redisAddr, cfg.RedisPassword, cfg.RedisPrefix)

	go serveOps(cfg.MetricsAddr, store, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroup, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = store.Close()
	}()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", brokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read failed", "error", err.Error(), "backoff", backoff.String())
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second
		msgsConsumed.Inc()

		if err := handleMessage(ctx, store, m.Value); err != nil {
			logger.Warn("intent event dropped", "offset", m.Offset, "partition", m.Partition, "error", err.Error())
		}
	}
}

func serveOps(addr string, store storage.Pinger, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
		w.Write([]byte("ready"))
	})
	logger.Info("metrics/health listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err.Error())
	}
}

// IntentUpserter is the part of the redis index the consumer writes to.
type IntentUpserter interface {
	Upsert(ctx context.Context, in *models.TravelIntent) error
}

var errInvalidEvent = errors.New("invalid intent event")

// handleMessage projects one intent event into the index.
func handleMessage(ctx context.Context, u IntentUpserter, value []byte) error {
	ev, err := ingest.DecodeIntentEvent(value)
	if err != nil {
		msgsInvalid.Inc()
		return fmt.Errorf("%w: %v", errInvalidEvent, err)
	}
	if err := upsertWithRetry(ctx, u, &ev.Intent, upsertAttempts, upsertDelay); err != nil {
		storeErrors.Inc()
		return fmt.Errorf("upsert intent %s: %w", ev.Intent.ID, err)
	}
	storeUpdates.Inc()
	return nil
}

// upsertWithRetry retries a failed write with doubling delay.
func upsertWithRetry(ctx context.Context, u IntentUpserter, in *models.TravelIntent, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = u.Upsert(ctx, in); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
