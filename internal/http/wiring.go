package httpapi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/companion-matching/internal/candidates"
	"github.com/example/companion-matching/internal/config"
	"github.com/example/companion-matching/internal/geocache"
	"github.com/example/companion-matching/internal/geocoding"
	"github.com/example/companion-matching/internal/ingest"
	"github.com/example/companion-matching/internal/matcher"
	"github.com/example/companion-matching/internal/meetingpoint"
	"github.com/example/companion-matching/internal/models"
	"github.com/example/companion-matching/internal/poi"
	"github.com/example/companion-matching/internal/routing"
	"github.com/example/companion-matching/internal/similarity"
	"github.com/example/companion-matching/internal/storage"
)

// NewServerFromConfig wires the providers, the intent store and the
// matching services. The returned func releases everything it opened. The
// geo-cache sweeper runs until ctx is done.
func NewServerFromConfig(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (*Server, func(), error) {
	store, closeStore, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	closers := []func() error{closeStore}

	cache := geocache.New(cfg.Cache.TTL, cfg.Cache.SweepInterval)
	go cache.Run(ctx)

	p := cfg.Providers
	router := routing.NewOSRMClient(p.OSRMURL, p.Timeout)
	if len(p.OSRMProfiles) > 0 {
		router.Profiles = make(map[models.TravelMode]string, len(p.OSRMProfiles))
		for mode, profile := range p.OSRMProfiles {
			router.Profiles[models.TravelMode(mode)] = profile
		}
	}
	geocoder := geocoding.NewClient(p.NominatimURL, p.UserAgent, p.Timeout)
	geocoder.CountryCodes = p.CountryCodes
	places := poi.NewClient(p.OverpassURL, p.Timeout)

	sim := similarity.New(router, cache, logger)
	sim.Weights = cfg.Matching.Weights
	sim.Timeout = p.Timeout
	sim.CorridorWidth = cfg.Matching.CorridorWidth

	opt := meetingpoint.New(places, geocoder, sim, cache, cfg.Meeting.Optimizer(p.Timeout), logger)
	filter := candidates.New(store, cfg.Matching.Window, cfg.Matching.Limit)
	svc := matcher.NewService(store, filter, sim, opt, geocoder, matcher.Config{
		MaxCandidateDistance: cfg.Matching.MaxCandidateDistance,
		RouteOverlap:         cfg.Matching.RouteOverlap,
		ProviderTimeout:      p.Timeout,
	}, logger)

	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		svc.Publisher = kp
		closers = append(closers, kp.Close)
		logger.Info("publishing intent events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	var ready ReadyFunc
	if pinger, ok := store.(storage.Pinger); ok {
		ready = pinger.Ping
	}

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("close failed", "error", err.Error())
			}
		}
	}
	return NewServer(svc, ready, logger), cleanup, nil
}

// OpenStore picks the intent store named by cfg.Store. With no explicit
// choice postgres wins over redis, and memory is used when neither is
// configured.
func OpenStore(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (storage.IntentStore, func() error, error) {
	kind := cfg.Store
	if kind == config.StoreAuto {
		switch {
		case cfg.PGDSN != "":
			kind = config.StorePostgres
		case cfg.RedisAddr != "":
			kind = config.StoreRedis
		default:
			kind = config.StoreMemory
		}
	}

	switch kind {
	case config.StorePostgres:
		ps, err := storage.NewPostgresStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, err
		}
		if cfg.RunMigrations {
			if err := storage.Migrate(ctx, ps.DB(), cfg.MigrationsDir, logger); err != nil {
				ps.Close()
				return nil, nil, err
			}
		}
		logger.Info("intent store ready", "store", kind)
		return ps, ps.Close, nil
	case config.StoreRedis:
		rs := storage.NewRedisStoreFromAddr(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisPrefix)
		logger.Info("intent store ready", "store", kind, "addr", cfg.RedisAddr)
		return rs, rs.Close, nil
	case config.StoreMemory:
		logger.Info("intent store ready", "store", kind)
		return storage.NewMemoryStore(), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q", kind)
}
