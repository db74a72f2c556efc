package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/example/companion-matching/internal/meetingpoint"
	"github.com/example/companion-matching/internal/similarity"
)

const envPrefix = "COMPANION"

// Store backends.
const (
	StoreAuto     = ""
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// ServerConfig captures all tunable parameters for the API and consumer
// processes. Values come from defaults, then an optional config.yaml, then
// the environment, so the binaries run locally without setup.
type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ReadTimeout     time.Duration `mapstructure:"http_read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"http_write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"http_idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"http_shutdown_timeout"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`

	// Store selects the intent store; empty picks postgres, then redis,
	// then memory, by which one is configured.
	Store string `mapstructure:"store"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisPrefix   string `mapstructure:"redis_prefix"`

	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
	KafkaGroup   string   `mapstructure:"kafka_group"`

	PGDSN         string `mapstructure:"pg_dsn"`
	RunMigrations bool   `mapstructure:"migrate"`
	MigrationsDir string `mapstructure:"migrations_dir"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	Matching  MatchingConfig `mapstructure:"matching"`
	Meeting   MeetingConfig  `mapstructure:"meeting"`
	Cache     CacheConfig    `mapstructure:"cache"`
	Providers ProviderConfig `mapstructure:"providers"`
}

type MatchingConfig struct {
	Weights              similarity.ScoreWeights `mapstructure:",squash"`
	Window               time.Duration           `mapstructure:"window"`
	Limit                int                     `mapstructure:"limit"`
	MaxCandidateDistance float64                 `mapstructure:"max_candidate_distance"`
	RouteOverlap         bool                    `mapstructure:"route_overlap"`
	CorridorWidth        float64                 `mapstructure:"corridor_width"`
}

type MeetingConfig struct {
	RadiusMeters       float64                    `mapstructure:"radius_meters"`
	RefreshTopN        int                        `mapstructure:"refresh_top_n"`
	DisallowedKeywords []string                   `mapstructure:"disallowed_keywords"`
	DestinationWeight  float64                    `mapstructure:"destination_weight"`
	WalkingPace        float64                    `mapstructure:"walking_pace"`
	Concurrency        int                        `mapstructure:"concurrency"`
	Budget             time.Duration              `mapstructure:"budget"`
	Safety             meetingpoint.SafetyWeights `mapstructure:"safety"`
}

type CacheConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type ProviderConfig struct {
	OSRMURL      string            `mapstructure:"osrm_url"`
	OSRMProfiles map[string]string `mapstructure:"osrm_profiles"`
	NominatimURL string            `mapstructure:"nominatim_url"`
	OverpassURL  string            `mapstructure:"overpass_url"`
	UserAgent    string            `mapstructure:"user_agent"`
	CountryCodes string            `mapstructure:"country_codes"`
	Timeout      time.Duration     `mapstructure:"timeout"`
}

// Optimizer converts the meeting settings for meetingpoint.New.
func (m MeetingConfig) Optimizer(timeout time.Duration) meetingpoint.Config {
	c := meetingpoint.DefaultConfig()
	c.RadiusMeters = m.RadiusMeters
	c.RefreshTopN = m.RefreshTopN
	c.DisallowedKeywords = m.DisallowedKeywords
	c.DestinationWeight = m.DestinationWeight
	c.WalkingPace = m.WalkingPace
	c.Concurrency = m.Concurrency
	c.Safety = m.Safety
	c.Timeout = timeout
	c.Budget = m.Budget
	return c
}

func setDefaults(v *viper.Viper) {
	d := meetingpoint.DefaultConfig()
	defaults := map[string]any{
		"http_addr":             ":8080",
		"http_read_timeout":     5 * time.Second,
		"http_write_timeout":    10 * time.Second,
		"http_idle_timeout":     120 * time.Second,
		"http_shutdown_timeout": 15 * time.Second,
		"metrics_addr":          ":2112",
		"store":                 StoreAuto,
		"redis_addr":            "",
		"redis_password":        "",
		"redis_prefix":          "companion",
		"kafka_brokers":         []string{},
		"kafka_topic":           "travel-intents",
		"kafka_group":           "companion-matching-consumer",
		"pg_dsn":                "",
		"migrate":               false,
		"migrations_dir":        "migrations",
		"log_level":             "info",
		"log_format":            "json",

		"matching.source_weight":          similarity.DefaultWeights.Source,
		"matching.destination_weight":     similarity.DefaultWeights.Destination,
		"matching.cap_meters":             similarity.DefaultWeights.CapMeters,
		"matching.window":                 30 * time.Minute,
		"matching.limit":                  20,
		"matching.max_candidate_distance": 0.0,
		"matching.route_overlap":          false,
		"matching.corridor_width":         similarity.DefaultCorridorWidth,

		"meeting.radius_meters":       d.RadiusMeters,
		"meeting.refresh_top_n":       d.RefreshTopN,
		"meeting.disallowed_keywords": d.DisallowedKeywords,
		"meeting.destination_weight":  d.DestinationWeight,
		"meeting.walking_pace":        d.WalkingPace,
		"meeting.concurrency":         d.Concurrency,
		"meeting.budget":              d.Budget,

		"meeting.safety.base":           d.Safety.Base,
		"meeting.safety.per_police":     d.Safety.PerPolice,
		"meeting.safety.max_police":     d.Safety.MaxPolice,
		"meeting.safety.per_hospital":   d.Safety.PerHospital,
		"meeting.safety.max_hospital":   d.Safety.MaxHospital,
		"meeting.safety.per_lamp":       d.Safety.PerLamp,
		"meeting.safety.max_lamp":       d.Safety.MaxLamp,
		"meeting.safety.per_shop":       d.Safety.PerShop,
		"meeting.safety.max_shop":       d.Safety.MaxShop,
		"meeting.safety.per_commercial": d.Safety.PerCommercial,
		"meeting.safety.max_commercial": d.Safety.MaxCommercial,
		"meeting.safety.neutral":        d.Safety.Neutral,
		"meeting.safety.calculated":     d.Safety.Calculated,

		"cache.ttl":            300 * time.Second,
		"cache.sweep_interval": 60 * time.Second,

		"providers.osrm_url":      "https://router.project-osrm.org",
		"providers.nominatim_url": "https://nominatim.openstreetmap.org",
		"providers.overpass_url":  "https://overpass-api.de/api/interpreter",
		"providers.user_agent":    "companion-matching/1.0",
		"providers.country_codes": "",
		"providers.timeout":       8 * time.Second,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// bareEnv keeps the unprefixed variable names deployments already use.
var bareEnv = map[string]string{
	"http_addr":             "HTTP_ADDR",
	"http_read_timeout":     "HTTP_READ_TIMEOUT",
	"http_write_timeout":    "HTTP_WRITE_TIMEOUT",
	"http_idle_timeout":     "HTTP_IDLE_TIMEOUT",
	"http_shutdown_timeout": "HTTP_SHUTDOWN_TIMEOUT",
	"redis_addr":            "REDIS_ADDR",
	"redis_password":        "REDIS_PASSWORD",
	"kafka_brokers":         "KAFKA_BROKERS",
	"kafka_topic":           "KAFKA_TOPIC",
	"kafka_group":           "KAFKA_GROUP",
	"pg_dsn":                "PG_DSN",
	"migrate":               "MIGRATE",
	"log_level":             "LOG_LEVEL",
}

// Load reads the configuration. path names an explicit config file; when
// empty, config.yaml is looked up in . and ./configs and may be absent.
func Load(path string) (ServerConfig, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return ServerConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return ServerConfig{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	// COMPANION_MATCHING_WINDOW -> matching.window
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range bareEnv {
		if err := v.BindEnv(key, envPrefix+"_"+strings.ToUpper(key), name); err != nil {
			return ServerConfig{}, fmt.Errorf("bind %s: %w", name, err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.KafkaBrokers = splitAndTrim(cfg.KafkaBrokers)
	cfg.Meeting.DisallowedKeywords = splitAndTrim(cfg.Meeting.DisallowedKeywords)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))

	return cfg, cfg.Validate()
}

// Validate reports every invalid setting at once.
func (c ServerConfig) Validate() error {
	var errs []error
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", name))
		}
	}
	positive("http_read_timeout", c.ReadTimeout)
	positive("http_write_timeout", c.WriteTimeout)
	positive("http_shutdown_timeout", c.ShutdownTimeout)
	positive("matching.window", c.Matching.Window)
	positive("cache.ttl", c.Cache.TTL)
	positive("cache.sweep_interval", c.Cache.SweepInterval)
	positive("providers.timeout", c.Providers.Timeout)

	if c.Matching.Limit <= 0 {
		errs = append(errs, fmt.Errorf("matching.limit must be > 0"))
	}
	if c.Matching.Weights.CapMeters <= 0 {
		errs = append(errs, fmt.Errorf("matching.cap_meters must be > 0"))
	}
	if w := c.Matching.Weights; w.Source < 0 || w.Destination < 0 {
		errs = append(errs, fmt.Errorf("matching weights must not be negative"))
	}
	if c.Matching.MaxCandidateDistance < 0 {
		errs = append(errs, fmt.Errorf("matching.max_candidate_distance must be >= 0"))
	}
	if c.Meeting.RadiusMeters <= 0 {
		errs = append(errs, fmt.Errorf("meeting.radius_meters must be > 0"))
	}
	if c.Meeting.RefreshTopN <= 0 {
		errs = append(errs, fmt.Errorf("meeting.refresh_top_n must be > 0"))
	}
	positive("meeting.budget", c.Meeting.Budget)
	if c.Meeting.Budget >= c.WriteTimeout {
		errs = append(errs, fmt.Errorf("meeting.budget (%s) must be below http_write_timeout (%s)", c.Meeting.Budget, c.WriteTimeout))
	}
	errs = append(errs, c.Meeting.Safety.Validate()...)
	switch c.Store {
	case StoreAuto, StoreMemory:
	case StorePostgres:
		if c.PGDSN == "" {
			errs = append(errs, fmt.Errorf("store=postgres requires PG_DSN"))
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("store=redis requires REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log_format must be json or text, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

func splitAndTrim(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		for _, p := range strings.Split(r, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
