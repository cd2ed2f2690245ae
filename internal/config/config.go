package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"knitkart/internal/jobs"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	BucketImages  string
	UseSSL        bool
	Region        string
	PresignExpiry time.Duration
	MaxUploadSize int64
}

type SessionConfig struct {
	Secret         string
	TTL            time.Duration
	RenewThreshold time.Duration
	CookieName     string
	CookieSecure   bool
	LoginPath      string
	OnboardingPath string
	HomePath       string
}

type PasswordResetConfig struct {
	TTL time.Duration
}

// Analysis modes.
const (
	AnalysisModeLocal  = "local"
	AnalysisModeStream = "stream"
)

// Job store backends.
const (
	JobStoreMemory = "memory"
	JobStoreRedis  = "redis"
)

type AnalysisConfig struct {
	Mode          string
	Store         string
	Endpoint      string
	APIKey        string
	Model         string
	Timeout       time.Duration
	JobTTL        time.Duration
	StaleAfter    time.Duration
	PollInterval  time.Duration
	MaxImages     int
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
	ClaimMinIdle  time.Duration
}

type LoggingConfig struct {
	Level string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Session          SessionConfig
	PasswordReset    PasswordResetConfig
	Analysis         AnalysisConfig
	Logging          LoggingConfig
	AllowCORSOrigins []string
}

func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("KNITKART")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func (c *AppConfig) Validate() error {
	if c.Session.Secret == "" {
		return errors.New("session.secret is required")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session.ttl must be positive")
	}
	if c.Session.RenewThreshold <= 0 || c.Session.RenewThreshold >= c.Session.TTL {
		return errors.New("session.renewthreshold must be positive and below session.ttl")
	}
	if c.PasswordReset.TTL <= 0 {
		return errors.New("passwordreset.ttl must be positive")
	}
	if c.Analysis.Timeout <= 0 {
		return errors.New("analysis.timeout must be positive")
	}
	if c.Analysis.StaleAfter < c.Analysis.Timeout {
		return errors.New("analysis.staleafter must not be below analysis.timeout")
	}
	if c.Analysis.JobTTL <= c.Analysis.StaleAfter {
		return errors.New("analysis.jobttl must exceed analysis.staleafter")
	}
	// A peer worker may only claim a task once the owner's analyzer call and
	// terminal write have both run out.
	if c.Analysis.ClaimMinIdle <= c.Analysis.Timeout+jobs.WriteTimeout {
		return fmt.Errorf("analysis.claimminidle must exceed analysis.timeout plus %s", jobs.WriteTimeout)
	}
	switch c.Analysis.Mode {
	case AnalysisModeLocal:
	case AnalysisModeStream:
		if c.Analysis.Store != JobStoreRedis {
			return errors.New("analysis.mode stream requires analysis.store redis")
		}
	default:
		return fmt.Errorf("unknown analysis.mode %q", c.Analysis.Mode)
	}
	if c.Analysis.Store != JobStoreMemory && c.Analysis.Store != JobStoreRedis {
		return fmt.Errorf("unknown analysis.store %q", c.Analysis.Store)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.bucketimages", "knitkart-product-images")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.presignexpiry", "15m")
	v.SetDefault("storage.maxuploadsize", 10<<20)

	v.SetDefault("session.ttl", "2160h")           // 90 days
	v.SetDefault("session.renewthreshold", "720h") // 30 days
	v.SetDefault("session.cookiename", "session")
	v.SetDefault("session.loginpath", "/login")
	v.SetDefault("session.onboardingpath", "/seller/onboarding")
	v.SetDefault("session.homepath", "/")

	v.SetDefault("passwordreset.ttl", "1h")

	v.SetDefault("analysis.mode", AnalysisModeLocal)
	v.SetDefault("analysis.store", JobStoreMemory)
	v.SetDefault("analysis.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("analysis.model", "gpt-4o-mini")
	v.SetDefault("analysis.timeout", "90s")
	v.SetDefault("analysis.jobttl", "1h")
	v.SetDefault("analysis.staleafter", "3m")
	v.SetDefault("analysis.pollinterval", "5s")
	v.SetDefault("analysis.maximages", 8)
	v.SetDefault("analysis.stream", "analysis:tasks")
	v.SetDefault("analysis.group", "analysis-workers")
	v.SetDefault("analysis.consumer", "worker-1")
	v.SetDefault("analysis.claiminterval", "30s")
	v.SetDefault("analysis.claimminidle", "2m")

	v.SetDefault("logging.level", "")
}
