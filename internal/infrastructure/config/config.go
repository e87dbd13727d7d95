package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Queue      QueueConfig
	Retry      RetryConfig
	Quota      QuotaConfig
	TokenStore TokenStoreConfig
	Stripe     StripeConfig
	Media      MediaConfig
	Platforms  PlatformsConfig
	Telemetry  TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds JWT settings for the API surface
type JWTConfig struct {
	Secret                string
	AccessTokenExpiration time.Duration
	Issuer                string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSAllowOrigins  []string
	CORSAllowMethods  []string
	CORSAllowHeaders  []string
	TrustedProxies    []string
}

// QueueConfig holds lane dispatcher configuration
type QueueConfig struct {
	DispatcherEnabled bool
	PollInterval      time.Duration
	MaxInFlight       int
	MinInterval       time.Duration
	StuckCutoff       time.Duration
}

// RetryConfig holds retry backoff configuration
type RetryConfig struct {
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxAttempts    int
	JitterFraction float64
}

// QuotaConfig holds quota reservation configuration
type QuotaConfig struct {
	ReservationTTL time.Duration
	SweepInterval  time.Duration
	SweepEnabled   bool
}

// TokenStoreConfig holds token store configuration. EncryptionKey is the
// hex-encoded 32-byte key tokens are sealed with at rest.
type TokenStoreConfig struct {
	EncryptionKey string
	RefreshMargin time.Duration
}

// StripeConfig holds Stripe billing settings
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	IsTestMode    bool
}

// MediaConfig holds media storage probe settings
type MediaConfig struct {
	ProbeEnabled bool
	S3Region     string
	S3Bucket     string
	S3Endpoint   string // custom endpoint for MinIO or localstack
}

// PlatformConfig holds one platform adapter's settings
type PlatformConfig struct {
	BaseURL        string
	TokenURL       string
	ClientID       string
	ClientSecret   string
	TimeoutSeconds int
}

// PlatformsConfig holds all platform adapter settings
type PlatformsConfig struct {
	Facebook  PlatformConfig
	Instagram PlatformConfig
	LinkedIn  PlatformConfig
	X         PlatformConfig
	YouTube   PlatformConfig
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	DBTraceEnabled    bool
	DBSlowQueryThresh time.Duration
	// LogsEnabled ships zap output to the collector alongside traces and
	// metrics
	LogsEnabled bool
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with POSTPILOT_ prefix (e.g., POSTPILOT_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("POSTPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:                v.GetString("jwt.secret"),
			AccessTokenExpiration: v.GetDuration("jwt.access_token_expiration"),
			Issuer:                v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		Queue: QueueConfig{
			DispatcherEnabled: v.GetBool("queue.dispatcher_enabled"),
			PollInterval:      v.GetDuration("queue.poll_interval"),
			MaxInFlight:       v.GetInt("queue.max_in_flight"),
			MinInterval:       v.GetDuration("queue.min_interval"),
			StuckCutoff:       v.GetDuration("queue.stuck_cutoff"),
		},
		Retry: RetryConfig{
			BaseDelay:      v.GetDuration("retry.base_delay"),
			MaxDelay:       v.GetDuration("retry.max_delay"),
			MaxAttempts:    v.GetInt("retry.max_attempts"),
			JitterFraction: v.GetFloat64("retry.jitter_fraction"),
		},
		Quota: QuotaConfig{
			ReservationTTL: v.GetDuration("quota.reservation_ttl"),
			SweepInterval:  v.GetDuration("quota.sweep_interval"),
			SweepEnabled:   v.GetBool("quota.sweep_enabled"),
		},
		TokenStore: TokenStoreConfig{
			EncryptionKey: v.GetString("tokenstore.encryption_key"),
			RefreshMargin: v.GetDuration("tokenstore.refresh_margin"),
		},
		Stripe: StripeConfig{
			SecretKey:     v.GetString("stripe.secret_key"),
			WebhookSecret: v.GetString("stripe.webhook_secret"),
			IsTestMode:    v.GetBool("stripe.is_test_mode"),
		},
		Media: MediaConfig{
			ProbeEnabled: v.GetBool("media.probe_enabled"),
			S3Region:     v.GetString("media.s3_region"),
			S3Bucket:     v.GetString("media.s3_bucket"),
			S3Endpoint:   v.GetString("media.s3_endpoint"),
		},
		Platforms: PlatformsConfig{
			Facebook:  platformConfig(v, "facebook"),
			Instagram: platformConfig(v, "instagram"),
			LinkedIn:  platformConfig(v, "linkedin"),
			X:         platformConfig(v, "x"),
			YouTube:   platformConfig(v, "youtube"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func platformConfig(v *viper.Viper, name string) PlatformConfig {
	return PlatformConfig{
		BaseURL:        v.GetString("platforms." + name + ".base_url"),
		TokenURL:       v.GetString("platforms." + name + ".token_url"),
		ClientID:       v.GetString("platforms." + name + ".client_id"),
		ClientSecret:   v.GetString("platforms." + name + ".client_secret"),
		TimeoutSeconds: v.GetInt("platforms." + name + ".timeout_seconds"),
	}
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "postpilot-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "postpilot"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.AccessTokenExpiration == 0 {
		cfg.JWT.AccessTokenExpiration = 15 * time.Minute
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "postpilot-backend"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 100
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	// No wildcard CORS default; origins must be configured explicitly.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if cfg.Queue.PollInterval == 0 {
		cfg.Queue.PollInterval = time.Second
	}
	if cfg.Queue.MaxInFlight == 0 {
		cfg.Queue.MaxInFlight = 3
	}
	if cfg.Queue.MinInterval == 0 {
		cfg.Queue.MinInterval = 2 * time.Second
	}
	if cfg.Queue.StuckCutoff == 0 {
		cfg.Queue.StuckCutoff = 10 * time.Minute
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 10 * time.Second
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 15 * time.Minute
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 5
	}
	if cfg.Retry.JitterFraction == 0 {
		cfg.Retry.JitterFraction = 0.10
	}
	if cfg.Quota.ReservationTTL == 0 {
		cfg.Quota.ReservationTTL = 5 * time.Minute
	}
	if cfg.Quota.SweepInterval == 0 {
		cfg.Quota.SweepInterval = time.Minute
	}
	if cfg.TokenStore.RefreshMargin == 0 {
		cfg.TokenStore.RefreshMargin = 5 * time.Minute
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "postpilot-backend"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	applyPlatformDefaults(&cfg.Platforms)
}

func applyPlatformDefaults(p *PlatformsConfig) {
	defaults := map[*PlatformConfig][2]string{
		&p.Facebook:  {"https://graph.facebook.com/v21.0", "https://graph.facebook.com/v21.0/oauth/access_token"},
		&p.Instagram: {"https://graph.instagram.com/v21.0", "https://api.instagram.com/oauth/access_token"},
		&p.LinkedIn:  {"https://api.linkedin.com/v2", "https://www.linkedin.com/oauth/v2/accessToken"},
		&p.X:         {"https://api.x.com/2", "https://api.x.com/2/oauth2/token"},
		&p.YouTube:   {"https://www.googleapis.com/youtube/v3", "https://oauth2.googleapis.com/token"},
	}
	for cfg, urls := range defaults {
		if cfg.BaseURL == "" {
			cfg.BaseURL = urls[0]
		}
		if cfg.TokenURL == "" {
			cfg.TokenURL = urls[1]
		}
		if cfg.TimeoutSeconds == 0 {
			cfg.TimeoutSeconds = 30
		}
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Queue.MaxInFlight < 1 {
		return fmt.Errorf("queue.max_in_flight must be at least 1")
	}
	if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction >= 1 {
		return fmt.Errorf("retry.jitter_fraction must be in [0, 1), got %f", c.Retry.JitterFraction)
	}

	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.TokenStore.EncryptionKey == "" {
			return fmt.Errorf("tokenstore.encryption_key is required in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis address in host:port form
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
