package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Discord    DiscordConfig
	Onboarding OnboardingConfig
	Queue      QueueConfig
	Jobs       JobsConfig
	RateLimit  RateLimitConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines panel authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// DiscordConfig binds the bot to its guilds and channels.
type DiscordConfig struct {
	Token            string
	ApplicationID    string
	MainGuildID      string
	StaffGuildID     string
	ReviewerChannel  string
	ModLogsChannel   string
	RegisterCommands bool
}

// OnboardingConfig tunes the staff onboarding script.
type OnboardingConfig struct {
	GuideURL             string
	SandboxBotID         string
	InactivityWindow     time.Duration
	CompletionExpiry     time.Duration
	SurveyTimeout        time.Duration
	ConfirmationTimeout  time.Duration
	ActorLockTTL         time.Duration
	SandboxGuildTemplate string
}

// QueueConfig tunes the bot review queue.
type QueueConfig struct {
	ClaimStaleAfter time.Duration
	MinClaimAge     time.Duration
}

// JobsConfig holds cron specs for reconciliation jobs. An empty spec disables the job.
type JobsConfig struct {
	AutoUnclaimSpec string
	StaffResyncSpec string
	TeamCleanupSpec string
}

// RateLimitConfig bounds RPC invocations per actor.
type RateLimitConfig struct {
	Requests  int
	Window    time.Duration
	CacheSize int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "arcadia"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "arcadia:"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Discord: DiscordConfig{
			Token:            os.Getenv("DISCORD_TOKEN"),
			ApplicationID:    os.Getenv("DISCORD_APPLICATION_ID"),
			MainGuildID:      os.Getenv("DISCORD_MAIN_GUILD_ID"),
			StaffGuildID:     os.Getenv("DISCORD_STAFF_GUILD_ID"),
			ReviewerChannel:  os.Getenv("DISCORD_REVIEWER_CHANNEL_ID"),
			ModLogsChannel:   os.Getenv("DISCORD_MOD_LOGS_CHANNEL_ID"),
			RegisterCommands: getEnvAsBool("DISCORD_REGISTER_COMMANDS", true),
		},
		Onboarding: OnboardingConfig{
			GuideURL:             getEnv("ONBOARDING_GUIDE_URL", "https://staff.example.org/guide"),
			SandboxBotID:         getEnv("ONBOARDING_SANDBOX_BOT_ID", "0"),
			InactivityWindow:     getEnvAsDuration("ONBOARDING_INACTIVITY_WINDOW", time.Hour),
			CompletionExpiry:     getEnvAsDuration("ONBOARDING_COMPLETION_EXPIRY", 30*24*time.Hour),
			SurveyTimeout:        getEnvAsDuration("ONBOARDING_SURVEY_TIMEOUT", 120*time.Second),
			ConfirmationTimeout:  getEnvAsDuration("ONBOARDING_CONFIRMATION_TIMEOUT", 60*time.Second),
			ActorLockTTL:         getEnvAsDuration("ONBOARDING_ACTOR_LOCK_TTL", 30*time.Second),
			SandboxGuildTemplate: os.Getenv("ONBOARDING_SANDBOX_GUILD_TEMPLATE"),
		},
		Queue: QueueConfig{
			ClaimStaleAfter: getEnvAsDuration("QUEUE_CLAIM_STALE_AFTER", time.Hour),
			MinClaimAge:     getEnvAsDuration("QUEUE_MIN_CLAIM_AGE", 5*time.Minute),
		},
		Jobs: JobsConfig{
			AutoUnclaimSpec: getEnv("JOBS_AUTO_UNCLAIM_SPEC", "@every 5m"),
			StaffResyncSpec: getEnv("JOBS_STAFF_RESYNC_SPEC", "@every 15m"),
			TeamCleanupSpec: getEnv("JOBS_TEAM_CLEANUP_SPEC", "@every 1h"),
		},
		RateLimit: RateLimitConfig{
			Requests:  getEnvAsInt("RPC_RATELIMIT_REQUESTS", 5),
			Window:    getEnvAsDuration("RPC_RATELIMIT_WINDOW", time.Minute),
			CacheSize: getEnvAsInt("RPC_RATELIMIT_CACHE_SIZE", 10000),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the panel token lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	if a.AccessTokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
