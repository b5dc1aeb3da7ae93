package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Scheduler SchedulerConfig
	Runs      RunsConfig
	Exports   ExportsConfig
	Imports   ImportsConfig
	Cache     CacheConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// AuthConfig identifies the single API tenant. APIKeyHash is a bcrypt hash
// of the admin key; tokens are only issued when the presented key matches.
type AuthConfig struct {
	ClientID   string
	APIKeyHash string
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Audience   string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig carries the environment layer of engine tuning. Period
// ranges are "start-end" strings parsed by the scheduling config service;
// persisted settings override these, and these override the built-in
// defaults.
type SchedulerConfig struct {
	PeriodsPerDay      int
	DayRange           string
	NightRange         string
	RestWindows        []string
	MorningPreferred   string
	AfternoonPreferred string
	PreferenceWeight   float64
	GapWeight          float64
	BalanceWeight      float64
	InitialTemperature float64
	CoolingRate        float64
	MaxIterations      int
	MinTemperature     float64
	SampleSize         int
}

// RunsConfig tunes the asynchronous timetable run worker.
type RunsConfig struct {
	QueueSize      int
	WorkerRetries  int
	RetryDelay     time.Duration
	RecoverOnStart bool
}

// ExportsConfig configures asynchronous export generation.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	CleanupInterval time.Duration
	CleanupMaxAge   time.Duration
	WorkerRetries   int
}

// ImportsConfig bounds CSV catalog uploads.
type ImportsConfig struct {
	MaxFileSizeBytes int64
	MaxRows          int
	Delimiter        string
}

// CacheConfig tunes read-side caching of finished runs.
type CacheConfig struct {
	Enabled bool
	RunTTL  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Auth = AuthConfig{
		ClientID:   v.GetString("AUTH_CLIENT_ID"),
		APIKeyHash: v.GetString("AUTH_API_KEY_HASH"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Audience:   v.GetString("JWT_AUDIENCE"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduler = SchedulerConfig{
		PeriodsPerDay:      v.GetInt("SCHEDULER_PERIODS_PER_DAY"),
		DayRange:           v.GetString("SCHEDULER_DAY_RANGE"),
		NightRange:         v.GetString("SCHEDULER_NIGHT_RANGE"),
		RestWindows:        splitAndTrim(v.GetString("SCHEDULER_REST_WINDOWS")),
		MorningPreferred:   v.GetString("SCHEDULER_MORNING_PREFERRED"),
		AfternoonPreferred: v.GetString("SCHEDULER_AFTERNOON_PREFERRED"),
		PreferenceWeight:   v.GetFloat64("SCHEDULER_PREFERENCE_WEIGHT"),
		GapWeight:          v.GetFloat64("SCHEDULER_GAP_WEIGHT"),
		BalanceWeight:      v.GetFloat64("SCHEDULER_BALANCE_WEIGHT"),
		InitialTemperature: v.GetFloat64("SCHEDULER_INITIAL_TEMPERATURE"),
		CoolingRate:        v.GetFloat64("SCHEDULER_COOLING_RATE"),
		MaxIterations:      v.GetInt("SCHEDULER_MAX_ITERATIONS"),
		MinTemperature:     v.GetFloat64("SCHEDULER_MIN_TEMPERATURE"),
		SampleSize:         v.GetInt("SCHEDULER_SAMPLE_SIZE"),
	}

	cfg.Runs = RunsConfig{
		QueueSize:      v.GetInt("RUNS_QUEUE_SIZE"),
		WorkerRetries:  v.GetInt("RUNS_WORKER_RETRIES"),
		RetryDelay:     parseDuration(v.GetString("RUNS_RETRY_DELAY"), 5*time.Second),
		RecoverOnStart: v.GetBool("RUNS_RECOVER_ON_START"),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval: parseDuration(v.GetString("EXPORTS_CLEANUP_INTERVAL"), time.Hour),
		CleanupMaxAge:   parseDuration(v.GetString("EXPORTS_CLEANUP_MAX_AGE"), 7*24*time.Hour),
		WorkerRetries:   v.GetInt("EXPORTS_WORKER_RETRIES"),
	}

	maxImportSize := v.GetInt64("IMPORTS_MAX_FILE_SIZE")
	if maxImportSize <= 0 {
		maxImportSize = 5 * 1024 * 1024
	}
	maxImportRows := v.GetInt("IMPORTS_MAX_ROWS")
	if maxImportRows <= 0 {
		maxImportRows = 10000
	}
	cfg.Imports = ImportsConfig{
		MaxFileSizeBytes: maxImportSize,
		MaxRows:          maxImportRows,
		Delimiter:        v.GetString("IMPORTS_DELIMITER"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("CACHE_ENABLED"),
		RunTTL:  parseDuration(v.GetString("CACHE_RUN_TTL"), 10*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "timetable")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("AUTH_CLIENT_ID", "admin")
	v.SetDefault("AUTH_API_KEY_HASH", "")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "timetable-api")
	v.SetDefault("JWT_AUDIENCE", "timetable-clients")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULER_PERIODS_PER_DAY", 30)
	v.SetDefault("SCHEDULER_DAY_RANGE", "1-20")
	v.SetDefault("SCHEDULER_NIGHT_RANGE", "21-30")
	v.SetDefault("SCHEDULER_REST_WINDOWS", "9-10,19-20")
	v.SetDefault("SCHEDULER_MORNING_PREFERRED", "1-10")
	v.SetDefault("SCHEDULER_AFTERNOON_PREFERRED", "11-20")
	v.SetDefault("SCHEDULER_PREFERENCE_WEIGHT", 1.0)
	v.SetDefault("SCHEDULER_GAP_WEIGHT", 0.5)
	v.SetDefault("SCHEDULER_BALANCE_WEIGHT", 0.25)
	v.SetDefault("SCHEDULER_INITIAL_TEMPERATURE", 25.0)
	v.SetDefault("SCHEDULER_COOLING_RATE", 0.995)
	v.SetDefault("SCHEDULER_MAX_ITERATIONS", 5000)
	v.SetDefault("SCHEDULER_MIN_TEMPERATURE", 0.01)
	v.SetDefault("SCHEDULER_SAMPLE_SIZE", 8)

	v.SetDefault("RUNS_QUEUE_SIZE", 16)
	v.SetDefault("RUNS_WORKER_RETRIES", 1)
	v.SetDefault("RUNS_RETRY_DELAY", "5s")
	v.SetDefault("RUNS_RECOVER_ON_START", true)

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("EXPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("EXPORTS_CLEANUP_MAX_AGE", "168h")
	v.SetDefault("EXPORTS_WORKER_RETRIES", 3)

	v.SetDefault("IMPORTS_MAX_FILE_SIZE", 5*1024*1024)
	v.SetDefault("IMPORTS_DELIMITER", ";")

	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_RUN_TTL", "10m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
