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
	Env string

	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	Scheduler  SchedulerConfig
	Sectioning SectioningConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig governs the slot placement engine and schedule builder.
type SchedulerConfig struct {
	Strategy            string
	AttemptBudget       int
	SaturdayFallback    bool
	StudentConflictMode string
	Seed                int64
	LockTTL             time.Duration
}

// Placement strategies supported by SchedulerConfig.Strategy.
const (
	StrategyRandom  = "random"
	StrategyPattern = "pattern"
)

// Student conflict strictness levels for automatic builds.
const (
	StudentConflictOff     = "off"
	StudentConflictWarn    = "warn"
	StudentConflictEnforce = "enforce"
)

// SectioningConfig governs the sectioning engine and rebalancer.
type SectioningConfig struct {
	UnderfillThreshold    float64
	AffinityLookbackTerms int
	MaxClusterIterations  int
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
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduler = SchedulerConfig{
		Strategy:            v.GetString("SCHEDULER_STRATEGY"),
		AttemptBudget:       v.GetInt("SCHEDULER_ATTEMPT_BUDGET"),
		SaturdayFallback:    v.GetBool("SCHEDULER_SATURDAY_FALLBACK"),
		StudentConflictMode: v.GetString("SCHEDULER_STUDENT_CONFLICT_MODE"),
		Seed:                v.GetInt64("SCHEDULER_SEED"),
		LockTTL:             parseDuration(v.GetString("SCHEDULER_LOCK_TTL"), 10*time.Minute),
	}

	cfg.Sectioning = SectioningConfig{
		UnderfillThreshold:    v.GetFloat64("SECTIONING_UNDERFILL_THRESHOLD"),
		AffinityLookbackTerms: v.GetInt("SECTIONING_AFFINITY_LOOKBACK_TERMS"),
		MaxClusterIterations:  v.GetInt("SECTIONING_MAX_CLUSTER_ITERATIONS"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "scheduling")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULER_STRATEGY", StrategyPattern)
	v.SetDefault("SCHEDULER_ATTEMPT_BUDGET", 60)
	v.SetDefault("SCHEDULER_SATURDAY_FALLBACK", true)
	v.SetDefault("SCHEDULER_STUDENT_CONFLICT_MODE", StudentConflictOff)
	v.SetDefault("SCHEDULER_SEED", 0)
	v.SetDefault("SCHEDULER_LOCK_TTL", "10m")

	v.SetDefault("SECTIONING_UNDERFILL_THRESHOLD", 0.30)
	v.SetDefault("SECTIONING_AFFINITY_LOOKBACK_TERMS", 4)
	v.SetDefault("SECTIONING_MAX_CLUSTER_ITERATIONS", 25)
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
