package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Observ   ObservabilityConfig
	Till     TillConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Driver string
	URL    string
}

// RedisConfig is disabled when Addr is empty
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig is disabled when Brokers is empty
type KafkaConfig struct {
	Brokers       []string
	TopicEvents   string
	ConsumerGroup string
}

type ObservabilityConfig struct {
	JaegerEndpoint string
}

type TillConfig struct {
	ReceiptsDir    string
	CommitLockTTL  time.Duration
	ReportTimezone string
}

func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

func Load() *Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	lockTTL, err := strconv.Atoi(getEnv("COMMIT_LOCK_TTL_SECONDS", "10"))
	if err != nil || lockTTL <= 0 {
		lockTTL = 10
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "sqlite"),
			URL:    getEnv("DATABASE_URL", "pos.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(getEnv("KAFKA_BROKERS", "")),
			TopicEvents:   getEnv("KAFKA_TOPIC_POS_EVENTS", "pos-events"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "pos-mirror-group"),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
		},
		Till: TillConfig{
			ReceiptsDir:    getEnv("RECEIPTS_DIR", "receipts"),
			CommitLockTTL:  time.Duration(lockTTL) * time.Second,
			ReportTimezone: getEnv("REPORT_TIMEZONE", "Local"),
		},
	}

	log.Printf("Config loaded: env=%s, port=%s, db=%s", cfg.Server.Env, cfg.Server.Port, cfg.Database.Driver)
	return cfg
}

// Location resolves ReportTimezone, falling back to the local zone
func (c TillConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		log.Printf("Unknown REPORT_TIMEZONE %q, using Local: %v", c.ReportTimezone, err)
		return time.Local
	}
	return loc
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
