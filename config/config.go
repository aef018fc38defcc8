package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env        string
	ServerPort int
	Database   DatabaseConfig
	Session    SessionConfig
	Credit     CreditConfig
	Bootstrap  BootstrapConfig
	Login      LoginConfig
	MQ         MQConfig
	Storage    StorageConfig
}

type DatabaseConfig struct {
	Host             string
	Port             int
	User             string
	Password         string
	DBName           string
	UseSSL           bool
	StatementTimeout time.Duration
}

// SessionConfig controls cookie-carried server-side sessions.
type SessionConfig struct {
	TTL           time.Duration
	CookieName    string
	CookieSecure  bool
	SingleActive  bool
	SweepInterval time.Duration
	Retention     time.Duration
}

// CreditConfig bounds ledger mutations.
type CreditConfig struct {
	MaxBalance     int64
	CandidateGrant int64
	MaxRetries     int
	NonceRetention time.Duration
}

// BootstrapConfig guards the unauthenticated super-admin bootstrap path and
// carries the optional startup seed credential.
type BootstrapConfig struct {
	Enabled      bool
	SecretKey    string
	SeedEmail    string
	SeedPassword string
}

type LoginConfig struct {
	MaxFailures int
	Window      time.Duration
	BlockFor    time.Duration
}

type MQConfig struct {
	Backend     string
	EventsTopic string
	RabbitMQ    RabbitMQConfig
	PubSub      PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	PrefetchCount   int
	QueueDurable    bool
	QueueAutoDelete bool
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type StorageConfig struct {
	Backend string
	Minio   MinioConfig
	GCS     GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

func LoadConfig() Config {
	env := getEnv("ENV", "")
	if env == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:             getEnv("DB_HOST", "localhost"),
		Port:             getEnvInt("DB_PORT", 5432),
		User:             getEnv("DB_USER", "mockzen"),
		Password:         getEnv("DB_PASSWORD", "password"),
		DBName:           getEnv("DB_NAME", "mockzen_db"),
		UseSSL:           getEnvBool("DB_USE_SSL", false),
		StatementTimeout: getEnvDuration("DB_STATEMENT_TIMEOUT", 5*time.Second),
	}

	return Config{
		Env:        env,
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		Database:   dbConfig,
		Session: SessionConfig{
			TTL:           getEnvDuration("SESSION_TTL", 7*24*time.Hour),
			CookieName:    getEnv("SESSION_COOKIE_NAME", "session"),
			CookieSecure:  getEnvBool("SESSION_COOKIE_SECURE", env != "dev"),
			SingleActive:  getEnvBool("SESSION_SINGLE_ACTIVE", false),
			SweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", time.Hour),
			Retention:     getEnvDuration("SESSION_RETENTION", 24*time.Hour),
		},
		Credit: CreditConfig{
			MaxBalance:     getEnvInt64("CREDIT_MAX_BALANCE", 1_000_000_000),
			CandidateGrant: getEnvInt64("CREDIT_CANDIDATE_GRANT", 5),
			MaxRetries:     getEnvInt("CREDIT_MAX_RETRIES", 5),
			NonceRetention: getEnvDuration("CREDIT_NONCE_RETENTION", 24*time.Hour),
		},
		Bootstrap: BootstrapConfig{
			Enabled:      getEnvBool("BOOTSTRAP_ENABLED", false),
			SecretKey:    strings.TrimSpace(getEnv("SUPERADMIN_SECRET_KEY", "")),
			SeedEmail:    strings.TrimSpace(getEnv("SUPERADMIN_EMAIL", "")),
			SeedPassword: getEnv("SUPERADMIN_PASSWORD", ""),
		},
		Login: LoginConfig{
			MaxFailures: getEnvInt("LOGIN_MAX_FAILURES", 5),
			Window:      getEnvDuration("LOGIN_WINDOW", 15*time.Minute),
			BlockFor:    getEnvDuration("LOGIN_BLOCK_FOR", 15*time.Minute),
		},
		MQ: MQConfig{
			Backend:     strings.ToLower(getEnv("MQ_BACKEND", "")),
			EventsTopic: getEnv("LEDGER_EVENTS_TOPIC", "ledger-events"),
			RabbitMQ: RabbitMQConfig{
				URL:             getEnv("RABBITMQ_URL", ""),
				PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 0),
				QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
				QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			},
			PubSub: PubSubConfig{
				ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
				CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
				SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
			},
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(getEnv("STORAGE_BACKEND", "")),
			Minio: MinioConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("MINIO_BUCKET", "mockzen"),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
			GCS: GCSConfig{
				Bucket:          getEnv("GCS_BUCKET", ""),
				ProjectID:       getEnv("GCS_PROJECT_ID", ""),
				CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
			},
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseInt(strings.TrimSpace(valueStr), 10, 64)
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}
