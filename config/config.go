package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr  string
	JWTSecret string
	LogLevel  string
	LogFormat string

	DBDriver   string // mysql | sqlite
	DBHost     string
	DBPort     string
	DBUser     string
	DBPass     string
	DBName     string
	SQLitePath string

	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	MinioHost     string
	MinioPort     string
	MinioUsername string
	MinioPassword string
	MinioUseSSL   bool
	StagingDriver string // minio | memory
	StagingBucket string
	BackendBucket string

	BackendDriver   string // rest | minio | memory
	BackendBaseURL  string
	BackendToken    string
	BackendRootID   string
	BackendRate     float64
	BackendBurst    int
	BackendHTTPWait time.Duration

	RabbitMQEnabled  bool
	RabbitMQURL      string
	RabbitMQPrefetch int

	ReconcileConcurrency int
	ReconcileRate        float64
	ReconcileBurst       int
	ReconcileRetryMax    int
	ReconcileRetryDelays []time.Duration

	AlertEmail string
	SMTP       SMTPConfig
}

// SMTPConfig is the outgoing mail relay for operator alerts.
type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
	TLS      bool // implicit TLS; forced on port 465
	StartTLS bool
}

var AppConfig Config

// getEnv returns the environment value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return defaultValue
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvDurationList(key string, defaultValue []time.Duration) []time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		parsed, err := time.ParseDuration(part)
		if err != nil {
			return defaultValue
		}
		out = append(out, parsed)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// InitConfig loads configuration from the environment and initializes sub-configs.
func InitConfig() {
	rabbitURL := getEnv("RABBITMQ_URL", "")
	if rabbitURL == "" {
		rabbitURL = fmt.Sprintf(
			"amqp://%s:%s@%s:%s/%s",
			url.PathEscape(getEnv("RABBITMQ_USER", "guest")),
			url.PathEscape(getEnv("RABBITMQ_PASSWORD", "guest")),
			getEnv("RABBITMQ_HOST", "localhost"),
			getEnv("RABBITMQ_PORT", "5672"),
			url.PathEscape(getEnv("RABBITMQ_VHOST", "/")),
		)
	}
	AppConfig = Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8000"),
		JWTSecret: getEnv("JWT_SECRET", "l=ax+b"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DBDriver:   getEnv("DB_DRIVER", "mysql"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPass:     getEnv("DB_PASS", "root"),
		DBName:     getEnv("DB_NAME", "msgvault"),
		SQLitePath: getEnv("SQLITE_PATH", "data/msgvault.db"),

		RedisEnabled:  getEnvBool("REDIS_ENABLED", true),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioHost:     getEnv("MINIO_HOST", "localhost"),
		MinioPort:     getEnv("MINIO_PORT", "9000"),
		MinioUsername: getEnv("MINIO_USERNAME", "minioadmin"),
		MinioPassword: getEnv("MINIO_PASSWORD", "minioadmin"),
		MinioUseSSL:   getEnvBool("MINIO_USE_SSL", false),
		StagingDriver: getEnv("STAGING_DRIVER", "minio"),
		StagingBucket: getEnv("STAGING_BUCKET", "msgvault-staging"),
		BackendBucket: getEnv("BACKEND_BUCKET", "msgvault-backend"),

		BackendDriver:   getEnv("BACKEND_DRIVER", "rest"),
		BackendBaseURL:  getEnv("BACKEND_BASE_URL", "https://discord.com/api/v10"),
		BackendToken:    getEnv("BACKEND_TOKEN", ""),
		BackendRootID:   getEnv("BACKEND_ROOT_ID", ""),
		BackendRate:     getEnvFloat("BACKEND_RATE", 5),
		BackendBurst:    getEnvInt("BACKEND_BURST", 5),
		BackendHTTPWait: getEnvDuration("BACKEND_HTTP_TIMEOUT", 2*time.Minute),

		RabbitMQEnabled:  getEnvBool("RABBITMQ_ENABLED", true),
		RabbitMQURL:      rabbitURL,
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 8),

		ReconcileConcurrency: getEnvInt("RECONCILE_WORKER_CONCURRENCY", 2),
		ReconcileRate:        getEnvFloat("RECONCILE_RATE", 1),
		ReconcileBurst:       getEnvInt("RECONCILE_BURST", 2),
		ReconcileRetryMax:    getEnvInt("RECONCILE_RETRY_MAX", 5),
		ReconcileRetryDelays: getEnvDurationList(
			"RECONCILE_RETRY_DELAYS",
			[]time.Duration{30 * time.Second, 2 * time.Minute, 10 * time.Minute, 30 * time.Minute},
		),

		AlertEmail: getEnv("ALERT_EMAIL", ""),
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnv("SMTP_PORT", "587"),
			User:     getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASS", ""),
			From:     getEnv("SMTP_FROM", ""),
			TLS:      getEnvBool("SMTP_TLS", false),
			StartTLS: getEnvBool("SMTP_STARTTLS", true),
		},
	}

	InitTransferConfig()
}
