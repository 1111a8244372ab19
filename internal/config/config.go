package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string
	LogLevel     string
	CRDBDSN      string
	MongoURI     string
	MongoDB      string
	RedisAddr    string
	RabbitURL    string
	OTLPEndpoint string

	// LedgerBackend is "crdb" or "memory".
	LedgerBackend string

	// GatewayBackend is "razorpay" or "fake".
	GatewayBackend   string
	GatewayBaseURL   string
	GatewayKeyID     string
	GatewayKeySecret string
	GatewayCurrency  string
	GatewayTimeout   time.Duration

	CredentialSecret string
	IdempotencyTTL   time.Duration
	CatalogCacheTTL  time.Duration
	RateLimitPerMin  int
	ScanRateLimit    int
	ArtifactDir      string

	// NotifyMode is "local" or "rabbit".
	NotifyMode         string
	NotifyWorkers      int
	NotifyQueueSize    int
	SMTPHost           string
	SMTPPort           int
	SMTPUser           string
	SMTPPassword       string
	EmailFrom          string
	WhatsAppURL        string
	WhatsAppToken      string
	DefaultCountryDial string

	OutboxInterval  time.Duration
	OutboxBatchSize int

	// ScannerOperators lists gate staff as "name:bcrypt-hash" pairs separated
	// by commas. Ignored when operators are kept in MongoDB.
	ScannerOperators  string
	ScannerSessionTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:           getenv("HTTP_ADDR", ":8080"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		CRDBDSN:            os.Getenv("CRDB_DSN"),
		MongoURI:           os.Getenv("MONGO_URI"),
		MongoDB:            getenv("MONGO_DB", "tickets"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RabbitURL:          os.Getenv("RABBIT_URL"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LedgerBackend:      getenv("LEDGER_BACKEND", "crdb"),
		GatewayBackend:     getenv("GATEWAY_BACKEND", "razorpay"),
		GatewayBaseURL:     getenv("RAZORPAY_BASE_URL", "https://api.razorpay.com"),
		GatewayKeyID:       os.Getenv("RAZORPAY_KEY_ID"),
		GatewayKeySecret:   os.Getenv("RAZORPAY_KEY_SECRET"),
		GatewayCurrency:    getenv("GATEWAY_CURRENCY", "INR"),
		GatewayTimeout:     duration("GATEWAY_TIMEOUT", 10*time.Second),
		CredentialSecret:   os.Getenv("CREDENTIAL_SECRET"),
		IdempotencyTTL:     duration("IDEMPOTENCY_TTL", time.Hour),
		CatalogCacheTTL:    duration("CATALOG_CACHE_TTL", 30*time.Second),
		RateLimitPerMin:    integer("RATE_LIMIT_PER_MIN", 100),
		ScanRateLimit:      integer("SCAN_RATE_LIMIT_PER_MIN", 600),
		ArtifactDir:        getenv("ARTIFACT_DIR", "var/tickets"),
		NotifyMode:         getenv("NOTIFY_MODE", "local"),
		NotifyWorkers:      integer("NOTIFY_WORKERS", 4),
		NotifyQueueSize:    integer("NOTIFY_QUEUE_SIZE", 256),
		SMTPHost:           os.Getenv("EMAIL_HOST"),
		SMTPPort:           integer("EMAIL_PORT", 587),
		SMTPUser:           os.Getenv("EMAIL_USER"),
		SMTPPassword:       os.Getenv("EMAIL_PASSWORD"),
		EmailFrom:          os.Getenv("EMAIL_FROM"),
		WhatsAppURL:        os.Getenv("WHATSAPP_API_URL"),
		WhatsAppToken:      os.Getenv("WHATSAPP_API_TOKEN"),
		OutboxInterval:     duration("OUTBOX_INTERVAL", 5*time.Second),
		OutboxBatchSize:    integer("OUTBOX_BATCH_SIZE", 50),
		DefaultCountryDial: getenv("DEFAULT_COUNTRY_DIAL", "91"),
		ScannerOperators:   os.Getenv("SCANNER_OPERATORS"),
		ScannerSessionTTL:  duration("SCANNER_SESSION_TTL", 12*time.Hour),
	}

	if len(cfg.CredentialSecret) < 16 {
		return nil, errors.New("CREDENTIAL_SECRET must be set to at least 16 characters")
	}
	if cfg.LedgerBackend != "crdb" && cfg.LedgerBackend != "memory" {
		return nil, errors.Newf("unknown LEDGER_BACKEND %q", cfg.LedgerBackend)
	}
	if cfg.NotifyMode != "local" && cfg.NotifyMode != "rabbit" {
		return nil, errors.Newf("unknown NOTIFY_MODE %q", cfg.NotifyMode)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration) time.Duration {
	d, _ := time.ParseDuration(os.Getenv(key))
	if d <= 0 {
		return def
	}
	return d
}

func integer(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
