package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint  string
	Observability ObservabilityConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Stripe      StripeConfig
	SMS         SMSConfig
	Email       EmailConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	Idempotency IdempotencyConfig
	Webhook     WebhookConfig
	SideEffects SideEffectConfig
	Receipts    ReceiptConfig

	PaymentPolicyPath string
}

type ObservabilityConfig struct {
	LogLevel      string
	LogFormat     string
	OTelEnabled   bool
	OTLPProtocol  string
	SamplingRatio float64
	// SlowQuery is the duration above which a statement is logged at WARN.
	SlowQuery time.Duration
	LogSQL    bool
}

type StripeConfig struct {
	SecretKey          string
	WebhookSecret      string
	BaseURL            string
	Timeout            time.Duration
	SignatureTolerance time.Duration
	SuccessURL         string
	CancelURL          string
}

type SMSConfig struct {
	Username           string
	APIKey             string
	SenderID           string
	BaseURL            string
	DefaultCountryCode string
	Timeout            time.Duration
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled      bool
	PaymentRate  float64
	PaymentBurst int
	ResendRate   float64
	ResendBurst  int
}

type IdempotencyConfig struct {
	Retention     time.Duration
	Lease         time.Duration
	Wait          time.Duration
	PurgeInterval time.Duration
}

type WebhookConfig struct {
	LookupAttempts int
	LookupBackoff  time.Duration
}

type SideEffectConfig struct {
	Workers   int
	QueueSize int
}

type ReceiptConfig struct {
	BusinessName    string
	BusinessAddress string
	BusinessPhone   string
	OutputDir       string
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPolicyHolder),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "paydesk"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		NodeID:       getenvInt64("NODE_ID", 1),
		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "paydesk"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "paydesk.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		Stripe: StripeConfig{
			SecretKey:          strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:      strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			BaseURL:            getenv("STRIPE_API_BASE", "https://api.stripe.com"),
			Timeout:            getenvDuration("STRIPE_TIMEOUT", 12*time.Second),
			SignatureTolerance: getenvDuration("STRIPE_SIGNATURE_TOLERANCE", 5*time.Minute),
			SuccessURL:         getenv("CHECKOUT_SUCCESS_URL", "http://localhost:8080/payment/success"),
			CancelURL:          getenv("CHECKOUT_CANCEL_URL", "http://localhost:8080/payment/cancel"),
		},
		SMS: SMSConfig{
			Username:           strings.TrimSpace(getenv("AT_USERNAME", "sandbox")),
			APIKey:             strings.TrimSpace(getenv("AT_API_KEY", "")),
			SenderID:           strings.TrimSpace(getenv("AT_SENDER_ID", "")),
			BaseURL:            getenv("AT_API_BASE", "https://api.africastalking.com"),
			DefaultCountryCode: getenv("SMS_DEFAULT_COUNTRY_CODE", "254"),
			Timeout:            getenvDuration("SMS_TIMEOUT", 10*time.Second),
		},
		Email: EmailConfig{
			SMTPHost:     getenv("SMTP_HOST", ""),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "receipts@paydesk.local"),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:      getenvBool("RATE_LIMIT_ENABLED", false),
			PaymentRate:  getenvFloat("RATE_LIMIT_PAYMENT_RATE", 2),
			PaymentBurst: getenvInt("RATE_LIMIT_PAYMENT_BURST", 10),
			ResendRate:   getenvFloat("RATE_LIMIT_RESEND_RATE", 0.05),
			ResendBurst:  getenvInt("RATE_LIMIT_RESEND_BURST", 3),
		},
		Idempotency: IdempotencyConfig{
			Retention:     getenvDuration("IDEMPOTENCY_RETENTION", 24*time.Hour),
			Lease:         getenvDuration("IDEMPOTENCY_LEASE", time.Minute),
			Wait:          getenvDuration("IDEMPOTENCY_WAIT", 15*time.Second),
			PurgeInterval: getenvDuration("IDEMPOTENCY_PURGE_INTERVAL", time.Hour),
		},
		Webhook: WebhookConfig{
			LookupAttempts: getenvInt("WEBHOOK_LOOKUP_ATTEMPTS", 4),
			LookupBackoff:  getenvDuration("WEBHOOK_LOOKUP_BACKOFF", 100*time.Millisecond),
		},
		SideEffects: SideEffectConfig{
			Workers:   getenvInt("SIDE_EFFECT_WORKERS", 4),
			QueueSize: getenvInt("SIDE_EFFECT_QUEUE_SIZE", 256),
		},
		Receipts: ReceiptConfig{
			BusinessName:    getenv("BUSINESS_NAME", "Paydesk Merchant"),
			BusinessAddress: getenv("BUSINESS_ADDRESS", ""),
			BusinessPhone:   getenv("BUSINESS_PHONE", ""),
			OutputDir:       getenv("RECEIPTS_DIR", "receipts"),
		},

		PaymentPolicyPath: strings.TrimSpace(getenv("PAYMENT_POLICY_PATH", "")),
	}

	cfg.Observability = ObservabilityConfig{
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogFormat:     getenv("LOG_FORMAT", "json"),
		OTelEnabled:   getenvBool("OTEL_ENABLED", cfg.IsProduction()),
		OTLPProtocol:  getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
		SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		SlowQuery:     getenvDuration("DB_SLOW_QUERY", 200*time.Millisecond),
		LogSQL:        getenvBool("DB_LOG_SQL", false),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
