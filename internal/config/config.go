package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewGatewayConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool

	Redis    RedisConfig
	Gateway  GatewayConfig
	Orders   OrderListenerConfig
	Outbox   OutboxConfig
	Receipts ReceiptConfig
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// GatewayConfig selects the payment provider. Values that can change at
// runtime live in gateway.yml (see GatewayConfigHolder).
type GatewayConfig struct {
	Provider    string
	BaseURL     string
	AccessToken string
	PayerEmail  string
}

type OrderListenerConfig struct {
	Enabled       bool
	Stream        string
	Group         string
	Consumer      string
	DeadLetter    string
	MaxDeliveries int64
	BlockTimeout  time.Duration
}

type OutboxConfig struct {
	Enabled      bool
	Stream       string
	PollInterval time.Duration
	BatchSize    int
	LockTTL      time.Duration
}

type ReceiptConfig struct {
	MerchantName string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	hostname, _ := os.Hostname()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "qrpay"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            getenvInt64("SNOWFLAKE_NODE_ID", 1),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "qrpay"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),
		Redis: RedisConfig{
			Enabled:  getenvBool("REDIS_ENABLED", true),
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Gateway: GatewayConfig{
			Provider:    strings.ToLower(strings.TrimSpace(getenv("PAYMENT_GATEWAY", "simulated"))),
			BaseURL:     strings.TrimSpace(getenv("MERCADOPAGO_BASE_URL", "https://api.mercadopago.com")),
			AccessToken: strings.TrimSpace(getenv("MERCADOPAGO_ACCESS_TOKEN", "")),
			PayerEmail:  strings.TrimSpace(getenv("MERCADOPAGO_PAYER_EMAIL", "")),
		},
		Orders: OrderListenerConfig{
			Enabled:       getenvBool("ORDER_LISTENER_ENABLED", true),
			Stream:        getenv("ORDER_CREATED_STREAM", "orders.created"),
			Group:         getenv("ORDER_CREATED_GROUP", "qrpay"),
			Consumer:      getenv("ORDER_CREATED_CONSUMER", hostname),
			DeadLetter:    getenv("ORDER_CREATED_DEAD_LETTER", "orders.created.dlq"),
			MaxDeliveries: getenvInt64("ORDER_CREATED_MAX_DELIVERIES", 5),
			BlockTimeout:  getenvDuration("ORDER_CREATED_BLOCK", 5*time.Second),
		},
		Outbox: OutboxConfig{
			Enabled:      getenvBool("OUTBOX_DISPATCH_ENABLED", true),
			Stream:       getenv("OUTBOX_STREAM", "payments.events"),
			PollInterval: getenvDuration("OUTBOX_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getenvInt("OUTBOX_BATCH_SIZE", 50),
			LockTTL:      getenvDuration("OUTBOX_LOCK_TTL", 30*time.Second),
		},
		Receipts: ReceiptConfig{
			MerchantName: getenv("RECEIPT_MERCHANT_NAME", "Tech Challenge Restaurant"),
		},
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
	return int(getenvInt64(key, int64(def)))
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
