package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type MySQL struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type PortOne struct {
	APIURL        string
	APIKey        string
	APISecret     string
	WebhookSecret string
}

type Config struct {
	Env      string
	Port     int
	LogJSON  bool
	LogLevel string

	JWTSecret string

	// Storage is "mysql" or "memory".
	Storage string
	MySQL   MySQL
	// Redis.Addr empty means in-process locks and intents.
	Redis Redis

	// EventBroker is "rabbitmq", "kafka" or "none".
	EventBroker      string
	RabbitMQURL      string
	RabbitMQExchange string
	KafkaBrokers     []string
	KafkaTopic       string

	ProductServiceURL string
	CatalogTimeout    time.Duration

	// Gateway is "portone" or "fake".
	Gateway        string
	PortOne        PortOne
	GatewayTimeout time.Duration

	StoreCurrency  string
	MaxShippingFee int64

	CheckoutIntentTTL time.Duration
	LockTTL           time.Duration
	LockWait          time.Duration
}

func Default() Config {
	return Config{
		Env:      "development",
		Port:     8080,
		LogJSON:  true,
		LogLevel: "info",
		Storage:  "mysql",
		MySQL: MySQL{
			Host:         "127.0.0.1",
			Port:         "3306",
			User:         "root",
			Database:     "bindery",
			MaxOpenConns: 50,
			MaxIdleConns: 10,
		},
		EventBroker:       "none",
		RabbitMQExchange:  "order.exchange",
		KafkaTopic:        "order-events",
		ProductServiceURL: "http://127.0.0.1:8081",
		CatalogTimeout:    2 * time.Second,
		Gateway:           "portone",
		PortOne: PortOne{
			APIURL: "https://api.iamport.kr",
		},
		GatewayTimeout:    5 * time.Second,
		StoreCurrency:     "KRW",
		MaxShippingFee:    50000,
		CheckoutIntentTTL: 30 * time.Minute,
		LockTTL:           15 * time.Second,
		LockWait:          3 * time.Second,
	}
}

// Load reads the given dotenv files (missing files are skipped, variables already
// in the environment win) and returns Default overridden by the environment.
func Load(files ...string) Config {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		_ = godotenv.Load(f)
	}
	return FromEnv(Default())
}

func FromEnv(c Config) Config {
	c.Env = envString("APP_ENV", c.Env)
	c.Port = envInt("PORT", c.Port)
	c.LogJSON = envBool("LOG_JSON", c.LogJSON)
	c.LogLevel = envString("LOG_LEVEL", c.LogLevel)
	c.JWTSecret = envString("JWT_SECRET", c.JWTSecret)

	c.Storage = envString("STORAGE", c.Storage)
	c.MySQL.Host = envString("MYSQL_HOST", c.MySQL.Host)
	c.MySQL.Port = envString("MYSQL_PORT", c.MySQL.Port)
	c.MySQL.User = envString("MYSQL_USER", c.MySQL.User)
	c.MySQL.Password = envString("MYSQL_PASSWORD", c.MySQL.Password)
	c.MySQL.Database = envString("MYSQL_DB", c.MySQL.Database)
	c.MySQL.MaxOpenConns = envInt("MYSQL_MAX_OPEN_CONNS", c.MySQL.MaxOpenConns)
	c.MySQL.MaxIdleConns = envInt("MYSQL_MAX_IDLE_CONNS", c.MySQL.MaxIdleConns)

	if host := os.Getenv("REDIS_HOST"); host != "" {
		c.Redis.Addr = host + ":" + envString("REDIS_PORT", "6379")
	}
	c.Redis.Password = envString("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = envInt("REDIS_DB", c.Redis.DB)

	c.EventBroker = envString("EVENT_BROKER", c.EventBroker)
	c.RabbitMQURL = envString("RABBITMQ_URL", c.RabbitMQURL)
	c.RabbitMQExchange = envString("RABBITMQ_EXCHANGE", c.RabbitMQExchange)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.KafkaBrokers = splitList(v)
	}
	c.KafkaTopic = envString("KAFKA_TOPIC", c.KafkaTopic)

	c.ProductServiceURL = envString("PRODUCT_SERVICE_URL", c.ProductServiceURL)
	c.CatalogTimeout = envDuration("CATALOG_TIMEOUT", c.CatalogTimeout)

	c.Gateway = envString("PAYMENT_GATEWAY", c.Gateway)
	c.PortOne.APIURL = envString("PORTONE_API_URL", c.PortOne.APIURL)
	c.PortOne.APIKey = envString("PORTONE_API_KEY", c.PortOne.APIKey)
	c.PortOne.APISecret = envString("PORTONE_API_SECRET", c.PortOne.APISecret)
	c.PortOne.WebhookSecret = envString("PORTONE_WEBHOOK_SECRET", c.PortOne.WebhookSecret)
	c.GatewayTimeout = envDuration("GATEWAY_TIMEOUT", c.GatewayTimeout)

	c.StoreCurrency = envString("STORE_CURRENCY", c.StoreCurrency)
	c.MaxShippingFee = int64(envInt("MAX_SHIPPING_FEE", int(c.MaxShippingFee)))

	c.CheckoutIntentTTL = envDuration("CHECKOUT_INTENT_TTL", c.CheckoutIntentTTL)
	c.LockTTL = envDuration("LOCK_TTL", c.LockTTL)
	c.LockWait = envDuration("LOCK_WAIT", c.LockWait)
	return c
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) Validate() error {
	var errs []error
	switch c.Storage {
	case "mysql", "memory":
	default:
		errs = append(errs, fmt.Errorf("STORAGE must be mysql or memory, got %q", c.Storage))
	}
	switch c.EventBroker {
	case "none":
	case "rabbitmq":
		if c.RabbitMQURL == "" {
			errs = append(errs, errors.New("RABBITMQ_URL is required for EVENT_BROKER=rabbitmq"))
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required for EVENT_BROKER=kafka"))
		}
	default:
		errs = append(errs, fmt.Errorf("EVENT_BROKER must be rabbitmq, kafka or none, got %q", c.EventBroker))
	}
	switch c.Gateway {
	case "portone":
		if c.PortOne.APIKey == "" || c.PortOne.APISecret == "" {
			errs = append(errs, errors.New("PORTONE_API_KEY and PORTONE_API_SECRET are required for PAYMENT_GATEWAY=portone"))
		}
	case "fake":
		if c.IsProduction() {
			errs = append(errs, errors.New("PAYMENT_GATEWAY=fake is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("PAYMENT_GATEWAY must be portone or fake, got %q", c.Gateway))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() && c.PortOne.WebhookSecret == "" {
		errs = append(errs, errors.New("PORTONE_WEBHOOK_SECRET is required in production"))
	}
	if c.StoreCurrency == "" {
		errs = append(errs, errors.New("STORE_CURRENCY is required"))
	}
	if c.MaxShippingFee < 0 {
		errs = append(errs, errors.New("MAX_SHIPPING_FEE must not be negative"))
	}
	return errors.Join(errs...)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE":
		return true
	case "0", "false", "FALSE":
		return false
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
