package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const EnvProduction = "production"

type Config struct {
	Env        string           `yaml:"env" env:"ENV" env-default:"local"`
	HTTPServer HTTPServerConfig `yaml:"http_server"`
	MongoDB    MongoDBConfig    `yaml:"mongo"`
	Redis      RedisConfig      `yaml:"redis"`
	NATS       NATSConfig       `yaml:"nats"`
	Discount   DiscountConfig   `yaml:"discount"`
	Cart       CartConfig       `yaml:"cart"`
	Logger     LoggerConfig     `yaml:"logger"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Bootstrap  BootstrapConfig  `yaml:"bootstrap"`
}

type HTTPServerConfig struct {
	Port            string        `yaml:"port" env:"HTTP_PORT_BASKET_SERVICE" env-default:"8081"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"5s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"15s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"HTTP_REQUEST_TIMEOUT" env-default:"10s"`
	TimeoutGraceful time.Duration `yaml:"timeout_graceful_shutdown" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
}

type MongoDBConfig struct {
	URI        string `yaml:"uri" env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	User       string `yaml:"user" env:"MONGO_USER"`
	Password   string `yaml:"password" env:"MONGO_PASSWORD"`
	Database   string `yaml:"database" env:"MONGO_DATABASE" env-default:"basket_service_db"`
	Collection string `yaml:"collection" env:"MONGO_BASKET_COLLECTION" env-default:"baskets"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type NATSConfig struct {
	URL             string        `yaml:"url" env:"NATS_URL" env-default:"nats://localhost:4222"`
	Stream          string        `yaml:"stream" env:"NATS_BASKET_STREAM" env-default:"BASKET"`
	CheckoutSubject string        `yaml:"checkout_subject" env:"NATS_CHECKOUT_SUBJECT" env-default:"basket.checkout"`
	DuplicateWindow time.Duration `yaml:"duplicate_window" env:"NATS_DUPLICATE_WINDOW" env-default:"2m"`
	PublishTimeout  time.Duration `yaml:"publish_timeout" env:"NATS_PUBLISH_TIMEOUT" env-default:"5s"`
}

type DiscountConfig struct {
	Address            string        `yaml:"address" env:"DISCOUNT_SERVICE_ADDRESS" env-required:"true"`
	Timeout            time.Duration `yaml:"timeout" env:"DISCOUNT_TIMEOUT" env-default:"3s"`
	MaxConcurrency     int           `yaml:"max_concurrency" env:"DISCOUNT_MAX_CONCURRENCY" env-default:"8"`
	CAFile             string        `yaml:"ca_file" env:"DISCOUNT_CA_FILE"`
	ServerName         string        `yaml:"server_name" env:"DISCOUNT_SERVER_NAME"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify" env:"DISCOUNT_INSECURE_SKIP_VERIFY" env-default:"false"`
	Plaintext          bool          `yaml:"plaintext" env:"DISCOUNT_PLAINTEXT" env-default:"false"`
}

type CartConfig struct {
	TTL          time.Duration `yaml:"ttl" env:"CART_TTL" env-default:"24h"`
	CacheTimeout time.Duration `yaml:"cache_timeout" env:"CART_CACHE_TIMEOUT" env-default:"2s"`
}

type LoggerConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Encoding   string `yaml:"encoding" env:"LOG_ENCODING" env-default:"json"`
	TimeFormat string `yaml:"time_format" env:"LOG_TIME_FORMAT" env-default:"2006-01-02T15:04:05.000Z07:00"`
}

type TracingConfig struct {
	ServiceName  string `yaml:"service_name" env:"OTEL_SERVICE_NAME" env-default:"basket-service"`
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// BootstrapConfig bounds the connect loop run before the service accepts traffic.
type BootstrapConfig struct {
	Attempts uint          `yaml:"attempts" env:"BOOTSTRAP_ATTEMPTS" env-default:"5"`
	Delay    time.Duration `yaml:"delay" env:"BOOTSTRAP_DELAY" env-default:"2s"`
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Validate rejects combinations that would silently weaken the discount transport in production.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.Discount.InsecureSkipVerify {
			return errors.New("discount.insecure_skip_verify is not allowed in production")
		}
		if c.Discount.Plaintext {
			return errors.New("discount.plaintext is not allowed in production")
		}
	}
	if c.Discount.Timeout <= 0 {
		return fmt.Errorf("discount.timeout must be positive, got %s", c.Discount.Timeout)
	}
	if c.Bootstrap.Attempts == 0 {
		return errors.New("bootstrap.attempts must be at least 1")
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, err
		}
		return &cfg, cfg.Validate()
	}

	err := cleanenv.ReadConfig(path, &cfg)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, err
		}
		log.Printf("Warning: config file not found at %s, loading from environment variables only", path)
		if errEnv := cleanenv.ReadEnv(&cfg); errEnv != nil {
			return nil, errEnv
		}
	}
	return &cfg, cfg.Validate()
}

func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH_BASKET_SERVICE")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}
	return cfg
}
