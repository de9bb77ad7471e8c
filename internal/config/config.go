package config

import (
	"errors"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr        string   `yaml:"addr" env:"SERVER_ADDR"`
		CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS"`
	} `yaml:"server"`
	DB struct {
		DSN            string `yaml:"dsn" env:"DB_DSN"`
		MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
	} `yaml:"db"`
	Log Log `yaml:"log"`
	Auth struct {
		JWTSecret  string `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
		UserHeader string `yaml:"user_header" env:"AUTH_USER_HEADER" env-default:"X-User-Id"`
	} `yaml:"auth"`
	Provider struct {
		BaseURL        string `yaml:"base_url" env:"PROVIDER_BASE_URL"`
		APIKey         string `yaml:"api_key" env:"PROVIDER_API_KEY"`
		TimeoutSeconds int    `yaml:"timeout_seconds" env:"PROVIDER_TIMEOUT_SECONDS" env-default:"15"`
	} `yaml:"provider"`
	Pricing struct {
		MarkupPercent float64 `yaml:"markup_percent" env:"PRICING_MARKUP_PERCENT"`
		Currency      string  `yaml:"currency" env:"LEDGER_CURRENCY" env-default:"BRL"`
	} `yaml:"pricing"`
	Catalog struct {
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds" env:"CATALOG_CACHE_TTL_SECONDS" env-default:"300"`
		RedisAddr       string `yaml:"redis_addr" env:"REDIS_ADDR"`
		RedisPassword   string `yaml:"redis_password" env:"REDIS_PASSWORD"`
		RedisDB         int    `yaml:"redis_db" env:"REDIS_DB"`
	} `yaml:"catalog"`
	Kafka struct {
		Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
		Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"smm-order-events"`
	} `yaml:"kafka"`
}

type Log struct {
	Level       string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Encoding    string `yaml:"encoding" env:"LOG_ENCODING" env-default:"json"`
	Development bool   `yaml:"development" env:"LOG_DEVELOPMENT"`
}

// Load reads the YAML file at path (or CONFIG_PATH, or configs/config.yaml)
// and then applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.DB.DSN == "" {
		return errors.New("db.dsn is required")
	}
	if c.Provider.BaseURL == "" || c.Provider.APIKey == "" {
		return errors.New("provider config is incomplete")
	}
	if c.Provider.TimeoutSeconds <= 0 {
		return errors.New("provider.timeout_seconds must be positive")
	}
	if c.Pricing.MarkupPercent < 0 {
		return errors.New("pricing.markup_percent must not be negative")
	}
	return nil
}
