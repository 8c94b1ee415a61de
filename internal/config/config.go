package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/finsight/finsight-backend/internal/domain"
)

// Config holds the service configuration, loaded from an optional YAML file
// with environment variable overrides for deployment-specific values.
type Config struct {
	Addr              string `yaml:"addr"`
	APIToken          string `yaml:"api_token"`
	ReportingCurrency string `yaml:"reporting_currency"`
	SnapshotWorkers   int    `yaml:"snapshot_workers"`

	Log struct {
		Level    string `yaml:"level"`
		Encoding string `yaml:"encoding"`
	} `yaml:"log"`

	Database struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"ssl_mode"`
	} `yaml:"database"`

	// Rates seeds the static rate source, pair wire form -> rate,
	// e.g. "USDEUR": "0.92". Dev/test only; production deployments wire a
	// real market data collaborator instead.
	Rates map[string]string `yaml:"rates"`
}

// Load reads the configuration file at path (skipped when path is empty or
// the file does not exist), then applies defaults and env overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.APIToken == "" {
		c.APIToken = "dev-token"
	}
	if c.ReportingCurrency == "" {
		c.ReportingCurrency = "EUR"
	}
	if c.SnapshotWorkers == 0 {
		c.SnapshotWorkers = 8
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Encoding == "" {
		c.Log.Encoding = "json"
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == "" {
		c.Database.Port = "5432"
	}
	if c.Database.User == "" {
		c.Database.User = "postgres"
	}
	if c.Database.Password == "" {
		c.Database.Password = "postgres"
	}
	if c.Database.Name == "" {
		c.Database.Name = "finsight"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
}

func (c *Config) applyEnv() {
	setFromEnv(&c.Addr, "ADDR")
	setFromEnv(&c.APIToken, "API_TOKEN")
	setFromEnv(&c.ReportingCurrency, "REPORTING_CURRENCY")
	setFromEnv(&c.Log.Level, "LOG_LEVEL")
	setFromEnv(&c.Log.Encoding, "LOG_ENCODING")
	setFromEnv(&c.Database.Host, "DB_HOST")
	setFromEnv(&c.Database.Port, "DB_PORT")
	setFromEnv(&c.Database.User, "DB_USER")
	setFromEnv(&c.Database.Password, "DB_PASSWORD")
	setFromEnv(&c.Database.Name, "DB_NAME")
	setFromEnv(&c.Database.SSLMode, "DB_SSLMODE")
}

func setFromEnv(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

// DBConnString builds the lib/pq connection string.
func (c *Config) DBConnString() string {
	if explicit := os.Getenv("DB_CONN_STR"); explicit != "" {
		return explicit
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.Name, c.Database.SSLMode)
}

// StaticRates parses the configured rate seed into pairs and decimals.
func (c *Config) StaticRates() (map[domain.CurrencyPair]decimal.Decimal, error) {
	rates := make(map[domain.CurrencyPair]decimal.Decimal, len(c.Rates))
	for rawPair, rawRate := range c.Rates {
		pair, err := domain.ParsePair(rawPair)
		if err != nil {
			return nil, fmt.Errorf("invalid rate pair %q: %w", rawPair, err)
		}
		rate, err := decimal.NewFromString(rawRate)
		if err != nil {
			return nil, fmt.Errorf("invalid rate for %q: %w", rawPair, err)
		}
		rates[pair] = rate
	}
	return rates, nil
}
