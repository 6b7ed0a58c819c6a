package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// DSN renders the lib/pq connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		c.Host, c.Port, c.Database, c.User, c.Password,
	)
}

type ElasticsearchConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	UseSSL   bool   `mapstructure:"use_ssl"`
}

// Address renders the cluster URL for the Elasticsearch client.
func (c ElasticsearchConfig) Address() string {
	scheme := "http"
	if c.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// TableConfig selects one source table for replication. Immutable per cycle.
type TableConfig struct {
	Name            string `mapstructure:"name"`
	IndexName       string `mapstructure:"index_name"`
	TimestampColumn string `mapstructure:"timestamp_column"`
	PrimaryKey      string `mapstructure:"primary_key"`
}

type SyncConfig struct {
	Interval     time.Duration `mapstructure:"sync_interval"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinBatchSize int           `mapstructure:"min_batch_size"`
	MaxBatchSize int           `mapstructure:"max_batch_size"`
	RateLimit    int           `mapstructure:"rate_limit"`
	Tables       []TableConfig `mapstructure:"tables"`
}

type ServerConfig struct {
	Port       string `mapstructure:"port"`
	CORSOrigin string `mapstructure:"cors_origin"`
}

type Config struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Sync          SyncConfig          `mapstructure:"sync"`
	Server        ServerConfig        `mapstructure:"server"`
}

// Load reads the YAML configuration and applies fallback defaults. Credentials
// may be overridden through SEARCHSYNC_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("searchsync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	// Fallback defaults
	if config.Postgres.Port == 0 {
		config.Postgres.Port = 5432
	}
	if config.Elasticsearch.Port == 0 {
		config.Elasticsearch.Port = 9200
	}
	if config.Sync.Interval == 0 {
		config.Sync.Interval = 60 * time.Second
	}
	if config.Sync.PoolSize == 0 {
		config.Sync.PoolSize = 5
	}
	if config.Sync.MinBatchSize == 0 {
		config.Sync.MinBatchSize = 100
	}
	if config.Sync.MaxBatchSize == 0 {
		config.Sync.MaxBatchSize = 5000
	}
	if config.Sync.RateLimit == 0 {
		config.Sync.RateLimit = 1000
	}
	if config.Server.Port == "" {
		config.Server.Port = "8000"
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) validate() error {
	if len(c.Sync.Tables) == 0 {
		return fmt.Errorf("no tables configured for syncing")
	}
	for i, t := range c.Sync.Tables {
		if t.Name == "" {
			return fmt.Errorf("table %d: name is required", i+1)
		}
		if t.IndexName == "" {
			return fmt.Errorf("table '%s': index_name is required", t.Name)
		}
		if t.TimestampColumn == "" {
			return fmt.Errorf("table '%s': timestamp_column is required", t.Name)
		}
		if t.PrimaryKey == "" {
			return fmt.Errorf("table '%s': primary_key is required", t.Name)
		}
	}
	if c.Sync.MinBatchSize > c.Sync.MaxBatchSize {
		return fmt.Errorf("min_batch_size %d exceeds max_batch_size %d",
			c.Sync.MinBatchSize, c.Sync.MaxBatchSize)
	}
	return nil
}
