// Package config loads the catalog configuration from an optional YAML file
// and CATALOG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// CATALOG_STORAGE_DRIVER.
const EnvPrefix = "CATALOG"

// Config holds the complete configuration for the catalog service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Security SecurityConfig `mapstructure:"security"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address         string        `mapstructure:"address" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" validate:"gt=0"`
}

// StorageConfig selects the durable backend.
type StorageConfig struct {
	Driver      string `mapstructure:"driver" validate:"oneof=file sqlite postgres memory"`
	FilePath    string `mapstructure:"file_path" validate:"required_if=Driver file"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn" validate:"required_if=Driver postgres"`
}

// CatalogConfig seeds the catalog-level fields of a fresh document.
type CatalogConfig struct {
	URL           string   `mapstructure:"url"`
	ProjectName   string   `mapstructure:"project_name"`
	ProjectOwners []string `mapstructure:"project_owners"`
	BrokerAddress string   `mapstructure:"broker_address"`
	BrokerPort    int      `mapstructure:"broker_port" validate:"gte=0,lte=65535"`
}

// SecurityConfig holds password hashing settings.
type SecurityConfig struct {
	BcryptCost int `mapstructure:"bcrypt_cost" validate:"gte=4,lte=31"`
}

// SweeperConfig controls the device staleness sweep.
type SweeperConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule" validate:"required_if=Enabled true"`
	MaxAge   time.Duration `mapstructure:"max_age" validate:"gt=0"`
}

// ArchiveConfig controls periodic snapshot uploads.
type ArchiveConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
	Prefix   string `mapstructure:"prefix"`
	Retain   int    `mapstructure:"retain" validate:"gte=0"`
}

// BlobConfig selects the snapshot blob backend.
type BlobConfig struct {
	Driver      string `mapstructure:"driver" validate:"oneof=fs s3 memory"`
	FSRoot      string `mapstructure:"fs_root"`
	S3Bucket    string `mapstructure:"s3_bucket" validate:"required_if=Driver s3"`
	S3Region    string `mapstructure:"s3_region"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3PathStyle bool   `mapstructure:"s3_path_style"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

// Load reads configuration. When path is empty catalog.yaml is searched in
// the working directory, ./config and /etc/glucoseiot; a missing file is not
// an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("catalog")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/glucoseiot")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":9080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.file_path", "service_catalog.json")
	v.SetDefault("storage.sqlite_path", "catalog.db")
	v.SetDefault("storage.postgres_dsn", "")

	v.SetDefault("catalog.url", "http://localhost:9080")
	v.SetDefault("catalog.project_name", "GlucoseIoT")
	v.SetDefault("catalog.project_owners", []string{})
	v.SetDefault("catalog.broker_address", "test.mosquitto.org")
	v.SetDefault("catalog.broker_port", 1883)

	v.SetDefault("security.bcrypt_cost", 12)

	v.SetDefault("sweeper.enabled", false)
	v.SetDefault("sweeper.schedule", "@every 30s")
	v.SetDefault("sweeper.max_age", "2m")

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.schedule", "@hourly")
	v.SetDefault("archive.prefix", "snapshots/")
	v.SetDefault("archive.retain", 48)

	v.SetDefault("blob.driver", "fs")
	v.SetDefault("blob.fs_root", "./archive")
	v.SetDefault("blob.s3_bucket", "")
	v.SetDefault("blob.s3_region", "us-east-1")
	v.SetDefault("blob.s3_endpoint", "")
	v.SetDefault("blob.s3_path_style", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// BrokerDefaults returns the broker object written into a fresh document.
func (c CatalogConfig) BrokerDefaults() map[string]any {
	return map[string]any{"IP": c.BrokerAddress, "port": c.BrokerPort}
}
