// Package config loads the HCL configuration of the expediente server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/clinica-juridica/expediente/pkg/blobstore"
	"github.com/clinica-juridica/expediente/pkg/database"
	"github.com/clinica-juridica/expediente/pkg/documents"
)

const (
	StorageBackendLocal = "local"
	StorageBackendS3    = "s3"

	DefaultAddr        = "127.0.0.1:8000"
	DefaultAlertsTopic = "expediente.integrity-alerts"
	DefaultLocalRoot   = "data/content"
	DefaultSQLitePath  = "data/expediente.db"

	DefaultPublishTimeoutSeconds = 5
)

// Config contains the server configuration.
type Config struct {
	// LogFormat is "standard" or "json".
	LogFormat string `hcl:"log_format,optional"`

	Server    *Server    `hcl:"server,block"`
	Database  *Database  `hcl:"database,block"`
	Storage   *Storage   `hcl:"storage,block"`
	Documents *Documents `hcl:"documents,block"`
	Integrity *Integrity `hcl:"integrity,block"`
	Kafka     *Kafka     `hcl:"kafka,block"`
}

// Server configures the HTTP server.
type Server struct {
	Addr string `hcl:"addr,optional"`

	// AutoMigrate applies pending schema migrations at startup.
	AutoMigrate bool `hcl:"auto_migrate,optional"`
}

// Database configures the relational store.
type Database struct {
	Driver   string `hcl:"driver,optional"`
	Host     string `hcl:"host,optional"`
	Port     int    `hcl:"port,optional"`
	User     string `hcl:"user,optional"`
	Password string `hcl:"password,optional"`
	DBName   string `hcl:"dbname,optional"`
	SSLMode  string `hcl:"sslmode,optional"`
	Path     string `hcl:"path,optional"`

	MaxIdleConns int `hcl:"max_idle_conns,optional"`
	MaxOpenConns int `hcl:"max_open_conns,optional"`
}

// Storage configures where document content is kept.
type Storage struct {
	Backend string              `hcl:"backend,optional"`
	Local   *LocalStorage       `hcl:"local,block"`
	S3      *blobstore.S3Config `hcl:"s3,block"`
}

// LocalStorage configures the filesystem backend.
type LocalStorage struct {
	Root string `hcl:"root,optional"`
}

// Documents configures document filing.
type Documents struct {
	MaxContentBytes int64 `hcl:"max_content_bytes,optional"`
}

// Integrity configures the integrity auditor.
type Integrity struct {
	// LogMissing records the first detection of missing content in the case
	// activity log.
	LogMissing bool `hcl:"log_missing,optional"`
}

// Kafka configures integrity alert publishing.
type Kafka struct {
	Enabled     bool     `hcl:"enabled,optional"`
	Brokers     []string `hcl:"brokers,optional"`
	AlertsTopic string   `hcl:"alerts_topic,optional"`

	// PublishTimeoutSeconds bounds the delivery of one alert so that an
	// unreachable broker never stalls a case view.
	PublishTimeoutSeconds int `hcl:"publish_timeout_seconds,optional"`
}

// PublishTimeout returns the alert delivery bound.
func (k *Kafka) PublishTimeout() time.Duration {
	return time.Duration(k.PublishTimeoutSeconds) * time.Second
}

// NewConfig parses an HCL configuration file, applies defaults and
// environment overrides, and validates the result.
func NewConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("configuration file not found: %s", filename)
	}

	c := &Config{}
	if err := hclsimple.DecodeFile(filename, nil, c); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	c.SetDefaults()
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

// SetDefaults fills in missing blocks and values.
func (c *Config) SetDefaults() {
	if c.LogFormat == "" {
		c.LogFormat = "standard"
	}

	if c.Server == nil {
		c.Server = &Server{}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}

	if c.Database == nil {
		c.Database = &Database{}
	}
	if c.Database.Driver == "" {
		c.Database.Driver = database.DriverSQLite
	}
	switch c.Database.Driver {
	case database.DriverSQLite:
		if c.Database.Path == "" {
			c.Database.Path = DefaultSQLitePath
		}
	case database.DriverPostgres:
		if c.Database.Host == "" {
			c.Database.Host = "localhost"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.DBName == "" {
			c.Database.DBName = "expediente"
		}
	}

	if c.Storage == nil {
		c.Storage = &Storage{}
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageBackendLocal
	}
	if c.Storage.Backend == StorageBackendLocal {
		if c.Storage.Local == nil {
			c.Storage.Local = &LocalStorage{}
		}
		if c.Storage.Local.Root == "" {
			c.Storage.Local.Root = DefaultLocalRoot
		}
	}
	if c.Storage.S3 != nil {
		c.Storage.S3.SetDefaults()
	}

	if c.Documents == nil {
		c.Documents = &Documents{}
	}
	if c.Documents.MaxContentBytes == 0 {
		c.Documents.MaxContentBytes = documents.DefaultMaxContentBytes
	}

	if c.Integrity == nil {
		c.Integrity = &Integrity{}
	}

	if c.Kafka == nil {
		c.Kafka = &Kafka{}
	}
	if c.Kafka.AlertsTopic == "" {
		c.Kafka.AlertsTopic = DefaultAlertsTopic
	}
	if c.Kafka.PublishTimeoutSeconds == 0 {
		c.Kafka.PublishTimeoutSeconds = DefaultPublishTimeoutSeconds
	}
}

// applyEnv applies environment overrides for the alert broker settings.
func (c *Config) applyEnv() {
	if brokers := os.Getenv("EXPEDIENTE_KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = nil
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Kafka.Brokers = append(c.Kafka.Brokers, b)
			}
		}
		c.Kafka.Enabled = true
	}
	if topic := os.Getenv("EXPEDIENTE_ALERTS_TOPIC"); topic != "" {
		c.Kafka.AlertsTopic = topic
	}
}

// Validate reports every problem in the configuration.
func (c *Config) Validate() error {
	var result *multierror.Error

	switch c.LogFormat {
	case "standard", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("log_format must be \"standard\" or \"json\", got %q", c.LogFormat))
	}

	if c.Database != nil {
		switch c.Database.Driver {
		case database.DriverSQLite:
			if c.Database.Path == "" {
				result = multierror.Append(result, fmt.Errorf("database: path is required for sqlite"))
			}
		case database.DriverPostgres:
			if c.Database.User == "" {
				result = multierror.Append(result, fmt.Errorf("database: user is required for postgres"))
			}
		default:
			result = multierror.Append(result, fmt.Errorf("database: unsupported driver %q", c.Database.Driver))
		}
	}

	if c.Storage != nil {
		switch c.Storage.Backend {
		case StorageBackendLocal:
			if c.Storage.Local == nil || c.Storage.Local.Root == "" {
				result = multierror.Append(result, fmt.Errorf("storage: local root is required"))
			}
		case StorageBackendS3:
			if c.Storage.S3 == nil {
				result = multierror.Append(result, fmt.Errorf("storage: s3 block is required for the s3 backend"))
			} else if err := c.Storage.S3.Validate(); err != nil {
				result = multierror.Append(result, fmt.Errorf("storage: s3: %w", err))
			}
		default:
			result = multierror.Append(result, fmt.Errorf("storage: unsupported backend %q", c.Storage.Backend))
		}
	}

	if c.Documents != nil && c.Documents.MaxContentBytes < 0 {
		result = multierror.Append(result, fmt.Errorf("documents: max_content_bytes must be positive"))
	}

	if c.Kafka != nil && c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			result = multierror.Append(result, fmt.Errorf("kafka: at least one broker is required when enabled"))
		}
		if c.Kafka.AlertsTopic == "" {
			result = multierror.Append(result, fmt.Errorf("kafka: alerts_topic is required when enabled"))
		}
		if c.Kafka.PublishTimeoutSeconds < 0 {
			result = multierror.Append(result, fmt.Errorf("kafka: publish_timeout_seconds must be positive"))
		}
	}

	return result.ErrorOrNil()
}

// DatabaseConfig converts the database block into connection settings.
func (c *Config) DatabaseConfig() database.Config {
	d := c.Database
	return database.Config{
		Driver:       d.Driver,
		Host:         d.Host,
		Port:         d.Port,
		User:         d.User,
		Password:     d.Password,
		DBName:       d.DBName,
		SSLMode:      d.SSLMode,
		Path:         d.Path,
		MaxIdleConns: d.MaxIdleConns,
		MaxOpenConns: d.MaxOpenConns,
	}
}
