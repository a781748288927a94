// Package base holds what every CLI command shares: its UI, its logger and
// the wiring from configuration to the running components.
package base

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/spf13/afero"

	"github.com/clinica-juridica/expediente/internal/config"
	"github.com/clinica-juridica/expediente/internal/migrate"
	"github.com/clinica-juridica/expediente/internal/server"
	"github.com/clinica-juridica/expediente/pkg/alerts"
	"github.com/clinica-juridica/expediente/pkg/blobstore"
	"github.com/clinica-juridica/expediente/pkg/database"
	"github.com/clinica-juridica/expediente/pkg/documents"
	"github.com/clinica-juridica/expediente/pkg/integrity"
)

// Command is embedded by every command.
type Command struct {
	Log hclog.Logger
	UI  cli.Ui
}

// FlagSet wraps a flag.FlagSet to render help text.
type FlagSet struct {
	*flag.FlagSet
}

// NewFlagSet returns a FlagSet wrapping f.
func NewFlagSet(f *flag.FlagSet) *FlagSet {
	return &FlagSet{FlagSet: f}
}

// Help returns the usage of every flag.
func (f *FlagSet) Help() string {
	var buf bytes.Buffer
	buf.WriteString("\n\nOptions:\n\n")
	f.VisitAll(func(fl *flag.Flag) {
		fmt.Fprintf(&buf, "  -%s\n", fl.Name)
		fmt.Fprintf(&buf, "      %s\n\n", strings.ReplaceAll(fl.Usage, "\n", "\n      "))
	})
	return strings.TrimRight(buf.String(), "\n")
}

// LoadConfig loads the configuration and reconfigures the logger's format.
func (c *Command) LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config flag is required")
	}

	cfg, err := config.NewConfig(path)
	if err != nil {
		return nil, err
	}

	if cfg.LogFormat == "json" {
		c.Log = hclog.New(&hclog.LoggerOptions{
			Name:       c.Log.Name(),
			Level:      c.Log.GetLevel(),
			JSONFormat: true,
		})
	}
	return cfg, nil
}

// Setup connects the database and content store and builds the components
// the commands run. The returned function releases what Setup opened.
func (c *Command) Setup(ctx context.Context, cfg *config.Config) (*server.Server, func(), error) {
	log := c.Log

	db, err := database.Connect(cfg.DatabaseConfig(), log)
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}

	if stats, err := database.GetPoolStats(db); err == nil {
		log.Info("database connected",
			"driver", cfg.Database.Driver,
			"max_open_conns", stats.MaxOpenConnections,
		)
	}

	cleanup := []func(){func() { _ = sqlDB.Close() }}
	closeAll := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}

	if cfg.Server.AutoMigrate {
		if err := migrate.RunMigrations(sqlDB, cfg.Database.Driver); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("error migrating database: %w", err)
		}
		log.Info("database schema is up to date")
	}

	var blobs blobstore.Store
	switch cfg.Storage.Backend {
	case config.StorageBackendS3:
		blobs, err = blobstore.NewS3Store(ctx, cfg.Storage.S3, log)
	default:
		blobs, err = blobstore.NewFSStore(afero.NewOsFs(), cfg.Storage.Local.Root, log)
	}
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("error initializing content store: %w", err)
	}
	log.Info("content store initialized", "backend", blobs.Name())

	auditOpts := []integrity.Option{
		integrity.WithLogger(log),
		integrity.WithLogMissing(cfg.Integrity.LogMissing),
	}
	if cfg.Kafka.Enabled {
		pub, err := alerts.NewPublisher(alerts.PublisherConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.AlertsTopic,
			Timeout: cfg.Kafka.PublishTimeout(),
			Logger:  log,
		})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("error initializing alert publisher: %w", err)
		}
		cleanup = append(cleanup, pub.Close)
		auditOpts = append(auditOpts,
			integrity.WithNotifier(pub),
			integrity.WithNotifyTimeout(cfg.Kafka.PublishTimeout()),
		)
		log.Info("publishing integrity alerts",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.AlertsTopic,
		)
	}

	srv := &server.Server{
		Config: cfg,
		DB:     db,
		Documents: documents.NewStore(db, blobs,
			documents.WithLogger(log),
			documents.WithMaxContentBytes(cfg.Documents.MaxContentBytes),
		),
		Auditor: integrity.NewAuditor(db, blobs, auditOpts...),
		Logger:  log,
	}
	return srv, closeAll, nil
}
