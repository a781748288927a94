// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/clinica-juridica/expediente/pkg/blobstore"
	"github.com/clinica-juridica/expediente/pkg/database"
	"github.com/clinica-juridica/expediente/pkg/models"
)

// NewDB returns a migrated, private in-memory SQLite database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Connect(database.Config{
		Driver: database.DriverSQLite,
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}, nil)
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(models.ModelsToAutoMigrate()...))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// NewCase creates a case with a unique RIT.
func NewCase(t *testing.T, db *gorm.DB) *models.Case {
	t.Helper()

	c := &models.Case{
		RolRIT:  "C-" + uuid.NewString()[:8],
		Caption: "Pérez con Soto",
	}
	require.NoError(t, c.Create(db))
	return c
}

// NewStore returns a content store backed by an in-memory filesystem.
func NewStore(t *testing.T) *blobstore.FSStore {
	t.Helper()

	store, err := blobstore.NewFSStore(afero.NewMemMapFs(), "/srv/expediente", nil)
	require.NoError(t, err)
	return store
}

// Overwrite replaces the stored content of key out of band.
func Overwrite(t *testing.T, store *blobstore.FSStore, key string, data []byte) {
	t.Helper()

	p, err := store.Path(key)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(store.Fs(), p, data, 0o600))
}

// Remove deletes the stored content of key out of band.
func Remove(t *testing.T, store *blobstore.FSStore, key string) {
	t.Helper()

	p, err := store.Path(key)
	require.NoError(t, err)
	require.NoError(t, store.Fs().Remove(p))
}

// NewLogger returns a debug logger writing to the test log.
func NewLogger(t *testing.T) hclog.Logger {
	t.Helper()

	return hclog.New(&hclog.LoggerOptions{
		Name:   "test",
		Level:  hclog.Debug,
		Output: testWriter{t},
	})
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
