package server

import (
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/clinica-juridica/expediente/internal/config"
	"github.com/clinica-juridica/expediente/pkg/documents"
	"github.com/clinica-juridica/expediente/pkg/integrity"
)

// Server contains the server configuration.
type Server struct {
	// Config is the config for the server.
	Config *config.Config

	// DB is the database for the server.
	DB *gorm.DB

	// Documents files, reviews and deletes case documents.
	Documents *documents.Store

	// Auditor re-verifies the documents of a case on every case view.
	Auditor *integrity.Auditor

	// Logger is the logger for the server.
	Logger hclog.Logger
}
