package api

import (
	"net/http"

	"github.com/clinica-juridica/expediente/internal/server"
	"github.com/clinica-juridica/expediente/pkg/auth"
)

// NewHandler returns the v2 API with identity enforcement.
func NewHandler(srv server.Server) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/v2/cases/{caseID}/documents", CaseDocumentsHandler(srv))
	mux.Handle("/api/v2/cases/{caseID}/activity", CaseActivityHandler(srv))
	mux.Handle("/api/v2/documents/{documentID}", DocumentHandler(srv))
	mux.Handle("/api/v2/documents/{documentID}/review", DocumentReviewHandler(srv))

	return auth.Middleware(mux, srv.Logger)
}
