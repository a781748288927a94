package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/araddon/dateparse"

	"github.com/clinica-juridica/expediente/internal/server"
	"github.com/clinica-juridica/expediente/pkg/auth"
	"github.com/clinica-juridica/expediente/pkg/models"
)

// CaseActivityHandler returns the activity log of a case, newest first. The
// optional "since" query parameter accepts any common date format.
func CaseActivityHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		if r.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if _, ok := auth.GetActor(r.Context()); !ok {
			srv.Logger.Error("actor not found in request context", logArgs...)
			http.Error(w, "No authorization information in request", http.StatusUnauthorized)
			return
		}

		caseID, err := parseCaseID(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logArgs = append(logArgs, "case_id", caseID)

		var since time.Time
		if s := r.URL.Query().Get("since"); s != "" {
			since, err = dateparse.ParseAny(s)
			if err != nil {
				http.Error(w, fmt.Sprintf("Bad request: invalid since %q", s),
					http.StatusBadRequest)
				return
			}
		}

		db := srv.DB.WithContext(r.Context())
		exists, err := models.CaseExists(db, caseID)
		if err != nil {
			srv.Logger.Error("error checking case", append([]any{"error", err}, logArgs...)...)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if !exists {
			http.Error(w, "Case not found", http.StatusNotFound)
			return
		}

		entries, err := models.ListActivity(db, caseID, since)
		if err != nil {
			srv.Logger.Error("error listing activity", append([]any{"error", err}, logArgs...)...)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []models.ActivityLogEntry{}
		}
		respondJSON(srv, w, http.StatusOK, entries, logArgs)
	})
}
