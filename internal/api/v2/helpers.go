package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/clinica-juridica/expediente/internal/server"
	"github.com/clinica-juridica/expediente/pkg/approval"
	"github.com/clinica-juridica/expediente/pkg/documents"
)

// decodeRequest decodes the JSON body of r into v.
func decodeRequest(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("error decoding request body: %w", err)
	}
	return nil
}

// respondJSON writes v as a JSON response with the given status.
func respondJSON(srv server.Server, w http.ResponseWriter, status int, v any, logArgs []any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		srv.Logger.Error("error encoding response",
			append([]any{"error", err}, logArgs...)...)
	}
}

// respondError maps core errors to HTTP responses.
func respondError(srv server.Server, w http.ResponseWriter, err error, logArgs []any) {
	var verr *documents.ValidationError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Error(), http.StatusBadRequest)
	case errors.Is(err, documents.ErrCaseNotFound):
		http.Error(w, "Case not found", http.StatusNotFound)
	case errors.Is(err, documents.ErrDocumentNotFound):
		http.Error(w, "Document not found", http.StatusNotFound)
	case errors.Is(err, documents.ErrResourceContention):
		srv.Logger.Warn("folio contention", append([]any{"error", err}, logArgs...)...)
		http.Error(w, "The case is busy, please retry", http.StatusConflict)
	case errors.Is(err, approval.ErrInvalidTransition):
		http.Error(w, "Document is not pending review", http.StatusConflict)
	default:
		srv.Logger.Error("error handling request", append([]any{"error", err}, logArgs...)...)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func parseCaseID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(r.PathValue("caseID"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid case ID %q", r.PathValue("caseID"))
	}
	return uint(id), nil
}

func parseDocumentID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("documentID"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid document ID %q", r.PathValue("documentID"))
	}
	return id, nil
}
