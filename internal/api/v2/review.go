package api

import (
	"fmt"
	"net/http"

	"github.com/clinica-juridica/expediente/internal/server"
	"github.com/clinica-juridica/expediente/pkg/auth"
)

type DocumentReviewRequest struct {
	// Action is "approve" or "reject".
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

// DocumentReviewHandler approves or rejects a pending document.
func DocumentReviewHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		if r.Method != "POST" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		actor, ok := auth.GetActor(r.Context())
		if !ok {
			srv.Logger.Error("actor not found in request context", logArgs...)
			http.Error(w, "No authorization information in request", http.StatusUnauthorized)
			return
		}
		logArgs = append(logArgs, "actor", actor.ID)

		if !actor.Capabilities().Review {
			srv.Logger.Warn("actor may not review documents",
				append([]any{"role", actor.Role}, logArgs...)...)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		docID, err := parseDocumentID(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logArgs = append(logArgs, "document_id", docID)

		req := &DocumentReviewRequest{}
		if err := decodeRequest(r, req); err != nil {
			srv.Logger.Warn("error decoding request",
				append([]any{"error", err}, logArgs...)...)
			http.Error(w, fmt.Sprintf("Bad request: %q", err), http.StatusBadRequest)
			return
		}

		switch req.Action {
		case "approve":
			doc, err := srv.Documents.Approve(r.Context(), docID, actor.ID)
			if err != nil {
				respondError(srv, w, err, logArgs)
				return
			}
			respondJSON(srv, w, http.StatusOK, doc, logArgs)

		case "reject":
			doc, err := srv.Documents.Reject(r.Context(), docID, actor.ID, req.Reason)
			if err != nil {
				respondError(srv, w, err, logArgs)
				return
			}
			respondJSON(srv, w, http.StatusOK, doc, logArgs)

		default:
			http.Error(w, fmt.Sprintf("Bad request: unknown action %q", req.Action),
				http.StatusBadRequest)
		}
	})
}
