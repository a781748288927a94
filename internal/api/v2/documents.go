package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/clinica-juridica/expediente/internal/server"
	"github.com/clinica-juridica/expediente/pkg/auth"
	"github.com/clinica-juridica/expediente/pkg/documents"
	"github.com/clinica-juridica/expediente/pkg/integrity"
	"github.com/clinica-juridica/expediente/pkg/models"
)

// maxFieldBytes bounds the size of non-file multipart fields.
const maxFieldBytes = 1024

type CaseDocumentsGetResponse struct {
	Documents []models.Document `json:"documents"`
	Alerts    []integrity.Alert `json:"alerts"`
}

type DocumentGetResponse struct {
	Document  *models.Document `json:"document"`
	Integrity integrity.Result `json:"integrity"`
}

// CaseDocumentsHandler lists the documents of a case, running the integrity
// audit of the case view, and files new documents.
func CaseDocumentsHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		actor, ok := auth.GetActor(r.Context())
		if !ok {
			srv.Logger.Error("actor not found in request context", logArgs...)
			http.Error(w, "No authorization information in request", http.StatusUnauthorized)
			return
		}
		logArgs = append(logArgs, "actor", actor.ID)

		caseID, err := parseCaseID(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logArgs = append(logArgs, "case_id", caseID)

		switch r.Method {
		case "GET":
			docs, err := srv.Documents.ListByCase(r.Context(), caseID)
			if err != nil {
				respondError(srv, w, err, logArgs)
				return
			}

			alerts, err := srv.Auditor.AuditCase(r.Context(), caseID, actor.ID)
			if err != nil {
				respondError(srv, w, err, logArgs)
				return
			}

			resp := CaseDocumentsGetResponse{
				Documents: docs,
				Alerts:    alerts,
			}
			if resp.Documents == nil {
				resp.Documents = []models.Document{}
			}
			if resp.Alerts == nil {
				resp.Alerts = []integrity.Alert{}
			}
			respondJSON(srv, w, http.StatusOK, resp, logArgs)

		case "POST":
			maxBytes := srv.Config.Documents.MaxContentBytes
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes+(1<<20))

			doc, err := createFromMultipart(srv, r, caseID, actor)
			if err != nil {
				var mbErr *http.MaxBytesError
				if errors.As(err, &mbErr) {
					http.Error(w, fmt.Sprintf("Document exceeds the maximum size of %d bytes", maxBytes),
						http.StatusRequestEntityTooLarge)
					return
				}
				respondError(srv, w, err, logArgs)
				return
			}

			srv.Logger.Info("document uploaded",
				append([]any{
					"document_id", doc.ID,
					"folio", doc.Folio,
				}, logArgs...)...)
			respondJSON(srv, w, http.StatusCreated, doc, logArgs)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

// createFromMultipart streams the "file" part of the request into the
// document store. The "name" and "type" fields must precede it.
func createFromMultipart(
	srv server.Server,
	r *http.Request,
	caseID uint,
	actor auth.Actor,
) (*models.Document, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, &documents.ValidationError{Message: "expected a multipart/form-data body", Err: err}
	}

	var meta documents.Metadata
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, &documents.ValidationError{Field: "file", Message: "cannot be blank"}
		}
		if err != nil {
			return nil, fmt.Errorf("error reading multipart body: %w", err)
		}

		switch part.FormName() {
		case "name":
			v, err := readField(part)
			if err != nil {
				return nil, err
			}
			meta.Name = v
		case "type":
			v, err := readField(part)
			if err != nil {
				return nil, err
			}
			meta.Type = models.DocumentType(v)
		case "file":
			if meta.Name == "" {
				meta.Name = part.FileName()
			}
			defer part.Close()
			return srv.Documents.Create(r.Context(), caseID, actor, part, meta)
		}
		part.Close()
	}
}

func readField(part *multipart.Part) (string, error) {
	b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", fmt.Errorf("error reading field %q: %w", part.FormName(), err)
	}
	if len(b) > maxFieldBytes {
		return "", &documents.ValidationError{Field: part.FormName(), Message: "is too long"}
	}
	return string(b), nil
}

// DocumentHandler returns a document with a read-only integrity check, or
// deletes it.
func DocumentHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		actor, ok := auth.GetActor(r.Context())
		if !ok {
			srv.Logger.Error("actor not found in request context", logArgs...)
			http.Error(w, "No authorization information in request", http.StatusUnauthorized)
			return
		}
		logArgs = append(logArgs, "actor", actor.ID)

		docID, err := parseDocumentID(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logArgs = append(logArgs, "document_id", docID)

		switch r.Method {
		case "GET":
			doc, err := srv.Documents.Get(r.Context(), docID)
			if err != nil {
				respondError(srv, w, err, logArgs)
				return
			}
			respondJSON(srv, w, http.StatusOK, DocumentGetResponse{
				Document:  doc,
				Integrity: srv.Documents.Verify(r.Context(), doc),
			}, logArgs)

		case "DELETE":
			if !actor.Capabilities().Review {
				srv.Logger.Warn("actor may not delete documents",
					append([]any{"role", actor.Role}, logArgs...)...)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			if err := srv.Documents.Delete(r.Context(), docID, actor.ID); err != nil {
				respondError(srv, w, err, logArgs)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}
