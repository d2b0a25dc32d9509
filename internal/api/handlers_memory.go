package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"

	"github.com/Thianvelaz/Cognio/internal/api/respond"
	"github.com/Thianvelaz/Cognio/internal/api/validate"
	"github.com/Thianvelaz/Cognio/internal/model"
	"github.com/Thianvelaz/Cognio/internal/services"
	"github.com/Thianvelaz/Cognio/internal/transfer"
)

// DefaultPageSize is used by list when the caller gives no limit.
const DefaultPageSize = 20

// maxImportBytes bounds the size of an uploaded import document.
const maxImportBytes = 32 << 20

type MemoryHandler struct {
	svc *services.MemoryService
}

func NewMemoryHandler(svc *services.MemoryService) *MemoryHandler {
	return &MemoryHandler{svc: svc}
}

// SaveMemory POST /memory/save
func (h *MemoryHandler) SaveMemory(w http.ResponseWriter, r *http.Request) {
	var req model.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.SaveMemory(req.Text, req.Project, req.Tags); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	out, err := h.svc.Save(r.Context(), req)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// SearchMemory GET /memory/search?q=&limit=&threshold=&project=&after_date=&before_date=
func (h *MemoryHandler) SearchMemory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := model.SearchRequest{Query: q.Get("q")}
	if err := validate.NonEmpty("q", req.Query); err != nil {
		respond.WriteServiceError(w, err)
		return
	}

	var err error
	if req.Limit, err = validate.OptionalInt("limit", q.Get("limit"), 0); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if req.Threshold, err = validate.OptionalFloat("threshold", q.Get("threshold")); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if req.After, err = validate.OptionalDate("after_date", q.Get("after_date")); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if req.Before, err = validate.OptionalDate("before_date", q.Get("before_date")); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if p := q.Get("project"); p != "" {
		req.Project = &p
	}

	out, err := h.svc.Search(r.Context(), req)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// ListMemories GET /memory/list?project=&page=&limit=&sort=&q=
func (h *MemoryHandler) ListMemories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := model.ListRequest{Sort: q.Get("sort"), SearchQuery: q.Get("q")}

	var err error
	if req.Page, err = validate.OptionalInt("page", q.Get("page"), 1); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if req.Limit, err = validate.OptionalInt("limit", q.Get("limit"), DefaultPageSize); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if p := q.Get("project"); p != "" {
		req.Project = &p
	}

	out, err := h.svc.List(r.Context(), req)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// GetMemory GET /memory/{id}
func (h *MemoryHandler) GetMemory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := validate.MemoryID(id); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	rec, err := h.svc.GetMemory(r.Context(), id)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, rec)
}

// DeleteMemory DELETE /memory/{id}
func (h *MemoryHandler) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := validate.MemoryID(id); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	ok, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if !ok {
		respond.WriteNotFound(w, "memory not found")
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "id": id})
}

// BulkDelete POST /memory/bulk-delete
func (h *MemoryHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Project string `json:"project"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	n, err := h.svc.BulkDelete(r.Context(), req.Project)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"deleted_count": n, "project": req.Project})
}

// Stats GET /memory/stats
func (h *MemoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Stats(r.Context())
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// Export GET /memory/export?format=json|markdown
func (h *MemoryHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := transfer.ExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	doc, err := h.svc.Export(r.Context(), format)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	ext := "json"
	if format == transfer.Markdown {
		ext = "md"
	}
	name := fmt.Sprintf("memory-export-%s.%s", time.Now().UTC().Format("20060102-150405"), ext)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// Import POST /memory/import?format=&project=&filename=
// The request body is the document. Without format, the extension of
// filename picks the parser.
func (h *MemoryHandler) Import(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var format transfer.Format
	if f := q.Get("format"); f != "" {
		var err error
		if format, err = transfer.ParseFormat(f); err != nil {
			respond.WriteServiceError(w, err)
			return
		}
	} else {
		format = transfer.DetectFormat(filepath.Base(q.Get("filename")))
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes+1))
	if err != nil {
		respond.WriteBadRequest(w, "could not read body")
		return
	}
	if len(data) > maxImportBytes {
		respond.WriteError(w, http.StatusRequestEntityTooLarge, "import document too large")
		return
	}

	var project *string
	if p := q.Get("project"); p != "" {
		project = &p
	}
	out, err := h.svc.Import(r.Context(), format, data, project)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}
