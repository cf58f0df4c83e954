package api

import (
	"net/http"
	"strings"

	"github.com/ayusman/facultyid/internal/store"
	"github.com/pkg/errors"
)

// Directory lists and removes enrolled identities.
type Directory interface {
	List() ([]store.Summary, error)
	Delete(id string) error
}

// IdentityHandler handles HTTP requests for enrolled identities.
type IdentityHandler struct {
	dir Directory
}

// NewIdentityHandler creates a new IdentityHandler.
func NewIdentityHandler(d Directory) *IdentityHandler {
	return &IdentityHandler{dir: d}
}

type identityResponse struct {
	ID         string `json:"id"`
	Embeddings int    `json:"embeddings"`
	Dimension  int    `json:"dimension"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

type listIdentitiesResponse struct {
	Identities []identityResponse `json:"identities"`
}

// ServeHTTP routes /api/identities and /api/identities/{id}.
func (h *IdentityHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/identities")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.delete(w, r, path)
}

// list handles GET /api/identities.
func (h *IdentityHandler) list(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.dir.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list identities")
		return
	}

	response := listIdentitiesResponse{
		Identities: make([]identityResponse, 0, len(summaries)),
	}
	for _, s := range summaries {
		ir := identityResponse{ID: s.Identity, Embeddings: s.Count, Dimension: s.Dimension}
		if !s.UpdatedAt.IsZero() {
			ir.UpdatedAt = s.UpdatedAt.Format("2006-01-02T15:04:05Z07:00")
		}
		response.Identities = append(response.Identities, ir)
	}

	writeJSON(w, http.StatusOK, response)
}

// delete handles DELETE /api/identities/{id}.
func (h *IdentityHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.dir.Delete(id); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "Identity not found")
		case errors.Is(err, store.ErrInvalidIdentity):
			writeError(w, http.StatusBadRequest, "Invalid identity")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to delete identity")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
