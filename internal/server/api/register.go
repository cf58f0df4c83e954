package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ayusman/facultyid/internal/app"
	"github.com/ayusman/facultyid/internal/enrollment"
	"github.com/ayusman/facultyid/internal/store"
	"github.com/pkg/errors"
)

// Registrar runs a registration for one faculty member.
type Registrar interface {
	Register(ctx context.Context, id string) (enrollment.Result, error)
}

// RegisterHandler handles POST /register/{faculty_id}.
type RegisterHandler struct {
	registrar Registrar
	log       *slog.Logger
}

// NewRegisterHandler creates a new RegisterHandler.
func NewRegisterHandler(r Registrar, logger *slog.Logger) *RegisterHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegisterHandler{registrar: r, log: logger}
}

type registerResponse struct {
	Message    string `json:"message"`
	Status     string `json:"status"`
	Count      int    `json:"count"`
	RunID      string `json:"run_id"`
	StopReason string `json:"stop_reason"`
}

// ServeHTTP implements the http.Handler interface.
func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/register/")
	if id == "" || id == r.URL.Path {
		writeError(w, http.StatusBadRequest, "Faculty ID is required")
		return
	}
	if err := store.ValidateIdentity(id); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid faculty ID")
		return
	}

	res, err := h.registrar.Register(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrCameraBusy):
			writeError(w, http.StatusConflict, "Camera is busy")
		case errors.Is(err, store.ErrInvalidIdentity):
			writeError(w, http.StatusBadRequest, "Invalid faculty ID")
		default:
			h.log.Error("registration failed", "identity", id, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{
		Message:    fmt.Sprintf("Captured %d samples", res.Count),
		Status:     "success",
		Count:      res.Count,
		RunID:      res.RunID,
		StopReason: string(res.StopReason),
	})
}
