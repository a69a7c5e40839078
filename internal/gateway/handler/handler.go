// Package handler exposes the diagnosis engine over JSON HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/proto"
)

// Service is the engine surface the handlers call. *engine.Engine
// satisfies it.
type Service interface {
	Diagnose(ctx context.Context, req proto.DiagnoseRequest) (proto.DiagnoseResponse, error)
	Ask(ctx context.Context, req proto.AskRequest) (proto.AskResponse, error)
	Finalize(ctx context.Context, req proto.FinalizeRequest) (proto.FinalizeResponse, error)
	Symptoms() proto.SymptomsResponse
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service) *Handler {
	return &Handler{
		svc:    svc,
		logger: slog.Default().With("component", "diagnosis-handler"),
	}
}

// Diagnose handles POST /api/v1/diagnose.
func (h *Handler) Diagnose(w http.ResponseWriter, r *http.Request) {
	var req proto.DiagnoseRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Diagnose(r.Context(), req)
	if err != nil {
		h.fail(w, r, "diagnose", err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Ask handles POST /api/v1/ask.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req proto.AskRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Ask(r.Context(), req)
	if err != nil {
		h.fail(w, r, "ask", err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Finalize handles POST /api/v1/finalize.
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	var req proto.FinalizeRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Finalize(r.Context(), req)
	if err != nil {
		h.fail(w, r, "finalize", err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Symptoms handles GET /api/v1/symptoms.
func (h *Handler) Symptoms(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Symptoms())
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "invalid_input")
			return false
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON body", "invalid_input")
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := apperrors.HTTPStatusCode(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error(op+" failed", "error", err, "status_code", status)
	} else {
		log.Info(op+" rejected", "error", err, "status_code", status)
	}
	h.writeError(w, status, apperrors.Message(err), apperrors.Kind(err))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, kind string) {
	h.writeJSON(w, status, map[string]string{"error": message, "kind": kind})
}
