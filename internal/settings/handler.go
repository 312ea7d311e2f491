package settings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Akashbains10/pdf-assistant/internal/apperr"
	"github.com/Akashbains10/pdf-assistant/internal/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type view struct {
	GeminiAPIKeySet bool `json:"gemini_api_key_set"`
	SearchTopK      int  `json:"search_top_k"`
}

func toView(s *Settings) view {
	return view{GeminiAPIKeySet: s.GeminiAPIKey != "", SearchTopK: s.SearchTopK}
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Get(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": toView(s)})
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var p Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	s, err := h.svc.Apply(r.Context(), p)
	if err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			h.writeError(r.Context(), w, "VALIDATION_ERROR", apperr.Message(err), http.StatusBadRequest)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": toView(s)})
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	_ = json.NewEncoder(w).Encode(resp)
}
