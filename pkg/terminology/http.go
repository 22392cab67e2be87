package terminology

import (
	"encoding/json"
	"net/http"

	"github.com/accura-health/terminology/pkg/common/errs"
	"github.com/accura-health/terminology/pkg/common/logger"
	"github.com/accura-health/terminology/pkg/common/models"
	"github.com/accura-health/terminology/pkg/fhir"
	"github.com/gorilla/mux"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/search", h.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/translate", h.handleTranslate).Methods(http.MethodPost)
	r.HandleFunc("/terminology/names-only", h.handleListTerms).Methods(http.MethodGet)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.Search(r.Context(), r.URL.Query().Get("term"))
	if err != nil {
		logger.Log.WithError(err).Error("search failed")
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req models.TranslateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.SourceCode == "" {
		http.Error(w, "source_code is required", http.StatusBadRequest)
		return
	}

	mapping, err := h.service.Translate(r.Context(), req.SourceCode)
	if err != nil {
		if errs.IsMapping(err, errs.MappingNotFound) {
			http.Error(w, "mapping not found for code: "+req.SourceCode, http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("translate failed")
		http.Error(w, "translate failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, fhir.TranslateResult(*mapping))
}

func (h *Handler) handleListTerms(w http.ResponseWriter, r *http.Request) {
	terms, err := h.service.ListTerms(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to list terms")
		http.Error(w, "failed to list terms", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, terms)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
