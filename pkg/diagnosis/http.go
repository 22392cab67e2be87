package diagnosis

import (
	"encoding/json"
	"net/http"

	"github.com/accura-health/terminology/pkg/common/errs"
	"github.com/accura-health/terminology/pkg/common/logger"
	"github.com/accura-health/terminology/pkg/common/models"
	"github.com/accura-health/terminology/pkg/session"
	"github.com/gorilla/mux"
)

type Handler struct {
	service  *Service
	sessions session.Store
}

func NewHandler(service *Service, sessions session.Store) *Handler {
	return &Handler{service: service, sessions: sessions}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/diagnosis/confirm", h.handleConfirm).Methods(http.MethodPost)
	r.HandleFunc("/diagnosis/history/{patient_id}", h.handleHistory).Methods(http.MethodGet)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req models.ConfirmDiagnosisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.PatientID == "" || req.SourceCode == "" {
		http.Error(w, "patient_id and source_code are required", http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.Get(r.Context(), session.FromContext(r.Context()))
	if err != nil {
		logger.Log.WithError(err).Error("failed to read session")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	rec, err := h.service.Confirm(r.Context(), sess, req.PatientID, req.SourceCode)
	if err != nil {
		h.writeConfirmError(w, req, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"status":  "success",
		"message": "Diagnosis confirmed and logged.",
		"record":  rec,
	})
}

func (h *Handler) writeConfirmError(w http.ResponseWriter, req models.ConfirmDiagnosisRequest, err error) {
	switch {
	case errs.IsAuth(err, errs.Unauthenticated):
		http.Error(w, "not authenticated", http.StatusUnauthorized)
	case errs.IsMapping(err, errs.MappingNotFound):
		http.Error(w, "mapping not found for code: "+req.SourceCode, http.StatusNotFound)
	case errs.IsSink(err):
		logger.Log.WithError(err).WithField("patient_id", req.PatientID).Warn("sink rejected diagnosis bundle")
		http.Error(w, "failed to save bundle to clinical record store", http.StatusBadGateway)
	default:
		logger.Log.WithError(err).WithField("patient_id", req.PatientID).Error("diagnosis confirmation failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["patient_id"]
	records, err := h.service.History(r.Context(), patientID)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list diagnosis history")
		http.Error(w, "failed to list history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
