package authflow

import (
	"encoding/json"
	"net/http"

	"github.com/accura-health/terminology/pkg/common/errs"
	"github.com/accura-health/terminology/pkg/common/logger"
	"github.com/accura-health/terminology/pkg/common/models"
	"github.com/accura-health/terminology/pkg/observability/metrics"
	"github.com/accura-health/terminology/pkg/session"
	"github.com/gorilla/mux"
)

type Handler struct {
	engine            *Engine
	sessions          session.Store
	dashboardURL      string
	consentSuccessURL string
}

func NewHandler(engine *Engine, sessions session.Store, dashboardURL, consentSuccessURL string) *Handler {
	return &Handler{
		engine:            engine,
		sessions:          sessions,
		dashboardURL:      dashboardURL,
		consentSuccessURL: consentSuccessURL,
	}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/auth/login", h.handleInitiate(session.FlowLogin)).Methods(http.MethodGet)
	r.HandleFunc("/auth/callback", h.handleCallback(session.FlowLogin)).Methods(http.MethodGet)
	r.HandleFunc("/consent/ask-patient", h.handleInitiate(session.FlowConsent)).Methods(http.MethodGet)
	r.HandleFunc("/consent/callback", h.handleCallback(session.FlowConsent)).Methods(http.MethodGet)
	r.HandleFunc("/api/consent/details", h.handleConsentDetails).Methods(http.MethodGet)
	r.HandleFunc("/api/users/me", h.handleMe).Methods(http.MethodGet)
}

func (h *Handler) handleInitiate(flow session.Flow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorizeURL, err := h.engine.Initiate(r.Context(), session.FromContext(r.Context()), flow)
		if err != nil {
			logger.Log.WithError(err).WithField("flow", flow).Error("failed to initiate authorization")
			http.Error(w, "failed to initiate authorization", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, authorizeURL, http.StatusFound)
	}
}

func (h *Handler) handleCallback(flow session.Flow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		state := r.URL.Query().Get("state")
		if code == "" || state == "" {
			http.Error(w, "code and state are required", http.StatusBadRequest)
			return
		}

		err := h.engine.Callback(r.Context(), session.FromContext(r.Context()), flow, code, state)
		if err != nil {
			h.writeCallbackError(w, flow, err)
			return
		}

		target := h.dashboardURL
		if flow == session.FlowConsent {
			target = h.consentSuccessURL
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

func (h *Handler) writeCallbackError(w http.ResponseWriter, flow session.Flow, err error) {
	metrics.IncAuthFailure()
	switch {
	case errs.IsAuth(err, errs.StateMismatch):
		logger.Log.WithField("flow", flow).Warn("authorization state mismatch")
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
	case errs.IsAuth(err, errs.TokenExchangeFailed):
		logger.Log.WithError(err).WithField("flow", flow).Warn("token exchange failed")
		http.Error(w, "failed to retrieve access token", http.StatusBadRequest)
	case errs.IsAuth(err, errs.InvalidToken):
		logger.Log.WithError(err).WithField("flow", flow).Warn("identity token rejected")
		http.Error(w, "invalid token", http.StatusBadRequest)
	default:
		logger.Log.WithError(err).WithField("flow", flow).Error("authorization callback failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) handleConsentDetails(w http.ResponseWriter, r *http.Request) {
	data, err := h.sessions.Get(r.Context(), session.FromContext(r.Context()))
	if err != nil {
		logger.Log.WithError(err).Error("failed to read session")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if data.ConsentToken == "" {
		http.Error(w, "no consent token found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"access_token": data.ConsentToken})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	data, err := h.sessions.Get(r.Context(), session.FromContext(r.Context()))
	if err != nil {
		logger.Log.WithError(err).Error("failed to read session")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !data.Authenticated() {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	respondJSON(w, http.StatusOK, models.UserResponse{
		UserID: data.Identity.Subject,
		Name:   data.Identity.Name,
	})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
