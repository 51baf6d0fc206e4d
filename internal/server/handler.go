package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"vpatient/internal/domain"
	"vpatient/internal/storage"
	"vpatient/internal/vpclient"
)

const (
	HealthzPath = "/healthz"

	savePattern       = "POST /activity/virtualpatient/save/{patient}/{$}"
	navigatePattern   = "POST /activity/virtualpatient/navigate/{page}/{patient}/{$}"
	getStatePattern   = "GET /activity/virtualpatient/state/{patient}/{$}"
	delStatePattern   = "DELETE /activity/virtualpatient/state/{patient}/{$}"
	listStatePattern  = "GET /activity/virtualpatient/state/{$}"
	clearStatePattern = "DELETE /activity/virtualpatient/state/{$}"
	completePattern   = "GET /activity/virtualpatient/complete/{$}"

	// UserCookie identifies the trainee when the user header is absent.
	UserCookie = "vp_user"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

type Handler struct {
	log *slog.Logger
	cfg Config
}

func NewHandler(log *slog.Logger, cfg Config) (*Handler, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Handler{log: log, cfg: cfg}, nil
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc(HealthzPath, h.healthzHandler)
	mux.HandleFunc(savePattern, h.saveHandler)
	mux.HandleFunc(navigatePattern, h.navigateHandler)
	mux.HandleFunc(getStatePattern, h.getStateHandler)
	mux.HandleFunc(delStatePattern, h.deleteStateHandler)
	mux.HandleFunc(listStatePattern, h.listStateHandler)
	mux.HandleFunc(clearStatePattern, h.clearStateHandler)
	mux.HandleFunc(completePattern, h.completeHandler)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeJSONError(w http.ResponseWriter, endpoint, reason string, status int, msg string) {
	RequestErrorsTotal.WithLabelValues(endpoint, reason).Inc()
	h.writeJSON(w, status, ErrorResponse{Error: msg, Code: status})
}

func (h *Handler) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// userID returns the trainee a request acts for, from the user header or
// the user cookie. It answers 401 when neither is present.
func (h *Handler) userID(w http.ResponseWriter, r *http.Request, endpoint string) (string, bool) {
	if u := r.Header.Get(vpclient.UserHeader); u != "" {
		return u, true
	}
	if c, err := r.Cookie(UserCookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	h.writeJSONError(w, endpoint, "no_user", http.StatusUnauthorized, "missing user identity")
	return "", false
}

// readState parses the form body and returns its json field.
func (h *Handler) readState(w http.ResponseWriter, r *http.Request, endpoint string) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeJSONError(w, endpoint, "body_too_large", http.StatusRequestEntityTooLarge, "request body too large")
			return "", false
		}
		h.writeJSONError(w, endpoint, "bad_form", http.StatusBadRequest, "invalid form body")
		return "", false
	}
	if _, ok := r.PostForm[vpclient.StateField]; !ok {
		h.writeJSONError(w, endpoint, "missing_state", http.StatusBadRequest, "missing json field")
		return "", false
	}
	return r.PostForm.Get(vpclient.StateField), true
}

func (h *Handler) saveHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "save"
	RequestsTotal.WithLabelValues(endpoint).Inc()

	userID, ok := h.userID(w, r, endpoint)
	if !ok {
		return
	}
	patientID := r.PathValue("patient")
	state, ok := h.readState(w, r, endpoint)
	if !ok {
		return
	}
	if _, err := h.cfg.Store.Upsert(userID, patientID, state); err != nil {
		h.log.Error("save: failed to store state", "user", userID, "patient", patientID, "error", err)
		h.writeJSONError(w, endpoint, "store", http.StatusInternalServerError, "failed to store state")
		return
	}
	h.log.Debug("save: stored state", "user", userID, "patient", patientID, "bytes", len(state))
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) navigateHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "navigate"
	RequestsTotal.WithLabelValues(endpoint).Inc()

	userID, ok := h.userID(w, r, endpoint)
	if !ok {
		return
	}
	pageID := r.PathValue("page")
	patientID := r.PathValue("patient")

	next, err := h.cfg.NextPage(pageID, patientID)
	if err != nil {
		h.writeJSONError(w, endpoint, "bad_page", http.StatusBadRequest, err.Error())
		return
	}
	state, ok := h.readState(w, r, endpoint)
	if !ok {
		return
	}
	if _, err := h.cfg.Store.Upsert(userID, patientID, state); err != nil {
		h.log.Error("navigate: failed to store state", "user", userID, "page", pageID, "patient", patientID, "error", err)
		h.writeJSONError(w, endpoint, "store", http.StatusInternalServerError, "failed to store state")
		return
	}
	h.log.Info("navigate: stored state", "user", userID, "page", pageID, "patient", patientID, "redirect", next)
	h.writeJSON(w, http.StatusOK, map[string]string{"redirect": next})
}

func (h *Handler) getStateHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "get_state"
	RequestsTotal.WithLabelValues(endpoint).Inc()

	userID, ok := h.userID(w, r, endpoint)
	if !ok {
		return
	}
	patientID := r.PathValue("patient")
	st, err := h.cfg.Store.Get(userID, patientID)
	if errors.Is(err, storage.ErrNotFound) {
		h.writeJSONError(w, endpoint, "not_found", http.StatusNotFound, "no saved state")
		return
	}
	if err != nil {
		h.log.Error("state: failed to load", "user", userID, "patient", patientID, "error", err)
		h.writeJSONError(w, endpoint, "store", http.StatusInternalServerError, "failed to load state")
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

func (h *Handler) deleteStateHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "delete_state"
	RequestsTotal.WithLabelValues(endpoint).Inc()

	userID, ok := h.userID(w, r, endpoint)
	if !ok {
		return
	}
	patientID := r.PathValue("patient")
	if err := h.cfg.Store.Delete(userID, patientID); err != nil {
		h.log.Error("state: failed to delete", "user", userID, "patient", patientID, "error", err)
		h.writeJSONError(w, endpoint, "store", http.StatusInternalServerError, "failed to delete state")
		return
	}
	h.log.Info("state: cleared", "user", userID, "patient", patientID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listStateHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "list_state"
	RequestsTotal.WithLabelValues(endpoint).Inc()

	userID, ok := h.userID(w, r, endpoint)
	if !ok {
		return
	}
	states, err := h.cfg.Store.List(userID)
	if err != nil {
		h.log.Error("state: failed to list", "user", userID, "error", err)
		h.writeJSONError(w, endpoint, "store", http.StatusInternalServerError, "failed to list state")
		return
	}
	if states == nil {
		states = []domain.ActivityState{}
	}
	h.writeJSON(w, http.StatusOK, states)
}

// clearStateHandler drops everything the user saved, for starting the
// activity over.
func (h *Handler) clearStateHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "clear_state"
	RequestsTotal.WithLabelValues(endpoint).Inc()

	userID, ok := h.userID(w, r, endpoint)
	if !ok {
		return
	}
	if err := h.cfg.Store.DeleteUser(userID); err != nil {
		h.log.Error("state: failed to clear", "user", userID, "error", err)
		h.writeJSONError(w, endpoint, "store", http.StatusInternalServerError, "failed to clear state")
		return
	}
	h.log.Info("state: cleared all", "user", userID)
	w.WriteHeader(http.StatusNoContent)
}

type CompleteResponse struct {
	Patient  string `json:"patient"`
	Complete bool   `json:"complete"`
}

// completeHandler reports whether the user finished the activity, judged
// by the results saved for the final patient. ?patient= overrides the
// configured final patient.
func (h *Handler) completeHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "complete"
	RequestsTotal.WithLabelValues(endpoint).Inc()

	userID, ok := h.userID(w, r, endpoint)
	if !ok {
		return
	}
	patientID := r.URL.Query().Get("patient")
	if patientID == "" {
		patientID = h.cfg.FinalPatient
	}
	if patientID == "" {
		h.writeJSONError(w, endpoint, "no_final_patient", http.StatusBadRequest, "no final patient configured")
		return
	}
	done, err := h.cfg.Store.IsComplete(userID, patientID)
	if err != nil {
		h.log.Error("complete: failed to check", "user", userID, "patient", patientID, "error", err)
		h.writeJSONError(w, endpoint, "store", http.StatusInternalServerError, "failed to check completion")
		return
	}
	h.writeJSON(w, http.StatusOK, CompleteResponse{Patient: patientID, Complete: done})
}
