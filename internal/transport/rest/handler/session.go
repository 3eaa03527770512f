package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"launchpad/internal/form"
	"launchpad/internal/service"
	"launchpad/internal/transport/rest/middleware"
)

// SessionStore is the slice of the session manager the handlers use
type SessionStore interface {
	Open(ctx context.Context, founderID, token, projectID string) (*service.Session, error)
	Get(sessionID, founderID string) (*service.Session, error)
	Close(ctx context.Context, sessionID, founderID string) error
}

// SessionHandler handles form session endpoints
type SessionHandler struct {
	sessions SessionStore
}

func NewSessionHandler(sessions SessionStore) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// session resolves {sessionId} for the calling founder and writes the error
// response itself when that fails.
func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	s, err := h.sessions.Get(mux.Vars(r)["sessionId"], middleware.GetFounderID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}
	return s, true
}

// Open handles POST /v1/projects/{projectId}/sessions
func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	founderID := middleware.GetFounderID(r.Context())
	if founderID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	s, err := h.sessions.Open(r.Context(), founderID, middleware.GetToken(r.Context()), mux.Vars(r)["projectId"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

// Get handles GET /v1/sessions/{sessionId}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

// Close handles DELETE /v1/sessions/{sessionId}
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	err := h.sessions.Close(r.Context(), mux.Vars(r)["sessionId"], middleware.GetFounderID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// SetFieldRequest carries the raw answer; its shape depends on the field type
type SetFieldRequest struct {
	Value json.RawMessage `json:"value"`
}

type SetFieldResponse struct {
	Changed bool `json:"changed"`
	Pending int  `json:"pending"`
}

// SetField handles PUT /v1/sessions/{sessionId}/fields/{questionId}[/{fieldKey}]
func (h *SessionHandler) SetField(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req SetFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	vars := mux.Vars(r)
	change, err := s.SetField(vars["questionId"], vars["fieldKey"], req.Value)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SetFieldResponse{Changed: change.Changed, Pending: s.State().Autosave.Pending})
}

// Save handles POST /v1/sessions/{sessionId}/save
func (h *SessionHandler) Save(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	res, err := s.SaveNow(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type StepResponse struct {
	Moved  bool            `json:"moved"`
	Change form.StepChange `json:"change"`
}

// Next handles POST /v1/sessions/{sessionId}/steps/next
func (h *SessionHandler) Next(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, (*service.Session).Next)
}

// Back handles POST /v1/sessions/{sessionId}/steps/back
func (h *SessionHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, (*service.Session).Back)
}

func (h *SessionHandler) step(w http.ResponseWriter, r *http.Request, move func(*service.Session) (form.StepChange, bool, error)) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	change, moved, err := move(s)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StepResponse{Moved: moved, Change: change})
}

type JumpRequest struct {
	Section    string `json:"section"`
	Anchor     string `json:"anchor"`
	QuestionID string `json:"questionId"`
}

// Jump handles POST /v1/sessions/{sessionId}/steps/jump
func (h *SessionHandler) Jump(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req JumpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	change, err := s.JumpToError(req.Section, req.Anchor, req.QuestionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StepResponse{Moved: true, Change: change})
}

type ValidateResponse struct {
	form.ValidationResult
	BySection []form.SectionErrors `json:"bySection"`
}

// Validate handles POST /v1/sessions/{sessionId}/validate
func (h *SessionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	res, err := s.Validate()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ValidateResponse{ValidationResult: res, BySection: form.ErrorsBySection(res.Errors)})
}

// Submit handles POST /v1/sessions/{sessionId}/submit. An empty body starts
// the pipeline from the top.
func (h *SessionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req service.SubmitRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	res, err := s.Submit(r.Context(), req)
	if err != nil {
		if res != nil {
			writeJSON(w, statusFor(err), res)
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
