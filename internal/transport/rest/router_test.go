package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchpad/internal/autosave"
	"launchpad/internal/model"
	"launchpad/internal/service"
)

// fakeBackend serves a fixed question set and records writes
type fakeBackend struct {
	mu        sync.Mutex
	questions []model.Question
	saved     []model.ProjectDraft
	submitted int
	uploads   []service.DocumentUpload
}

func (b *fakeBackend) FetchQuestions(context.Context, string, string) (*model.ProjectQuestions, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &model.ProjectQuestions{Questions: append([]model.Question(nil), b.questions...)}, nil
}

func (b *fakeBackend) SaveDraft(_ context.Context, _, _ string, drafts []model.ProjectDraft) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saved = append(b.saved, drafts...)
	return nil
}

func (b *fakeBackend) UploadDocument(_ context.Context, _, _ string, up service.DocumentUpload) (*model.ProjectDocument, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploads = append(b.uploads, up)
	return &model.ProjectDocument{ID: "doc-1", QuestionID: up.QuestionID, FieldKey: up.FieldKey, Name: up.Name}, nil
}

func (b *fakeBackend) DeleteDocument(context.Context, string, string, string) error {
	return nil
}

func (b *fakeBackend) SubmitProject(context.Context, string, string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitted++
	return nil
}

func formQuestion(id, section string, order int, t model.InputType, required bool) model.Question {
	return model.Question{
		ID:           id,
		Text:         "Question " + id,
		Section:      section,
		SubSection:   "Main",
		SectionOrder: order,
		InputType:    t,
		Required:     required,
		Value:        model.EmptyValue(t),
	}
}

type testServer struct {
	*httptest.Server
	auth    *service.AuthService
	backend *fakeBackend
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	backend := &fakeBackend{questions: []model.Question{
		formQuestion("company", "Company", 1, model.InputTextInput, true),
		formQuestion("deck", "Company", 1, model.InputFile, false),
		formQuestion("market", "Market", 2, model.InputTextInput, true),
	}}
	// the deck is optional but filled by the upload test only
	backend.questions[1].QuestionOrder = 2

	auth := service.NewAuthService("test-secret")
	sessions := service.NewSessionManager(backend, nil, nil, nil, nil, service.SessionManagerConfig{
		Autosave: autosave.Options{
			FieldDebounce:    time.Hour,
			FileDebounce:     time.Hour,
			StatusResetAfter: time.Second,
			RequestTimeout:   time.Second,
		},
	}, nil)
	t.Cleanup(func() { sessions.Stop(context.Background()) })

	srv := httptest.NewServer(NewRouter(&Container{
		AuthService:    auth,
		Sessions:       sessions,
		AllowedOrigins: []string{"http://localhost:5173"},
	}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, auth: auth, backend: backend}
}

func (s *testServer) token(t *testing.T, founderID string) string {
	t.Helper()
	tok, err := s.auth.GenerateFounderToken(founderID, founderID+"@example.com", time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

// Answers are typed by their question, so responses are read through
// views that skip them.
type stateView struct {
	SessionID string `json:"sessionId"`
	Step      int    `json:"step"`
	StepCount int    `json:"stepCount"`
	Section   string `json:"section"`
}

type submitView struct {
	Stage  model.SubmitStage `json:"stage"`
	Prompt string            `json:"prompt"`
	Errors []struct {
		QuestionID string `json:"questionId"`
	} `json:"errors"`
	ErrorsBySection []struct {
		Section string `json:"section"`
	} `json:"errorsBySection"`
}

func (s *testServer) open(t *testing.T, token string) stateView {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/v1/projects/p-1/sessions", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var state stateView
	require.NoError(t, json.Unmarshal(body, &state))
	return state
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, body := srv.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestRequiresFounderToken(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := srv.do(t, http.MethodPost, "/v1/projects/p-1/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = srv.do(t, http.MethodPost, "/v1/projects/p-1/sessions", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/v1/sessions/x", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSessionFlow_FillNavigateSubmit(t *testing.T) {
	srv := newTestServer(t)
	tok := srv.token(t, "f-1")

	state := srv.open(t, tok)
	assert.Equal(t, 0, state.Step)
	assert.Equal(t, 2, state.StepCount)
	assert.Equal(t, "Company", state.Section)
	base := "/v1/sessions/" + state.SessionID

	resp, body := srv.do(t, http.MethodPut, base+"/fields/company", tok, map[string]string{"value": "Acme"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"changed": true, "pending": 1}`, string(body))

	resp, body = srv.do(t, http.MethodPut, base+"/fields/market/value", tok, map[string]string{"value": "Fintech"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(body))

	resp, body = srv.do(t, http.MethodPost, base+"/steps/next", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var step struct {
		Moved  bool `json:"moved"`
		Change struct {
			To     int `json:"to"`
			Scroll struct {
				Kind string `json:"kind"`
			} `json:"scroll"`
		} `json:"change"`
	}
	require.NoError(t, json.Unmarshal(body, &step))
	assert.True(t, step.Moved)
	assert.Equal(t, 1, step.Change.To)
	assert.Equal(t, "top", step.Change.Scroll.Kind)

	resp, _ = srv.do(t, http.MethodPut, base+"/fields/market/value", tok, map[string]string{"value": "Fintech"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = srv.do(t, http.MethodPost, base+"/submit", tok, service.SubmitRequest{AcknowledgeRecommended: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res submitView
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, model.StageConfirm, res.Stage)
	assert.Equal(t, service.ConfirmPrompt, res.Prompt)

	resp, body = srv.do(t, http.MethodPost, base+"/submit", tok, service.SubmitRequest{AcknowledgeRecommended: true, Confirmed: true})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, model.StageSubmitted, res.Stage)

	srv.backend.mu.Lock()
	defer srv.backend.mu.Unlock()
	assert.Equal(t, 1, srv.backend.submitted)
	assert.Len(t, srv.backend.saved, 2)
}

func TestSubmit_ReportsValidationErrors(t *testing.T) {
	srv := newTestServer(t)
	tok := srv.token(t, "f-1")
	state := srv.open(t, tok)

	resp, body := srv.do(t, http.MethodPost, "/v1/sessions/"+state.SessionID+"/submit", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res submitView
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, model.StageValidationFailed, res.Stage)
	assert.Len(t, res.Errors, 2)
	require.Len(t, res.ErrorsBySection, 2)
	assert.Equal(t, "Company", res.ErrorsBySection[0].Section)
}

func TestSession_OtherFounderForbidden(t *testing.T) {
	srv := newTestServer(t)
	state := srv.open(t, srv.token(t, "f-1"))

	resp, _ := srv.do(t, http.MethodGet, "/v1/sessions/"+state.SessionID, srv.token(t, "f-2"), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = srv.do(t, http.MethodGet, "/v1/sessions/unknown", srv.token(t, "f-1"), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadDocument(t *testing.T) {
	srv := newTestServer(t)
	tok := srv.token(t, "f-1")
	state := srv.open(t, tok)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "deck.pdf")
	require.NoError(t, err)
	_, _ = io.Copy(part, strings.NewReader("%PDF"))
	require.NoError(t, mw.WriteField("question_id", "deck"))
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/sessions/"+state.SessionID+"/documents", &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var res service.DocumentResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.True(t, res.Applied)
	assert.Equal(t, "doc-1", res.Document.ID)

	srv.backend.mu.Lock()
	defer srv.backend.mu.Unlock()
	require.Len(t, srv.backend.uploads, 1)
	assert.Equal(t, "deck.pdf", srv.backend.uploads[0].Name)
}

func TestCloseSession(t *testing.T) {
	srv := newTestServer(t)
	tok := srv.token(t, "f-1")
	state := srv.open(t, tok)

	resp, _ := srv.do(t, http.MethodDelete, "/v1/sessions/"+state.SessionID, tok, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = srv.do(t, http.MethodGet, "/v1/sessions/"+state.SessionID, tok, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
