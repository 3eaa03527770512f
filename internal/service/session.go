package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"launchpad/internal/autosave"
	"launchpad/internal/form"
	"launchpad/internal/logger"
	"launchpad/internal/model"
	"launchpad/internal/repository"
)

// ConfirmPrompt is shown once validation passes and recommendations are settled
const ConfirmPrompt = "Submit Application?"

// Backend is the part of the funding platform API a session talks to
type Backend interface {
	FetchQuestions(ctx context.Context, token, projectID string) (*model.ProjectQuestions, error)
	SaveDraft(ctx context.Context, token, projectID string, drafts []model.ProjectDraft) error
	UploadDocument(ctx context.Context, token, projectID string, up DocumentUpload) (*model.ProjectDocument, error)
	DeleteDocument(ctx context.Context, token, projectID, documentID string) error
	SubmitProject(ctx context.Context, token, projectID string) error
}

var _ Backend = (*BackendClient)(nil)

type SubmitRequest struct {
	// Confirmed answers the final confirmation prompt
	Confirmed bool `json:"confirmed"`
	// AcknowledgeRecommended skips the recommended-fields prompt
	AcknowledgeRecommended bool `json:"acknowledgeRecommended"`
	JumpToFirstError       bool `json:"jumpToFirstError"`
}

// SubmitResult says where the submit pipeline stopped and what to show
type SubmitResult struct {
	Stage           model.SubmitStage        `json:"stage"`
	Errors          []model.ValidationError  `json:"errors,omitempty"`
	ErrorsBySection []form.SectionErrors     `json:"errorsBySection,omitempty"`
	Recommended     []model.RecommendedField `json:"recommended,omitempty"`
	Prompt          string                   `json:"prompt,omitempty"`
	StepChange      *form.StepChange         `json:"stepChange,omitempty"`
	Message         string                   `json:"message,omitempty"`
}

// SessionState is what a client needs to render the current step
type SessionState struct {
	SessionID string                         `json:"sessionId"`
	ProjectID string                         `json:"projectId"`
	Step      int                            `json:"step"`
	StepCount int                            `json:"stepCount"`
	Section   string                         `json:"section"`
	IsLast    bool                           `json:"isLast"`
	Sections  []string                       `json:"sections"`
	Group     *model.GroupedProjectQuestions `json:"group,omitempty"`
	Visible   map[string]bool                `json:"visible"`
	Autosave  autosave.StatusEvent           `json:"autosave"`
	Submitted bool                           `json:"submitted"`
}

// UploadRequest is a file the founder attaches to a file field
type UploadRequest struct {
	QuestionID  string
	FieldKey    string
	Name        string
	FileName    string
	ContentType string
	Content     io.Reader
}

// DocumentResult reports a document operation. Applied is false when the
// founder left the step before the backend answered; the document then
// shows up on the next load instead.
type DocumentResult struct {
	Document *model.ProjectDocument `json:"document,omitempty"`
	Applied  bool                   `json:"applied"`
}

type sessionDeps struct {
	backend     Backend
	validator   *form.Validator
	submissions repository.SubmissionRepo
	journal     repository.FlushJournalRepo
	broadcaster Broadcaster
	log         logger.Logger
}

// Session is one founder editing one project's application. All form state
// changes go through mu, so a session behaves like a single UI thread while
// network calls run outside it.
type Session struct {
	ID        string
	ProjectID string
	FounderID string

	token atomic.Pointer[string]

	backend     Backend
	validator   *form.Validator
	submissions repository.SubmissionRepo
	broadcaster Broadcaster
	log         logger.Logger
	engine      *autosave.Engine

	mu         sync.Mutex
	store      *form.Store
	lastActive time.Time
	submitting bool
	submitted  bool
	closed     bool
}

func newSession(id, founderID, projectID, token string, groups []model.GroupedProjectQuestions, deps sessionDeps, opts autosave.Options) *Session {
	if deps.broadcaster == nil {
		deps.broadcaster = nopBroadcaster{}
	}
	if deps.log == nil {
		deps.log = logger.Default()
	}
	if deps.validator == nil {
		deps.validator = form.NewValidator(nil)
	}

	s := &Session{
		ID:          id,
		ProjectID:   projectID,
		FounderID:   founderID,
		backend:     deps.backend,
		validator:   deps.validator,
		submissions: deps.submissions,
		broadcaster: deps.broadcaster,
		log:         deps.log,
		store:       form.NewStore(groups),
		lastActive:  time.Now(),
	}
	s.SetToken(token)

	opts.Logger = deps.log
	opts.OnStatus = func(ev autosave.StatusEvent) {
		s.broadcaster.BroadcastToSession(s.ID, EventAutosaveStatus, ev)
	}
	if deps.journal != nil {
		opts.Journal = newFlushJournal(deps.journal, founderID)
	}
	saver := autosave.SaverFunc(func(ctx context.Context, drafts []model.ProjectDraft) error {
		return s.backend.SaveDraft(ctx, s.Token(), s.ProjectID, drafts)
	})
	s.engine = autosave.NewEngine(projectID, saver, opts)
	return s
}

// SetToken replaces the bearer token used for backend calls, e.g. after the
// founder reopens the session with a refreshed token.
func (s *Session) SetToken(token string) {
	s.token.Store(&token)
}

func (s *Session) Token() string {
	if t := s.token.Load(); t != nil {
		return *t
	}
	return ""
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) touchLocked() {
	s.lastActive = time.Now()
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() SessionState {
	groups := s.store.Groups()
	nav := s.store.Navigator()
	state := SessionState{
		SessionID: s.ID,
		ProjectID: s.ProjectID,
		Step:      nav.Current(),
		StepCount: nav.Count(),
		Section:   nav.Section(),
		IsLast:    nav.IsLast(),
		Sections:  form.SectionNames(groups),
		Visible:   form.Visibility(groups),
		Autosave:  s.engine.Event(),
		Submitted: s.submitted,
	}
	if g, ok := s.store.CurrentGroup(); ok {
		state.Group = &g
	}
	return state
}

// SetField decodes raw according to the field's input type and writes it.
// Only questions on the current step accept writes.
func (s *Session) SetField(questionID, fieldKey string, raw json.RawMessage) (form.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return form.Change{}, ErrSessionClosed
	}
	s.touchLocked()

	q, _, ok := form.FindQuestion(s.store.Groups(), questionID)
	if !ok {
		return form.Change{}, form.ErrQuestionNotFound
	}
	if fieldKey == "" {
		fieldKey = model.PrimaryField
	}
	ft, ok := q.FieldType(fieldKey)
	if !ok {
		return form.Change{}, fmt.Errorf("%w: %s/%s", form.ErrFieldNotFound, questionID, fieldKey)
	}
	v, err := model.DecodeValue(ft, raw)
	if err != nil {
		return form.Change{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	change, err := s.store.SetFieldValue(questionID, fieldKey, v)
	if err != nil {
		return form.Change{}, err
	}
	if change.Changed {
		s.engine.Enqueue(change.Draft, change.File)
	}
	return change, nil
}

func (s *Session) Next() (form.StepChange, bool, error) {
	return s.step(func(nav *form.Navigator) (form.StepChange, bool) { return nav.Next() })
}

func (s *Session) Back() (form.StepChange, bool, error) {
	return s.step(func(nav *form.Navigator) (form.StepChange, bool) { return nav.Back() })
}

func (s *Session) step(move func(*form.Navigator) (form.StepChange, bool)) (form.StepChange, bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return form.StepChange{}, false, ErrSessionClosed
	}
	s.touchLocked()
	change, ok := move(s.store.Navigator())
	s.mu.Unlock()

	if ok {
		s.broadcaster.BroadcastToSession(s.ID, EventStepChanged, change)
	}
	return change, ok, nil
}

// JumpToError moves to the step holding section and scrolls to anchor
func (s *Session) JumpToError(section, anchor, questionID string) (form.StepChange, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return form.StepChange{}, ErrSessionClosed
	}
	s.touchLocked()
	change, err := s.store.Navigator().JumpToError(section, anchor, questionID)
	s.mu.Unlock()
	if err != nil {
		return form.StepChange{}, err
	}

	s.broadcaster.BroadcastToSession(s.ID, EventStepChanged, change)
	return change, nil
}

// Validate checks every visible question and marks failing fields invalid
func (s *Session) Validate() (form.ValidationResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return form.ValidationResult{}, ErrSessionClosed
	}
	s.touchLocked()
	result := s.validateLocked()
	s.mu.Unlock()

	s.broadcaster.BroadcastToSession(s.ID, EventValidationResult, result)
	return result, nil
}

func (s *Session) validateLocked() form.ValidationResult {
	result := s.validator.Validate(s.store.Groups())
	s.store.Replace(result.Groups)
	return result
}

// Submit runs the submit pipeline. Each call advances as far as the request
// allows: validation, then recommended fields, then confirmation, then the
// final flush and submit. Every attempt is recorded.
func (s *Session) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.submitting {
		s.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	if s.submitted {
		s.mu.Unlock()
		return &SubmitResult{Stage: model.StageSubmitted}, nil
	}
	s.touchLocked()

	result := s.validateLocked()
	if !result.Valid {
		out := &SubmitResult{
			Stage:           model.StageValidationFailed,
			Errors:          result.Errors,
			ErrorsBySection: form.ErrorsBySection(result.Errors),
		}
		if req.JumpToFirstError {
			first := result.Errors[0]
			change, err := s.store.Navigator().JumpToError(first.Section, first.SubSection, first.QuestionID)
			if err == nil {
				out.StepChange = &change
			}
		}
		s.mu.Unlock()

		s.broadcaster.BroadcastToSession(s.ID, EventValidationResult, result)
		if out.StepChange != nil {
			s.broadcaster.BroadcastToSession(s.ID, EventStepChanged, *out.StepChange)
		}
		s.recordAttempt(ctx, out)
		return out, nil
	}

	recommended := form.CollectRecommended(result.Groups)
	if len(recommended) > 0 && !req.AcknowledgeRecommended {
		s.mu.Unlock()
		out := &SubmitResult{Stage: model.StageRecommended, Recommended: recommended}
		s.recordAttempt(ctx, out)
		return out, nil
	}
	if !req.Confirmed {
		s.mu.Unlock()
		out := &SubmitResult{Stage: model.StageConfirm, Prompt: ConfirmPrompt}
		s.recordAttempt(ctx, out)
		return out, nil
	}

	s.submitting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.submitting = false
		s.mu.Unlock()
	}()

	if err := s.engine.FlushAll(ctx); err != nil {
		out := &SubmitResult{Stage: model.StageFailed, Message: "Could not save your latest answers. Please try again."}
		s.recordAttempt(ctx, out)
		return out, fmt.Errorf("flush drafts before submit: %w", err)
	}

	if err := s.backend.SubmitProject(ctx, s.Token(), s.ProjectID); err != nil {
		out := &SubmitResult{Stage: model.StageFailed, Message: submitFailureMessage(err)}
		s.recordAttempt(ctx, out)
		return out, fmt.Errorf("submit project: %w", err)
	}

	s.mu.Lock()
	s.submitted = true
	s.mu.Unlock()

	out := &SubmitResult{Stage: model.StageSubmitted}
	s.recordAttempt(ctx, out)
	s.log.Infow("application submitted", "session_id", s.ID, "project_id", s.ProjectID, "founder_id", s.FounderID)
	return out, nil
}

func submitFailureMessage(err error) string {
	var berr *BackendError
	if errors.As(err, &berr) && berr.Message != "" {
		return berr.Message
	}
	return "Failed to submit application"
}

func (s *Session) recordAttempt(ctx context.Context, out *SubmitResult) {
	submitAttempts.WithLabelValues(string(out.Stage)).Inc()
	if s.submissions == nil {
		return
	}
	attempt := &model.SubmissionAttempt{
		ProjectID:   s.ProjectID,
		FounderID:   s.FounderID,
		SessionID:   s.ID,
		Stage:       out.Stage,
		Success:     out.Stage == model.StageSubmitted,
		Message:     out.Message,
		ErrorCount:  len(out.Errors),
		AttemptedAt: time.Now(),
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.submissions.Create(rctx, attempt); err != nil {
		s.log.Errorw("failed to record submit attempt", "session_id", s.ID, "stage", out.Stage, "error", err)
	}
}

// SaveNow flushes pending drafts without waiting for the quiet period
func (s *Session) SaveNow(ctx context.Context) (autosave.FlushResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return autosave.FlushResult{Skipped: autosave.SkipClosed}, ErrSessionClosed
	}
	s.touchLocked()
	s.mu.Unlock()
	return s.engine.SaveNow(ctx)
}

// UploadDocument sends a file to the backend and attaches the returned
// record to the field. The field must be on the current step.
func (s *Session) UploadDocument(ctx context.Context, req UploadRequest) (*DocumentResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.touchLocked()
	q, step, ok := form.FindQuestion(s.store.Groups(), req.QuestionID)
	if !ok {
		s.mu.Unlock()
		return nil, form.ErrQuestionNotFound
	}
	if step != s.store.Step() {
		s.mu.Unlock()
		return nil, form.ErrNotInActiveStep
	}
	fieldKey := req.FieldKey
	if fieldKey == "" {
		fieldKey = firstFileField(q)
	}
	if fieldKey == "" || !q.IsFileField(fieldKey) {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s has no file field %q", form.ErrFieldNotFound, q.ID, req.FieldKey)
	}
	s.mu.Unlock()

	name := req.Name
	if name == "" {
		name = req.FileName
	}
	doc, err := s.backend.UploadDocument(ctx, s.Token(), s.ProjectID, DocumentUpload{
		QuestionID:  q.ID,
		FieldKey:    fieldKey,
		Name:        name,
		Section:     q.Section,
		SubSection:  q.SubSection,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Content:     req.Content,
	})
	if err != nil {
		return nil, err
	}

	applied := s.applyFiles(q.ID, fieldKey, step, func(files []model.FileRecord) []model.FileRecord {
		for _, f := range files {
			if f.ID == doc.ID {
				return files
			}
		}
		return append(append([]model.FileRecord(nil), files...), doc.Record())
	})
	return &DocumentResult{Document: doc, Applied: applied}, nil
}

// RemoveDocument deletes a document upstream, then drops it from its field
func (s *Session) RemoveDocument(ctx context.Context, documentID string) (*DocumentResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.touchLocked()
	questionID, fieldKey, step, ok := findDocument(s.store.Groups(), documentID)
	s.mu.Unlock()
	if !ok {
		return nil, ErrDocumentMissing
	}

	if err := s.backend.DeleteDocument(ctx, s.Token(), s.ProjectID, documentID); err != nil {
		return nil, err
	}

	applied := s.applyFiles(questionID, fieldKey, step, func(files []model.FileRecord) []model.FileRecord {
		out := make([]model.FileRecord, 0, len(files))
		for _, f := range files {
			if f.ID != documentID {
				out = append(out, f)
			}
		}
		return out
	})
	return &DocumentResult{Applied: applied}, nil
}

// applyFiles rewrites a file field with the result of a finished document
// call. The result is dropped when the session closed or the founder moved
// to another step while the call was running.
func (s *Session) applyFiles(questionID, fieldKey string, step int, edit func([]model.FileRecord) []model.FileRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.store.Step() != step {
		s.log.Debugw("document result no longer applies", "session_id", s.ID, "question_id", questionID, "step", step)
		return false
	}

	q, _, ok := form.FindQuestion(s.store.Groups(), questionID)
	if !ok {
		return false
	}
	current, _ := q.FieldValue(fieldKey)
	change, err := s.store.SetFieldValue(questionID, fieldKey, model.FilesValue(edit(current.Files)...))
	if err != nil {
		s.log.Warnw("failed to apply document result", "session_id", s.ID, "question_id", questionID, "error", err)
		return false
	}
	if change.Changed {
		s.engine.Enqueue(change.Draft, change.File)
	}
	return true
}

func findDocument(groups []model.GroupedProjectQuestions, documentID string) (questionID, fieldKey string, step int, ok bool) {
	form.Walk(groups, func(i int, _ string, q model.Question) bool {
		for _, f := range q.DeclaredFields() {
			if f.Type == model.InputFile && containsFile(f.Value, documentID) {
				questionID, fieldKey, step, ok = q.ID, f.Key, i, true
				return false
			}
		}
		return true
	})
	return questionID, fieldKey, step, ok
}

// restore replays a snapshot into a freshly loaded session. Drafts whose
// question no longer exists are dropped.
func (s *Session) restore(snap *model.SessionSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range snap.Pending {
		change, err := s.store.Apply(d)
		if err != nil {
			s.log.Warnw("dropping pending draft on resume", "session_id", s.ID, "draft", d.Key(), "error", err)
			continue
		}
		s.engine.Enqueue(change.Draft, change.File)
	}
	s.store.Navigator().GoTo(snap.Step)
}

// Snapshot captures what is needed to resume the session later
func (s *Session) Snapshot(pending []model.ProjectDraft) *model.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &model.SessionSnapshot{
		SessionID: s.ID,
		ProjectID: s.ProjectID,
		FounderID: s.FounderID,
		Step:      s.store.Step(),
		Pending:   pending,
		SavedAt:   time.Now(),
	}
}

func (s *Session) Submitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted
}

// Closed reports whether Close has run
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops autosave and disconnects listeners. It returns the drafts that
// were never saved so the caller can keep them for a later resume.
func (s *Session) Close(reason string) []model.ProjectDraft {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	pending := s.engine.Close()
	s.broadcaster.BroadcastToSession(s.ID, EventSessionClosed, map[string]interface{}{
		"reason":  reason,
		"pending": len(pending),
	})
	s.broadcaster.DisconnectSession(s.ID)
	return pending
}
