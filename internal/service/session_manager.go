package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"launchpad/internal/autosave"
	"launchpad/internal/cache"
	"launchpad/internal/form"
	"launchpad/internal/logger"
	"launchpad/internal/model"
	"launchpad/internal/repository"
)

// openTimeout bounds fetching questions and the resume snapshot for a new session
const openTimeout = 30 * time.Second

type SessionManagerConfig struct {
	Autosave autosave.Options
	// IdleTTL closes sessions with no activity for this long
	IdleTTL time.Duration
	// SweepSpec is the cron schedule of the idle sweep, e.g. "@every 1m"
	SweepSpec string
}

// SessionManager owns the open form sessions of this process. A founder has
// at most one session per project.
type SessionManager struct {
	backend      Backend
	sessionCache cache.SessionCache
	submissions  repository.SubmissionRepo
	journal      repository.FlushJournalRepo
	validator    *form.Validator
	broadcaster  Broadcaster
	cfg          SessionManagerConfig
	log          logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	owners   map[string]string
	opening  singleflight.Group
	cron     *cron.Cron
}

// NewSessionManager wires the session dependencies. sessionCache, submissions
// and journal may be nil, which disables resume, attempt history and the
// failure journal respectively.
func NewSessionManager(
	backend Backend,
	sessionCache cache.SessionCache,
	submissions repository.SubmissionRepo,
	journal repository.FlushJournalRepo,
	rules *form.RuleSet,
	cfg SessionManagerConfig,
	log logger.Logger,
) *SessionManager {
	if log == nil {
		log = logger.Default()
	}
	if cfg.Autosave.Guard == nil {
		cfg.Autosave.Guard = autosave.NewLocalGuard()
	}
	return &SessionManager{
		backend:      backend,
		sessionCache: sessionCache,
		submissions:  submissions,
		journal:      journal,
		validator:    form.NewValidator(rules),
		broadcaster:  nopBroadcaster{},
		cfg:          cfg,
		log:          log,
		sessions:     make(map[string]*Session),
		owners:       make(map[string]string),
	}
}

// SetBroadcaster sets the WebSocket broadcaster used by sessions opened afterwards
func (m *SessionManager) SetBroadcaster(b Broadcaster) {
	m.broadcaster = b
}

func ownerKey(founderID, projectID string) string {
	return founderID + ":" + projectID
}

// Open returns the founder's session for a project, loading the questions
// and resuming a saved snapshot when none is open yet. Concurrent opens of
// the same project share one load.
func (m *SessionManager) Open(ctx context.Context, founderID, token, projectID string) (*Session, error) {
	key := ownerKey(founderID, projectID)
	if s := m.byOwner(key); s != nil {
		s.SetToken(token)
		return s, nil
	}

	// the load is shared by every waiter, so it must outlive the caller that started it
	ch := m.opening.DoChan(key, func() (interface{}, error) {
		if s := m.byOwner(key); s != nil {
			return s, nil
		}
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), openTimeout)
		defer cancel()
		return m.create(lctx, founderID, token, projectID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		s := res.Val.(*Session)
		s.SetToken(token)
		return s, nil
	}
}

func (m *SessionManager) byOwner(key string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.owners[key]
	if !ok {
		return nil
	}
	return m.sessions[id]
}

func (m *SessionManager) create(ctx context.Context, founderID, token, projectID string) (*Session, error) {
	pq, err := m.backend.FetchQuestions(ctx, token, projectID)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}
	groups := form.GroupProjectQuestions(pq.Questions)

	var snap *model.SessionSnapshot
	if m.sessionCache != nil {
		snap, err = m.sessionCache.Get(ctx, founderID, projectID)
		if err != nil {
			m.log.Warnw("failed to load session snapshot", "founder_id", founderID, "project_id", projectID, "error", err)
			snap = nil
		}
	}

	id := uuid.NewString()
	if snap != nil && snap.SessionID != "" {
		id = snap.SessionID
	}
	s := newSession(id, founderID, projectID, token, groups, sessionDeps{
		backend:     m.backend,
		validator:   m.validator,
		submissions: m.submissions,
		journal:     m.journal,
		broadcaster: m.broadcaster,
		log:         m.log,
	}, m.cfg.Autosave)

	if snap != nil {
		s.restore(snap)
		resumedSessions.Inc()
		m.log.Infow("session resumed", "session_id", id, "project_id", projectID, "step", snap.Step, "pending", len(snap.Pending))
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.owners[ownerKey(founderID, projectID)] = s.ID
	m.mu.Unlock()
	activeSessions.Inc()

	m.log.Infow("session opened", "session_id", s.ID, "founder_id", founderID, "project_id", projectID, "questions", len(pq.Questions))
	return s, nil
}

// Get returns a session owned by founderID
func (m *SessionManager) Get(sessionID, founderID string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.FounderID != founderID {
		return nil, ErrForbidden
	}
	return s, nil
}

// Close ends a session on the founder's request
func (m *SessionManager) Close(ctx context.Context, sessionID, founderID string) error {
	s, err := m.Get(sessionID, founderID)
	if err != nil {
		return err
	}
	m.closeSession(ctx, s, "closed")
	return nil
}

func (m *SessionManager) closeSession(ctx context.Context, s *Session, reason string) {
	m.mu.Lock()
	_, registered := m.sessions[s.ID]
	delete(m.sessions, s.ID)
	key := ownerKey(s.FounderID, s.ProjectID)
	if m.owners[key] == s.ID {
		delete(m.owners, key)
	}
	m.mu.Unlock()
	if registered {
		activeSessions.Dec()
	}

	pending := s.Close(reason)
	m.persist(ctx, s, pending)
	m.log.Infow("session closed", "session_id", s.ID, "project_id", s.ProjectID, "reason", reason, "pending", len(pending))
}

// persist keeps unsaved drafts for the next open. A session with nothing
// left to save, or one already submitted, clears its snapshot.
func (m *SessionManager) persist(ctx context.Context, s *Session, pending []model.ProjectDraft) {
	if m.sessionCache == nil {
		return
	}
	if len(pending) == 0 || s.Submitted() {
		if err := m.sessionCache.Delete(ctx, s.FounderID, s.ProjectID); err != nil {
			m.log.Warnw("failed to clear session snapshot", "session_id", s.ID, "error", err)
		}
		return
	}
	if err := m.sessionCache.Set(ctx, s.Snapshot(pending)); err != nil {
		m.log.Errorw("failed to save session snapshot", "session_id", s.ID, "pending", len(pending), "error", err)
	}
}

// SweepIdle closes sessions idle since before now minus IdleTTL and returns
// how many it closed.
func (m *SessionManager) SweepIdle(now time.Time) int {
	if m.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-m.cfg.IdleTTL)

	m.mu.RLock()
	var idle []*Session
	for _, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range idle {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		m.closeSession(ctx, s, "idle")
		cancel()
	}
	return len(idle)
}

// Start schedules the idle sweep
func (m *SessionManager) Start() error {
	if m.cfg.SweepSpec == "" {
		return nil
	}
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := c.AddFunc(m.cfg.SweepSpec, func() {
		if n := m.SweepIdle(time.Now()); n > 0 {
			m.log.Infow("idle sessions swept", "closed", n)
		}
	}); err != nil {
		return fmt.Errorf("schedule idle sweep %q: %w", m.cfg.SweepSpec, err)
	}
	c.Start()
	m.cron = c
	return nil
}

// Stop halts the sweep and closes every session, saving snapshots
func (m *SessionManager) Stop(ctx context.Context) {
	if m.cron != nil {
		select {
		case <-m.cron.Stop().Done():
		case <-ctx.Done():
		}
	}

	m.mu.RLock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.RUnlock()

	for _, s := range open {
		m.closeSession(ctx, s, "shutdown")
	}
}

// Count is the number of open sessions
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
