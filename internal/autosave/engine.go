package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"launchpad/internal/logger"
	"launchpad/internal/model"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusSaving  Status = "saving"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// SkipReason says why a flush did not send anything
type SkipReason string

const (
	SkipNone     SkipReason = ""
	SkipEmpty    SkipReason = "empty"
	SkipInFlight SkipReason = "in_flight"
	SkipGuarded  SkipReason = "guarded"
	SkipClosed   SkipReason = "closed"
)

var ErrClosed = errors.New("autosave engine closed")

// Saver persists one batch of drafts. The batch succeeds or fails as a whole.
type Saver interface {
	SaveDraft(ctx context.Context, drafts []model.ProjectDraft) error
}

type SaverFunc func(ctx context.Context, drafts []model.ProjectDraft) error

func (f SaverFunc) SaveDraft(ctx context.Context, drafts []model.ProjectDraft) error {
	return f(ctx, drafts)
}

// FailureJournal records batches the backend rejected
type FailureJournal interface {
	RecordFailure(ctx context.Context, projectID string, drafts []model.ProjectDraft, cause error, restored bool) error
}

// StatusEvent is published on every status transition
type StatusEvent struct {
	ProjectID string    `json:"projectId"`
	Status    Status    `json:"status"`
	Pending   int       `json:"pending"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

type StatusListener func(StatusEvent)

type Options struct {
	FieldDebounce    time.Duration
	FileDebounce     time.Duration
	StatusResetAfter time.Duration
	RequestTimeout   time.Duration
	// RestoreOnFailure keeps a failed batch pending. When false the batch is
	// dropped after being journaled.
	RestoreOnFailure bool

	Guard    Guard
	Journal  FailureJournal
	OnStatus StatusListener
	Logger   logger.Logger
}

func DefaultOptions() Options {
	return Options{
		FieldDebounce:    1500 * time.Millisecond,
		FileDebounce:     500 * time.Millisecond,
		StatusResetAfter: 2 * time.Second,
		RequestTimeout:   15 * time.Second,
		RestoreOnFailure: true,
	}
}

// FlushResult describes one flush attempt
type FlushResult struct {
	Saved   int        `json:"saved"`
	Skipped SkipReason `json:"skipped,omitempty"`
}

// Engine batches field edits for one project and writes them to a Saver
// after a quiet period. Only one flush per project runs at a time.
type Engine struct {
	projectID string
	saver     Saver
	opts      Options
	dirty     *DirtyMap
	log       logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	debounce   *time.Timer
	resetTimer *time.Timer
	status     Status
	lastErr    error
	flushing   bool
	closed     bool
}

func NewEngine(projectID string, saver Saver, opts Options) *Engine {
	defaults := DefaultOptions()
	if opts.FieldDebounce <= 0 {
		opts.FieldDebounce = defaults.FieldDebounce
	}
	if opts.FileDebounce <= 0 {
		opts.FileDebounce = defaults.FileDebounce
	}
	if opts.StatusResetAfter <= 0 {
		opts.StatusResetAfter = defaults.StatusResetAfter
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaults.RequestTimeout
	}
	if opts.Guard == nil {
		opts.Guard = NewLocalGuard()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		projectID: projectID,
		saver:     saver,
		opts:      opts,
		dirty:     NewDirtyMap(),
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		status:    StatusIdle,
	}
}

// Enqueue records a draft and restarts the quiet period. File fields use the
// shorter file window.
func (e *Engine) Enqueue(d model.ProjectDraft, file bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.dirty.Put(d)
	window := e.opts.FieldDebounce
	if file {
		window = e.opts.FileDebounce
	}
	e.scheduleLocked(window)
}

func (e *Engine) scheduleLocked(window time.Duration) {
	if e.closed {
		return
	}
	if e.debounce != nil {
		e.debounce.Stop()
	}
	e.debounce = time.AfterFunc(window, func() {
		e.flush(e.ctx)
	})
}

func (e *Engine) schedule(window time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scheduleLocked(window)
}

// SaveNow flushes without waiting for the quiet period. It still honours
// the in-flight guard and does nothing when no draft is pending.
func (e *Engine) SaveNow(ctx context.Context) (FlushResult, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return FlushResult{Skipped: SkipClosed}, ErrClosed
	}
	if e.debounce != nil && !e.flushing {
		e.debounce.Stop()
	}
	e.mu.Unlock()
	return e.flush(ctx)
}

// FlushAll saves until nothing is pending, waiting out other flights.
// It returns the first save error.
func (e *Engine) FlushAll(ctx context.Context) error {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		res, err := e.SaveNow(ctx)
		if err != nil {
			return err
		}
		if e.dirty.Len() == 0 && res.Skipped != SkipInFlight && res.Skipped != SkipGuarded {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) flush(ctx context.Context) (FlushResult, error) {
	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		return FlushResult{Skipped: SkipClosed}, nil
	case e.flushing:
		e.mu.Unlock()
		flushTotal.WithLabelValues("in_flight").Inc()
		return FlushResult{Skipped: SkipInFlight}, nil
	case e.dirty.Len() == 0:
		e.mu.Unlock()
		return FlushResult{Skipped: SkipEmpty}, nil
	}
	e.flushing = true
	e.mu.Unlock()

	release, acquired, err := e.opts.Guard.TryAcquire(ctx, e.projectID)
	if err != nil {
		e.mu.Lock()
		e.flushing = false
		e.mu.Unlock()
		flushTotal.WithLabelValues("guard_error").Inc()
		e.log.Warnw("autosave guard unavailable", "project_id", e.projectID, "error", err)
		e.setStatus(StatusError, err)
		// drafts stay pending; the timer retries once the guard recovers
		e.schedule(e.opts.FieldDebounce)
		return FlushResult{}, fmt.Errorf("acquire flush guard: %w", err)
	}
	if !acquired {
		e.mu.Lock()
		e.flushing = false
		e.mu.Unlock()
		flushTotal.WithLabelValues("guarded").Inc()
		// another holder owns the project; retry after a field window
		e.schedule(e.opts.FieldDebounce)
		return FlushResult{Skipped: SkipGuarded}, nil
	}

	// flushing stays set until the snapshot is committed so a tick firing
	// now cannot resend the same entries
	defer func() {
		release()
		e.mu.Lock()
		e.flushing = false
		e.mu.Unlock()
	}()

	snap := e.dirty.Snapshot()
	e.setStatus(StatusSaving, nil)

	reqCtx, cancel := context.WithTimeout(e.ctx, e.opts.RequestTimeout)
	stop := context.AfterFunc(ctx, cancel)
	start := time.Now()
	saveErr := e.saver.SaveDraft(reqCtx, snap.Drafts)
	stop()
	cancel()
	flushDuration.Observe(time.Since(start).Seconds())
	batchSize.Observe(float64(snap.Len()))

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		e.log.Debugw("autosave result after close ignored", "project_id", e.projectID)
		return FlushResult{Skipped: SkipClosed}, nil
	}

	if saveErr != nil {
		e.handleFailure(snap, saveErr)
	} else {
		e.dirty.Commit(snap)
		flushTotal.WithLabelValues("success").Inc()
		e.setStatus(StatusSuccess, nil)
		e.log.Debugw("autosave flushed", "project_id", e.projectID, "drafts", snap.Len())
	}

	if e.dirty.ChangedSince(snap) {
		e.schedule(e.opts.FieldDebounce)
	}

	if saveErr != nil {
		return FlushResult{}, saveErr
	}
	return FlushResult{Saved: snap.Len()}, nil
}

func (e *Engine) handleFailure(snap Snapshot, cause error) {
	flushTotal.WithLabelValues("error").Inc()
	restored := e.opts.RestoreOnFailure
	if restored {
		restoredDrafts.Add(float64(snap.Len()))
	} else {
		e.dirty.Commit(snap)
		droppedDrafts.Add(float64(snap.Len()))
	}
	e.log.Warnw("autosave flush failed",
		"project_id", e.projectID,
		"drafts", snap.Len(),
		"restored", restored,
		"error", cause,
	)

	if e.opts.Journal != nil {
		jctx, cancel := context.WithTimeout(context.WithoutCancel(e.ctx), 5*time.Second)
		if err := e.opts.Journal.RecordFailure(jctx, e.projectID, snap.Drafts, cause, restored); err != nil {
			e.log.Errorw("failed to journal autosave failure", "project_id", e.projectID, "error", err)
		}
		cancel()
	}
	e.setStatus(StatusError, cause)
}

func (e *Engine) setStatus(s Status, cause error) {
	e.mu.Lock()
	if e.resetTimer != nil {
		e.resetTimer.Stop()
		e.resetTimer = nil
	}
	e.status = s
	e.lastErr = cause
	if s == StatusSuccess && !e.closed {
		e.resetTimer = time.AfterFunc(e.opts.StatusResetAfter, e.resetToIdle)
	}
	ev := e.eventLocked()
	e.mu.Unlock()

	if e.opts.OnStatus != nil {
		e.opts.OnStatus(ev)
	}
}

func (e *Engine) resetToIdle() {
	e.mu.Lock()
	if e.closed || e.status != StatusSuccess {
		e.mu.Unlock()
		return
	}
	e.status = StatusIdle
	e.resetTimer = nil
	ev := e.eventLocked()
	e.mu.Unlock()

	if e.opts.OnStatus != nil {
		e.opts.OnStatus(ev)
	}
}

func (e *Engine) eventLocked() StatusEvent {
	ev := StatusEvent{
		ProjectID: e.projectID,
		Status:    e.status,
		Pending:   e.dirty.Len(),
		At:        time.Now(),
	}
	if e.lastErr != nil {
		ev.Error = e.lastErr.Error()
	}
	return ev
}

// Status returns the current status and the error of the last failed flush
func (e *Engine) Status() (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, e.lastErr
}

func (e *Engine) Event() StatusEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.eventLocked()
}

// Pending returns the drafts not yet saved, in write order
func (e *Engine) Pending() []model.ProjectDraft {
	return e.dirty.Pending()
}

// Close stops timers and cancels any request in flight. Results that arrive
// afterwards are discarded. Pending drafts are left for the caller to keep.
func (e *Engine) Close() []model.ProjectDraft {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		if e.debounce != nil {
			e.debounce.Stop()
		}
		if e.resetTimer != nil {
			e.resetTimer.Stop()
		}
		e.cancel()
	}
	e.mu.Unlock()
	return e.dirty.Pending()
}
