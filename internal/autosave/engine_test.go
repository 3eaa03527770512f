package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"launchpad/internal/model"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

// recordingSaver records every batch. When gate is set each call blocks
// until a value is sent on it or ctx ends.
type recordingSaver struct {
	mu      sync.Mutex
	batches [][]model.ProjectDraft
	err     error
	gate    chan struct{}
	started chan struct{}
}

func (s *recordingSaver) SaveDraft(ctx context.Context, drafts []model.ProjectDraft) error {
	s.mu.Lock()
	s.batches = append(s.batches, drafts)
	gate, started, err := s.gate, s.started, s.err
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (s *recordingSaver) calls() [][]model.ProjectDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]model.ProjectDraft, len(s.batches))
	copy(out, s.batches)
	return out
}

type mockJournal struct {
	mock.Mock
}

func (m *mockJournal) RecordFailure(ctx context.Context, projectID string, drafts []model.ProjectDraft, cause error, restored bool) error {
	args := m.Called(ctx, projectID, drafts, cause, restored)
	return args.Error(0)
}

type statusLog struct {
	mu     sync.Mutex
	events []Status
}

func (l *statusLog) listen(ev StatusEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev.Status)
}

func (l *statusLog) all() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Status(nil), l.events...)
}

func testOptions() Options {
	return Options{
		FieldDebounce:    40 * time.Millisecond,
		FileDebounce:     10 * time.Millisecond,
		StatusResetAfter: 30 * time.Millisecond,
		RequestTimeout:   time.Second,
		RestoreOnFailure: true,
	}
}

func TestEngineCoalescesBurst(t *testing.T) {
	saver := &recordingSaver{}
	e := NewEngine("p1", saver, testOptions())
	defer e.Close()

	e.Enqueue(draft("q1", "A"), false)
	e.Enqueue(draft("q1", "Ac"), false)
	e.Enqueue(draft("q1", "Acme"), false)

	require.Eventually(t, func() bool { return len(saver.calls()) == 1 }, waitFor, tick)
	time.Sleep(80 * time.Millisecond)

	calls := saver.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []model.ProjectDraft{draft("q1", "Acme")}, calls[0])
	assert.Empty(t, e.Pending())
}

func TestEngineFileWindowIsShorter(t *testing.T) {
	saver := &recordingSaver{}
	opts := testOptions()
	opts.FieldDebounce = time.Hour
	e := NewEngine("p1", saver, opts)
	defer e.Close()

	e.Enqueue(model.ProjectDraft{QuestionID: "deck", Answer: model.FilesValue(model.FileRecord{ID: "d1"})}, true)

	require.Eventually(t, func() bool { return len(saver.calls()) == 1 }, waitFor, tick)
}

func TestEngineEntriesAddedDuringFlightGoToNextFlush(t *testing.T) {
	saver := &recordingSaver{gate: make(chan struct{}), started: make(chan struct{}, 4)}
	e := NewEngine("p1", saver, testOptions())
	defer e.Close()

	e.Enqueue(draft("q1", "first"), false)
	<-saver.started

	e.Enqueue(draft("q2", "during"), false)
	e.Enqueue(draft("q1", "edited"), false)
	saver.gate <- struct{}{}

	<-saver.started
	saver.gate <- struct{}{}

	require.Eventually(t, func() bool { return len(e.Pending()) == 0 }, waitFor, tick)
	calls := saver.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []model.ProjectDraft{draft("q1", "first")}, calls[0])
	assert.ElementsMatch(t, []model.ProjectDraft{draft("q2", "during"), draft("q1", "edited")}, calls[1])
}

func TestEngineSaveNow(t *testing.T) {
	saver := &recordingSaver{}
	opts := testOptions()
	opts.FieldDebounce = time.Hour
	e := NewEngine("p1", saver, opts)
	defer e.Close()

	res, err := e.SaveNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SkipEmpty, res.Skipped)
	assert.Empty(t, saver.calls())

	e.Enqueue(draft("q1", "now"), false)
	res, err = e.SaveNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Saved)
	require.Len(t, saver.calls(), 1)
}

func TestEngineSaveNowRespectsInFlight(t *testing.T) {
	saver := &recordingSaver{gate: make(chan struct{}), started: make(chan struct{}, 4)}
	e := NewEngine("p1", saver, testOptions())
	defer e.Close()

	e.Enqueue(draft("q1", "a"), true)
	<-saver.started

	res, err := e.SaveNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SkipInFlight, res.Skipped)

	saver.gate <- struct{}{}
	require.Eventually(t, func() bool { return len(e.Pending()) == 0 }, waitFor, tick)
	assert.Len(t, saver.calls(), 1)
}

func TestEngineGuardHeldElsewhere(t *testing.T) {
	saver := &recordingSaver{}
	guard := NewLocalGuard()
	opts := testOptions()
	opts.FieldDebounce = time.Hour
	opts.Guard = guard
	e := NewEngine("p1", saver, opts)
	defer e.Close()

	release, ok, err := guard.TryAcquire(context.Background(), "p1")
	require.NoError(t, err)
	require.True(t, ok)

	e.Enqueue(draft("q1", "a"), false)
	res, err := e.SaveNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SkipGuarded, res.Skipped)
	assert.Empty(t, saver.calls())

	release()
	res, err = e.SaveNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Saved)
	assert.False(t, guard.Held("p1"))
}

type brokenGuard struct{ err error }

func (g brokenGuard) TryAcquire(context.Context, string) (func(), bool, error) {
	return nil, false, g.err
}

func TestEngineGuardErrorSurfacesAsStatus(t *testing.T) {
	cause := errors.New("redis: connection refused")
	saver := &recordingSaver{}
	statuses := &statusLog{}
	opts := testOptions()
	opts.FieldDebounce = time.Hour
	opts.Guard = brokenGuard{err: cause}
	opts.OnStatus = statuses.listen
	e := NewEngine("p1", saver, opts)
	defer e.Close()

	e.Enqueue(draft("q1", "a"), false)
	_, err := e.SaveNow(context.Background())
	require.ErrorIs(t, err, cause)

	status, lastErr := e.Status()
	assert.Equal(t, StatusError, status)
	assert.ErrorIs(t, lastErr, cause)
	assert.Contains(t, statuses.all(), StatusError)
	assert.Empty(t, saver.calls())
	assert.Len(t, e.Pending(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	err = e.FlushAll(ctx)
	require.ErrorIs(t, err, cause)
	assert.NoError(t, ctx.Err(), "FlushAll should fail fast instead of waiting out the context")
}

func TestEngineFailureRestoresPending(t *testing.T) {
	cause := errors.New("backend returned 500")
	saver := &recordingSaver{err: cause}
	journal := &mockJournal{}
	journal.On("RecordFailure", mock.Anything, "p1", []model.ProjectDraft{draft("q1", "a")}, cause, true).Return(nil).Once()

	statuses := &statusLog{}
	opts := testOptions()
	opts.FieldDebounce = time.Hour
	opts.Journal = journal
	opts.OnStatus = statuses.listen
	e := NewEngine("p1", saver, opts)
	defer e.Close()

	e.Enqueue(draft("q1", "a"), false)
	_, err := e.SaveNow(context.Background())
	assert.ErrorIs(t, err, cause)

	status, lastErr := e.Status()
	assert.Equal(t, StatusError, status)
	assert.ErrorIs(t, lastErr, cause)
	assert.Equal(t, []model.ProjectDraft{draft("q1", "a")}, e.Pending())
	assert.Equal(t, []Status{StatusSaving, StatusError}, statuses.all())
	journal.AssertExpectations(t)

	time.Sleep(60 * time.Millisecond)
	assert.Len(t, saver.calls(), 1, "no automatic retry after an error")
}

func TestEngineFailureDropsWhenRestoreDisabled(t *testing.T) {
	cause := errors.New("timeout")
	saver := &recordingSaver{err: cause}
	journal := &mockJournal{}
	journal.On("RecordFailure", mock.Anything, "p1", mock.Anything, cause, false).Return(errors.New("mongo down")).Once()

	opts := testOptions()
	opts.FieldDebounce = time.Hour
	opts.RestoreOnFailure = false
	opts.Journal = journal
	e := NewEngine("p1", saver, opts)
	defer e.Close()

	e.Enqueue(draft("q1", "a"), false)
	_, err := e.SaveNow(context.Background())
	assert.Error(t, err)
	assert.Empty(t, e.Pending())
	journal.AssertExpectations(t)
}

func TestEngineSuccessResetsToIdle(t *testing.T) {
	statuses := &statusLog{}
	opts := testOptions()
	opts.OnStatus = statuses.listen
	e := NewEngine("p1", &recordingSaver{}, opts)
	defer e.Close()

	e.Enqueue(draft("q1", "a"), true)

	require.Eventually(t, func() bool {
		s, _ := e.Status()
		return s == StatusIdle && len(statuses.all()) == 3
	}, waitFor, tick)
	assert.Equal(t, []Status{StatusSaving, StatusSuccess, StatusIdle}, statuses.all())
}

func TestEngineIgnoresResultAfterClose(t *testing.T) {
	saver := &recordingSaver{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	statuses := &statusLog{}
	opts := testOptions()
	opts.OnStatus = statuses.listen
	e := NewEngine("p1", saver, opts)

	e.Enqueue(draft("q1", "a"), true)
	<-saver.started

	pending := e.Close()
	assert.Equal(t, []model.ProjectDraft{draft("q1", "a")}, pending)

	require.Eventually(t, func() bool {
		return len(statuses.all()) == 1
	}, waitFor, tick)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, []Status{StatusSaving}, statuses.all())
	assert.Equal(t, []model.ProjectDraft{draft("q1", "a")}, e.Pending())

	e.Enqueue(draft("q2", "late"), false)
	assert.Len(t, e.Pending(), 1, "closed engine accepts no new drafts")

	_, err := e.SaveNow(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEngineFlushAll(t *testing.T) {
	saver := &recordingSaver{}
	opts := testOptions()
	opts.FieldDebounce = time.Hour
	e := NewEngine("p1", saver, opts)
	defer e.Close()

	e.Enqueue(draft("q1", "a"), false)
	e.Enqueue(draft("q2", "b"), false)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, e.FlushAll(ctx))
	assert.Empty(t, e.Pending())
	require.Len(t, saver.calls(), 1)
	assert.Len(t, saver.calls()[0], 2)
}

func TestEngineRequestTimeout(t *testing.T) {
	saver := &recordingSaver{gate: make(chan struct{})}
	opts := testOptions()
	opts.FieldDebounce = time.Hour
	opts.RequestTimeout = 20 * time.Millisecond
	e := NewEngine("p1", saver, opts)
	defer e.Close()

	e.Enqueue(draft("q1", "a"), false)
	_, err := e.SaveNow(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, e.Pending(), 1)
}
