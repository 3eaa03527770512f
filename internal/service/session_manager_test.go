package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"launchpad/internal/model"
)

// memorySessionCache keeps snapshots in a map
type memorySessionCache struct {
	mu    sync.Mutex
	snaps map[string]*model.SessionSnapshot
}

func newMemorySessionCache() *memorySessionCache {
	return &memorySessionCache{snaps: make(map[string]*model.SessionSnapshot)}
}

func (c *memorySessionCache) Set(_ context.Context, snap *model.SessionSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[ownerKey(snap.FounderID, snap.ProjectID)] = snap
	return nil
}

func (c *memorySessionCache) Get(_ context.Context, founderID, projectID string) (*model.SessionSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snaps[ownerKey(founderID, projectID)], nil
}

func (c *memorySessionCache) Delete(_ context.Context, founderID, projectID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snaps, ownerKey(founderID, projectID))
	return nil
}

func newTestManager(t *testing.T, backend Backend, sc *memorySessionCache) *SessionManager {
	t.Helper()
	opts := testAutosaveOptions()
	opts.FieldDebounce = time.Hour
	var m *SessionManager
	if sc != nil {
		m = NewSessionManager(backend, sc, nil, nil, nil, SessionManagerConfig{Autosave: opts, IdleTTL: time.Minute}, nil)
	} else {
		m = NewSessionManager(backend, nil, nil, nil, nil, SessionManagerConfig{Autosave: opts, IdleTTL: time.Minute}, nil)
	}
	t.Cleanup(func() { m.Stop(context.Background()) })
	return m
}

func TestOpen_ConcurrentOpensShareOneLoad(t *testing.T) {
	backend := &mockBackend{}
	backend.On("FetchQuestions", mock.Anything, "tok", "p-1").
		Run(func(mock.Arguments) { time.Sleep(30 * time.Millisecond) }).
		Return(&model.ProjectQuestions{Questions: twoStepForm()}, nil).Once()
	m := newTestManager(t, backend, nil)

	const n = 5
	sessions := make([]*Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Open(context.Background(), "f-1", "tok", "p-1")
			assert.NoError(t, err)
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range sessions[1:] {
		assert.Same(t, sessions[0], s)
	}
	assert.Equal(t, 1, m.Count())
	backend.AssertNumberOfCalls(t, "FetchQuestions", 1)
}

func TestOpen_CancelledFirstCallerDoesNotFailOthers(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var loadErr error
	backend := &mockBackend{}
	backend.On("FetchQuestions", mock.Anything, "tok", "p-1").
		Run(func(args mock.Arguments) {
			close(started)
			<-release
			loadErr = args.Get(0).(context.Context).Err()
		}).
		Return(&model.ProjectQuestions{Questions: twoStepForm()}, nil).Once()
	m := newTestManager(t, backend, nil)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := m.Open(ctx, "f-1", "tok", "p-1")
		firstErr <- err
	}()

	<-started
	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the shared load")
	}

	type opened struct {
		s   *Session
		err error
	}
	second := make(chan opened, 1)
	go func() {
		s, err := m.Open(context.Background(), "f-1", "tok", "p-1")
		second <- opened{s, err}
	}()
	close(release)

	got := <-second
	require.NoError(t, got.err)
	require.NotNil(t, got.s)
	assert.NoError(t, loadErr)
	assert.Equal(t, 1, m.Count())
	backend.AssertNumberOfCalls(t, "FetchQuestions", 1)
}

func TestOpen_RefreshesToken(t *testing.T) {
	backend := &mockBackend{}
	backend.On("FetchQuestions", mock.Anything, "tok", "p-1").
		Return(&model.ProjectQuestions{Questions: twoStepForm()}, nil).Once()
	m := newTestManager(t, backend, nil)

	first, err := m.Open(context.Background(), "f-1", "tok", "p-1")
	require.NoError(t, err)
	second, err := m.Open(context.Background(), "f-1", "tok-2", "p-1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, "tok-2", first.Token())
}

func TestGet_EnforcesOwnership(t *testing.T) {
	backend := &mockBackend{}
	backend.On("FetchQuestions", mock.Anything, "tok", "p-1").
		Return(&model.ProjectQuestions{Questions: twoStepForm()}, nil).Once()
	m := newTestManager(t, backend, nil)

	s, err := m.Open(context.Background(), "f-1", "tok", "p-1")
	require.NoError(t, err)

	got, err := m.Get(s.ID, "f-1")
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = m.Get(s.ID, "f-2")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = m.Get("unknown", "f-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestClose_SnapshotResumesOnNextOpen(t *testing.T) {
	backend := &mockBackend{}
	backend.On("FetchQuestions", mock.Anything, "tok", "p-1").
		Return(&model.ProjectQuestions{Questions: twoStepForm()}, nil).Twice()
	sc := newMemorySessionCache()
	m := newTestManager(t, backend, sc)

	s, err := m.Open(context.Background(), "f-1", "tok", "p-1")
	require.NoError(t, err)
	setText(t, s, "company", "Acme")
	_, _, err = s.Next()
	require.NoError(t, err)

	require.NoError(t, m.Close(context.Background(), s.ID, "f-1"))
	assert.Equal(t, 0, m.Count())

	snap, _ := sc.Get(context.Background(), "f-1", "p-1")
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.Step)
	require.Len(t, snap.Pending, 1)

	resumed, err := m.Open(context.Background(), "f-1", "tok", "p-1")
	require.NoError(t, err)
	assert.Equal(t, s.ID, resumed.ID)
	assert.NotSame(t, s, resumed)

	state := resumed.State()
	assert.Equal(t, 1, state.Step)
	require.Len(t, resumed.engine.Pending(), 1)
	assert.Equal(t, "Acme", resumed.engine.Pending()[0].Answer.Text)
}

func TestClose_NothingPendingClearsSnapshot(t *testing.T) {
	backend := &mockBackend{}
	backend.On("FetchQuestions", mock.Anything, "tok", "p-1").
		Return(&model.ProjectQuestions{Questions: twoStepForm()}, nil).Once()
	sc := newMemorySessionCache()
	require.NoError(t, sc.Set(context.Background(), &model.SessionSnapshot{FounderID: "f-1", ProjectID: "p-1", SessionID: "old"}))
	m := newTestManager(t, backend, sc)

	s, err := m.Open(context.Background(), "f-1", "tok", "p-1")
	require.NoError(t, err)
	assert.Equal(t, "old", s.ID)

	require.NoError(t, m.Close(context.Background(), s.ID, "f-1"))
	snap, _ := sc.Get(context.Background(), "f-1", "p-1")
	assert.Nil(t, snap)
}

func TestSweepIdle(t *testing.T) {
	backend := &mockBackend{}
	backend.On("FetchQuestions", mock.Anything, "tok", "p-1").
		Return(&model.ProjectQuestions{Questions: twoStepForm()}, nil).Once()
	m := newTestManager(t, backend, nil)

	_, err := m.Open(context.Background(), "f-1", "tok", "p-1")
	require.NoError(t, err)

	assert.Equal(t, 0, m.SweepIdle(time.Now()))
	assert.Equal(t, 1, m.SweepIdle(time.Now().Add(2*time.Minute)))
	assert.Equal(t, 0, m.Count())
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	m := NewSessionManager(&mockBackend{}, nil, nil, nil, nil, SessionManagerConfig{SweepSpec: "every now and then"}, nil)
	assert.Error(t, m.Start())
}
