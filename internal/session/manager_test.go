package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/courseloop/playback-gateway/internal/bridge"
	"github.com/courseloop/playback-gateway/internal/lesson"
	"github.com/courseloop/playback-gateway/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubLessonUseCase struct {
	lesson *lesson.LessonModel
}

func (uc *stubLessonUseCase) GetLesson(ctx context.Context, id string) (*lesson.LessonModel, error) {
	if uc.lesson == nil || uc.lesson.ID != id {
		return nil, lesson.ErrLessonNotFound
	}
	return uc.lesson, nil
}

type recordingRepo struct {
	mu      sync.Mutex
	upserts []*progress.LessonProgressModel
}

func (r *recordingRepo) UpsertLessonCompletion(ctx context.Context, record *progress.LessonProgressModel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, record)
	return nil
}

func (r *recordingRepo) GetLessonProgressByUser(ctx context.Context, userID, courseID string) ([]*progress.LessonProgressModel, error) {
	return nil, nil
}

func (r *recordingRepo) CompletedLessonCount(ctx context.Context, userID, courseID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.upserts), nil
}

func (r *recordingRepo) SaveCourseProgress(ctx context.Context, record *progress.CourseProgressModel) error {
	return nil
}

func (r *recordingRepo) CompletionDays(ctx context.Context, userID string, limit int) ([]time.Time, error) {
	return nil, nil
}

func (r *recordingRepo) SaveStreak(ctx context.Context, state *progress.StreakState) error {
	return nil
}

func (r *recordingRepo) GetStreak(ctx context.Context, userID string) (*progress.StreakState, error) {
	return nil, nil
}

func (r *recordingRepo) upsertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.upserts)
}

type stubCountRepo struct{ total int }

func (r *stubCountRepo) GetByID(ctx context.Context, id string) (*lesson.LessonModel, error) {
	return nil, nil
}

func (r *stubCountRepo) CountByCourse(ctx context.Context, courseID string) (int, error) {
	return r.total, nil
}

type memoryKV struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryKV() *memoryKV {
	return &memoryKV{values: make(map[string]string)}
}

func (kv *memoryKV) SetEX(key string, value string, expiration time.Duration) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.values[key] = value
	return nil
}

func (kv *memoryKV) Get(key string) (string, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return kv.values[key], nil
}

func (kv *memoryKV) Exists(key string) (bool, error) { return false, nil }

func (kv *memoryKV) Publish(channel string, payload string) error { return nil }

func (kv *memoryKV) Ping() error { return nil }

type memoryChannel struct {
	mu   sync.Mutex
	sent [][]byte
}

func (ch *memoryChannel) Send(payload []byte) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.sent = append(ch.sent, payload)
	return nil
}

func (ch *memoryChannel) Close() error { return nil }

type seqIDs struct{ n int }

func (g *seqIDs) Generate() (string, error) {
	g.n++
	return string(rune('a' + g.n)), nil
}

func newTestManager(t *testing.T, repo *recordingRepo) *Manager {
	t.Helper()
	logger := zap.NewNop()
	recorder := progress.NewRecorder(
		repo,
		&stubCountRepo{total: 4},
		progress.NewFallbackStore(newMemoryKV(), time.Hour),
		nil,
		nil,
		logger,
	)
	b := bridge.New(&seqIDs{}, time.Hour, logger)
	ucase := &stubLessonUseCase{lesson: &lesson.LessonModel{
		ID:                "lesson-1",
		CourseID:          "course-1",
		Title:             "Goroutines",
		SourceURL:         "https://media/lesson-1",
		CourseLessonCount: 4,
	}}
	return NewManager(b, ucase, recorder, MachineConfig{
		ConfirmWindow: time.Hour,
		LoadTimeout:   time.Hour,
	}, logger)
}

func TestManager_AttachUnknownLesson(t *testing.T) {
	mgr := newTestManager(t, &recordingRepo{})
	_, err := mgr.Attach(context.Background(), "user-1", "nope")
	assert.Equal(t, lesson.ErrLessonNotFound, err)
}

func TestManager_SessionLifecycle(t *testing.T) {
	repo := &recordingRepo{}
	mgr := newTestManager(t, repo)

	snapshot, err := mgr.Attach(context.Background(), "user-1", "lesson-1")
	require.NoError(t, err)
	assert.Equal(t, "loading", snapshot.State)
	assert.Equal(t, "lesson-1", snapshot.LessonID)
	require.NotEmpty(t, snapshot.Handle)

	ch := &memoryChannel{}
	att, err := mgr.BindSurface(snapshot.Handle, ch)
	require.NoError(t, err)

	att.Ingest([]byte(`{"event":"onStateChange","info":5}`))
	require.Eventually(t, func() bool {
		s, err := mgr.State("user-1")
		return err == nil && s.State == "ready"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, mgr.Dispatch("user-1", bridge.FuncPlay, nil))
	s, err := mgr.State("user-1")
	require.NoError(t, err)
	assert.Equal(t, "playing", s.State)

	att.Ingest([]byte(`{"event":"onStateChange","info":0}`))
	require.Eventually(t, func() bool {
		s, err := mgr.State("user-1")
		return err == nil && s.State == "ended"
	}, time.Second, 5*time.Millisecond)

	// completion recorded exactly once
	require.Eventually(t, func() bool {
		return repo.upsertCount() == 1
	}, time.Second, 5*time.Millisecond)

	att.Ingest([]byte(`{"event":"onStateChange","info":1}`))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, repo.upsertCount(), "events after ended must not record again")

	assert.True(t, mgr.Detach("user-1"))
	assert.False(t, mgr.Detach("user-1"))
	_, err = mgr.State("user-1")
	assert.Equal(t, ErrNoSession, err)
}

func TestManager_DispatchValidation(t *testing.T) {
	mgr := newTestManager(t, &recordingRepo{})

	err := mgr.Dispatch("user-1", bridge.FuncPlay, nil)
	assert.Equal(t, ErrNoSession, err)

	_, err = mgr.Attach(context.Background(), "user-1", "lesson-1")
	require.NoError(t, err)
	defer mgr.Detach("user-1")

	assert.Error(t, mgr.Dispatch("user-1", "stopVideo", nil))
	assert.Error(t, mgr.Dispatch("user-1", bridge.FuncSeekTo, []interface{}{-3.0}))
}

func TestManager_FullscreenStaysLocal(t *testing.T) {
	mgr := newTestManager(t, &recordingRepo{})
	snapshot, err := mgr.Attach(context.Background(), "user-1", "lesson-1")
	require.NoError(t, err)
	defer mgr.Detach("user-1")

	ch := &memoryChannel{}
	_, err = mgr.BindSurface(snapshot.Handle, ch)
	require.NoError(t, err)

	require.NoError(t, mgr.Dispatch("user-1", bridge.FuncFullscreen, nil))
	s, err := mgr.State("user-1")
	require.NoError(t, err)
	assert.True(t, s.Session.IsFullscreen)

	ch.mu.Lock()
	sent := len(ch.sent)
	ch.mu.Unlock()
	assert.Zero(t, sent, "fullscreen toggles must not reach the surface")
}
