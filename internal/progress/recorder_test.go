package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/courseloop/playback-gateway/internal/lesson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProgressRepo struct {
	upsertErr error
	countErr  error

	upserts   []*LessonProgressModel
	completed int
	saved     []*CourseProgressModel
	days      []time.Time
	streaks   []*StreakState
}

func (r *fakeProgressRepo) UpsertLessonCompletion(ctx context.Context, record *LessonProgressModel) error {
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.upserts = append(r.upserts, record)
	return nil
}

func (r *fakeProgressRepo) GetLessonProgressByUser(ctx context.Context, userID, courseID string) ([]*LessonProgressModel, error) {
	return nil, nil
}

func (r *fakeProgressRepo) CompletedLessonCount(ctx context.Context, userID, courseID string) (int, error) {
	if r.countErr != nil {
		return 0, r.countErr
	}
	return r.completed, nil
}

func (r *fakeProgressRepo) SaveCourseProgress(ctx context.Context, record *CourseProgressModel) error {
	r.saved = append(r.saved, record)
	return nil
}

func (r *fakeProgressRepo) CompletionDays(ctx context.Context, userID string, limit int) ([]time.Time, error) {
	return r.days, nil
}

func (r *fakeProgressRepo) SaveStreak(ctx context.Context, state *StreakState) error {
	r.streaks = append(r.streaks, state)
	return nil
}

func (r *fakeProgressRepo) GetStreak(ctx context.Context, userID string) (*StreakState, error) {
	return &StreakState{UserID: userID}, nil
}

type fakeLessonRepo struct {
	total    int
	totalErr error
}

func (r *fakeLessonRepo) GetByID(ctx context.Context, id string) (*lesson.LessonModel, error) {
	return nil, nil
}

func (r *fakeLessonRepo) CountByCourse(ctx context.Context, courseID string) (int, error) {
	if r.totalErr != nil {
		return 0, r.totalErr
	}
	return r.total, nil
}

type fakeKV struct {
	values map[string]string
	pubs   map[string][]string
	setErr error
	sets   int
}

func newFakeKV() *fakeKV {
	return &fakeKV{values: make(map[string]string), pubs: make(map[string][]string)}
}

func (kv *fakeKV) SetEX(key string, value string, expiration time.Duration) error {
	if kv.setErr != nil {
		return kv.setErr
	}
	kv.sets++
	kv.values[key] = value
	return nil
}

func (kv *fakeKV) Get(key string) (string, error) {
	value, ok := kv.values[key]
	if !ok {
		return "", errors.New("no such key")
	}
	return value, nil
}

func (kv *fakeKV) Exists(key string) (bool, error) {
	_, ok := kv.values[key]
	return ok, nil
}

func (kv *fakeKV) Publish(channel string, payload string) error {
	kv.pubs[channel] = append(kv.pubs[channel], payload)
	return nil
}

func (kv *fakeKV) Ping() error { return nil }

type fakeRewards struct {
	grants []string
	err    error
}

func (rc *fakeRewards) AwardCompletionXP(ctx context.Context, userID, lessonID string) error {
	if rc.err != nil {
		return rc.err
	}
	rc.grants = append(rc.grants, lessonID)
	return nil
}

func testLesson() *lesson.LessonModel {
	return &lesson.LessonModel{
		ID:                "lesson-3",
		CourseID:          "course-1",
		Title:             "Interfaces",
		CourseLessonCount: 5,
	}
}

func newTestRecorder(repo *fakeProgressRepo, lessons *fakeLessonRepo, kv *fakeKV, rewards RewardsClient) *Recorder {
	return NewRecorder(
		repo,
		lessons,
		NewFallbackStore(kv, time.Hour),
		NewKVNotifier(kv),
		rewards,
		zap.NewNop(),
	)
}

func TestRecorder_HappyPath(t *testing.T) {
	repo := &fakeProgressRepo{completed: 3, days: []time.Time{time.Now()}}
	kv := newFakeKV()
	rewards := &fakeRewards{}
	recorder := newTestRecorder(repo, &fakeLessonRepo{total: 5}, kv, rewards)

	recorder.RecordCompletion(context.Background(), "user-1", testLesson(), 287.5)

	require.Len(t, repo.upserts, 1)
	record := repo.upserts[0]
	assert.Equal(t, "user-1", record.UserID)
	assert.Equal(t, "lesson-3", record.LessonID)
	assert.True(t, record.Completed)
	require.NotNil(t, record.CompletedAt)
	assert.Equal(t, 287.5, record.Position)

	require.Len(t, repo.saved, 1)
	aggregate := repo.saved[0]
	assert.Equal(t, 3, aggregate.CompletedCount)
	assert.Equal(t, 5, aggregate.TotalCount)
	assert.Equal(t, 60, aggregate.Percent)

	assert.Equal(t, 1, kv.sets, "continuity summary written")
	assert.Len(t, kv.pubs["notify:user-1"], 1)
	assert.Equal(t, []string{"lesson-3"}, rewards.grants)
	require.Len(t, repo.streaks, 1)
	assert.Equal(t, 1, repo.streaks[0].CurrentStreak)
}

func TestRecorder_RemoteFailureStillWritesFallback(t *testing.T) {
	repo := &fakeProgressRepo{upsertErr: errors.New("store down")}
	kv := newFakeKV()
	recorder := newTestRecorder(repo, &fakeLessonRepo{total: 5}, kv, nil)

	recorder.RecordCompletion(context.Background(), "user-1", testLesson(), 287.5)

	assert.Empty(t, repo.saved, "aggregate must not be recomputed without the upsert")
	assert.Equal(t, 1, kv.sets, "continuity summary written despite remote failure")

	summary, err := recorder.Fallback.Load("user-1", "course-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"lesson-3"}, summary.Completed)
	assert.Equal(t, 20, summary.Percent)
}

func TestRecorder_ReplayedCompletionConverges(t *testing.T) {
	repo := &fakeProgressRepo{completed: 3}
	kv := newFakeKV()
	recorder := newTestRecorder(repo, &fakeLessonRepo{total: 5}, kv, nil)
	l := testLesson()

	recorder.RecordCompletion(context.Background(), "user-1", l, 287.5)
	recorder.RecordCompletion(context.Background(), "user-1", l, 290.0)

	require.Len(t, repo.saved, 2)
	assert.Equal(t, repo.saved[0].Percent, repo.saved[1].Percent)

	summary, err := recorder.Fallback.Load("user-1", "course-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"lesson-3"}, summary.Completed, "local set holds the lesson once")
}

func TestRecorder_LocalStoreFailureIsSwallowed(t *testing.T) {
	repo := &fakeProgressRepo{completed: 2}
	kv := newFakeKV()
	kv.setErr = errors.New("kv down")
	recorder := newTestRecorder(repo, &fakeLessonRepo{total: 4}, kv, nil)

	recorder.RecordCompletion(context.Background(), "user-1", testLesson(), 12.0)

	require.Len(t, repo.saved, 1)
	assert.Equal(t, 50, repo.saved[0].Percent)
}

func TestNotifier_RespectsOptOut(t *testing.T) {
	kv := newFakeKV()
	kv.values["notify:optout:user-1"] = "1"
	notifier := NewKVNotifier(kv)

	require.NoError(t, notifier.NotifyLessonCompleted("user-1", "Interfaces"))
	assert.Empty(t, kv.pubs["notify:user-1"])

	require.NoError(t, notifier.NotifyLessonCompleted("user-2", "Interfaces"))
	assert.Len(t, kv.pubs["notify:user-2"], 1)
}

func TestFallbackStore_MergesCompletions(t *testing.T) {
	kv := newFakeKV()
	fs := NewFallbackStore(kv, time.Hour)
	now := time.Now()

	summary, err := fs.RecordCompletion("user-1", "course-1", "lesson-1", 4, now)
	require.NoError(t, err)
	assert.Equal(t, 25, summary.Percent)

	summary, err = fs.RecordCompletion("user-1", "course-1", "lesson-2", 4, now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"lesson-1", "lesson-2"}, summary.Completed)
	assert.Equal(t, 50, summary.Percent)
	assert.Equal(t, 4, summary.TotalCount)
}
