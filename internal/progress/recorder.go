// Package progress records learner completion durably and recomputes the
// derived aggregates. The write pipeline is best-effort and eventually
// consistent: the remote store can fail independently of playback, so every
// step swallows its own errors and the learning experience never blocks on
// persistence.
package progress

import (
	"context"
	"time"

	"github.com/courseloop/playback-gateway/internal/infrastructure/logging"
	"github.com/courseloop/playback-gateway/internal/lesson"
	"go.elastic.co/apm"
	"go.uber.org/zap"
)

// streak recomputation looks back this many distinct completion days
const streakLookbackDays = 366

// Recorder runs the completion pipeline on terminal playback events
type Recorder struct {
	ProgressRepository ProgressRepository
	LessonRepository   lesson.LessonRepository
	Fallback           *FallbackStore
	Notifier           Notifier      // nil when the notification capability is not granted
	Rewards            RewardsClient // nil when XP awarding is disabled
	logger             *zap.Logger
}

// NewRecorder create a Recorder
func NewRecorder(
	ProgressRepository ProgressRepository,
	LessonRepository lesson.LessonRepository,
	Fallback *FallbackStore,
	Notifier Notifier,
	Rewards RewardsClient,
	logger *zap.Logger,
) *Recorder {
	return &Recorder{
		ProgressRepository: ProgressRepository,
		LessonRepository:   LessonRepository,
		Fallback:           Fallback,
		Notifier:           Notifier,
		Rewards:            Rewards,
		logger:             logger,
	}
}

// RecordCompletion durably record that the learner finished the lesson and
// recompute the course aggregate and streak. Each step is independent and
// failure-tolerant, no step's failure blocks another, and replaying the same
// completion is a no-op on every store.
func (r *Recorder) RecordCompletion(ctx context.Context, userID string, l *lesson.LessonModel, position float64) {
	tx := apm.DefaultTracer.StartTransaction("Recorder.RecordCompletion", "pipeline")
	defer tx.End()
	ctx = apm.ContextWithTransaction(ctx, tx)

	logger := r.logger.With(
		zap.String("user.id", userID),
		zap.String("lesson.id", l.ID),
		zap.String("course.id", l.CourseID),
	)
	ctx = logging.SetLoggerInContext(ctx, logger)
	now := time.Now()

	recorded := r.upsertCompletion(ctx, userID, l, position, now, logger)

	totalCount := l.CourseLessonCount
	if recorded {
		r.recomputeCourseProgress(ctx, userID, l.CourseID, totalCount, now, logger)
	}

	// continuity summary is written regardless of remote success, the UI
	// shows it when the remote store is unreachable
	if summary, err := r.Fallback.RecordCompletion(userID, l.CourseID, l.ID, totalCount, now); err != nil {
		logger.Warn("Failed to write continuity summary", zap.Error(err))
	} else {
		logger.Debug("Continuity summary written", zap.Int("progress.percent", summary.Percent))
	}

	if r.Notifier != nil {
		if err := r.Notifier.NotifyLessonCompleted(userID, l.Title); err != nil {
			logger.Warn("Failed to publish completion notification", zap.Error(err))
		}
	}

	r.awardAndRestreak(ctx, userID, l.ID, now, logger)
}

// upsertCompletion step 1, reports whether the remote store accepted the row
func (r *Recorder) upsertCompletion(ctx context.Context, userID string, l *lesson.LessonModel, position float64, now time.Time, logger *zap.Logger) bool {
	apmSpan, ctx := apm.StartSpan(ctx, "Recorder.upsertCompletion", "service")
	defer apmSpan.End()

	completedAt := now
	err := r.ProgressRepository.UpsertLessonCompletion(ctx, &LessonProgressModel{
		UserID:      userID,
		CourseID:    l.CourseID,
		LessonID:    l.ID,
		Completed:   true,
		CompletedAt: &completedAt,
		Position:    position,
	})
	if err != nil {
		logger.Warn("Failed to upsert lesson completion, progress loss accepted", zap.Error(err))
		return false
	}
	return true
}

// recomputeCourseProgress step 2, always rederives the percentage from the
// completed set instead of incrementing a counter, so retried or reordered
// completions converge on the same aggregate
func (r *Recorder) recomputeCourseProgress(ctx context.Context, userID, courseID string, totalCount int, now time.Time, logger *zap.Logger) {
	apmSpan, ctx := apm.StartSpan(ctx, "Recorder.recomputeCourseProgress", "service")
	defer apmSpan.End()

	completed, err := r.ProgressRepository.CompletedLessonCount(ctx, userID, courseID)
	if err != nil {
		logger.Warn("Failed to count completed lessons", zap.Error(err))
		return
	}
	if total, err := r.LessonRepository.CountByCourse(ctx, courseID); err == nil && total > 0 {
		totalCount = total
	}

	lastAccessed := now
	record := &CourseProgressModel{
		UserID:         userID,
		CourseID:       courseID,
		CompletedCount: completed,
		TotalCount:     totalCount,
		Percent:        Percent(completed, totalCount),
		LastAccessedAt: &lastAccessed,
	}
	if err := r.ProgressRepository.SaveCourseProgress(ctx, record); err != nil {
		logger.Warn("Failed to save course progress", zap.Error(err))
		return
	}
	logger.Info("Course progress recomputed",
		zap.Int("progress.completed", completed),
		zap.Int("progress.total", totalCount),
		zap.Int("progress.percent", record.Percent),
	)
}

// awardAndRestreak step 5, XP grant and streak recomputation, both best
// effort
func (r *Recorder) awardAndRestreak(ctx context.Context, userID, lessonID string, now time.Time, logger *zap.Logger) {
	apmSpan, ctx := apm.StartSpan(ctx, "Recorder.awardAndRestreak", "service")
	defer apmSpan.End()

	if r.Rewards != nil {
		if err := r.Rewards.AwardCompletionXP(ctx, userID, lessonID); err != nil {
			logger.Warn("Failed to award completion XP", zap.Error(err))
		}
	}

	days, err := r.ProgressRepository.CompletionDays(ctx, userID, streakLookbackDays)
	if err != nil {
		logger.Warn("Failed to load completion days for streak", zap.Error(err))
		return
	}
	streak, lastDay := ComputeStreak(days, now)
	err = r.ProgressRepository.SaveStreak(ctx, &StreakState{
		UserID:            userID,
		CurrentStreak:     streak,
		LastQualifyingDay: lastDay,
	})
	if err != nil {
		logger.Warn("Failed to save streak state", zap.Error(err))
	}
}
