package progress

import (
	"context"
	"time"

	"github.com/courseloop/playback-gateway/internal/infrastructure/logging"
	"github.com/courseloop/playback-gateway/internal/lesson"
	"go.elastic.co/apm"
	"go.uber.org/zap"
)

var _ ProgressUseCase = &ProgressUseCaseImpl{}

// ProgressUseCaseImpl read side of learner progress
type ProgressUseCaseImpl struct {
	ProgressRepository ProgressRepository `dep:""`
	LessonRepository   lesson.LessonRepository
	Fallback           *FallbackStore
}

// NewProgressUseCase create ProgressUseCaseImpl
func NewProgressUseCase(
	ProgressRepository ProgressRepository,
	LessonRepository lesson.LessonRepository,
	Fallback *FallbackStore,
) *ProgressUseCaseImpl {
	return &ProgressUseCaseImpl{
		ProgressRepository: ProgressRepository,
		LessonRepository:   LessonRepository,
		Fallback:           Fallback,
	}
}

func (uc *ProgressUseCaseImpl) GetUserLessonProgress(ctx context.Context, userID, courseID string) ([]*LessonProgressModel, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "ProgressUseCase.GetUserLessonProgress", "service")
	defer apmSpan.End()

	records, err := uc.ProgressRepository.GetLessonProgressByUser(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if record.CompletedAt != nil {
			record.Timestamp = record.CompletedAt.UnixNano() / int64(time.Millisecond)
		}
	}
	return records, nil
}

// GetCourseProgress rederive the aggregate from the completed lesson set.
// When the remote store is unreachable the locally kept continuity summary is
// served instead, it may lag but it reflects every completion this gateway
// observed.
func (uc *ProgressUseCaseImpl) GetCourseProgress(ctx context.Context, userID, courseID string) (*CourseProgressModel, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "ProgressUseCase.GetCourseProgress", "service")
	defer apmSpan.End()

	completed, err := uc.ProgressRepository.CompletedLessonCount(ctx, userID, courseID)
	if err != nil {
		logger := logging.ExtractLoggerFromContext(ctx)
		logger.Warn("Remote progress unreachable, serving continuity summary",
			zap.String("user.id", userID),
			zap.String("course.id", courseID),
			zap.Error(err),
		)
		return uc.fromContinuitySummary(userID, courseID, err)
	}

	total, err := uc.LessonRepository.CountByCourse(ctx, courseID)
	if err != nil {
		logger := logging.ExtractLoggerFromContext(ctx)
		logger.Warn("Lesson catalog unreachable, serving continuity summary",
			zap.String("user.id", userID),
			zap.String("course.id", courseID),
			zap.Error(err),
		)
		return uc.fromContinuitySummary(userID, courseID, err)
	}

	now := time.Now()
	return &CourseProgressModel{
		UserID:         userID,
		CourseID:       courseID,
		CompletedCount: completed,
		TotalCount:     total,
		Percent:        Percent(completed, total),
		LastAccessedAt: &now,
	}, nil
}

func (uc *ProgressUseCaseImpl) GetStreak(ctx context.Context, userID string) (*StreakState, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "ProgressUseCase.GetStreak", "service")
	defer apmSpan.End()

	return uc.ProgressRepository.GetStreak(ctx, userID)
}

func (uc *ProgressUseCaseImpl) fromContinuitySummary(userID, courseID string, cause error) (*CourseProgressModel, error) {
	summary, err := uc.Fallback.Load(userID, courseID)
	if err != nil || summary == nil {
		return nil, cause
	}
	updatedAt := time.Unix(0, summary.UpdatedAt*int64(time.Millisecond))
	return &CourseProgressModel{
		UserID:         userID,
		CourseID:       courseID,
		CompletedCount: len(summary.Completed),
		TotalCount:     summary.TotalCount,
		Percent:        summary.Percent,
		LastAccessedAt: &updatedAt,
	}, nil
}
