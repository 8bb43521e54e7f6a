package lesson

import (
	"context"

	"go.elastic.co/apm"
)

// LessonUseCaseImpl ...
type LessonUseCaseImpl struct {
	LessonRepository LessonRepository
}

var _ LessonUseCase = &LessonUseCaseImpl{}

// NewLessonUseCase ...
func NewLessonUseCase(
	LessonRepository LessonRepository,
) *LessonUseCaseImpl {
	return &LessonUseCaseImpl{LessonRepository}
}

// GetLesson load lesson metadata for playback
func (lu *LessonUseCaseImpl) GetLesson(ctx context.Context, id string) (*LessonModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "LessonUseCaseImpl.GetLesson", "service")
	defer apmSpan.End()

	lesson, err := lu.LessonRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if lesson == nil {
		return nil, ErrLessonNotFound
	}
	if lesson.CourseLessonCount == 0 {
		if total, err := lu.LessonRepository.CountByCourse(ctx, lesson.CourseID); err == nil {
			lesson.CourseLessonCount = total
		}
	}
	return lesson, nil
}
