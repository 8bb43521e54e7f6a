package lesson

import (
	"context"
	"errors"
)

// ErrLessonNotFound no lesson with the requested id
var ErrLessonNotFound = errors.New("No such lesson")

// LessonModel one playable unit within a course, immutable during playback
type LessonModel struct {
	ID           string  `json:"id"`
	CourseID     string  `json:"course_id"`
	Title        string  `json:"title"`
	DurationHint float64 `json:"duration_hint"`
	SourceURL    string  `json:"source_url"`
	OrderIndex   int     `json:"order_index"`
	// CourseLessonCount denormalized sibling count, loaded with the lesson so
	// progress percentages stay computable when the store is unreachable
	CourseLessonCount int `json:"course_lesson_count"`
}

type LessonRepository interface {
	GetByID(ctx context.Context, id string) (*LessonModel, error)
	CountByCourse(ctx context.Context, courseID string) (int, error)
}

type LessonUseCase interface {
	GetLesson(ctx context.Context, id string) (*LessonModel, error)
}
