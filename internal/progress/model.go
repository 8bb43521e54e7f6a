package progress

import (
	"context"
	"time"
)

// LessonProgressModel durable record of one learner's completion of one
// lesson, upserts are keyed by (user_id, lesson_id) and idempotent
type LessonProgressModel struct {
	ID          string     `json:"-"`
	UserID      string     `json:"-"`
	CourseID    string     `json:"course_id"`
	LessonID    string     `json:"lesson_id"`
	Title       string     `json:"title,omitempty"`
	OrderIndex  int        `json:"order_index,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Position    float64    `json:"position"`
	Timestamp   int64      `json:"timestamp,omitempty"`
}

// CourseProgressModel derived aggregate over a learner's lesson progress for
// one course. Never authoritative on its own, always rederivable from the
// completed lesson set.
type CourseProgressModel struct {
	UserID         string     `json:"-"`
	CourseID       string     `json:"course_id"`
	CompletedCount int        `json:"completed_count"`
	TotalCount     int        `json:"total_count"`
	Percent        int        `json:"percent"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}

// StreakState derived count of consecutive days with at least one completed
// lesson, recomputed opportunistically and tolerant of being stale
type StreakState struct {
	UserID            string `json:"-"`
	CurrentStreak     int    `json:"current_streak"`
	LastQualifyingDay string `json:"last_qualifying_day,omitempty"` // YYYY-MM-DD
}

type ProgressRepository interface {
	// UpsertLessonCompletion idempotent, replaying a completion for an
	// already-completed lesson must leave the row untouched
	UpsertLessonCompletion(ctx context.Context, record *LessonProgressModel) error
	GetLessonProgressByUser(ctx context.Context, userID, courseID string) ([]*LessonProgressModel, error)
	CompletedLessonCount(ctx context.Context, userID, courseID string) (int, error)
	SaveCourseProgress(ctx context.Context, record *CourseProgressModel) error
	CompletionDays(ctx context.Context, userID string, limit int) ([]time.Time, error)
	SaveStreak(ctx context.Context, state *StreakState) error
	GetStreak(ctx context.Context, userID string) (*StreakState, error)
}

type ProgressUseCase interface {
	GetUserLessonProgress(ctx context.Context, userID, courseID string) ([]*LessonProgressModel, error)
	// GetCourseProgress rederives the aggregate from the completed set, a
	// cached percent is never a source of truth
	GetCourseProgress(ctx context.Context, userID, courseID string) (*CourseProgressModel, error)
	GetStreak(ctx context.Context, userID string) (*StreakState, error)
}
