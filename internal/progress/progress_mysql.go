package progress

import (
	"context"
	"time"

	"github.com/courseloop/playback-gateway/internal/infrastructure/driver"
	"github.com/courseloop/playback-gateway/internal/infrastructure/uuid"
)

type ProgressMySQL struct {
	Conn          driver.ITransactionalDB `dep:""`
	UUIDGenerator uuid.Generator
}

var _ ProgressRepository = &ProgressMySQL{}

func NewProgressRepository(Conn driver.ITransactionalDB, UUIDGenerator uuid.Generator) *ProgressMySQL {
	return &ProgressMySQL{
		Conn:          Conn,
		UUIDGenerator: UUIDGenerator,
	}
}

// UpsertLessonCompletion insert the completion row, a replay for the same
// (user_id, lesson_id) only refreshes the position so completed_at and the
// completed set stay stable
func (repo *ProgressMySQL) UpsertLessonCompletion(ctx context.Context, record *LessonProgressModel) error {
	conn := repo.Conn
	if record.ID == "" {
		id, err := repo.UUIDGenerator.Generate()
		if err != nil {
			return err
		}
		record.ID = id
	}

	_, err := conn.ExecContext(ctx, `
INSERT INTO lesson_progress(id, user_id, course_id, lesson_id, completed, completed_at, position)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON DUPLICATE KEY UPDATE position = VALUES(position)
	`, record.ID, record.UserID, record.CourseID, record.LessonID, record.Completed, record.CompletedAt, record.Position)
	return err
}

func (repo *ProgressMySQL) GetLessonProgressByUser(ctx context.Context, userID, courseID string) ([]*LessonProgressModel, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT
    lp.id, l.course_id, lp.lesson_id, l."name" title, l."index", lp.completed, lp.completed_at, lp.position
FROM
    lesson_progress lp
        LEFT JOIN
    lesson l ON (l.id = lp.lesson_id)
WHERE
    lp.user_id = $1 AND l.course_id = $2
ORDER BY l."index" ASC
	`, userID, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*LessonProgressModel
	for rows.Next() {
		item := new(LessonProgressModel)
		err := rows.Scan(&item.ID, &item.CourseID, &item.LessonID, &item.Title, &item.OrderIndex,
			&item.Completed, &item.CompletedAt, &item.Position)
		if err != nil {
			return nil, err
		}
		item.UserID = userID
		result = append(result, item)
	}
	return result, nil
}

func (repo *ProgressMySQL) CompletedLessonCount(ctx context.Context, userID, courseID string) (int, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT
    COUNT(*)
FROM
    lesson_progress lp
WHERE
    lp.user_id = $1 AND lp.course_id = $2 AND lp.completed = TRUE
	`, userID, courseID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// SaveCourseProgress overwrite the derived aggregate, the stored row is a
// cache of the rederivation and never incremented in place
func (repo *ProgressMySQL) SaveCourseProgress(ctx context.Context, record *CourseProgressModel) error {
	conn := repo.Conn
	_, err := conn.ExecContext(ctx, `
INSERT INTO course_progress(user_id, course_id, completed_count, total_count, percent, last_accessed_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON DUPLICATE KEY UPDATE
    completed_count = VALUES(completed_count),
    total_count = VALUES(total_count),
    percent = VALUES(percent),
    last_accessed_at = VALUES(last_accessed_at)
	`, record.UserID, record.CourseID, record.CompletedCount, record.TotalCount, record.Percent, record.LastAccessedAt)
	return err
}

func (repo *ProgressMySQL) CompletionDays(ctx context.Context, userID string, limit int) ([]time.Time, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT DISTINCT
    DATE(lp.completed_at) d
FROM
    lesson_progress lp
WHERE
    lp.user_id = $1 AND lp.completed = TRUE AND lp.completed_at IS NOT NULL
ORDER BY d DESC
LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, nil
}

func (repo *ProgressMySQL) SaveStreak(ctx context.Context, state *StreakState) error {
	conn := repo.Conn
	_, err := conn.ExecContext(ctx, `
INSERT INTO streak_state(user_id, current_streak, last_qualifying_day)
VALUES ($1, $2, $3)
ON DUPLICATE KEY UPDATE
    current_streak = VALUES(current_streak),
    last_qualifying_day = VALUES(last_qualifying_day)
	`, state.UserID, state.CurrentStreak, state.LastQualifyingDay)
	return err
}

func (repo *ProgressMySQL) GetStreak(ctx context.Context, userID string) (*StreakState, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT
    current_streak, last_qualifying_day
FROM
    streak_state
WHERE
    user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if rows.Next() {
		state := &StreakState{UserID: userID}
		if err := rows.Scan(&state.CurrentStreak, &state.LastQualifyingDay); err != nil {
			return nil, err
		}
		return state, nil
	}
	return &StreakState{UserID: userID}, nil
}
