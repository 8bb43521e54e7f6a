package lesson

import (
	"context"

	"github.com/courseloop/playback-gateway/internal/infrastructure/driver"
)

type LessonMySQL struct {
	Conn driver.ITransactionalDB `dep:""`
}

var _ LessonRepository = &LessonMySQL{}

func NewLessonRepository(Conn driver.ITransactionalDB) *LessonMySQL {
	return &LessonMySQL{
		Conn: Conn,
	}
}

func (repo *LessonMySQL) GetByID(ctx context.Context, id string) (*LessonModel, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT
    l.id, l.course_id, l."name" title, l.duration_hint, l.source_url, l."index"
FROM
    lesson l
WHERE
    l.id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if rows.Next() {
		item := new(LessonModel)
		if err := rows.Scan(&item.ID, &item.CourseID, &item.Title, &item.DurationHint, &item.SourceURL, &item.OrderIndex); err != nil {
			return nil, err
		}
		return item, nil
	}
	return nil, nil
}

func (repo *LessonMySQL) CountByCourse(ctx context.Context, courseID string) (int, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT
    COUNT(*)
FROM
    lesson l
WHERE
    l.course_id = $1
	`, courseID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var total int
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return 0, err
		}
	}
	return total, nil
}
