package recordstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/learnchain/course-mesh/internal/models"
)

// GetCourse fetches one course with its chapters in chapter order, assembled
// as an offline bundle. Returns (nil, nil) when the course does not exist.
func (s *Store) GetCourse(ctx context.Context, courseID string) (*models.CourseBundle, error) {
	query := `SELECT id, title, description, category FROM courses WHERE id = $1`
	bundle := &models.CourseBundle{}
	err := s.db.QueryRowContext(ctx, query, courseID).Scan(
		&bundle.ID, &bundle.Title, &bundle.Description, &bundle.Category)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	chapterQuery := `SELECT id, course_id, title, description, content, chapter_order
                     FROM chapters WHERE course_id = $1 ORDER BY chapter_order ASC`
	rows, err := s.db.QueryContext(ctx, chapterQuery, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ch models.Chapter
		if err := rows.Scan(&ch.ID, &ch.CourseID, &ch.Title, &ch.Description,
			&ch.Content, &ch.ChapterOrder); err != nil {
			return nil, err
		}
		bundle.Chapters = append(bundle.Chapters, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bundle, nil
}
