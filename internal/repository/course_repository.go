package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/NTA1210/learning-management-system-sub007/internal/models"
)

// CourseRepository provides read-only access to courses owned by the
// course module.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID loads a course with its teacher ids.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	query := `SELECT id, name, start_date, end_date FROM courses WHERE id = $1`
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course %s: %w", id, err)
	}

	teacherQuery := `SELECT teacher_id FROM course_teachers WHERE course_id = $1`
	if err := r.db.SelectContext(ctx, &course.TeacherIDs, teacherQuery, id); err != nil {
		return nil, fmt.Errorf("find course teachers %s: %w", id, err)
	}
	return &course, nil
}
