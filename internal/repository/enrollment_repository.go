package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/NTA1210/learning-management-system-sub007/internal/models"
)

// EnrollmentRepository provides read-only membership checks against
// enrollments owned by the enrollment module.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ApprovedStudentIDs returns the subset of the given students holding an
// approved enrollment in the course.
func (r *EnrollmentRepository) ApprovedStudentIDs(ctx context.Context, courseID string, studentIDs []string) ([]string, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT student_id FROM enrollments
WHERE course_id = ? AND status = ? AND student_id IN (?)`, courseID, models.EnrollmentStatusApproved, studentIDs)
	if err != nil {
		return nil, fmt.Errorf("build enrollment query: %w", err)
	}
	query = r.db.Rebind(query)
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("approved enrollments for course %s: %w", courseID, err)
	}
	return ids, nil
}
