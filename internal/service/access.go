package service

import (
	"context"
	"database/sql"

	"github.com/NTA1210/learning-management-system-sub007/internal/models"
	appErrors "github.com/NTA1210/learning-management-system-sub007/pkg/errors"
)

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// ensureManagePermission decides whether the actor may manage attendance
// for the course and returns the course bounds on success. Admins always
// pass, teachers only for courses they teach, students never; student
// self-reads take a separate path that bypasses this gate.
func ensureManagePermission(ctx context.Context, courses courseReader, courseID string, actor models.Actor) (*models.Course, error) {
	if courseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course id is required")
	}
	if actor.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students cannot manage attendance")
	}

	course, err := courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	switch actor.Role {
	case models.RoleAdmin:
		return course, nil
	case models.RoleTeacher:
		if course.HasTeacher(actor.ID) {
			return course, nil
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you do not teach this course")
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role cannot manage attendance")
	}
}
