package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/NTA1210/learning-management-system-sub007/internal/models"
)

// UserRepository resolves display profiles for students and markers,
// read-only against the users table owned by the auth module.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindProfile loads one user's display profile.
func (r *UserRepository) FindProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	var profile models.UserProfile
	query := `SELECT id, username, full_name, email, role FROM users WHERE id = $1`
	if err := r.db.GetContext(ctx, &profile, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find profile %s: %w", id, err)
	}
	return &profile, nil
}

// FindProfiles loads display profiles for many users keyed by id.
func (r *UserRepository) FindProfiles(ctx context.Context, ids []string) (map[string]models.UserProfile, error) {
	if len(ids) == 0 {
		return map[string]models.UserProfile{}, nil
	}
	query, args, err := sqlx.In(`SELECT id, username, full_name, email, role FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build profile query: %w", err)
	}
	query = r.db.Rebind(query)
	var profiles []models.UserProfile
	if err := r.db.SelectContext(ctx, &profiles, query, args...); err != nil {
		return nil, fmt.Errorf("find profiles: %w", err)
	}
	out := make(map[string]models.UserProfile, len(profiles))
	for _, p := range profiles {
		out[p.ID] = p
	}
	return out, nil
}
