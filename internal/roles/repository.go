package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pelita-foundation/pelita/internal/authz"
	"github.com/pelita-foundation/pelita/internal/shared"
)

// Repository provides PostgreSQL backed persistence for role management.
// Catalog reads live on the authz store; this repository owns the writes
// the settings screens need.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, name, description string) (authz.Role, error) {
	const q = `
INSERT INTO roles (name, description, is_active, created_at, updated_at)
VALUES ($1, $2, TRUE, NOW(), NOW())
RETURNING id, name, description, is_active, created_at, updated_at`
	var role authz.Role
	err := r.pool.QueryRow(ctx, q, name, description).
		Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return authz.Role{}, err
	}
	return role, nil
}

// UpdateRole updates name and description of an existing role.
func (r *Repository) UpdateRole(ctx context.Context, id int64, name, description string) (authz.Role, error) {
	const q = `
UPDATE roles SET name = $2, description = $3, updated_at = NOW()
WHERE id = $1
RETURNING id, name, description, is_active, created_at, updated_at`
	var role authz.Role
	err := r.pool.QueryRow(ctx, q, id, name, description).
		Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Role{}, shared.ErrNotFound
		}
		return authz.Role{}, err
	}
	return role, nil
}

// DeactivateRole soft-deletes a role. Assignments keep their rows but the
// role stops contributing to authorization decisions.
func (r *Repository) DeactivateRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE roles SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND is_active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
