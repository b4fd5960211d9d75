package roles

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pelita-foundation/pelita/internal/authz"
)

// ErrNameRequired rejects a role without a usable name.
var ErrNameRequired = errors.New("roles: role name required")

// ErrNameTaken rejects a duplicate role name.
var ErrNameTaken = errors.New("roles: role name already in use")

// RepositoryPort defines data access methods for role management.
type RepositoryPort interface {
	CreateRole(ctx context.Context, name, description string) (authz.Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (authz.Role, error)
	DeactivateRole(ctx context.Context, id int64) error
}

// Service handles role management business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateRole inserts a new active role.
func (s *Service) CreateRole(ctx context.Context, name, description string) (authz.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return authz.Role{}, ErrNameRequired
	}
	role, err := s.repo.CreateRole(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return authz.Role{}, mapRoleError(err)
	}
	return role, nil
}

// UpdateRole renames an existing role.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string) (authz.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return authz.Role{}, ErrNameRequired
	}
	role, err := s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
	if err != nil {
		return authz.Role{}, mapRoleError(err)
	}
	return role, nil
}

// DeactivateRole retires a role from authorization decisions.
func (s *Service) DeactivateRole(ctx context.Context, id int64) error {
	return s.repo.DeactivateRole(ctx, id)
}

func mapRoleError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrNameTaken
	}
	return err
}
