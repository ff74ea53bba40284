package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/andalan-hq/be-travel-approvals/internal/platform/database"
	"github.com/andalan-hq/be-travel-approvals/internal/platform/errors"
)

// OrgRepository resolves users and departments for chain building, phone
// verification and role gating.
type OrgRepository struct{}

const userColumns = `
	id, name, email, phone, role, supervisor_id, department_id, created_at
`

// GetUser retrieves a user by ID.
func (r *OrgRepository) GetUser(ctx context.Context, q database.Querier, id string) (*User, error) {
	query := `SELECT` + userColumns + `FROM users WHERE id = $1`

	u, err := r.scanUser(q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("user", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get user")
	}
	return u, nil
}

// GetDepartment retrieves a department by ID.
func (r *OrgRepository) GetDepartment(ctx context.Context, q database.Querier, id string) (*Department, error) {
	query := `
		SELECT id, name, manager_id, director_id, created_at
		FROM departments
		WHERE id = $1
	`

	d := &Department{}
	err := q.QueryRow(ctx, query, id).Scan(
		&d.ID,
		&d.Name,
		&d.ManagerID,
		&d.DirectorID,
		&d.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("department", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get department")
	}
	return d, nil
}

// EarliestUserWithRole returns the earliest-created user holding any of the
// given roles, or nil when none exists. Creation order makes the fallback
// deterministic.
func (r *OrgRepository) EarliestUserWithRole(ctx context.Context, q database.Querier, roles ...Role) (*User, error) {
	if len(roles) == 0 {
		return nil, nil
	}

	roleNames := make([]string, len(roles))
	for i, role := range roles {
		roleNames[i] = string(role)
	}

	query := `SELECT` + userColumns + `
		FROM users
		WHERE role = ANY($1)
		ORDER BY created_at ASC, id ASC
		LIMIT 1`

	u, err := r.scanUser(q.QueryRow(ctx, query, roleNames))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve user by role")
	}
	return u, nil
}

type userScanner interface {
	Scan(dest ...any) error
}

func (r *OrgRepository) scanUser(row userScanner) (*User, error) {
	u := &User{}
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Phone,
		&u.Role,
		&u.SupervisorID,
		&u.DepartmentID,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}
