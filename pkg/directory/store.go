package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nextsuite/authcore/pkg/rbac"
)

// Store is the postgres-backed implementation of UserDirectory and
// OrgDirectory.
type Store struct {
	db *sql.DB
}

// NewStore creates a new directory store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetUser retrieves a user by ID
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	query := `
		SELECT id, username, email, role, organization_id, is_super_admin, is_active, created_at, updated_at, last_login_at
		FROM users
		WHERE id = $1
	`

	var user User
	var role string
	var orgID sql.NullInt64
	var lastLogin sql.NullTime

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&role,
		&orgID,
		&user.IsSuperAdmin,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastLogin,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.Role = rbac.Role(role)
	if orgID.Valid {
		oid := orgID.Int64
		user.OrganizationID = &oid
	}
	if lastLogin.Valid {
		ll := lastLogin.Time
		user.LastLoginAt = &ll
	}

	return &user, nil
}

// GetOrganization retrieves an organization by ID
func (s *Store) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	query := `
		SELECT id, name, slug, plan_key, state_code, enabled_modules, is_active, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`

	var org Organization
	var planKey, stateCode sql.NullString
	var enabledModules []byte

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&org.ID,
		&org.Name,
		&org.Slug,
		&planKey,
		&stateCode,
		&enabledModules,
		&org.IsActive,
		&org.CreatedAt,
		&org.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	if planKey.Valid {
		org.PlanKey = planKey.String
	}
	if stateCode.Valid {
		org.StateCode = stateCode.String
	}
	if len(enabledModules) > 0 {
		if err := json.Unmarshal(enabledModules, &org.EnabledModules); err != nil {
			// Legacy map is best-effort; a corrupt value degrades to the
			// structured rows only.
			org.EnabledModules = nil
		}
	}

	return &org, nil
}
