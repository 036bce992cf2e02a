package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nextsuite/authcore/pkg/entitlement"
)

// EntitlementStore implements entitlement.Store on PostgreSQL
type EntitlementStore struct {
	db *sql.DB
}

// NewEntitlementStore creates a store over the given connection pool
func NewEntitlementStore(db *sql.DB) *EntitlementStore {
	return &EntitlementStore{db: db}
}

// GetOrgEntitlement returns the module override row, or (nil, nil) when absent
func (s *EntitlementStore) GetOrgEntitlement(ctx context.Context, orgID int64, module string) (*entitlement.OrgEntitlement, error) {
	query := `
		SELECT organization_id, module, status, trial_expires_at, source, updated_by, created_at, updated_at
		FROM org_entitlements
		WHERE organization_id = $1 AND module = $2
	`

	var ent entitlement.OrgEntitlement
	var trialExpiresAt sql.NullTime
	var updatedBy sql.NullInt64

	err := s.db.QueryRowContext(ctx, query, orgID, module).Scan(
		&ent.OrgID,
		&ent.Module,
		&ent.Status,
		&trialExpiresAt,
		&ent.Source,
		&updatedBy,
		&ent.CreatedAt,
		&ent.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}

	if trialExpiresAt.Valid {
		t := trialExpiresAt.Time
		ent.TrialExpiresAt = &t
	}
	if updatedBy.Valid {
		u := updatedBy.Int64
		ent.UpdatedBy = &u
	}

	return &ent, nil
}

// GetOrgSubentitlement returns the submodule override row, or (nil, nil) when absent
func (s *EntitlementStore) GetOrgSubentitlement(ctx context.Context, orgID int64, module, submodule string) (*entitlement.OrgSubentitlement, error) {
	query := `
		SELECT organization_id, module, submodule, status, trial_expires_at, source, updated_by, created_at, updated_at
		FROM org_subentitlements
		WHERE organization_id = $1 AND module = $2 AND submodule = $3
	`

	var ent entitlement.OrgSubentitlement
	var trialExpiresAt sql.NullTime
	var updatedBy sql.NullInt64

	err := s.db.QueryRowContext(ctx, query, orgID, module, submodule).Scan(
		&ent.OrgID,
		&ent.Module,
		&ent.Submodule,
		&ent.Status,
		&trialExpiresAt,
		&ent.Source,
		&updatedBy,
		&ent.CreatedAt,
		&ent.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subentitlement: %w", err)
	}

	if trialExpiresAt.Valid {
		t := trialExpiresAt.Time
		ent.TrialExpiresAt = &t
	}
	if updatedBy.Valid {
		u := updatedBy.Int64
		ent.UpdatedBy = &u
	}

	return &ent, nil
}

// ListOrgEntitlements returns all module-level override rows for an org
func (s *EntitlementStore) ListOrgEntitlements(ctx context.Context, orgID int64) ([]entitlement.OrgEntitlement, error) {
	query := `
		SELECT organization_id, module, status, trial_expires_at, source, updated_by, created_at, updated_at
		FROM org_entitlements
		WHERE organization_id = $1
		ORDER BY module
	`

	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entitlements: %w", err)
	}
	defer rows.Close()

	var ents []entitlement.OrgEntitlement
	for rows.Next() {
		var ent entitlement.OrgEntitlement
		var trialExpiresAt sql.NullTime
		var updatedBy sql.NullInt64

		err := rows.Scan(
			&ent.OrgID,
			&ent.Module,
			&ent.Status,
			&trialExpiresAt,
			&ent.Source,
			&updatedBy,
			&ent.CreatedAt,
			&ent.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entitlement: %w", err)
		}

		if trialExpiresAt.Valid {
			t := trialExpiresAt.Time
			ent.TrialExpiresAt = &t
		}
		if updatedBy.Valid {
			u := updatedBy.Int64
			ent.UpdatedBy = &u
		}

		ents = append(ents, ent)
	}

	return ents, rows.Err()
}

// UpsertOrgEntitlement creates or replaces a module-level override
func (s *EntitlementStore) UpsertOrgEntitlement(ctx context.Context, ent *entitlement.OrgEntitlement) error {
	query := `
		INSERT INTO org_entitlements (organization_id, module, status, trial_expires_at, source, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (organization_id, module) DO UPDATE SET
			status = EXCLUDED.status,
			trial_expires_at = EXCLUDED.trial_expires_at,
			source = EXCLUDED.source,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		ent.OrgID, ent.Module, ent.Status, ent.TrialExpiresAt,
		ent.Source, ent.UpdatedBy, ent.CreatedAt, ent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert entitlement: %w", err)
	}
	return nil
}

// DeleteOrgEntitlement removes a module-level override
func (s *EntitlementStore) DeleteOrgEntitlement(ctx context.Context, orgID int64, module string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM org_entitlements WHERE organization_id = $1 AND module = $2",
		orgID, module,
	)
	if err != nil {
		return fmt.Errorf("failed to delete entitlement: %w", err)
	}
	return nil
}

// UpsertOrgSubentitlement creates or replaces a submodule-level override
func (s *EntitlementStore) UpsertOrgSubentitlement(ctx context.Context, ent *entitlement.OrgSubentitlement) error {
	query := `
		INSERT INTO org_subentitlements (organization_id, module, submodule, status, trial_expires_at, source, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (organization_id, module, submodule) DO UPDATE SET
			status = EXCLUDED.status,
			trial_expires_at = EXCLUDED.trial_expires_at,
			source = EXCLUDED.source,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		ent.OrgID, ent.Module, ent.Submodule, ent.Status, ent.TrialExpiresAt,
		ent.Source, ent.UpdatedBy, ent.CreatedAt, ent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert subentitlement: %w", err)
	}
	return nil
}

// DeleteOrgSubentitlement removes a submodule-level override
func (s *EntitlementStore) DeleteOrgSubentitlement(ctx context.Context, orgID int64, module, submodule string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM org_subentitlements WHERE organization_id = $1 AND module = $2 AND submodule = $3",
		orgID, module, submodule,
	)
	if err != nil {
		return fmt.Errorf("failed to delete subentitlement: %w", err)
	}
	return nil
}

// AppendEvent appends an immutable change event
func (s *EntitlementStore) AppendEvent(ctx context.Context, event *entitlement.Event) error {
	query := `
		INSERT INTO entitlement_events (id, organization_id, module, submodule, old_status, new_status, source, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.OrgID, event.Module, nullString(event.Submodule),
		nullString(string(event.OldStatus)), nullString(string(event.NewStatus)),
		event.Source, event.ActorID, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append entitlement event: %w", err)
	}
	return nil
}

// ListEvents returns change events for an org, newest first
func (s *EntitlementStore) ListEvents(ctx context.Context, orgID int64, limit, offset int) ([]entitlement.Event, error) {
	query := `
		SELECT id, organization_id, module, submodule, old_status, new_status, source, actor_id, created_at
		FROM entitlement_events
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list entitlement events: %w", err)
	}
	defer rows.Close()

	var events []entitlement.Event
	for rows.Next() {
		var event entitlement.Event
		var submodule, oldStatus, newStatus sql.NullString
		var actorID sql.NullInt64

		err := rows.Scan(
			&event.ID,
			&event.OrgID,
			&event.Module,
			&submodule,
			&oldStatus,
			&newStatus,
			&event.Source,
			&actorID,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entitlement event: %w", err)
		}

		event.Submodule = submodule.String
		event.OldStatus = entitlement.Status(oldStatus.String)
		event.NewStatus = entitlement.Status(newStatus.String)
		if actorID.Valid {
			a := actorID.Int64
			event.ActorID = &a
		}

		events = append(events, event)
	}

	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
