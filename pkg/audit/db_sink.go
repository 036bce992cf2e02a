package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/nextsuite/authcore/pkg/observability"
)

// DBSink persists audit events to the audit_events table. Insert failures
// are logged and dropped; they never propagate to the caller.
type DBSink struct {
	db      *sql.DB
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewDBSink creates a database-backed audit sink
func NewDBSink(db *sql.DB, logger *observability.Logger) (*DBSink, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBSink{db: db, logger: logger}, nil
}

// WithMetrics attaches metrics to the sink
func (s *DBSink) WithMetrics(m *observability.Metrics) *DBSink {
	s.metrics = m
	return s
}

// Record inserts the event, swallowing failures with a local log
func (s *DBSink) Record(ctx context.Context, event *Event) {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		metadata = []byte("{}")
	}

	query := `
		INSERT INTO audit_events (id, timestamp, event_type, actor_id, organization_id, module, submodule, action, kind, bypass, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	// Detach from the request context so a caller that has already been
	// answered does not cancel the insert mid-flight.
	insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	_, err = s.db.ExecContext(insertCtx, query,
		event.ID,
		event.Timestamp,
		event.EventType,
		event.ActorID,
		nullableOrgID(event.OrganizationID),
		event.Module,
		event.Submodule,
		event.Action,
		event.Kind,
		event.Bypass,
		event.Message,
		metadata,
	)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).WithField("event_type", string(event.EventType)).Error("Failed to record audit event")
		}
		if s.metrics != nil {
			s.metrics.AuditDropsTotal.Inc()
		}
		return
	}

	if s.metrics != nil {
		s.metrics.AuditEventsTotal.WithLabelValues(string(event.EventType)).Inc()
	}
}

// Close implements Sink; the pool is owned by the caller
func (s *DBSink) Close() error { return nil }

// Search returns events matching the filter, newest first
func (s *DBSink) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	query := `
		SELECT id, timestamp, event_type, actor_id, organization_id, module, submodule, action, kind, bypass, message, metadata
		FROM audit_events
		WHERE 1=1
	`
	args := []interface{}{}
	idx := 1

	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", idx)
		args = append(args, *filter.StartTime)
		idx++
	}
	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", idx)
		args = append(args, *filter.EndTime)
		idx++
	}
	if filter.ActorID != nil {
		query += fmt.Sprintf(" AND actor_id = $%d", idx)
		args = append(args, *filter.ActorID)
		idx++
	}
	if filter.OrganizationID != nil {
		query += fmt.Sprintf(" AND organization_id = $%d", idx)
		args = append(args, *filter.OrganizationID)
		idx++
	}
	if filter.Module != "" {
		query += fmt.Sprintf(" AND module = $%d", idx)
		args = append(args, filter.Module)
		idx++
	}
	if len(filter.EventTypes) > 0 {
		query += fmt.Sprintf(" AND event_type = ANY($%d)", idx)
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		args = append(args, pq.Array(types))
		idx++
	}

	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, filter.Limit)
		idx++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", idx)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var event Event
		var actorID, orgID sql.NullInt64
		var metadata []byte

		err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&event.EventType,
			&actorID,
			&orgID,
			&event.Module,
			&event.Submodule,
			&event.Action,
			&event.Kind,
			&event.Bypass,
			&event.Message,
			&metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}

		if actorID.Valid {
			a := actorID.Int64
			event.ActorID = &a
		}
		if orgID.Valid {
			event.OrganizationID = orgID.Int64
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &event.Metadata)
		}

		events = append(events, &event)
	}

	return events, rows.Err()
}

// PurgeDecisionEvents deletes decision events older than the cutoff.
// Entitlement change events are append-only forever and excluded here.
func (s *DBSink) PurgeDecisionEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM audit_events
		WHERE timestamp < $1
		  AND event_type IN ($2, $3, $4)
	`
	result, err := s.db.ExecContext(ctx, query, cutoff,
		EventTypeDecisionGranted, EventTypeDecisionDenied, EventTypeDecisionBypass)
	if err != nil {
		return 0, fmt.Errorf("failed to purge decision events: %w", err)
	}
	return result.RowsAffected()
}

func nullableOrgID(orgID int64) interface{} {
	if orgID == 0 {
		return nil
	}
	return orgID
}
