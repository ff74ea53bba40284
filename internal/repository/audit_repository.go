package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/andalan-hq/be-travel-approvals/internal/platform/database"
	"github.com/andalan-hq/be-travel-approvals/internal/platform/errors"
)

// AuditRepository appends and reads immutable workflow audit records. The
// table carries a delete-prevention trigger, so Append is the only mutation
// exposed.
type AuditRepository struct{}

// Append inserts one audit entry.
func (r *AuditRepository) Append(ctx context.Context, q database.Querier, entry *AuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO approval_audit_log
		    (entity_kind, entity_id, approval_id,
		     action, performed_by,
		     status_before, status_after, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, performed_at
	`

	return q.QueryRow(ctx, query,
		entry.EntityKind,
		entry.EntityID,
		entry.ApprovalID,
		entry.Action,
		entry.PerformedBy,
		entry.StatusBefore,
		entry.StatusAfter,
		metadataJSON,
	).Scan(&entry.ID, &entry.PerformedAt)
}

// ListForEntity returns the full trail for one entity, oldest first.
func (r *AuditRepository) ListForEntity(ctx context.Context, q database.Querier, kind EntityKind, entityID string) ([]*AuditEntry, error) {
	query := `
		SELECT id, entity_kind, entity_id, approval_id,
		       action, performed_by, performed_at,
		       status_before, status_after, metadata
		FROM approval_audit_log
		WHERE entity_kind = $1 AND entity_id = $2
		ORDER BY performed_at ASC
	`

	rows, err := q.Query(ctx, query, kind, entityID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

func (r *AuditRepository) scanRows(rows pgx.Rows) ([]*AuditEntry, error) {
	var entries []*AuditEntry
	for rows.Next() {
		entry := &AuditEntry{}
		var metadataJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.EntityKind,
			&entry.EntityID,
			&entry.ApprovalID,
			&entry.Action,
			&entry.PerformedBy,
			&entry.PerformedAt,
			&entry.StatusBefore,
			&entry.StatusAfter,
			&metadataJSON,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
		}

		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
			}
		}

		entries = append(entries, entry)
	}
	return entries, nil
}
