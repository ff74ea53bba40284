package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/andalan-hq/be-travel-approvals/internal/platform/database"
	"github.com/andalan-hq/be-travel-approvals/internal/platform/errors"
)

// ApprovalRepository handles reads and conditional updates on approval
// records. Chain creation happens inside the submission transaction.
type ApprovalRepository struct{}

const approvalColumns = `
	id, number, entity_kind, entity_id, level, approver_id, status,
	comments, rejection_reason, approved_at, rejected_at,
	created_at, updated_at
`

// GetByID retrieves an approval by its primary key.
func (r *ApprovalRepository) GetByID(ctx context.Context, q database.Querier, id string) (*Approval, error) {
	query := `SELECT` + approvalColumns + `FROM approvals WHERE id = $1`

	a, err := r.scanApproval(q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval", id)
	}
	return a, err
}

// GetByNumber retrieves an approval by its immutable business key.
func (r *ApprovalRepository) GetByNumber(ctx context.Context, q database.Querier, number string) (*Approval, error) {
	query := `SELECT` + approvalColumns + `FROM approvals WHERE number = $1`

	a, err := r.scanApproval(q.QueryRow(ctx, query, number))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval", number)
	}
	return a, err
}

// GetByIDForUpdate retrieves an approval and locks its row.
func (r *ApprovalRepository) GetByIDForUpdate(ctx context.Context, q database.Querier, id string) (*Approval, error) {
	query := `SELECT` + approvalColumns + `FROM approvals WHERE id = $1 FOR UPDATE`

	a, err := r.scanApproval(q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval", id)
	}
	return a, err
}

// GetByNumberForUpdate retrieves an approval by business key and locks it.
func (r *ApprovalRepository) GetByNumberForUpdate(ctx context.Context, q database.Querier, number string) (*Approval, error) {
	query := `SELECT` + approvalColumns + `FROM approvals WHERE number = $1 FOR UPDATE`

	a, err := r.scanApproval(q.QueryRow(ctx, query, number))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval", number)
	}
	return a, err
}

// GetChainForUpdate locks and returns all approvals for one parent entity,
// ordered by ascending level. The lock spans the level-gate check and the
// subsequent writes so sibling state cannot change underneath them.
func (r *ApprovalRepository) GetChainForUpdate(ctx context.Context, q database.Querier, kind EntityKind, entityID string) ([]*Approval, error) {
	query := `SELECT` + approvalColumns + `
		FROM approvals
		WHERE entity_kind = $1 AND entity_id = $2
		ORDER BY level ASC
		FOR UPDATE`

	rows, err := q.Query(ctx, query, kind, entityID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to lock approval chain")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// Create inserts approval records for a freshly built chain.
func (r *ApprovalRepository) Create(ctx context.Context, q database.Querier, approvals []*Approval) error {
	query := `
		INSERT INTO approvals
		    (number, entity_kind, entity_id, level, approver_id, status)
		VALUES ($1, $2, $3, $4, $5, $6::approval_status)
		RETURNING id, created_at, updated_at
	`

	for _, a := range approvals {
		err := q.QueryRow(ctx, query,
			a.Number,
			a.EntityKind,
			a.EntityID,
			a.Level,
			a.ApproverID,
			a.Status,
		).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval")
		}
	}

	return nil
}

// UpdateStatusConditional flips an approval from one status to another only
// if it still holds the expected current status. Returns false when another
// actor already resolved the record.
func (r *ApprovalRepository) UpdateStatusConditional(
	ctx context.Context,
	q database.Querier,
	id string,
	from, to ApprovalStatus,
	comments, reason *string,
	at time.Time,
) (bool, error) {
	query := `
		UPDATE approvals
		SET status           = $3::approval_status,
		    comments         = COALESCE($4, comments),
		    rejection_reason = COALESCE($5, rejection_reason),
		    approved_at      = CASE WHEN $3 = 'APPROVED' THEN $6 ELSE approved_at END,
		    rejected_at      = CASE WHEN $3 = 'REJECTED' THEN $6 ELSE rejected_at END,
		    updated_at       = NOW()
		WHERE id = $1
		  AND status = $2::approval_status
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, id, from, to, comments, reason, at).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval status")
	}
	return true, nil
}

// ResetChain returns every approval of one parent entity to PENDING and
// clears action timestamps, regardless of current status. Comments are kept
// so approvers can see what was flagged.
func (r *ApprovalRepository) ResetChain(ctx context.Context, q database.Querier, kind EntityKind, entityID string) error {
	query := `
		UPDATE approvals
		SET status           = 'PENDING'::approval_status,
		    approved_at      = NULL,
		    rejected_at      = NULL,
		    rejection_reason = NULL,
		    updated_at       = NOW()
		WHERE entity_kind = $1 AND entity_id = $2
	`

	_, err := q.Exec(ctx, query, kind, entityID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to reset approval chain")
	}
	return nil
}

// NextNumber increments and returns the yearly business-key sequence.
func (r *ApprovalRepository) NextNumber(ctx context.Context, q database.Querier, year int) (int64, error) {
	query := `
		INSERT INTO approval_sequences (year, last_value)
		VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE
		SET last_value = approval_sequences.last_value + 1
		RETURNING last_value
	`

	var seq int64
	if err := q.QueryRow(ctx, query, year).Scan(&seq); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to advance approval sequence")
	}
	return seq, nil
}

// List returns approvals matching a filter with limit/offset pagination.
func (r *ApprovalRepository) List(ctx context.Context, q database.Querier, f ApprovalFilter, p Page) ([]*Approval, int64, error) {
	p = p.Normalize()

	where := []string{"1=1"}
	args := []any{}
	idx := 1
	add := func(cond string, v any) {
		where = append(where, fmt.Sprintf(cond, idx))
		args = append(args, v)
		idx++
	}

	if f.ApproverID != "" {
		add("approver_id = $%d", f.ApproverID)
	}
	if f.Status != "" {
		add("status = $%d::approval_status", f.Status)
	}
	if f.EntityKind != "" {
		add("entity_kind = $%d", f.EntityKind)
	}

	w := strings.Join(where, " AND ")

	var total int64
	countQuery := `SELECT COUNT(*) FROM approvals WHERE ` + w
	if err := q.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count approvals")
	}

	query := `SELECT` + approvalColumns + `FROM approvals WHERE ` + w +
		fmt.Sprintf(" ORDER BY created_at DESC, level ASC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, p.Size, p.Offset())

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approvals")
	}
	defer rows.Close()

	items, err := r.scanRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type approvalScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalRepository) scanApproval(row approvalScanner) (*Approval, error) {
	a := &Approval{}
	err := row.Scan(
		&a.ID,
		&a.Number,
		&a.EntityKind,
		&a.EntityID,
		&a.Level,
		&a.ApproverID,
		&a.Status,
		&a.Comments,
		&a.RejectionReason,
		&a.ApprovedAt,
		&a.RejectedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *ApprovalRepository) scanRows(rows pgx.Rows) ([]*Approval, error) {
	var approvals []*Approval
	for rows.Next() {
		a, err := r.scanApproval(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval")
		}
		approvals = append(approvals, a)
	}
	return approvals, nil
}
