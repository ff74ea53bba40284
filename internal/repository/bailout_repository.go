package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/andalan-hq/be-travel-approvals/internal/platform/database"
	"github.com/andalan-hq/be-travel-approvals/internal/platform/errors"
)

// BailoutRepository handles cash-advance requests. Every transition is a
// conditional update keyed on the expected current status, so concurrent
// actors cannot both advance the same bailout.
type BailoutRepository struct{}

const bailoutColumns = `
	id, requester_id, travel_request_id, amount, reason, status,
	submitted_at,
	chief_approved_by, chief_approved_at,
	director_approved_by, director_approved_at,
	disbursed_by, disbursed_at,
	rejected_by, rejected_at, rejection_reason,
	created_at, updated_at
`

// Create inserts a draft bailout.
func (r *BailoutRepository) Create(ctx context.Context, q database.Querier, b *Bailout) error {
	query := `
		INSERT INTO bailouts
		    (requester_id, travel_request_id, amount, reason, status)
		VALUES ($1, $2, $3, $4, $5::bailout_status)
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRow(ctx, query,
		b.RequesterID,
		b.TravelRequestID,
		b.Amount,
		b.Reason,
		b.Status,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create bailout")
	}
	return nil
}

// GetByID retrieves a bailout.
func (r *BailoutRepository) GetByID(ctx context.Context, q database.Querier, id string) (*Bailout, error) {
	return r.get(ctx, q, id, false)
}

// GetByIDForUpdate retrieves a bailout and locks its row.
func (r *BailoutRepository) GetByIDForUpdate(ctx context.Context, q database.Querier, id string) (*Bailout, error) {
	return r.get(ctx, q, id, true)
}

func (r *BailoutRepository) get(ctx context.Context, q database.Querier, id string, forUpdate bool) (*Bailout, error) {
	query := `SELECT` + bailoutColumns + `FROM bailouts WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	b := &Bailout{}
	err := q.QueryRow(ctx, query, id).Scan(
		&b.ID,
		&b.RequesterID,
		&b.TravelRequestID,
		&b.Amount,
		&b.Reason,
		&b.Status,
		&b.SubmittedAt,
		&b.ChiefApprovedBy,
		&b.ChiefApprovedAt,
		&b.DirectorApprovedBy,
		&b.DirectorApprovedAt,
		&b.DisbursedBy,
		&b.DisbursedAt,
		&b.RejectedBy,
		&b.RejectedAt,
		&b.RejectionReason,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("bailout", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get bailout")
	}
	return b, nil
}

// UpdateStatusConditional advances a bailout from one status to another,
// stamping the actor and timestamp columns for the reached stage. Returns
// false when the bailout was not in the expected current status.
func (r *BailoutRepository) UpdateStatusConditional(
	ctx context.Context,
	q database.Querier,
	id string,
	from, to BailoutStatus,
	actorID string,
	reason *string,
	at time.Time,
) (bool, error) {
	query := `
		UPDATE bailouts
		SET status               = $3::bailout_status,
		    submitted_at         = CASE WHEN $3 = 'SUBMITTED' THEN $6 ELSE submitted_at END,
		    chief_approved_by    = CASE WHEN $3 = 'APPROVED_CHIEF' THEN $4 ELSE chief_approved_by END,
		    chief_approved_at    = CASE WHEN $3 = 'APPROVED_CHIEF' THEN $6 ELSE chief_approved_at END,
		    director_approved_by = CASE WHEN $3 = 'APPROVED_DIRECTOR' THEN $4 ELSE director_approved_by END,
		    director_approved_at = CASE WHEN $3 = 'APPROVED_DIRECTOR' THEN $6 ELSE director_approved_at END,
		    disbursed_by         = CASE WHEN $3 = 'DISBURSED' THEN $4 ELSE disbursed_by END,
		    disbursed_at         = CASE WHEN $3 = 'DISBURSED' THEN $6 ELSE disbursed_at END,
		    rejected_by          = CASE WHEN $3 = 'REJECTED' THEN $4 ELSE rejected_by END,
		    rejected_at          = CASE WHEN $3 = 'REJECTED' THEN $6 ELSE rejected_at END,
		    rejection_reason     = CASE WHEN $3 = 'REJECTED' THEN $5 ELSE rejection_reason END,
		    updated_at           = NOW()
		WHERE id = $1
		  AND status = $2::bailout_status
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, id, from, to, actorID, reason, at).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to update bailout status")
	}
	return true, nil
}
