package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/andalan-hq/be-travel-approvals/internal/platform/database"
	"github.com/andalan-hq/be-travel-approvals/internal/platform/errors"
)

// EntityRepository handles the two approvable entity variants. Both share the
// same status lifecycle, so status updates are dispatched by kind.
type EntityRepository struct{}

// ── Travel requests ───────────────────────────────────────────────────────────

const travelRequestColumns = `
	id, requester_id, destination, purpose, start_date, end_date,
	estimated_amount, status, submitted_at, created_at, updated_at
`

// CreateTravelRequest inserts a draft travel request.
func (r *EntityRepository) CreateTravelRequest(ctx context.Context, q database.Querier, tr *TravelRequest) error {
	query := `
		INSERT INTO travel_requests
		    (requester_id, destination, purpose, start_date, end_date,
		     estimated_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7::entity_status)
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRow(ctx, query,
		tr.RequesterID,
		tr.Destination,
		tr.Purpose,
		tr.StartDate,
		tr.EndDate,
		tr.EstimatedAmount,
		tr.Status,
	).Scan(&tr.ID, &tr.CreatedAt, &tr.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create travel request")
	}
	return nil
}

// GetTravelRequest retrieves a travel request by ID.
func (r *EntityRepository) GetTravelRequest(ctx context.Context, q database.Querier, id string) (*TravelRequest, error) {
	return r.getTravelRequest(ctx, q, id, false)
}

func (r *EntityRepository) getTravelRequest(ctx context.Context, q database.Querier, id string, forUpdate bool) (*TravelRequest, error) {
	query := `SELECT` + travelRequestColumns + `FROM travel_requests WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	tr := &TravelRequest{}
	err := q.QueryRow(ctx, query, id).Scan(
		&tr.ID,
		&tr.RequesterID,
		&tr.Destination,
		&tr.Purpose,
		&tr.StartDate,
		&tr.EndDate,
		&tr.EstimatedAmount,
		&tr.Status,
		&tr.SubmittedAt,
		&tr.CreatedAt,
		&tr.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("travel_request", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get travel request")
	}
	return tr, nil
}

// ── Claims ────────────────────────────────────────────────────────────────────

const claimColumns = `
	id, requester_id, travel_request_id, description, category,
	total_amount, receipt_url, status, submitted_at, created_at, updated_at
`

// CreateClaim inserts a draft expense claim.
func (r *EntityRepository) CreateClaim(ctx context.Context, q database.Querier, c *Claim) error {
	query := `
		INSERT INTO claims
		    (requester_id, travel_request_id, description, category,
		     total_amount, receipt_url, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7::entity_status)
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRow(ctx, query,
		c.RequesterID,
		c.TravelRequestID,
		c.Description,
		c.Category,
		c.TotalAmount,
		c.ReceiptURL,
		c.Status,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create claim")
	}
	return nil
}

// GetClaim retrieves a claim by ID.
func (r *EntityRepository) GetClaim(ctx context.Context, q database.Querier, id string) (*Claim, error) {
	return r.getClaim(ctx, q, id, false)
}

func (r *EntityRepository) getClaim(ctx context.Context, q database.Querier, id string, forUpdate bool) (*Claim, error) {
	query := `SELECT` + claimColumns + `FROM claims WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	c := &Claim{}
	err := q.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.RequesterID,
		&c.TravelRequestID,
		&c.Description,
		&c.Category,
		&c.TotalAmount,
		&c.ReceiptURL,
		&c.Status,
		&c.SubmittedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("claim", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get claim")
	}
	return c, nil
}

// ── Kind dispatch ─────────────────────────────────────────────────────────────

// GetApprovable retrieves either entity variant behind the Approvable
// interface.
func (r *EntityRepository) GetApprovable(ctx context.Context, q database.Querier, kind EntityKind, id string) (Approvable, error) {
	return r.getApprovable(ctx, q, kind, id, false)
}

// GetApprovableForUpdate retrieves an entity variant and locks its row.
func (r *EntityRepository) GetApprovableForUpdate(ctx context.Context, q database.Querier, kind EntityKind, id string) (Approvable, error) {
	return r.getApprovable(ctx, q, kind, id, true)
}

func (r *EntityRepository) getApprovable(ctx context.Context, q database.Querier, kind EntityKind, id string, forUpdate bool) (Approvable, error) {
	switch kind {
	case KindTravelRequest:
		return r.getTravelRequest(ctx, q, id, forUpdate)
	case KindClaim:
		return r.getClaim(ctx, q, id, forUpdate)
	default:
		return nil, errors.Newf(errors.ErrCodeBadRequest, "entity kind %q has no approval chain", kind)
	}
}

// UpdateStatus sets the entity status and optionally stamps submitted_at.
func (r *EntityRepository) UpdateStatus(ctx context.Context, q database.Querier, kind EntityKind, id string, to EntityStatus, submittedAt *time.Time) error {
	var table string
	switch kind {
	case KindTravelRequest:
		table = "travel_requests"
	case KindClaim:
		table = "claims"
	default:
		return errors.Newf(errors.ErrCodeBadRequest, "entity kind %q has no approval chain", kind)
	}

	query := `
		UPDATE ` + table + `
		SET status       = $2::entity_status,
		    submitted_at = COALESCE($3, submitted_at),
		    updated_at   = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, id, to, submittedAt).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound(string(kind), id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update entity status")
	}
	return nil
}
