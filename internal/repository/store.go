package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/andalan-hq/be-travel-approvals/internal/platform/database"
)

// PGStore is the Postgres-backed Store. All transactional guarantees
// (row locks, conditional updates, atomic multi-row writes) rely on the
// database; the store itself holds no workflow state.
type PGStore struct {
	db        *database.DB
	approvals *ApprovalRepository
	entities  *EntityRepository
	bailouts  *BailoutRepository
	audit     *AuditRepository
	org       *OrgRepository
}

// NewPGStore creates a Postgres store on the given pool.
func NewPGStore(db *database.DB) *PGStore {
	return &PGStore{
		db:        db,
		approvals: &ApprovalRepository{},
		entities:  &EntityRepository{},
		bailouts:  &BailoutRepository{},
		audit:     &AuditRepository{},
		org:       &OrgRepository{},
	}
}

var _ Store = (*PGStore)(nil)

// InTx runs fn inside one database transaction.
func (s *PGStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		return fn(&pgTx{store: s, tx: tx})
	})
}

func (s *PGStore) GetApproval(ctx context.Context, id string) (*Approval, error) {
	return s.approvals.GetByID(ctx, s.db, id)
}

func (s *PGStore) GetApprovalByNumber(ctx context.Context, number string) (*Approval, error) {
	return s.approvals.GetByNumber(ctx, s.db, number)
}

func (s *PGStore) ListApprovals(ctx context.Context, f ApprovalFilter, p Page) ([]*Approval, int64, error) {
	return s.approvals.List(ctx, s.db, f, p)
}

func (s *PGStore) GetApprovable(ctx context.Context, kind EntityKind, id string) (Approvable, error) {
	return s.entities.GetApprovable(ctx, s.db, kind, id)
}

func (s *PGStore) CreateTravelRequest(ctx context.Context, tr *TravelRequest) error {
	return s.entities.CreateTravelRequest(ctx, s.db, tr)
}

func (s *PGStore) GetTravelRequest(ctx context.Context, id string) (*TravelRequest, error) {
	return s.entities.GetTravelRequest(ctx, s.db, id)
}

func (s *PGStore) CreateClaim(ctx context.Context, c *Claim) error {
	return s.entities.CreateClaim(ctx, s.db, c)
}

func (s *PGStore) GetClaim(ctx context.Context, id string) (*Claim, error) {
	return s.entities.GetClaim(ctx, s.db, id)
}

func (s *PGStore) CreateBailout(ctx context.Context, b *Bailout) error {
	return s.bailouts.Create(ctx, s.db, b)
}

func (s *PGStore) GetBailout(ctx context.Context, id string) (*Bailout, error) {
	return s.bailouts.GetByID(ctx, s.db, id)
}

func (s *PGStore) GetUser(ctx context.Context, id string) (*User, error) {
	return s.org.GetUser(ctx, s.db, id)
}

func (s *PGStore) GetDepartment(ctx context.Context, id string) (*Department, error) {
	return s.org.GetDepartment(ctx, s.db, id)
}

func (s *PGStore) EarliestUserWithRole(ctx context.Context, roles ...Role) (*User, error) {
	return s.org.EarliestUserWithRole(ctx, s.db, roles...)
}

func (s *PGStore) ListAudit(ctx context.Context, kind EntityKind, entityID string) ([]*AuditEntry, error) {
	return s.audit.ListForEntity(ctx, s.db, kind, entityID)
}

// ── transaction view ──────────────────────────────────────────────────────────

type pgTx struct {
	store *PGStore
	tx    pgx.Tx
}

var _ Tx = (*pgTx)(nil)

func (t *pgTx) GetApprovalForUpdate(ctx context.Context, id string) (*Approval, error) {
	return t.store.approvals.GetByIDForUpdate(ctx, t.tx, id)
}

func (t *pgTx) GetApprovalByNumberForUpdate(ctx context.Context, number string) (*Approval, error) {
	return t.store.approvals.GetByNumberForUpdate(ctx, t.tx, number)
}

func (t *pgTx) GetChainForUpdate(ctx context.Context, kind EntityKind, entityID string) ([]*Approval, error) {
	return t.store.approvals.GetChainForUpdate(ctx, t.tx, kind, entityID)
}

func (t *pgTx) CreateApprovals(ctx context.Context, approvals []*Approval) error {
	return t.store.approvals.Create(ctx, t.tx, approvals)
}

func (t *pgTx) UpdateApprovalStatus(ctx context.Context, id string, from, to ApprovalStatus, comments, reason *string, at time.Time) (bool, error) {
	return t.store.approvals.UpdateStatusConditional(ctx, t.tx, id, from, to, comments, reason, at)
}

func (t *pgTx) ResetChain(ctx context.Context, kind EntityKind, entityID string) error {
	return t.store.approvals.ResetChain(ctx, t.tx, kind, entityID)
}

func (t *pgTx) NextApprovalNumber(ctx context.Context, year int) (int64, error) {
	return t.store.approvals.NextNumber(ctx, t.tx, year)
}

func (t *pgTx) GetApprovableForUpdate(ctx context.Context, kind EntityKind, id string) (Approvable, error) {
	return t.store.entities.GetApprovableForUpdate(ctx, t.tx, kind, id)
}

func (t *pgTx) UpdateEntityStatus(ctx context.Context, kind EntityKind, id string, to EntityStatus, submittedAt *time.Time) error {
	return t.store.entities.UpdateStatus(ctx, t.tx, kind, id, to, submittedAt)
}

func (t *pgTx) GetUser(ctx context.Context, id string) (*User, error) {
	return t.store.org.GetUser(ctx, t.tx, id)
}

func (t *pgTx) GetBailoutForUpdate(ctx context.Context, id string) (*Bailout, error) {
	return t.store.bailouts.GetByIDForUpdate(ctx, t.tx, id)
}

func (t *pgTx) UpdateBailoutStatus(ctx context.Context, id string, from, to BailoutStatus, actorID string, reason *string, at time.Time) (bool, error) {
	return t.store.bailouts.UpdateStatusConditional(ctx, t.tx, id, from, to, actorID, reason, at)
}

func (t *pgTx) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	return t.store.audit.Append(ctx, t.tx, entry)
}
