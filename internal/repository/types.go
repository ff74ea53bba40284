package repository

import (
	"context"
	"fmt"
	"time"
)

// ── Approval levels ───────────────────────────────────────────────────────────

// Level is one rung in an approval chain. Levels are strictly ordered by
// their integer rank, so "all previous levels approved" is a numeric check.
type Level int

const (
	LevelSupervisor     Level = 1
	LevelManager        Level = 2
	LevelDirector       Level = 3
	LevelSeniorDirector Level = 4
	LevelExecutive      Level = 5
)

var levelNames = map[Level]string{
	LevelSupervisor:     "L1_SUPERVISOR",
	LevelManager:        "L2_MANAGER",
	LevelDirector:       "L3_DIRECTOR",
	LevelSeniorDirector: "L4_SENIOR_DIRECTOR",
	LevelExecutive:      "L5_EXECUTIVE",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("L%d", int(l))
}

// IsValid reports whether the level is within the defined range.
func (l Level) IsValid() bool {
	_, ok := levelNames[l]
	return ok
}

// ── Statuses ──────────────────────────────────────────────────────────────────

// ApprovalStatus is the state of one approval record. All non-pending states
// are terminal for the record itself; a revision request additionally resets
// the whole chain.
type ApprovalStatus string

const (
	ApprovalPending           ApprovalStatus = "PENDING"
	ApprovalApproved          ApprovalStatus = "APPROVED"
	ApprovalRejected          ApprovalStatus = "REJECTED"
	ApprovalRevisionRequested ApprovalStatus = "REVISION_REQUESTED"
)

// EntityStatus is the state of an approvable parent entity.
type EntityStatus string

const (
	EntityDraft      EntityStatus = "DRAFT"
	EntitySubmitted  EntityStatus = "SUBMITTED"
	EntityApprovedL1 EntityStatus = "APPROVED_L1"
	EntityApprovedL2 EntityStatus = "APPROVED_L2"
	EntityApprovedL3 EntityStatus = "APPROVED_L3"
	EntityApprovedL4 EntityStatus = "APPROVED_L4"
	EntityApproved   EntityStatus = "APPROVED"
	EntityRejected   EntityStatus = "REJECTED"
	EntityRevision   EntityStatus = "REVISION"
)

// PartialStatusFor returns the partially-approved marker for the highest
// cleared level. An L5 approval always completes the chain, so no marker
// exists beyond L4.
func PartialStatusFor(level Level) EntityStatus {
	switch level {
	case LevelSupervisor:
		return EntityApprovedL1
	case LevelManager:
		return EntityApprovedL2
	case LevelDirector:
		return EntityApprovedL3
	default:
		return EntityApprovedL4
	}
}

// IsEditable reports whether the requester may still mutate the entity.
func (s EntityStatus) IsEditable() bool {
	return s == EntityDraft || s == EntityRevision
}

// BailoutStatus is the state of a cash-advance request. It only moves
// forward, except REJECTED which is terminal.
type BailoutStatus string

const (
	BailoutDraft            BailoutStatus = "DRAFT"
	BailoutSubmitted        BailoutStatus = "SUBMITTED"
	BailoutApprovedChief    BailoutStatus = "APPROVED_CHIEF"
	BailoutApprovedDirector BailoutStatus = "APPROVED_DIRECTOR"
	BailoutRejected         BailoutStatus = "REJECTED"
	BailoutDisbursed        BailoutStatus = "DISBURSED"
)

// ── Entity kinds ──────────────────────────────────────────────────────────────

// EntityKind discriminates the approvable entity variants.
type EntityKind string

const (
	KindTravelRequest EntityKind = "travel_request"
	KindClaim         EntityKind = "claim"
	KindBailout       EntityKind = "bailout"
)

// IsApprovable reports whether the kind carries a generic approval chain.
// Bailouts run their own role-resolved chain.
func (k EntityKind) IsApprovable() bool {
	return k == KindTravelRequest || k == KindClaim
}

// ── Organization ──────────────────────────────────────────────────────────────

// Role is an organizational role used for dynamic approver resolution.
type Role string

const (
	RoleEmployee       Role = "EMPLOYEE"
	RoleSupervisor     Role = "SUPERVISOR"
	RoleManager        Role = "MANAGER"
	RoleChief          Role = "CHIEF"
	RoleDirector       Role = "DIRECTOR"
	RoleSeniorDirector Role = "SENIOR_DIRECTOR"
	RoleExecutive      Role = "EXECUTIVE"
	RoleFinance        Role = "FINANCE"
	RoleAdmin          Role = "ADMIN"
)

// User is an approver/requester account. Phone is the on-record number used
// by the phone-proof verification path.
type User struct {
	ID           string
	Name         string
	Email        string
	Phone        *string
	Role         Role
	SupervisorID *string
	DepartmentID *string
	CreatedAt    time.Time
}

// Department anchors the L2/L3 rungs of the approval chain.
type Department struct {
	ID         string
	Name       string
	ManagerID  *string
	DirectorID *string
	CreatedAt  time.Time
}

// ── Approvable entities ───────────────────────────────────────────────────────

// Approvable is implemented by every entity governed by the generic approval
// chain, so the state machine is written once against this interface.
type Approvable interface {
	EntityKind() EntityKind
	EntityID() string
	Requester() string
	CurrentStatus() EntityStatus
	Amount() int64
}

// TravelRequest is a business-trip request.
type TravelRequest struct {
	ID              string
	RequesterID     string
	Destination     string
	Purpose         string
	StartDate       string
	EndDate         string
	EstimatedAmount int64
	Status          EntityStatus
	SubmittedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (t *TravelRequest) EntityKind() EntityKind      { return KindTravelRequest }
func (t *TravelRequest) EntityID() string            { return t.ID }
func (t *TravelRequest) Requester() string           { return t.RequesterID }
func (t *TravelRequest) CurrentStatus() EntityStatus { return t.Status }
func (t *TravelRequest) Amount() int64               { return t.EstimatedAmount }

// Claim is an expense claim, optionally tied to a travel request.
type Claim struct {
	ID              string
	RequesterID     string
	TravelRequestID *string
	Description     string
	Category        string
	TotalAmount     int64
	ReceiptURL      *string
	Status          EntityStatus
	SubmittedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (c *Claim) EntityKind() EntityKind      { return KindClaim }
func (c *Claim) EntityID() string            { return c.ID }
func (c *Claim) Requester() string           { return c.RequesterID }
func (c *Claim) CurrentStatus() EntityStatus { return c.Status }
func (c *Claim) Amount() int64               { return c.TotalAmount }

// ── Approval records ──────────────────────────────────────────────────────────

// Approval is one authorization step in an entity's chain. The approver is
// fixed when the chain is built; the business key (Number) is immutable and
// unique across all approvals.
type Approval struct {
	ID              string
	Number          string
	EntityKind      EntityKind
	EntityID        string
	Level           Level
	ApproverID      string
	Status          ApprovalStatus
	Comments        *string
	RejectionReason *string
	ApprovedAt      *time.Time
	RejectedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FormatApprovalNumber renders the business key for a yearly sequence value.
func FormatApprovalNumber(year int, seq int64) string {
	return fmt.Sprintf("APR-%d-%05d", year, seq)
}

// ── Bailout ───────────────────────────────────────────────────────────────────

// Bailout is a pre-trip cash-advance request with a role-resolved chain:
// any qualifying role holder may act, and the actor is recorded per stage.
type Bailout struct {
	ID                 string
	RequesterID        string
	TravelRequestID    *string
	Amount             int64
	Reason             string
	Status             BailoutStatus
	SubmittedAt        *time.Time
	ChiefApprovedBy    *string
	ChiefApprovedAt    *time.Time
	DirectorApprovedBy *string
	DirectorApprovedAt *time.Time
	DisbursedBy        *string
	DisbursedAt        *time.Time
	RejectedBy         *string
	RejectedAt         *time.Time
	RejectionReason    *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ── Audit ─────────────────────────────────────────────────────────────────────

// AuditEntry is one immutable record of a workflow transition.
type AuditEntry struct {
	ID           string
	EntityKind   EntityKind
	EntityID     string
	ApprovalID   *string
	Action       string
	PerformedBy  string
	PerformedAt  time.Time
	StatusBefore *string
	StatusAfter  *string
	Metadata     map[string]interface{}
}

// ── Queries ───────────────────────────────────────────────────────────────────

// ApprovalFilter narrows approval listings.
type ApprovalFilter struct {
	ApproverID string
	Status     ApprovalStatus
	EntityKind EntityKind
}

// Page is a limit/offset pagination request.
type Page struct {
	Page int
	Size int
}

// Normalize clamps page parameters to sane defaults.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Size < 1 || p.Size > 100 {
		p.Size = 50
	}
	return p
}

// Offset returns the row offset for the normalized page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Size
}

// ── Store contract ────────────────────────────────────────────────────────────

// UserLookup resolves user accounts. Both Store and Tx satisfy it, so caller
// verification can run inside or outside a transaction.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*User, error)
}

// Store is the engine's unit of work. The Postgres implementation backs
// production; an in-memory implementation with identical conditional-update
// semantics backs tests.
type Store interface {
	// InTx runs fn inside one transaction. Every mutating workflow operation
	// (chain build, approve, reject, revision, reset, bailout transition)
	// spans its approval updates, parent recompute and audit insert in a
	// single call so partial application is never observable.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetApproval(ctx context.Context, id string) (*Approval, error)
	GetApprovalByNumber(ctx context.Context, number string) (*Approval, error)
	ListApprovals(ctx context.Context, f ApprovalFilter, p Page) ([]*Approval, int64, error)

	GetApprovable(ctx context.Context, kind EntityKind, id string) (Approvable, error)
	CreateTravelRequest(ctx context.Context, tr *TravelRequest) error
	GetTravelRequest(ctx context.Context, id string) (*TravelRequest, error)
	CreateClaim(ctx context.Context, c *Claim) error
	GetClaim(ctx context.Context, id string) (*Claim, error)
	CreateBailout(ctx context.Context, b *Bailout) error
	GetBailout(ctx context.Context, id string) (*Bailout, error)

	GetUser(ctx context.Context, id string) (*User, error)
	GetDepartment(ctx context.Context, id string) (*Department, error)
	// EarliestUserWithRole returns the earliest-created user holding any of
	// the given roles, or nil when none exists. Deterministic fallback for
	// director resolution and role-based escalation levels.
	EarliestUserWithRole(ctx context.Context, roles ...Role) (*User, error)

	ListAudit(ctx context.Context, kind EntityKind, entityID string) ([]*AuditEntry, error)
}

// Tx exposes the mutating operations available inside a transaction. Reads
// suffixed ForUpdate take row locks so sibling state cannot change between
// the gate check and the write.
type Tx interface {
	GetApprovalForUpdate(ctx context.Context, id string) (*Approval, error)
	GetApprovalByNumberForUpdate(ctx context.Context, number string) (*Approval, error)
	// GetChainForUpdate locks and returns the full sibling chain ordered by
	// ascending level.
	GetChainForUpdate(ctx context.Context, kind EntityKind, entityID string) ([]*Approval, error)
	CreateApprovals(ctx context.Context, approvals []*Approval) error
	// UpdateApprovalStatus performs the conditional write "set status iff the
	// current status equals from". A false return means another actor won the
	// race; no row is modified.
	UpdateApprovalStatus(ctx context.Context, id string, from, to ApprovalStatus, comments, reason *string, at time.Time) (bool, error)
	// ResetChain returns every sibling approval to PENDING with action
	// timestamps cleared, regardless of current status.
	ResetChain(ctx context.Context, kind EntityKind, entityID string) error
	// NextApprovalNumber increments and returns the yearly business-key
	// sequence.
	NextApprovalNumber(ctx context.Context, year int) (int64, error)

	GetApprovableForUpdate(ctx context.Context, kind EntityKind, id string) (Approvable, error)
	UpdateEntityStatus(ctx context.Context, kind EntityKind, id string, to EntityStatus, submittedAt *time.Time) error

	GetUser(ctx context.Context, id string) (*User, error)

	GetBailoutForUpdate(ctx context.Context, id string) (*Bailout, error)
	// UpdateBailoutStatus conditionally advances a bailout. A false return
	// means the bailout was not in the expected from status.
	UpdateBailoutStatus(ctx context.Context, id string, from, to BailoutStatus, actorID string, reason *string, at time.Time) (bool, error)

	AppendAudit(ctx context.Context, entry *AuditEntry) error
}
