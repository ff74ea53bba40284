package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andalan-hq/be-travel-approvals/internal/platform/errors"
)

// MemStore is an in-memory Store used by tests and local development. It
// mirrors the Postgres store's conditional-update semantics and serializes
// transactions behind one mutex, which gives it the same observable behavior
// as a serializable database transaction.
type MemStore struct {
	mu sync.Mutex

	approvals map[string]*Approval
	byNumber  map[string]string

	travelRequests map[string]*TravelRequest
	claims         map[string]*Claim
	bailouts       map[string]*Bailout

	users       map[string]*User
	departments map[string]*Department

	audit []*AuditEntry
	seqs  map[int]int64
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		approvals:      make(map[string]*Approval),
		byNumber:       make(map[string]string),
		travelRequests: make(map[string]*TravelRequest),
		claims:         make(map[string]*Claim),
		bailouts:       make(map[string]*Bailout),
		users:          make(map[string]*User),
		departments:    make(map[string]*Department),
		seqs:           make(map[int]int64),
	}
}

var _ Store = (*MemStore)(nil)

// ── seeding helpers ───────────────────────────────────────────────────────────

// PutUser inserts or replaces a user.
func (s *MemStore) PutUser(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	s.users[u.ID] = u
}

// PutDepartment inserts or replaces a department.
func (s *MemStore) PutDepartment(d *Department) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	s.departments[d.ID] = d
}

// ── transactions ──────────────────────────────────────────────────────────────

// InTx serializes fn behind the store mutex. On error the pre-transaction
// state is restored, matching a database rollback.
func (s *MemStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.clone()
	if err := fn(&memTx{store: s}); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

type memSnapshot struct {
	approvals      map[string]*Approval
	byNumber       map[string]string
	travelRequests map[string]*TravelRequest
	claims         map[string]*Claim
	bailouts       map[string]*Bailout
	audit          []*AuditEntry
	seqs           map[int]int64
}

func (s *MemStore) clone() *memSnapshot {
	snap := &memSnapshot{
		approvals:      make(map[string]*Approval, len(s.approvals)),
		byNumber:       make(map[string]string, len(s.byNumber)),
		travelRequests: make(map[string]*TravelRequest, len(s.travelRequests)),
		claims:         make(map[string]*Claim, len(s.claims)),
		bailouts:       make(map[string]*Bailout, len(s.bailouts)),
		audit:          append([]*AuditEntry(nil), s.audit...),
		seqs:           make(map[int]int64, len(s.seqs)),
	}
	for id, a := range s.approvals {
		cp := *a
		snap.approvals[id] = &cp
	}
	for n, id := range s.byNumber {
		snap.byNumber[n] = id
	}
	for id, tr := range s.travelRequests {
		cp := *tr
		snap.travelRequests[id] = &cp
	}
	for id, c := range s.claims {
		cp := *c
		snap.claims[id] = &cp
	}
	for id, b := range s.bailouts {
		cp := *b
		snap.bailouts[id] = &cp
	}
	for y, v := range s.seqs {
		snap.seqs[y] = v
	}
	return snap
}

func (s *MemStore) restore(snap *memSnapshot) {
	s.approvals = snap.approvals
	s.byNumber = snap.byNumber
	s.travelRequests = snap.travelRequests
	s.claims = snap.claims
	s.bailouts = snap.bailouts
	s.audit = snap.audit
	s.seqs = snap.seqs
}

// ── Store reads ───────────────────────────────────────────────────────────────

func (s *MemStore) GetApproval(ctx context.Context, id string) (*Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getApproval(id)
}

func (s *MemStore) getApproval(id string) (*Approval, error) {
	a, ok := s.approvals[id]
	if !ok {
		return nil, errors.NotFound("approval", id)
	}
	cp := *a
	return &cp, nil
}

func (s *MemStore) GetApprovalByNumber(ctx context.Context, number string) (*Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getApprovalByNumber(number)
}

func (s *MemStore) getApprovalByNumber(number string) (*Approval, error) {
	id, ok := s.byNumber[number]
	if !ok {
		return nil, errors.NotFound("approval", number)
	}
	return s.getApproval(id)
}

func (s *MemStore) ListApprovals(ctx context.Context, f ApprovalFilter, p Page) ([]*Approval, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*Approval
	for _, a := range s.approvals {
		if f.ApproverID != "" && a.ApproverID != f.ApproverID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.EntityKind != "" && a.EntityKind != f.EntityKind {
			continue
		}
		cp := *a
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Level < matched[j].Level
	})

	total := int64(len(matched))
	p = p.Normalize()
	start := p.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + p.Size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (s *MemStore) GetApprovable(ctx context.Context, kind EntityKind, id string) (Approvable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getApprovable(kind, id)
}

func (s *MemStore) getApprovable(kind EntityKind, id string) (Approvable, error) {
	switch kind {
	case KindTravelRequest:
		tr, ok := s.travelRequests[id]
		if !ok {
			return nil, errors.NotFound("travel_request", id)
		}
		cp := *tr
		return &cp, nil
	case KindClaim:
		c, ok := s.claims[id]
		if !ok {
			return nil, errors.NotFound("claim", id)
		}
		cp := *c
		return &cp, nil
	default:
		return nil, errors.Newf(errors.ErrCodeBadRequest, "entity kind %q has no approval chain", kind)
	}
}

func (s *MemStore) CreateTravelRequest(ctx context.Context, tr *TravelRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr.ID = uuid.NewString()
	tr.CreatedAt = time.Now()
	tr.UpdatedAt = tr.CreatedAt
	cp := *tr
	s.travelRequests[tr.ID] = &cp
	return nil
}

func (s *MemStore) GetTravelRequest(ctx context.Context, id string) (*TravelRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.travelRequests[id]
	if !ok {
		return nil, errors.NotFound("travel_request", id)
	}
	cp := *tr
	return &cp, nil
}

func (s *MemStore) CreateClaim(ctx context.Context, c *Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	s.claims[c.ID] = &cp
	return nil
}

func (s *MemStore) GetClaim(ctx context.Context, id string) (*Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok {
		return nil, errors.NotFound("claim", id)
	}
	cp := *c
	return &cp, nil
}

func (s *MemStore) CreateBailout(ctx context.Context, b *Bailout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = uuid.NewString()
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	s.bailouts[b.ID] = &cp
	return nil
}

func (s *MemStore) GetBailout(ctx context.Context, id string) (*Bailout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bailouts[id]
	if !ok {
		return nil, errors.NotFound("bailout", id)
	}
	cp := *b
	return &cp, nil
}

func (s *MemStore) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errors.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (s *MemStore) GetDepartment(ctx context.Context, id string) (*Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.departments[id]
	if !ok {
		return nil, errors.NotFound("department", id)
	}
	cp := *d
	return &cp, nil
}

func (s *MemStore) EarliestUserWithRole(ctx context.Context, roles ...Role) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[Role]bool, len(roles))
	for _, r := range roles {
		wanted[r] = true
	}

	var earliest *User
	for _, u := range s.users {
		if !wanted[u.Role] {
			continue
		}
		if earliest == nil ||
			u.CreatedAt.Before(earliest.CreatedAt) ||
			(u.CreatedAt.Equal(earliest.CreatedAt) && strings.Compare(u.ID, earliest.ID) < 0) {
			earliest = u
		}
	}
	if earliest == nil {
		return nil, nil
	}
	cp := *earliest
	return &cp, nil
}

func (s *MemStore) ListAudit(ctx context.Context, kind EntityKind, entityID string) ([]*AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []*AuditEntry
	for _, e := range s.audit {
		if e.EntityKind == kind && e.EntityID == entityID {
			cp := *e
			entries = append(entries, &cp)
		}
	}
	return entries, nil
}

// ── transaction view ──────────────────────────────────────────────────────────

// memTx operates on the store maps directly; the InTx mutex guarantees
// exclusivity and the snapshot guarantees rollback.
type memTx struct {
	store *MemStore
}

var _ Tx = (*memTx)(nil)

func (t *memTx) GetApprovalForUpdate(ctx context.Context, id string) (*Approval, error) {
	return t.store.getApproval(id)
}

func (t *memTx) GetApprovalByNumberForUpdate(ctx context.Context, number string) (*Approval, error) {
	return t.store.getApprovalByNumber(number)
}

func (t *memTx) GetChainForUpdate(ctx context.Context, kind EntityKind, entityID string) ([]*Approval, error) {
	var chain []*Approval
	for _, a := range t.store.approvals {
		if a.EntityKind == kind && a.EntityID == entityID {
			cp := *a
			chain = append(chain, &cp)
		}
	}
	sort.Slice(chain, func(i, j int) bool { return chain[i].Level < chain[j].Level })
	return chain, nil
}

func (t *memTx) CreateApprovals(ctx context.Context, approvals []*Approval) error {
	for _, a := range approvals {
		if _, exists := t.store.byNumber[a.Number]; exists {
			return errors.Conflict("approval number already exists: " + a.Number)
		}
		a.ID = uuid.NewString()
		a.CreatedAt = time.Now()
		a.UpdatedAt = a.CreatedAt
		cp := *a
		t.store.approvals[a.ID] = &cp
		t.store.byNumber[a.Number] = a.ID
	}
	return nil
}

func (t *memTx) UpdateApprovalStatus(ctx context.Context, id string, from, to ApprovalStatus, comments, reason *string, at time.Time) (bool, error) {
	a, ok := t.store.approvals[id]
	if !ok {
		return false, errors.NotFound("approval", id)
	}
	if a.Status != from {
		return false, nil
	}

	a.Status = to
	if comments != nil {
		a.Comments = comments
	}
	if reason != nil {
		a.RejectionReason = reason
	}
	switch to {
	case ApprovalApproved:
		stamped := at
		a.ApprovedAt = &stamped
	case ApprovalRejected:
		stamped := at
		a.RejectedAt = &stamped
	}
	a.UpdatedAt = time.Now()
	return true, nil
}

func (t *memTx) ResetChain(ctx context.Context, kind EntityKind, entityID string) error {
	for _, a := range t.store.approvals {
		if a.EntityKind == kind && a.EntityID == entityID {
			a.Status = ApprovalPending
			a.ApprovedAt = nil
			a.RejectedAt = nil
			a.RejectionReason = nil
			a.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (t *memTx) NextApprovalNumber(ctx context.Context, year int) (int64, error) {
	t.store.seqs[year]++
	return t.store.seqs[year], nil
}

func (t *memTx) GetApprovableForUpdate(ctx context.Context, kind EntityKind, id string) (Approvable, error) {
	return t.store.getApprovable(kind, id)
}

func (t *memTx) UpdateEntityStatus(ctx context.Context, kind EntityKind, id string, to EntityStatus, submittedAt *time.Time) error {
	switch kind {
	case KindTravelRequest:
		tr, ok := t.store.travelRequests[id]
		if !ok {
			return errors.NotFound("travel_request", id)
		}
		tr.Status = to
		if submittedAt != nil {
			tr.SubmittedAt = submittedAt
		}
		tr.UpdatedAt = time.Now()
	case KindClaim:
		c, ok := t.store.claims[id]
		if !ok {
			return errors.NotFound("claim", id)
		}
		c.Status = to
		if submittedAt != nil {
			c.SubmittedAt = submittedAt
		}
		c.UpdatedAt = time.Now()
	default:
		return errors.Newf(errors.ErrCodeBadRequest, "entity kind %q has no approval chain", kind)
	}
	return nil
}

func (t *memTx) GetUser(ctx context.Context, id string) (*User, error) {
	u, ok := t.store.users[id]
	if !ok {
		return nil, errors.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (t *memTx) GetBailoutForUpdate(ctx context.Context, id string) (*Bailout, error) {
	b, ok := t.store.bailouts[id]
	if !ok {
		return nil, errors.NotFound("bailout", id)
	}
	cp := *b
	return &cp, nil
}

func (t *memTx) UpdateBailoutStatus(ctx context.Context, id string, from, to BailoutStatus, actorID string, reason *string, at time.Time) (bool, error) {
	b, ok := t.store.bailouts[id]
	if !ok {
		return false, errors.NotFound("bailout", id)
	}
	if b.Status != from {
		return false, nil
	}

	b.Status = to
	stamped := at
	switch to {
	case BailoutSubmitted:
		b.SubmittedAt = &stamped
	case BailoutApprovedChief:
		b.ChiefApprovedBy = &actorID
		b.ChiefApprovedAt = &stamped
	case BailoutApprovedDirector:
		b.DirectorApprovedBy = &actorID
		b.DirectorApprovedAt = &stamped
	case BailoutDisbursed:
		b.DisbursedBy = &actorID
		b.DisbursedAt = &stamped
	case BailoutRejected:
		b.RejectedBy = &actorID
		b.RejectedAt = &stamped
		b.RejectionReason = reason
	}
	b.UpdatedAt = time.Now()
	return true, nil
}

func (t *memTx) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	entry.ID = uuid.NewString()
	entry.PerformedAt = time.Now()
	cp := *entry
	t.store.audit = append(t.store.audit, &cp)
	return nil
}
