package service

import (
	"context"
	"strings"
	"time"

	"github.com/andalan-hq/be-travel-approvals/internal/platform/database"
	"github.com/andalan-hq/be-travel-approvals/internal/platform/errors"
	"github.com/andalan-hq/be-travel-approvals/internal/platform/logger"
	"github.com/andalan-hq/be-travel-approvals/internal/repository"
)

// Notifier publishes workflow events after a transition commits. Publishing
// is fire-and-forget; failures never interrupt approval operations.
type Notifier interface {
	PublishWorkflowEvent(ctx context.Context, eventType string, kind repository.EntityKind, entityID, actorID string, recipients []string, payload map[string]interface{})
}

// Action is one of the three approval-record transitions.
type Action string

const (
	ActionApprove         Action = "approve"
	ActionReject          Action = "reject"
	ActionRequestRevision Action = "request_revision"
)

// ApprovalRef identifies an approval by internal ID or by business key.
type ApprovalRef struct {
	ID     string
	Number string
}

const minReasonLength = 10

// ApprovalService is the multi-level approval workflow engine for travel
// requests and expense claims. Every mutating operation runs inside one
// store transaction spanning the approval update, the parent status
// recompute and the audit insert.
type ApprovalService struct {
	store    repository.Store
	builder  *ChainBuilder
	verifier *Verifier
	notifier Notifier
	log      *logger.Logger
}

// NewApprovalService creates the workflow engine.
func NewApprovalService(
	store repository.Store,
	builder *ChainBuilder,
	verifier *Verifier,
	notifier Notifier,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		store:    store,
		builder:  builder,
		verifier: verifier,
		notifier: notifier,
		log:      log,
	}
}

// ── Submission ────────────────────────────────────────────────────────────────

// Submit builds the approval chain for a draft (or revised) entity and flips
// it to SUBMITTED, atomically. Resubmission after a revision reuses the
// already-reset chain instead of generating new records, so business keys
// stay stable across revision cycles.
func (s *ApprovalService) Submit(ctx context.Context, kind repository.EntityKind, entityID, requesterID string) (repository.Approvable, error) {
	if !kind.IsApprovable() {
		return nil, errors.Newf(errors.ErrCodeBadRequest, "entity kind %q has no approval chain", kind)
	}

	entity, err := s.store.GetApprovable(ctx, kind, entityID)
	if err != nil {
		return nil, err
	}
	if entity.Requester() != requesterID {
		return nil, errors.Forbidden("only the requester can submit this entity")
	}

	// Resolve approvers before opening the transaction; org data is
	// slow-moving and the chain insert itself stays atomic with the status
	// flip below.
	built, err := s.builder.Build(ctx, entity)
	if err != nil {
		return nil, err
	}

	var firstApprover string
	err = s.inTxRetry(ctx, func(tx repository.Tx) error {
		locked, err := tx.GetApprovableForUpdate(ctx, kind, entityID)
		if err != nil {
			return err
		}
		before := locked.CurrentStatus()
		if !before.IsEditable() {
			return errors.Newf(errors.ErrCodeBadRequest, "cannot submit from status %s", before)
		}

		chain, err := tx.GetChainForUpdate(ctx, kind, entityID)
		if err != nil {
			return err
		}

		action := "submitted"
		if len(chain) == 0 {
			year := time.Now().Year()
			for _, a := range built {
				seq, err := tx.NextApprovalNumber(ctx, year)
				if err != nil {
					return err
				}
				a.Number = repository.FormatApprovalNumber(year, seq)
			}
			if err := tx.CreateApprovals(ctx, built); err != nil {
				return err
			}
			chain = built
		} else {
			// Revision resubmission: the reset protocol already returned
			// every record to PENDING.
			action = "resubmitted"
		}

		if len(chain) > 0 {
			firstApprover = chain[0].ApproverID
		}

		now := time.Now()
		if err := tx.UpdateEntityStatus(ctx, kind, entityID, repository.EntitySubmitted, &now); err != nil {
			return err
		}

		statusBefore := string(before)
		statusAfter := string(repository.EntitySubmitted)
		return tx.AppendAudit(ctx, &repository.AuditEntry{
			EntityKind:   kind,
			EntityID:     entityID,
			Action:       action,
			PerformedBy:  requesterID,
			StatusBefore: &statusBefore,
			StatusAfter:  &statusAfter,
			Metadata:     map[string]interface{}{"chain_length": len(chain)},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("entity_kind", string(kind)).
		Str("entity_id", entityID).
		Int("chain_length", len(built)).
		Msg("Entity submitted for approval")

	if firstApprover != "" {
		s.publish(ctx, "approval_required", kind, entityID, requesterID, []string{firstApprover}, nil)
	}

	return s.store.GetApprovable(ctx, kind, entityID)
}

// ── Approval actions ──────────────────────────────────────────────────────────

// Approve marks one approval record APPROVED and recomputes the parent
// status. Approving out of level order is a BadRequest; losing the race to a
// concurrent actor on the same record is a BadRequest, never an overwrite.
func (s *ApprovalService) Approve(ctx context.Context, ref ApprovalRef, proof CallerProof, comments string) (*repository.Approval, error) {
	return s.act(ctx, ref, proof, ActionApprove, comments)
}

// Reject marks one approval record REJECTED and the parent entity REJECTED,
// terminally. Any pending approver may reject at any time; a reason of at
// least ten characters is required.
func (s *ApprovalService) Reject(ctx context.Context, ref ApprovalRef, proof CallerProof, reason string) (*repository.Approval, error) {
	return s.act(ctx, ref, proof, ActionReject, reason)
}

// RequestRevision sends the parent entity back to the requester and resets
// the entire chain, including approvals already granted. A comment of at
// least ten characters is required.
func (s *ApprovalService) RequestRevision(ctx context.Context, ref ApprovalRef, proof CallerProof, comments string) (*repository.Approval, error) {
	return s.act(ctx, ref, proof, ActionRequestRevision, comments)
}

func (s *ApprovalService) act(ctx context.Context, ref ApprovalRef, proof CallerProof, action Action, comment string) (*repository.Approval, error) {
	comment = strings.TrimSpace(comment)
	switch action {
	case ActionReject:
		if len(comment) < minReasonLength {
			return nil, errors.InvalidInput("reason", "a rejection reason of at least 10 characters is required")
		}
	case ActionRequestRevision:
		if len(comment) < minReasonLength {
			return nil, errors.InvalidInput("comments", "a revision comment of at least 10 characters is required")
		}
	}

	var (
		actedID   string
		event     string
		requester string
		nextUp    string
	)

	err := s.inTxRetry(ctx, func(tx repository.Tx) error {
		approval, err := s.resolveForUpdate(ctx, tx, ref)
		if err != nil {
			return err
		}
		actedID = approval.ID

		if err := s.verifier.VerifyApprover(ctx, tx, proof, approval); err != nil {
			return err
		}
		if approval.Status != repository.ApprovalPending {
			return errors.Newf(errors.ErrCodeBadRequest, "approval %s already processed (status %s)", approval.Number, approval.Status)
		}

		entity, err := tx.GetApprovableForUpdate(ctx, approval.EntityKind, approval.EntityID)
		if err != nil {
			return err
		}
		requester = entity.Requester()
		if entity.CurrentStatus() == repository.EntityRejected || entity.CurrentStatus() == repository.EntityApproved {
			return errors.Newf(errors.ErrCodeBadRequest, "%s is already resolved (status %s)", entity.EntityKind(), entity.CurrentStatus())
		}
		// While the entity is back with the requester (DRAFT/REVISION) the
		// reset chain is dormant; approvers act again only after resubmission.
		if entity.CurrentStatus().IsEditable() {
			return errors.Newf(errors.ErrCodeBadRequest, "%s is awaiting resubmission (status %s)", entity.EntityKind(), entity.CurrentStatus())
		}

		chain, err := tx.GetChainForUpdate(ctx, approval.EntityKind, approval.EntityID)
		if err != nil {
			return err
		}

		now := time.Now()
		before := string(entity.CurrentStatus())

		switch action {
		case ActionApprove:
			// Level gate: every lower level must already be approved.
			for _, sibling := range chain {
				if sibling.Level < approval.Level && sibling.Status != repository.ApprovalApproved {
					return errors.Newf(errors.ErrCodeBadRequest,
						"level %s must be approved before %s", sibling.Level, approval.Level)
				}
			}

			var comments *string
			if comment != "" {
				comments = &comment
			}
			ok, err := tx.UpdateApprovalStatus(ctx, approval.ID, repository.ApprovalPending, repository.ApprovalApproved, comments, nil, now)
			if err != nil {
				return err
			}
			if !ok {
				return errors.Newf(errors.ErrCodeBadRequest, "approval %s already processed", approval.Number)
			}

			// Parent recompute: fully approved when this was the last
			// pending record, otherwise the level marker for the highest
			// cleared rung.
			parentStatus := repository.EntityApproved
			event = "request_approved"
			for _, sibling := range chain {
				if sibling.ID != approval.ID && sibling.Status == repository.ApprovalPending {
					parentStatus = repository.PartialStatusFor(approval.Level)
					event = "approval_required"
					nextUp = sibling.ApproverID
					break
				}
			}
			if err := tx.UpdateEntityStatus(ctx, approval.EntityKind, approval.EntityID, parentStatus, nil); err != nil {
				return err
			}

			after := string(parentStatus)
			return tx.AppendAudit(ctx, &repository.AuditEntry{
				EntityKind:   approval.EntityKind,
				EntityID:     approval.EntityID,
				ApprovalID:   &approval.ID,
				Action:       "approved",
				PerformedBy:  approval.ApproverID,
				StatusBefore: &before,
				StatusAfter:  &after,
				Metadata: map[string]interface{}{
					"level":  approval.Level.String(),
					"number": approval.Number,
				},
			})

		case ActionReject:
			ok, err := tx.UpdateApprovalStatus(ctx, approval.ID, repository.ApprovalPending, repository.ApprovalRejected, nil, &comment, now)
			if err != nil {
				return err
			}
			if !ok {
				return errors.Newf(errors.ErrCodeBadRequest, "approval %s already processed", approval.Number)
			}

			// Terminal for the parent. Remaining siblings are left as-is;
			// they are moot once the parent is REJECTED.
			if err := tx.UpdateEntityStatus(ctx, approval.EntityKind, approval.EntityID, repository.EntityRejected, nil); err != nil {
				return err
			}

			event = "request_rejected"
			after := string(repository.EntityRejected)
			return tx.AppendAudit(ctx, &repository.AuditEntry{
				EntityKind:   approval.EntityKind,
				EntityID:     approval.EntityID,
				ApprovalID:   &approval.ID,
				Action:       "rejected",
				PerformedBy:  approval.ApproverID,
				StatusBefore: &before,
				StatusAfter:  &after,
				Metadata: map[string]interface{}{
					"level":  approval.Level.String(),
					"number": approval.Number,
					"reason": comment,
				},
			})

		case ActionRequestRevision:
			commentsPtr := &comment
			ok, err := tx.UpdateApprovalStatus(ctx, approval.ID, repository.ApprovalPending, repository.ApprovalRevisionRequested, commentsPtr, nil, now)
			if err != nil {
				return err
			}
			if !ok {
				return errors.Newf(errors.ErrCodeBadRequest, "approval %s already processed", approval.Number)
			}

			// Full restart: downstream sign-off was conditioned on data the
			// requester is about to change, so every record goes back to
			// PENDING, approved ones included.
			if err := tx.ResetChain(ctx, approval.EntityKind, approval.EntityID); err != nil {
				return err
			}
			if err := tx.UpdateEntityStatus(ctx, approval.EntityKind, approval.EntityID, repository.EntityRevision, nil); err != nil {
				return err
			}

			event = "revision_requested"
			after := string(repository.EntityRevision)
			return tx.AppendAudit(ctx, &repository.AuditEntry{
				EntityKind:   approval.EntityKind,
				EntityID:     approval.EntityID,
				ApprovalID:   &approval.ID,
				Action:       "revision_requested",
				PerformedBy:  approval.ApproverID,
				StatusBefore: &before,
				StatusAfter:  &after,
				Metadata: map[string]interface{}{
					"level":    approval.Level.String(),
					"number":   approval.Number,
					"comments": comment,
				},
			})

		default:
			return errors.Newf(errors.ErrCodeBadRequest, "unknown action %q", action)
		}
	})
	if err != nil {
		return nil, err
	}

	acted, err := s.store.GetApproval(ctx, actedID)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("approval", acted.Number).
		Str("action", string(action)).
		Str("entity_kind", string(acted.EntityKind)).
		Str("entity_id", acted.EntityID).
		Msg("Approval action processed")

	recipients := []string{requester}
	if event == "approval_required" && nextUp != "" {
		recipients = []string{nextUp}
	}
	s.publish(ctx, event, acted.EntityKind, acted.EntityID, acted.ApproverID, recipients, map[string]interface{}{
		"approval_number": acted.Number,
		"level":           acted.Level.String(),
	})

	return acted, nil
}

// resolveForUpdate locks an approval by ID or business key.
func (s *ApprovalService) resolveForUpdate(ctx context.Context, tx repository.Tx, ref ApprovalRef) (*repository.Approval, error) {
	switch {
	case ref.ID != "":
		return tx.GetApprovalForUpdate(ctx, ref.ID)
	case ref.Number != "":
		return tx.GetApprovalByNumberForUpdate(ctx, ref.Number)
	default:
		return nil, errors.BadRequest("an approval id or number is required")
	}
}

// ── Queries ───────────────────────────────────────────────────────────────────

// ListForApprover returns a page of approvals awaiting (or acted on by) one
// approver.
func (s *ApprovalService) ListForApprover(ctx context.Context, approverID string, status repository.ApprovalStatus, kind repository.EntityKind, page repository.Page) ([]*repository.Approval, int64, error) {
	if approverID == "" {
		return nil, 0, errors.InvalidInput("approver_id", "approver id is required")
	}
	return s.store.ListApprovals(ctx, repository.ApprovalFilter{
		ApproverID: approverID,
		Status:     status,
		EntityKind: kind,
	}, page)
}

// AuditTrail returns the immutable transition history for one entity.
func (s *ApprovalService) AuditTrail(ctx context.Context, kind repository.EntityKind, entityID string) ([]*repository.AuditEntry, error) {
	return s.store.ListAudit(ctx, kind, entityID)
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// inTxRetry runs fn in a transaction, retrying once transparently on a
// transient store conflict before surfacing Conflict to the caller.
func (s *ApprovalService) inTxRetry(ctx context.Context, fn func(tx repository.Tx) error) error {
	err := s.store.InTx(ctx, fn)
	if err == nil || !database.IsRetryable(err) {
		return err
	}

	s.log.Warn().Err(err).Msg("Retrying transaction after store conflict")
	err = s.store.InTx(ctx, fn)
	if err != nil && database.IsRetryable(err) {
		return errors.Conflict("storage conflict while processing approval action")
	}
	return err
}

func (s *ApprovalService) publish(ctx context.Context, event string, kind repository.EntityKind, entityID, actorID string, recipients []string, payload map[string]interface{}) {
	if s.notifier == nil || event == "" {
		return
	}
	s.notifier.PublishWorkflowEvent(ctx, event, kind, entityID, actorID, recipients, payload)
}
