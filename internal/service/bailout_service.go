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

// Role sets gating each bailout stage. Unlike the generic approval chain,
// any holder of a qualifying role may act; the specific actor is recorded
// for audit but is not itself a gating identity.
var (
	chiefRoles    = map[repository.Role]bool{repository.RoleChief: true, repository.RoleAdmin: true}
	directorRoles = map[repository.Role]bool{repository.RoleDirector: true, repository.RoleSeniorDirector: true, repository.RoleAdmin: true}
	financeRoles  = map[repository.Role]bool{repository.RoleFinance: true, repository.RoleAdmin: true}
)

const minBailoutReasonLength = 5

// BailoutService runs the cash-advance disbursement chain:
// DRAFT → SUBMITTED → APPROVED_CHIEF → APPROVED_DIRECTOR → DISBURSED, with
// REJECTED reachable from SUBMITTED or APPROVED_CHIEF only.
type BailoutService struct {
	store    repository.Store
	notifier Notifier
	log      *logger.Logger
}

// NewBailoutService creates the bailout chain service.
func NewBailoutService(store repository.Store, notifier Notifier, log *logger.Logger) *BailoutService {
	return &BailoutService{store: store, notifier: notifier, log: log}
}

// Create inserts a draft bailout for the requester.
func (s *BailoutService) Create(ctx context.Context, b *repository.Bailout) (*repository.Bailout, error) {
	if b.Amount <= 0 {
		return nil, errors.InvalidInput("amount", "amount must be positive")
	}
	if strings.TrimSpace(b.Reason) == "" {
		return nil, errors.InvalidInput("reason", "reason is required")
	}
	if _, err := s.store.GetUser(ctx, b.RequesterID); err != nil {
		return nil, err
	}

	b.Status = repository.BailoutDraft
	if err := s.store.CreateBailout(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Get retrieves a bailout.
func (s *BailoutService) Get(ctx context.Context, id string) (*repository.Bailout, error) {
	return s.store.GetBailout(ctx, id)
}

// Submit moves a draft bailout into the approval chain. Only the requester
// may submit.
func (s *BailoutService) Submit(ctx context.Context, id, actorID string) (*repository.Bailout, error) {
	return s.transition(ctx, id, actorID, "bailout_submitted", nil, func(b *repository.Bailout, actor *repository.User) (repository.BailoutStatus, repository.BailoutStatus, error) {
		if b.RequesterID != actor.ID {
			return "", "", errors.Forbidden("only the requester can submit this bailout")
		}
		if b.Status != repository.BailoutDraft {
			return "", "", errors.Newf(errors.ErrCodeBadRequest, "bailout cannot be submitted from status %s", b.Status)
		}
		return repository.BailoutDraft, repository.BailoutSubmitted, nil
	})
}

// ApproveByChief advances SUBMITTED → APPROVED_CHIEF. Requires a
// chief-equivalent role.
func (s *BailoutService) ApproveByChief(ctx context.Context, id, actorID string) (*repository.Bailout, error) {
	return s.transition(ctx, id, actorID, "bailout_approved", nil, func(b *repository.Bailout, actor *repository.User) (repository.BailoutStatus, repository.BailoutStatus, error) {
		if !chiefRoles[actor.Role] {
			return "", "", errors.Forbidden("a chief-equivalent role is required to approve at this stage")
		}
		if b.Status != repository.BailoutSubmitted {
			return "", "", errors.Newf(errors.ErrCodeBadRequest, "chief approval requires status SUBMITTED, bailout is %s", b.Status)
		}
		return repository.BailoutSubmitted, repository.BailoutApprovedChief, nil
	})
}

// ApproveByDirector advances APPROVED_CHIEF → APPROVED_DIRECTOR. Requires a
// director-equivalent role.
func (s *BailoutService) ApproveByDirector(ctx context.Context, id, actorID string) (*repository.Bailout, error) {
	return s.transition(ctx, id, actorID, "bailout_approved", nil, func(b *repository.Bailout, actor *repository.User) (repository.BailoutStatus, repository.BailoutStatus, error) {
		if !directorRoles[actor.Role] {
			return "", "", errors.Forbidden("a director-equivalent role is required to approve at this stage")
		}
		if b.Status != repository.BailoutApprovedChief {
			return "", "", errors.Newf(errors.ErrCodeBadRequest, "director approval requires status APPROVED_CHIEF, bailout is %s", b.Status)
		}
		return repository.BailoutApprovedChief, repository.BailoutApprovedDirector, nil
	})
}

// Disburse advances APPROVED_DIRECTOR → DISBURSED. Requires a
// finance-equivalent role.
func (s *BailoutService) Disburse(ctx context.Context, id, actorID string) (*repository.Bailout, error) {
	return s.transition(ctx, id, actorID, "bailout_disbursed", nil, func(b *repository.Bailout, actor *repository.User) (repository.BailoutStatus, repository.BailoutStatus, error) {
		if !financeRoles[actor.Role] {
			return "", "", errors.Forbidden("a finance-equivalent role is required to disburse")
		}
		if b.Status != repository.BailoutApprovedDirector {
			return "", "", errors.Newf(errors.ErrCodeBadRequest, "disbursement requires status APPROVED_DIRECTOR, bailout is %s", b.Status)
		}
		return repository.BailoutApprovedDirector, repository.BailoutDisbursed, nil
	})
}

// Reject terminates the bailout. Allowed for chief-equivalent roles while
// the bailout is SUBMITTED or APPROVED_CHIEF; requires a reason of at least
// five characters.
func (s *BailoutService) Reject(ctx context.Context, id, actorID, reason string) (*repository.Bailout, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < minBailoutReasonLength {
		return nil, errors.InvalidInput("reason", "a rejection reason of at least 5 characters is required")
	}

	return s.transition(ctx, id, actorID, "bailout_rejected", &reason, func(b *repository.Bailout, actor *repository.User) (repository.BailoutStatus, repository.BailoutStatus, error) {
		if !chiefRoles[actor.Role] {
			return "", "", errors.Forbidden("a chief-equivalent role is required to reject")
		}
		if b.Status != repository.BailoutSubmitted && b.Status != repository.BailoutApprovedChief {
			return "", "", errors.Newf(errors.ErrCodeBadRequest, "bailout cannot be rejected from status %s", b.Status)
		}
		return b.Status, repository.BailoutRejected, nil
	})
}

// transition runs one role-gated conditional status advance inside a
// transaction, with the audit insert in the same unit.
func (s *BailoutService) transition(
	ctx context.Context,
	id, actorID, event string,
	reason *string,
	decide func(b *repository.Bailout, actor *repository.User) (from, to repository.BailoutStatus, err error),
) (*repository.Bailout, error) {
	actor, err := s.store.GetUser(ctx, actorID)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return nil, errors.Forbidden("unknown actor")
		}
		return nil, err
	}

	var requesterID string
	err = s.inTxRetry(ctx, func(tx repository.Tx) error {
		b, err := tx.GetBailoutForUpdate(ctx, id)
		if err != nil {
			return err
		}
		requesterID = b.RequesterID

		from, to, err := decide(b, actor)
		if err != nil {
			return err
		}

		ok, err := tx.UpdateBailoutStatus(ctx, id, from, to, actor.ID, reason, time.Now())
		if err != nil {
			return err
		}
		if !ok {
			return errors.Newf(errors.ErrCodeBadRequest, "bailout already processed past status %s", from)
		}

		statusBefore := string(from)
		statusAfter := string(to)
		entry := &repository.AuditEntry{
			EntityKind:   repository.KindBailout,
			EntityID:     id,
			Action:       strings.TrimPrefix(event, "bailout_"),
			PerformedBy:  actor.ID,
			StatusBefore: &statusBefore,
			StatusAfter:  &statusAfter,
			Metadata:     map[string]interface{}{"role": string(actor.Role)},
		}
		if reason != nil {
			entry.Metadata["reason"] = *reason
		}
		return tx.AppendAudit(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	b, err := s.store.GetBailout(ctx, id)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("bailout_id", id).
		Str("status", string(b.Status)).
		Str("actor_id", actor.ID).
		Msg("Bailout transition processed")

	if s.notifier != nil {
		s.notifier.PublishWorkflowEvent(ctx, event, repository.KindBailout, id, actor.ID, []string{requesterID}, map[string]interface{}{
			"status": string(b.Status),
		})
	}

	return b, nil
}

// AuditTrail returns the transition history for one bailout.
func (s *BailoutService) AuditTrail(ctx context.Context, id string) ([]*repository.AuditEntry, error) {
	return s.store.ListAudit(ctx, repository.KindBailout, id)
}

func (s *BailoutService) inTxRetry(ctx context.Context, fn func(tx repository.Tx) error) error {
	err := s.store.InTx(ctx, fn)
	if err == nil || !database.IsRetryable(err) {
		return err
	}

	s.log.Warn().Err(err).Msg("Retrying bailout transaction after store conflict")
	err = s.store.InTx(ctx, fn)
	if err != nil && database.IsRetryable(err) {
		return errors.Conflict("storage conflict while processing bailout action")
	}
	return err
}
