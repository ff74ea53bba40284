package service

import (
	"context"

	"github.com/andalan-hq/be-travel-approvals/internal/platform/errors"
	"github.com/andalan-hq/be-travel-approvals/internal/platform/logger"
	"github.com/andalan-hq/be-travel-approvals/internal/repository"
)

// ChainPolicy holds the amount thresholds that pull the senior-director and
// executive levels into a chain. A zero threshold disables that level.
type ChainPolicy struct {
	SeniorDirectorMinAmount int64
	ExecutiveMinAmount      int64
}

// ChainBuilder resolves the ordered approver set for a submitted entity from
// the requester's place in the org hierarchy.
type ChainBuilder struct {
	store  repository.Store
	policy ChainPolicy
	log    *logger.Logger
}

// NewChainBuilder creates a chain builder.
func NewChainBuilder(store repository.Store, policy ChainPolicy, log *logger.Logger) *ChainBuilder {
	return &ChainBuilder{store: store, policy: policy, log: log}
}

// Build walks the requester's organizational position and produces one
// PENDING approval per resolvable level, in ascending level order. Levels
// with no assigned person are skipped, as is any level that would resolve to
// the requester themselves — the chain may legitimately be shorter than five,
// or even empty. IDs and business keys are assigned by the caller inside the
// submission transaction.
func (b *ChainBuilder) Build(ctx context.Context, entity repository.Approvable) ([]*repository.Approval, error) {
	requester, err := b.store.GetUser(ctx, entity.Requester())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve requester")
	}

	var dept *repository.Department
	if requester.DepartmentID != nil {
		dept, err = b.store.GetDepartment(ctx, *requester.DepartmentID)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve department")
		}
	}

	type slot struct {
		level    repository.Level
		approver string
	}
	var slots []slot

	// L1: direct supervisor.
	if requester.SupervisorID != nil {
		slots = append(slots, slot{repository.LevelSupervisor, *requester.SupervisorID})
	}

	// L2: department manager.
	if dept != nil && dept.ManagerID != nil {
		slots = append(slots, slot{repository.LevelManager, *dept.ManagerID})
	}

	// L3: department director, falling back to the earliest-created user
	// holding a director-grade role when the department has none configured.
	directorID := ""
	if dept != nil && dept.DirectorID != nil {
		directorID = *dept.DirectorID
	} else {
		fallback, err := b.store.EarliestUserWithRole(ctx, repository.RoleDirector, repository.RoleAdmin)
		if err != nil {
			return nil, err
		}
		if fallback != nil {
			directorID = fallback.ID
		}
	}
	if directorID != "" {
		slots = append(slots, slot{repository.LevelDirector, directorID})
	}

	// L4/L5: amount-based escalation, resolved by role membership.
	if b.policy.SeniorDirectorMinAmount > 0 && entity.Amount() >= b.policy.SeniorDirectorMinAmount {
		senior, err := b.store.EarliestUserWithRole(ctx, repository.RoleSeniorDirector)
		if err != nil {
			return nil, err
		}
		if senior != nil {
			slots = append(slots, slot{repository.LevelSeniorDirector, senior.ID})
		}
	}
	if b.policy.ExecutiveMinAmount > 0 && entity.Amount() >= b.policy.ExecutiveMinAmount {
		executive, err := b.store.EarliestUserWithRole(ctx, repository.RoleExecutive)
		if err != nil {
			return nil, err
		}
		if executive != nil {
			slots = append(slots, slot{repository.LevelExecutive, executive.ID})
		}
	}

	approvals := make([]*repository.Approval, 0, len(slots))
	for _, s := range slots {
		// No self-approval.
		if s.approver == requester.ID {
			continue
		}
		approvals = append(approvals, &repository.Approval{
			EntityKind: entity.EntityKind(),
			EntityID:   entity.EntityID(),
			Level:      s.level,
			ApproverID: s.approver,
			Status:     repository.ApprovalPending,
		})
	}

	if len(approvals) == 0 {
		b.log.Warn().
			Str("entity_kind", string(entity.EntityKind())).
			Str("entity_id", entity.EntityID()).
			Str("requester_id", requester.ID).
			Msg("No approvers resolved; entity will be submitted with an empty chain")
	}

	return approvals, nil
}
