package service

import (
	"context"
	"testing"
	"time"

	"github.com/andalan-hq/be-travel-approvals/internal/platform/logger"
	"github.com/andalan-hq/be-travel-approvals/internal/repository"
)

func testBuilder(store *repository.MemStore) *ChainBuilder {
	log := logger.New(logger.Config{Level: "error", Environment: "test"})
	return NewChainBuilder(store, ChainPolicy{
		SeniorDirectorMinAmount: seniorThreshold,
		ExecutiveMinAmount:      executiveThreshold,
	}, log)
}

func levelsOf(chain []*repository.Approval) []repository.Level {
	out := make([]repository.Level, len(chain))
	for i, a := range chain {
		out[i] = a.Level
	}
	return out
}

func TestBuildStandardChain(t *testing.T) {
	env := newTestEnv(t)
	tr := env.newTravelRequest(t, 10_000_000)

	chain, err := testBuilder(env.store).Build(context.Background(), tr)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(chain) != 3 {
		t.Fatalf("chain length = %d, want 3: %v", len(chain), levelsOf(chain))
	}
	wantApprovers := []string{env.superv.ID, env.manager.ID, env.director.ID}
	for i, a := range chain {
		if a.ApproverID != wantApprovers[i] {
			t.Errorf("chain[%d].ApproverID = %s, want %s", i, a.ApproverID, wantApprovers[i])
		}
		if a.Status != repository.ApprovalPending {
			t.Errorf("chain[%d].Status = %s, want PENDING", i, a.Status)
		}
	}
}

func TestBuildAmountEscalation(t *testing.T) {
	env := newTestEnv(t)

	// Below both thresholds: three levels.
	tr := env.newTravelRequest(t, seniorThreshold-1)
	chain, err := testBuilder(env.store).Build(context.Background(), tr)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(chain) != 3 {
		t.Fatalf("below thresholds: chain length = %d, want 3", len(chain))
	}

	// At the senior-director threshold: L4 joins.
	tr = env.newTravelRequest(t, seniorThreshold)
	chain, err = testBuilder(env.store).Build(context.Background(), tr)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(chain) != 4 || chain[3].Level != repository.LevelSeniorDirector || chain[3].ApproverID != env.senior.ID {
		t.Fatalf("senior threshold: got %v", levelsOf(chain))
	}

	// At the executive threshold: L4 and L5 both join.
	tr = env.newTravelRequest(t, executiveThreshold)
	chain, err = testBuilder(env.store).Build(context.Background(), tr)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(chain) != 5 || chain[4].Level != repository.LevelExecutive || chain[4].ApproverID != env.executive.ID {
		t.Fatalf("executive threshold: got %v", levelsOf(chain))
	}
}

func TestBuildDirectorFallback(t *testing.T) {
	store := repository.NewMemStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// The department has a manager but no director; two director-grade users
	// exist and the earliest-created one must be picked.
	managerID := "u-mgr"
	store.PutUser(&repository.User{ID: managerID, Role: repository.RoleManager, CreatedAt: base})
	store.PutUser(&repository.User{ID: "u-dir-late", Role: repository.RoleDirector, CreatedAt: base.Add(48 * time.Hour)})
	store.PutUser(&repository.User{ID: "u-dir-early", Role: repository.RoleDirector, CreatedAt: base.Add(time.Hour)})

	deptID := "d-1"
	store.PutDepartment(&repository.Department{ID: deptID, Name: "Sales", ManagerID: &managerID})
	store.PutUser(&repository.User{ID: "u-emp", Role: repository.RoleEmployee, DepartmentID: &deptID, CreatedAt: base})

	tr := &repository.TravelRequest{ID: "tr-1", RequesterID: "u-emp", EstimatedAmount: 1_000_000}
	chain, err := testBuilder(store).Build(context.Background(), tr)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("chain length = %d, want 2 (manager, fallback director): %v", len(chain), levelsOf(chain))
	}
	if chain[1].Level != repository.LevelDirector || chain[1].ApproverID != "u-dir-early" {
		t.Fatalf("fallback director = %s at %s, want u-dir-early at L3_DIRECTOR", chain[1].ApproverID, chain[1].Level)
	}
}

func TestBuildSkipsSelfApproval(t *testing.T) {
	store := repository.NewMemStore()

	// A manager whose department lists themselves as manager: the L2 slot
	// resolves to the requester and is dropped.
	supervisorID := "u-sup"
	store.PutUser(&repository.User{ID: supervisorID, Role: repository.RoleSupervisor})

	deptID := "d-1"
	managerID := "u-self"
	store.PutDepartment(&repository.Department{ID: deptID, Name: "Finance", ManagerID: &managerID})
	store.PutUser(&repository.User{
		ID:           managerID,
		Role:         repository.RoleManager,
		SupervisorID: &supervisorID,
		DepartmentID: &deptID,
	})

	tr := &repository.TravelRequest{ID: "tr-1", RequesterID: managerID, EstimatedAmount: 1_000_000}
	chain, err := testBuilder(store).Build(context.Background(), tr)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, a := range chain {
		if a.ApproverID == managerID {
			t.Fatalf("chain contains the requester as approver at %s", a.Level)
		}
	}
	if len(chain) != 1 || chain[0].ApproverID != supervisorID {
		t.Fatalf("chain = %v, want only the supervisor", levelsOf(chain))
	}
}

func TestBuildEmptyChain(t *testing.T) {
	store := repository.NewMemStore()
	store.PutUser(&repository.User{ID: "u-lone", Role: repository.RoleEmployee})

	tr := &repository.TravelRequest{ID: "tr-1", RequesterID: "u-lone", EstimatedAmount: 1_000_000}
	chain, err := testBuilder(store).Build(context.Background(), tr)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(chain) != 0 {
		t.Fatalf("chain length = %d, want 0", len(chain))
	}
}
