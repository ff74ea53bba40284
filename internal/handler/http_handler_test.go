package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andalan-hq/be-travel-approvals/internal/platform/logger"
	"github.com/andalan-hq/be-travel-approvals/internal/repository"
	"github.com/andalan-hq/be-travel-approvals/internal/service"
)

func newTestHandler(t *testing.T) (*HTTPHandler, *repository.MemStore) {
	t.Helper()

	store := repository.NewMemStore()
	log := logger.New(logger.Config{Level: "error", Environment: "test"})

	supervisorID := "u-sup"
	store.PutUser(&repository.User{ID: supervisorID, Name: "Sari", Role: repository.RoleSupervisor})
	store.PutUser(&repository.User{ID: "u-emp", Name: "Endah", Role: repository.RoleEmployee, SupervisorID: &supervisorID})
	store.PutUser(&repository.User{ID: "u-chief", Name: "Cahya", Role: repository.RoleChief})

	builder := service.NewChainBuilder(store, service.ChainPolicy{}, log)
	approvals := service.NewApprovalService(store, builder, service.NewVerifier(), nil, log)
	bailouts := service.NewBailoutService(store, nil, log)
	requests := service.NewRequestService(store, log)

	return NewHTTPHandler(requests, approvals, bailouts, log), store
}

func postJSON(t *testing.T, h http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestCreateTravelRequestEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postJSON(t, h.CreateTravelRequest, "/api/v1/travel-requests", CreateTravelRequestRequest{
		RequesterID:     "u-emp",
		Destination:     "Surabaya",
		StartDate:       "2024-03-01",
		EndDate:         "2024-03-05",
		EstimatedAmount: 5_000_000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var created repository.TravelRequest
	decodeBody(t, rec, &created)
	if created.ID == "" || created.Status != repository.EntityDraft {
		t.Fatalf("created = %+v", created)
	}

	// Validation failures map to 400.
	rec = postJSON(t, h.CreateTravelRequest, "/api/v1/travel-requests", CreateTravelRequestRequest{
		RequesterID: "u-emp",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing fields: status = %d, want 400", rec.Code)
	}

	// Unknown requester maps to 404.
	rec = postJSON(t, h.CreateTravelRequest, "/api/v1/travel-requests", CreateTravelRequestRequest{
		RequesterID: "u-ghost",
		Destination: "Medan",
		StartDate:   "2024-03-01",
		EndDate:     "2024-03-02",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown requester: status = %d, want 404", rec.Code)
	}
}

func TestSubmitAndActEndpoints(t *testing.T) {
	h, store := newTestHandler(t)

	rec := postJSON(t, h.CreateTravelRequest, "/api/v1/travel-requests", CreateTravelRequestRequest{
		RequesterID: "u-emp", Destination: "Surabaya", StartDate: "2024-03-01", EndDate: "2024-03-05", EstimatedAmount: 5_000_000,
	})
	var created repository.TravelRequest
	decodeBody(t, rec, &created)

	rec = postJSON(t, h.Submit, "/api/v1/submit", SubmitRequest{
		EntityKind: "travel_request", EntityID: created.ID, RequesterID: "u-emp",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Supervisor picks the pending approval off their queue and approves.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/approvals?approver_id=u-sup&status=PENDING", nil)
	listRec := httptest.NewRecorder()
	h.ListApprovals(listRec, req)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list: status = %d, body = %s", listRec.Code, listRec.Body.String())
	}
	var listed struct {
		Approvals []repository.Approval `json:"approvals"`
		Total     int64                 `json:"total"`
	}
	decodeBody(t, listRec, &listed)
	if listed.Total != 1 {
		t.Fatalf("pending approvals = %d, want 1", listed.Total)
	}

	rec = postJSON(t, h.ActOnApproval, "/api/v1/approvals/act", ActOnApprovalRequest{
		ApprovalNumber: listed.Approvals[0].Number,
		SessionUserID:  "u-sup",
		Action:         "approve",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("act: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	got, err := store.GetTravelRequest(req.Context(), created.ID)
	if err != nil {
		t.Fatalf("GetTravelRequest: %v", err)
	}
	if got.Status != repository.EntityApproved {
		t.Fatalf("entity status = %s, want APPROVED", got.Status)
	}

	// Acting without any identity proof is a 400 before anything runs.
	rec = postJSON(t, h.ActOnApproval, "/api/v1/approvals/act", ActOnApprovalRequest{
		ApprovalNumber: listed.Approvals[0].Number,
		Action:         "approve",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("no proof: status = %d, want 400", rec.Code)
	}

	// A caller who is not the assigned approver gets 403.
	rec = postJSON(t, h.ActOnApproval, "/api/v1/approvals/act", ActOnApprovalRequest{
		ApprovalNumber: listed.Approvals[0].Number,
		SessionUserID:  "u-chief",
		Action:         "reject",
		Comment:        "not my travel request",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong approver: status = %d, want 403", rec.Code)
	}
}

func TestListApprovalsEchoesNormalizedPaging(t *testing.T) {
	h, _ := newTestHandler(t)

	// No paging params supplied: the response reports the defaults actually
	// applied, not the raw zero values.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/approvals?approver_id=u-sup", nil)
	rec := httptest.NewRecorder()
	h.ListApprovals(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Page     int `json:"page"`
		PageSize int `json:"page_size"`
	}
	decodeBody(t, rec, &resp)
	if resp.Page != 1 || resp.PageSize != 50 {
		t.Fatalf("paging echoed as page=%d size=%d, want 1/50", resp.Page, resp.PageSize)
	}

	// Out-of-range values are clamped the same way.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/approvals?approver_id=u-sup&page=-2&page_size=9999", nil)
	rec = httptest.NewRecorder()
	h.ListApprovals(rec, req)
	decodeBody(t, rec, &resp)
	if resp.Page != 1 || resp.PageSize != 50 {
		t.Fatalf("clamped paging echoed as page=%d size=%d, want 1/50", resp.Page, resp.PageSize)
	}
}

func TestAuditEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postJSON(t, h.CreateTravelRequest, "/api/v1/travel-requests", CreateTravelRequestRequest{
		RequesterID: "u-emp", Destination: "Surabaya", StartDate: "2024-03-01", EndDate: "2024-03-05",
	})
	var created repository.TravelRequest
	decodeBody(t, rec, &created)
	postJSON(t, h.Submit, "/api/v1/submit", SubmitRequest{
		EntityKind: "travel_request", EntityID: created.ID, RequesterID: "u-emp",
	})

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/audit?entity_kind=travel_request&entity_id=%s", created.ID), nil)
	auditRec := httptest.NewRecorder()
	h.GetAuditTrail(auditRec, req)
	if auditRec.Code != http.StatusOK {
		t.Fatalf("audit: status = %d, body = %s", auditRec.Code, auditRec.Body.String())
	}
	var trail struct {
		Entries []repository.AuditEntry `json:"entries"`
	}
	decodeBody(t, auditRec, &trail)
	if len(trail.Entries) != 1 || trail.Entries[0].Action != "submitted" {
		t.Fatalf("trail = %+v", trail.Entries)
	}

	// Missing query params are a 400.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil)
	auditRec = httptest.NewRecorder()
	h.GetAuditTrail(auditRec, req)
	if auditRec.Code != http.StatusBadRequest {
		t.Fatalf("missing params: status = %d, want 400", auditRec.Code)
	}
}

func TestBailoutEndpoints(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postJSON(t, h.CreateBailout, "/api/v1/bailouts", CreateBailoutRequest{
		RequesterID: "u-emp", Amount: 1_500_000, Reason: "hotel deposit",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create bailout: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created repository.Bailout
	decodeBody(t, rec, &created)

	rec = postJSON(t, h.ActOnBailout, "/api/v1/bailouts/act", ActOnBailoutRequest{
		BailoutID: created.ID, ActorID: "u-emp", Action: "submit",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit bailout: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var submitted repository.Bailout
	decodeBody(t, rec, &submitted)
	if submitted.Status != repository.BailoutSubmitted {
		t.Fatalf("status = %s, want SUBMITTED", submitted.Status)
	}

	// An unsupported action fails validation.
	rec = postJSON(t, h.ActOnBailout, "/api/v1/bailouts/act", ActOnBailoutRequest{
		BailoutID: created.ID, ActorID: "u-chief", Action: "escalate",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad action: status = %d, want 400", rec.Code)
	}
}
