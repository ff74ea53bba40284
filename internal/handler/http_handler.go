package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/andalan-hq/be-travel-approvals/internal/platform/errors"
	"github.com/andalan-hq/be-travel-approvals/internal/platform/logger"
	"github.com/andalan-hq/be-travel-approvals/internal/repository"
	"github.com/andalan-hq/be-travel-approvals/internal/service"
)

var validate = validator.New()

// HTTPHandler exposes the approval engine over HTTP.
type HTTPHandler struct {
	requests  *service.RequestService
	approvals *service.ApprovalService
	bailouts  *service.BailoutService
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	requests *service.RequestService,
	approvals *service.ApprovalService,
	bailouts *service.BailoutService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		requests:  requests,
		approvals: approvals,
		bailouts:  bailouts,
		log:       log,
	}
}

// ── helpers ───────────────────────────────────────────────────────────────────

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}
	h.writeJSON(w, status, map[string]string{
		"code":  string(errors.CodeOf(err)),
		"error": err.Error(),
	})
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, errors.BadRequest("invalid request body"))
		return false
	}
	if err := validate.Struct(v); err != nil {
		h.writeError(w, errors.BadRequest(err.Error()))
		return false
	}
	return true
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ── Travel requests ───────────────────────────────────────────────────────────

// CreateTravelRequestRequest is the payload for creating a draft travel
// request.
type CreateTravelRequestRequest struct {
	RequesterID     string `json:"requester_id" validate:"required"`
	Destination     string `json:"destination" validate:"required"`
	Purpose         string `json:"purpose"`
	StartDate       string `json:"start_date" validate:"required"`
	EndDate         string `json:"end_date" validate:"required"`
	EstimatedAmount int64  `json:"estimated_amount" validate:"gte=0"`
}

// CreateTravelRequest handles POST /api/v1/travel-requests.
func (h *HTTPHandler) CreateTravelRequest(w http.ResponseWriter, r *http.Request) {
	var req CreateTravelRequestRequest
	if !h.decode(w, r, &req) {
		return
	}

	tr, err := h.requests.CreateTravelRequest(r.Context(), &repository.TravelRequest{
		RequesterID:     req.RequesterID,
		Destination:     req.Destination,
		Purpose:         req.Purpose,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		EstimatedAmount: req.EstimatedAmount,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, tr)
}

// GetTravelRequest handles GET /api/v1/travel-requests/get?id=.
func (h *HTTPHandler) GetTravelRequest(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, errors.BadRequest("id is required"))
		return
	}

	tr, err := h.requests.GetTravelRequest(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tr)
}

// ── Claims ────────────────────────────────────────────────────────────────────

// CreateClaimRequest is the payload for creating a draft expense claim.
type CreateClaimRequest struct {
	RequesterID     string `json:"requester_id" validate:"required"`
	TravelRequestID string `json:"travel_request_id"`
	Description     string `json:"description" validate:"required"`
	Category        string `json:"category"`
	TotalAmount     int64  `json:"total_amount" validate:"gt=0"`
	ReceiptURL      string `json:"receipt_url"`
}

// CreateClaim handles POST /api/v1/claims.
func (h *HTTPHandler) CreateClaim(w http.ResponseWriter, r *http.Request) {
	var req CreateClaimRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.requests.CreateClaim(r.Context(), &repository.Claim{
		RequesterID:     req.RequesterID,
		TravelRequestID: optional(req.TravelRequestID),
		Description:     req.Description,
		Category:        req.Category,
		TotalAmount:     req.TotalAmount,
		ReceiptURL:      optional(req.ReceiptURL),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, c)
}

// GetClaim handles GET /api/v1/claims/get?id=.
func (h *HTTPHandler) GetClaim(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, errors.BadRequest("id is required"))
		return
	}

	c, err := h.requests.GetClaim(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// ── Submission ────────────────────────────────────────────────────────────────

// SubmitRequest is the payload for submitting an entity into the approval
// chain.
type SubmitRequest struct {
	EntityKind  string `json:"entity_kind" validate:"required,oneof=travel_request claim"`
	EntityID    string `json:"entity_id" validate:"required"`
	RequesterID string `json:"requester_id" validate:"required"`
}

// Submit handles POST /api/v1/submit.
func (h *HTTPHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !h.decode(w, r, &req) {
		return
	}

	entity, err := h.approvals.Submit(r.Context(), repository.EntityKind(req.EntityKind), req.EntityID, req.RequesterID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entity)
}

// ── Approval actions ──────────────────────────────────────────────────────────

// ActOnApprovalRequest is the payload for acting on one approval record. The
// approval is identified by internal id or business key; the caller proves
// identity with either an authenticated session user id or a phone number.
type ActOnApprovalRequest struct {
	ApprovalID     string `json:"approval_id"`
	ApprovalNumber string `json:"approval_number"`
	SessionUserID  string `json:"session_user_id"`
	PhoneNumber    string `json:"phone_number"`
	Action         string `json:"action" validate:"required,oneof=approve reject request_revision"`
	Comment        string `json:"comment"`
}

// ActOnApproval handles POST /api/v1/approvals/act.
func (h *HTTPHandler) ActOnApproval(w http.ResponseWriter, r *http.Request) {
	var req ActOnApprovalRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.ApprovalID == "" && req.ApprovalNumber == "" {
		h.writeError(w, errors.BadRequest("approval_id or approval_number is required"))
		return
	}

	var proof service.CallerProof
	switch {
	case req.SessionUserID != "":
		proof = service.SessionProof{UserID: req.SessionUserID}
	case req.PhoneNumber != "":
		proof = service.PhoneProof{Number: req.PhoneNumber}
	default:
		h.writeError(w, errors.BadRequest("session_user_id or phone_number is required"))
		return
	}

	ref := service.ApprovalRef{ID: req.ApprovalID, Number: req.ApprovalNumber}

	var (
		approval *repository.Approval
		err      error
	)
	switch service.Action(req.Action) {
	case service.ActionApprove:
		approval, err = h.approvals.Approve(r.Context(), ref, proof, req.Comment)
	case service.ActionReject:
		approval, err = h.approvals.Reject(r.Context(), ref, proof, req.Comment)
	case service.ActionRequestRevision:
		approval, err = h.approvals.RequestRevision(r.Context(), ref, proof, req.Comment)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, approval)
}

// ListApprovals handles GET /api/v1/approvals.
func (h *HTTPHandler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	approverID := r.URL.Query().Get("approver_id")
	status := repository.ApprovalStatus(r.URL.Query().Get("status"))
	kind := repository.EntityKind(r.URL.Query().Get("entity_kind"))

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	p := repository.Page{Page: page, Size: pageSize}.Normalize()

	items, total, err := h.approvals.ListForApprover(r.Context(), approverID, status, kind, p)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"approvals": items,
		"total":     total,
		"page":      p.Page,
		"page_size": p.Size,
	})
}

// GetAuditTrail handles GET /api/v1/audit?entity_kind=&entity_id=.
func (h *HTTPHandler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("entity_kind")
	entityID := r.URL.Query().Get("entity_id")
	if kind == "" || entityID == "" {
		h.writeError(w, errors.BadRequest("entity_kind and entity_id are required"))
		return
	}

	entries, err := h.approvals.AuditTrail(r.Context(), repository.EntityKind(kind), entityID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// ── Bailouts ──────────────────────────────────────────────────────────────────

// CreateBailoutRequest is the payload for creating a draft cash advance.
type CreateBailoutRequest struct {
	RequesterID     string `json:"requester_id" validate:"required"`
	TravelRequestID string `json:"travel_request_id"`
	Amount          int64  `json:"amount" validate:"gt=0"`
	Reason          string `json:"reason" validate:"required"`
}

// CreateBailout handles POST /api/v1/bailouts.
func (h *HTTPHandler) CreateBailout(w http.ResponseWriter, r *http.Request) {
	var req CreateBailoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	b, err := h.bailouts.Create(r.Context(), &repository.Bailout{
		RequesterID:     req.RequesterID,
		TravelRequestID: optional(req.TravelRequestID),
		Amount:          req.Amount,
		Reason:          req.Reason,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, b)
}

// GetBailout handles GET /api/v1/bailouts/get?id=.
func (h *HTTPHandler) GetBailout(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, errors.BadRequest("id is required"))
		return
	}

	b, err := h.bailouts.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

// ActOnBailoutRequest is the payload for one role-gated bailout transition.
type ActOnBailoutRequest struct {
	BailoutID string `json:"bailout_id" validate:"required"`
	ActorID   string `json:"actor_id" validate:"required"`
	Action    string `json:"action" validate:"required,oneof=submit approve_chief approve_director disburse reject"`
	Comment   string `json:"comment"`
}

// ActOnBailout handles POST /api/v1/bailouts/act.
func (h *HTTPHandler) ActOnBailout(w http.ResponseWriter, r *http.Request) {
	var req ActOnBailoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	var (
		b   *repository.Bailout
		err error
	)
	switch req.Action {
	case "submit":
		b, err = h.bailouts.Submit(r.Context(), req.BailoutID, req.ActorID)
	case "approve_chief":
		b, err = h.bailouts.ApproveByChief(r.Context(), req.BailoutID, req.ActorID)
	case "approve_director":
		b, err = h.bailouts.ApproveByDirector(r.Context(), req.BailoutID, req.ActorID)
	case "disburse":
		b, err = h.bailouts.Disburse(r.Context(), req.BailoutID, req.ActorID)
	case "reject":
		b, err = h.bailouts.Reject(r.Context(), req.BailoutID, req.ActorID, req.Comment)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}
