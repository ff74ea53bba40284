package service

import (
	"context"
	"strings"

	"github.com/andalan-hq/be-travel-approvals/internal/platform/errors"
	"github.com/andalan-hq/be-travel-approvals/internal/platform/logger"
	"github.com/andalan-hq/be-travel-approvals/internal/repository"
)

// RequestService handles the draft lifecycle of travel requests and expense
// claims before they enter the approval engine.
type RequestService struct {
	store repository.Store
	log   *logger.Logger
}

// NewRequestService creates a request service.
func NewRequestService(store repository.Store, log *logger.Logger) *RequestService {
	return &RequestService{store: store, log: log}
}

// CreateTravelRequest inserts a draft travel request.
func (s *RequestService) CreateTravelRequest(ctx context.Context, tr *repository.TravelRequest) (*repository.TravelRequest, error) {
	if strings.TrimSpace(tr.Destination) == "" {
		return nil, errors.InvalidInput("destination", "destination is required")
	}
	if tr.EstimatedAmount < 0 {
		return nil, errors.InvalidInput("estimated_amount", "amount cannot be negative")
	}
	if _, err := s.store.GetUser(ctx, tr.RequesterID); err != nil {
		return nil, err
	}

	tr.Status = repository.EntityDraft
	if err := s.store.CreateTravelRequest(ctx, tr); err != nil {
		return nil, err
	}
	return tr, nil
}

// GetTravelRequest retrieves a travel request.
func (s *RequestService) GetTravelRequest(ctx context.Context, id string) (*repository.TravelRequest, error) {
	return s.store.GetTravelRequest(ctx, id)
}

// CreateClaim inserts a draft expense claim, optionally linked to a travel
// request.
func (s *RequestService) CreateClaim(ctx context.Context, c *repository.Claim) (*repository.Claim, error) {
	if strings.TrimSpace(c.Description) == "" {
		return nil, errors.InvalidInput("description", "description is required")
	}
	if c.TotalAmount <= 0 {
		return nil, errors.InvalidInput("total_amount", "amount must be positive")
	}
	if _, err := s.store.GetUser(ctx, c.RequesterID); err != nil {
		return nil, err
	}
	if c.TravelRequestID != nil {
		if _, err := s.store.GetTravelRequest(ctx, *c.TravelRequestID); err != nil {
			return nil, err
		}
	}

	c.Status = repository.EntityDraft
	if err := s.store.CreateClaim(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetClaim retrieves a claim.
func (s *RequestService) GetClaim(ctx context.Context, id string) (*repository.Claim, error) {
	return s.store.GetClaim(ctx, id)
}
