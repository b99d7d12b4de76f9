package service

import (
	"context"

	"github.com/Strob0t/taskcrew/internal/domain/business"
	"github.com/Strob0t/taskcrew/internal/port/database"
)

// BusinessService manages tenants and their autonomy level.
type BusinessService struct {
	store database.Store
}

// NewBusinessService creates a new BusinessService.
func NewBusinessService(store database.Store) *BusinessService {
	return &BusinessService{store: store}
}

// Create registers a business. Autonomy defaults to supervised.
func (s *BusinessService) Create(ctx context.Context, req business.CreateRequest) (*business.Business, error) {
	return s.store.CreateBusiness(ctx, req)
}

// Get returns a business by ID.
func (s *BusinessService) Get(ctx context.Context, id string) (*business.Business, error) {
	return s.store.GetBusiness(ctx, id)
}

// List returns all businesses.
func (s *BusinessService) List(ctx context.Context) ([]business.Business, error) {
	return s.store.ListBusinesses(ctx)
}

// SetAutonomy changes how much sign-off the business requires.
func (s *BusinessService) SetAutonomy(ctx context.Context, id string, level business.Autonomy) (*business.Business, error) {
	return s.store.UpdateAutonomy(ctx, id, level)
}
