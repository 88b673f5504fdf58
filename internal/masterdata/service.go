package masterdata

import (
	"context"
	"errors"
	"strings"
)

// Service exposes master data operations.
type Service struct {
	repo Repository
}

// NewService constructs the service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetSKU(ctx context.Context, id int64) (SKU, error) {
	if id <= 0 {
		return SKU{}, ErrSKUNotFound
	}
	return s.repo.GetSKU(ctx, id)
}

func (s *Service) ListSKUs(ctx context.Context, search string, limit, offset int) ([]SKU, int, error) {
	return s.repo.ListSKUs(ctx, strings.TrimSpace(search), limit, offset)
}

func (s *Service) CreateSKU(ctx context.Context, sku SKU) (SKU, error) {
	sku.Code = strings.TrimSpace(sku.Code)
	sku.Name = strings.TrimSpace(sku.Name)
	if sku.Code == "" || sku.Name == "" {
		return SKU{}, errors.New("masterdata: sku code and name required")
	}
	if sku.UOM == "" {
		sku.UOM = "EA"
	}
	return s.repo.CreateSKU(ctx, sku)
}

func (s *Service) GetLocation(ctx context.Context, id int64) (Location, error) {
	if id <= 0 {
		return Location{}, ErrLocationNotFound
	}
	return s.repo.GetLocation(ctx, id)
}

func (s *Service) ListLocations(ctx context.Context, limit, offset int) ([]Location, int, error) {
	return s.repo.ListLocations(ctx, limit, offset)
}

func (s *Service) CreateLocation(ctx context.Context, loc Location) (Location, error) {
	loc.Code = strings.TrimSpace(loc.Code)
	loc.Name = strings.TrimSpace(loc.Name)
	if loc.Code == "" || loc.Name == "" {
		return Location{}, errors.New("masterdata: location code and name required")
	}
	return s.repo.CreateLocation(ctx, loc)
}

// SKUExists reports whether an active SKU exists.
func (s *Service) SKUExists(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	return s.repo.SKUExists(ctx, id)
}

// LocationExists reports whether an active location exists.
func (s *Service) LocationExists(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	return s.repo.LocationExists(ctx, id)
}
