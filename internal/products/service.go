package product

import (
	"context"
	"fmt"

	pkgerrors "github.com/angelmondragon/portal-crm-backend/pkg/errors"
)

// Service exposes the read-only catalog lookups used by the quote editor.
type Service interface {
	ListActive(ctx context.Context) ([]ProductDTO, error)
}

type service struct {
	repo Repository
}

// NewService builds the catalog service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ListActive(ctx context.Context) ([]ProductDTO, error) {
	rows, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active products")
	}
	out := make([]ProductDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, newProductDTO(row))
	}
	return out, nil
}
