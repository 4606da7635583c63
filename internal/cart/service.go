package cart

import (
	"context"

	"agromart-be/internal/catalog"
	"agromart-be/internal/logger"

	"go.uber.org/zap"
)

type Service interface {
	// Validate checks every requested line against the catalog and either
	// returns a priced snapshot of the whole cart or a ValidationError
	// listing all failing lines. It never mutates anything, so it is safe
	// to call speculatively before a reservation is attempted.
	Validate(ctx context.Context, items []Item) ([]Line, error)
}

type service struct {
	catalog catalog.Repository
}

func NewService(catalogRepo catalog.Repository) Service {
	return &service{catalog: catalogRepo}
}

func (s *service) Validate(ctx context.Context, items []Item) ([]Line, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Validate"),
		zap.Int("item_count", len(items)),
	)

	var problems []ItemProblem

	seen := make(map[string]bool, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			problems = append(problems, ItemProblem{
				ProductID: item.ProductID,
				Reason:    ReasonInvalidQuantity,
				Requested: item.Quantity,
			})
		}
		if seen[item.ProductID] {
			problems = append(problems, ItemProblem{
				ProductID: item.ProductID,
				Reason:    ReasonDuplicateProduct,
			})
			continue
		}
		seen[item.ProductID] = true
		ids = append(ids, item.ProductID)
	}

	products, err := s.catalog.GetProductsForCheckout(ctx, ids)
	if err != nil {
		log.Error("failed to load products for checkout", zap.Error(err))
		return nil, err
	}

	lines := make([]Line, 0, len(items))
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			problems = append(problems, ItemProblem{
				ProductID: item.ProductID,
				Reason:    ReasonNotFound,
			})
			continue
		}
		if !product.Active {
			problems = append(problems, ItemProblem{
				ProductID: item.ProductID,
				Reason:    ReasonUnavailable,
			})
			continue
		}
		if item.Quantity > product.Available() {
			problems = append(problems, ItemProblem{
				ProductID: item.ProductID,
				Reason:    ReasonInsufficientStock,
				Requested: item.Quantity,
				Available: product.Available(),
			})
			continue
		}

		lines = append(lines, Line{
			ProductID:  product.ID,
			VendorID:   product.VendorID,
			VendorName: product.VendorName,
			Name:       product.Name,
			UnitPrice:  product.Price,
			Quantity:   item.Quantity,
			LineTotal:  product.Price * int64(item.Quantity),
		})
	}

	if len(problems) > 0 {
		log.Warn("cart validation failed", zap.Int("problem_count", len(problems)))
		return nil, &ValidationError{Problems: problems}
	}

	return lines, nil
}
