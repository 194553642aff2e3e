package service

import (
	"sort"
	"strings"

	"canteen-service/internal/models"
)

// validatedLine is a request line checked against its stored product.
// quantities holds only the sizes with a positive quantity.
type validatedLine struct {
	product    *models.Product
	quantities map[string]int64
}

// validateRequest checks the shape of an order request before anything is read
func validateRequest(req *MakeOrderRequest) error {
	if req == nil {
		return newError(KindInvalidArgument, "order request is required")
	}
	if req.AccountID == "" {
		return newError(KindInvalidArgument, "account id is required")
	}
	if len(req.Lines) == 0 {
		return newError(KindInvalidArgument, "order has no lines")
	}
	for i, l := range req.Lines {
		if l.ProductID == "" {
			return newError(KindInvalidArgument, "line %d has no product id", i)
		}
	}
	return nil
}

// validateLines checks every (product, size, quantity) tuple. It fails on the first
// offending tuple so that nothing of a partly valid order is accepted.
func validateLines(lines []models.LineRequest, products map[string]*models.Product) ([]validatedLine, error) {
	remaining := make(map[string]int64)
	for id, p := range products {
		if p.IsLimited() {
			remaining[id] = *p.Stock
		}
	}

	out := make([]validatedLine, 0, len(lines))
	var units int64
	for _, l := range lines {
		p := products[l.ProductID]

		sizes := make([]string, 0, len(l.SizeWithQuantities))
		for size := range l.SizeWithQuantities {
			sizes = append(sizes, size)
		}
		sort.Strings(sizes)

		vl := validatedLine{product: p, quantities: make(map[string]int64, len(sizes))}
		for _, size := range sizes {
			qty := l.SizeWithQuantities[size]

			if !p.IsAvailable {
				return nil, newError(KindUnavailable, "product %s is not available", p.Name)
			}
			if qty < 0 {
				return nil, newError(KindInvalidArgument, "quantities must be non-negative")
			}
			if _, ok := p.SizeWithPrices[size]; !ok {
				return nil, newError(KindInvalidArgument, "size %q does not exist for product %s (available: %s)",
					size, p.Name, strings.Join(p.Sizes(), ", "))
			}
			if p.IsLimited() {
				if remaining[p.ID] < qty {
					return nil, newError(KindResourceExhausted, "not enough %s left in stock", p.Name)
				}
				remaining[p.ID] -= qty
			}

			if qty > 0 {
				vl.quantities[size] = qty
				var ok bool
				if units, ok = addInt64(units, qty); !ok {
					return nil, newError(KindInvalidArgument, "order quantity is too large")
				}
			}
		}

		if len(vl.quantities) > 0 {
			out = append(out, vl)
		}
	}

	if units == 0 {
		return nil, newError(KindInvalidArgument, "order is empty")
	}
	return out, nil
}
