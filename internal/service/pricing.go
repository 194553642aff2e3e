package service

import (
	"math"

	"canteen-service/internal/models"
)

// pricedOrder is the server-side price of a validated order
type pricedOrder struct {
	lines      []models.OrderLine
	total      int64
	quantities models.CategoryQuantities
}

// priceOrder computes every line total from stored prices and ingredient surcharges
func priceOrder(lines []validatedLine) (*pricedOrder, error) {
	priced := &pricedOrder{lines: make([]models.OrderLine, 0, len(lines))}

	for _, vl := range lines {
		p := vl.product
		surcharge, ok := p.UnitSurcharge()
		if !ok {
			return nil, overflow()
		}

		line := models.OrderLine{
			ProductID:          p.ID,
			ProductName:        p.Name,
			ProductType:        p.Type,
			SizeWithQuantities: make(map[string]int64, len(vl.quantities)),
			UnitPrices:         make(map[string]int64, len(vl.quantities)),
			UnitSurcharge:      surcharge,
		}
		if p.Type.Customizable() {
			line.Ingredients = append([]models.Ingredient(nil), p.Ingredients...)
		}

		for size, qty := range vl.quantities {
			unit, ok := addInt64(p.SizeWithPrices[size], surcharge)
			if !ok {
				return nil, overflow()
			}
			sub, ok := mulInt64(unit, qty)
			if !ok {
				return nil, overflow()
			}
			if line.Total, ok = addInt64(line.Total, sub); !ok {
				return nil, overflow()
			}
			line.SizeWithQuantities[size] = qty
			line.UnitPrices[size] = p.SizeWithPrices[size]
			priced.quantities.Add(p.Type, qty)
		}

		if priced.total, ok = addInt64(priced.total, line.Total); !ok {
			return nil, overflow()
		}
		priced.lines = append(priced.lines, line)
	}
	if priced.total < 0 {
		return nil, newError(KindInvalidArgument, "order total is negative")
	}

	return priced, nil
}

func overflow() error {
	return newError(KindInvalidArgument, "order total is too large")
}

func addInt64(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	c := a * b
	if c/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	return c, true
}
