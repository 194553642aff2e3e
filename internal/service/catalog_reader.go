package service

import (
	"context"

	"canteen-service/internal/models"
	"canteen-service/internal/store"
)

// readCatalog locks and returns the stored record of every product referenced by lines.
// Only the ids come from the request; prices, availability and stock come from here.
func readCatalog(ctx context.Context, tx store.Tx, lines []models.LineRequest) (map[string]*models.Product, error) {
	ids := make([]string, 0, len(lines))
	seen := make(map[string]bool, len(lines))
	for _, l := range lines {
		if seen[l.ProductID] {
			continue
		}
		seen[l.ProductID] = true
		ids = append(ids, l.ProductID)
	}

	products, err := tx.LockProducts(ctx, ids)
	if err != nil {
		return nil, fromStore(err, "products")
	}

	for _, id := range ids {
		if _, ok := products[id]; !ok {
			return nil, newError(KindNotFound, "product %s not found", id)
		}
	}
	return products, nil
}
