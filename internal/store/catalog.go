package store

import (
	"context"
	"encoding/json"
	"fmt"

	"canteen-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetProduct retrieves a product by ID
func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var row productRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM products WHERE id = $1", id); err != nil {
		return nil, notFound(err, "product", id)
	}
	return row.toModel()
}

// ListProducts retrieves all products
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	var rows []productRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM products ORDER BY type, name"); err != nil {
		return nil, err
	}

	products := make([]models.Product, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, nil
}

// CreateProduct inserts a new product
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	sizes, err := json.Marshal(p.SizeWithPrices)
	if err != nil {
		return fmt.Errorf("failed to encode sizes: %w", err)
	}
	ingredients := p.Ingredients
	if ingredients == nil {
		ingredients = []models.Ingredient{}
	}
	ings, err := json.Marshal(ingredients)
	if err != nil {
		return fmt.Errorf("failed to encode ingredients: %w", err)
	}

	query := `
		INSERT INTO products (id, name, type, size_with_prices, is_available, stock, ingredients)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		p.ID, p.Name, p.Type, sizes, p.IsAvailable, p.Stock, ings).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

// SetProductAvailability toggles whether a product can be ordered
func (s *Store) SetProductAvailability(ctx context.Context, id string, available bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET is_available = $1, updated_at = NOW() WHERE id = $2",
		available, id)
	return affected(res, err, "product", id)
}

// SetProductStock sets the stock counter. A nil stock makes the product unlimited.
func (s *Store) SetProductStock(ctx context.Context, id string, stock *int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET stock = $1, updated_at = NOW() WHERE id = $2",
		stock, id)
	return affected(res, err, "product", id)
}

// SetProductPrices replaces the size price table of a product
func (s *Store) SetProductPrices(ctx context.Context, id string, prices map[string]int64) error {
	sizes, err := json.Marshal(prices)
	if err != nil {
		return fmt.Errorf("failed to encode sizes: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET size_with_prices = $1, updated_at = NOW() WHERE id = $2",
		sizes, id)
	return affected(res, err, "product", id)
}

// CreateIngredient inserts a new ingredient
func (s *Store) CreateIngredient(ctx context.Context, ing *models.Ingredient) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingredients (id, name, category, is_vege, is_vegan, price, allergen)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ing.ID, ing.Name, ing.Category, ing.IsVege, ing.IsVegan, ing.Price, ing.Allergen)
	return err
}

// GetIngredientsByIDs retrieves the ingredients with the given IDs
func (s *Store) GetIngredientsByIDs(ctx context.Context, ids []string) ([]models.Ingredient, error) {
	if len(ids) == 0 {
		return []models.Ingredient{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM ingredients WHERE id IN (?) ORDER BY name", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var rows []ingredientRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return ingredientModels(rows), nil
}

// ListIngredients retrieves all ingredients
func (s *Store) ListIngredients(ctx context.Context) ([]models.Ingredient, error) {
	var rows []ingredientRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM ingredients ORDER BY category, name"); err != nil {
		return nil, err
	}
	return ingredientModels(rows), nil
}

func ingredientModels(rows []ingredientRow) []models.Ingredient {
	out := make([]models.Ingredient, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out
}
