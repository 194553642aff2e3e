package service

import (
	"context"
	"strings"
	"time"

	"canteen-service/internal/models"
	"canteen-service/internal/store"
	"canteen-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CatalogCache holds the product listing between catalog writes
type CatalogCache interface {
	GetProducts(ctx context.Context) ([]models.Product, bool, error)
	SetProducts(ctx context.Context, products []models.Product, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

// CatalogService manages products and ingredients
type CatalogService struct {
	store    store.Repository
	cache    CatalogCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewCatalogService creates a new catalog service. cache may be nil.
func NewCatalogService(repo store.Repository, cache CatalogCache, cacheTTL time.Duration) *CatalogService {
	return &CatalogService{
		store:    repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

// CreateProductRequest describes a new menu entry
type CreateProductRequest struct {
	Name           string             `json:"name" binding:"required"`
	Type           models.ProductType `json:"type" binding:"required"`
	SizeWithPrices map[string]int64   `json:"size_with_prices" binding:"required"`
	IsAvailable    *bool              `json:"is_available,omitempty"`
	Stock          *int64             `json:"stock,omitempty"`
	IngredientIDs  []string           `json:"ingredient_ids,omitempty"`
}

// CreateIngredientRequest describes a new ingredient
type CreateIngredientRequest struct {
	Name     string `json:"name" binding:"required"`
	Category string `json:"category"`
	IsVege   bool   `json:"is_vege"`
	IsVegan  bool   `json:"is_vegan"`
	Price    int64  `json:"price"`
	Allergen string `json:"allergen,omitempty"`
}

// ListProducts returns the whole catalog. It may be served from the cache and is
// never used to price an order.
func (cs *CatalogService) ListProducts(ctx context.Context, actorID string) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	if _, err := loadActor(ctx, cs.store, actorID); err != nil {
		return nil, err
	}

	if cs.cache != nil {
		products, ok, err := cs.cache.GetProducts(ctx)
		switch {
		case err != nil:
			util.CatalogCacheRequests.WithLabelValues("error").Inc()
			cs.logger.Warn("Catalog cache read failed, falling back to DB", zap.Error(err))
		case ok:
			util.CatalogCacheRequests.WithLabelValues("hit").Inc()
			return products, nil
		default:
			util.CatalogCacheRequests.WithLabelValues("miss").Inc()
		}
	}

	products, err := cs.store.ListProducts(ctx)
	if err != nil {
		return nil, fromStore(err, "products")
	}

	if cs.cache != nil {
		if err := cs.cache.SetProducts(ctx, products, cs.cacheTTL); err != nil {
			cs.logger.Warn("Failed to cache catalog", zap.Error(err))
		}
	}
	return products, nil
}

// GetProduct reads one product straight from storage
func (cs *CatalogService) GetProduct(ctx context.Context, actorID, id string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduct")
	defer span.End()

	if _, err := loadActor(ctx, cs.store, actorID); err != nil {
		return nil, err
	}
	p, err := cs.store.GetProduct(ctx, id)
	if err != nil {
		return nil, fromStore(err, "product")
	}
	return p, nil
}

// CreateProduct adds a product. Ingredients are copied by value from the ingredient catalog.
func (cs *CatalogService) CreateProduct(ctx context.Context, actorID string, req *CreateProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")
	defer span.End()

	if _, err := requireStaff(ctx, cs.store, actorID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, newError(KindInvalidArgument, "product name is required")
	}
	if !req.Type.Valid() {
		return nil, newError(KindInvalidArgument, "unknown product type %q", req.Type)
	}
	if err := validatePrices(req.SizeWithPrices); err != nil {
		return nil, err
	}
	if err := validateStock(req.Stock); err != nil {
		return nil, err
	}

	ingredients, err := cs.resolveIngredients(ctx, req.IngredientIDs)
	if err != nil {
		return nil, err
	}

	p := &models.Product{
		ID:             uuid.New().String(),
		Name:           strings.TrimSpace(req.Name),
		Type:           req.Type,
		SizeWithPrices: req.SizeWithPrices,
		IsAvailable:    req.IsAvailable == nil || *req.IsAvailable,
		Stock:          req.Stock,
		Ingredients:    ingredients,
	}
	if _, ok := p.UnitSurcharge(); !ok {
		return nil, newError(KindInvalidArgument, "ingredient surcharge is too large")
	}
	if err := cs.store.CreateProduct(ctx, p); err != nil {
		return nil, fromStore(err, "product")
	}

	cs.invalidate(ctx)
	cs.logger.Info("Product created", zap.String("product_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

func (cs *CatalogService) resolveIngredients(ctx context.Context, ids []string) ([]models.Ingredient, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := cs.store.GetIngredientsByIDs(ctx, ids)
	if err != nil {
		return nil, fromStore(err, "ingredients")
	}
	byID := make(map[string]models.Ingredient, len(found))
	for _, ing := range found {
		byID[ing.ID] = ing
	}

	out := make([]models.Ingredient, 0, len(ids))
	for _, id := range ids {
		ing, ok := byID[id]
		if !ok {
			return nil, newError(KindNotFound, "ingredient %s not found", id)
		}
		out = append(out, ing)
	}
	return out, nil
}

// SetAvailability toggles whether a product can be ordered
func (cs *CatalogService) SetAvailability(ctx context.Context, actorID, id string, available bool) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.SetAvailability")
	defer span.End()

	return cs.update(ctx, actorID, id, func() error {
		return cs.store.SetProductAvailability(ctx, id, available)
	})
}

// SetStock sets the stock of a product; nil makes it unlimited
func (cs *CatalogService) SetStock(ctx context.Context, actorID, id string, stock *int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.SetStock")
	defer span.End()

	if err := validateStock(stock); err != nil {
		return nil, err
	}
	return cs.update(ctx, actorID, id, func() error {
		return cs.store.SetProductStock(ctx, id, stock)
	})
}

// SetPrices replaces the size price table of a product
func (cs *CatalogService) SetPrices(ctx context.Context, actorID, id string, prices map[string]int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.SetPrices")
	defer span.End()

	if err := validatePrices(prices); err != nil {
		return nil, err
	}
	return cs.update(ctx, actorID, id, func() error {
		return cs.store.SetProductPrices(ctx, id, prices)
	})
}

func (cs *CatalogService) update(ctx context.Context, actorID, id string, write func() error) (*models.Product, error) {
	staff, err := requireStaff(ctx, cs.store, actorID)
	if err != nil {
		return nil, err
	}
	if err := write(); err != nil {
		return nil, fromStore(err, "product")
	}
	cs.invalidate(ctx)

	p, err := cs.store.GetProduct(ctx, id)
	if err != nil {
		return nil, fromStore(err, "product")
	}
	cs.logger.Info("Product updated", zap.String("product_id", id), zap.String("staff_id", staff.ID))
	return p, nil
}

func (cs *CatalogService) invalidate(ctx context.Context) {
	if cs.cache == nil {
		return
	}
	if err := cs.cache.Invalidate(ctx); err != nil {
		cs.logger.Error("Failed to invalidate catalog cache", zap.Error(err))
	}
}

// CreateIngredient adds an ingredient to the ingredient catalog
func (cs *CatalogService) CreateIngredient(ctx context.Context, actorID string, req *CreateIngredientRequest) (*models.Ingredient, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateIngredient")
	defer span.End()

	if _, err := requireStaff(ctx, cs.store, actorID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, newError(KindInvalidArgument, "ingredient name is required")
	}
	if req.Price < 0 {
		return nil, newError(KindInvalidArgument, "ingredient price must be non-negative")
	}

	ing := &models.Ingredient{
		ID:       uuid.New().String(),
		Name:     strings.TrimSpace(req.Name),
		Category: req.Category,
		IsVege:   req.IsVege || req.IsVegan,
		IsVegan:  req.IsVegan,
		Price:    req.Price,
		Allergen: req.Allergen,
	}
	if err := cs.store.CreateIngredient(ctx, ing); err != nil {
		return nil, fromStore(err, "ingredient")
	}
	cs.logger.Info("Ingredient created", zap.String("ingredient_id", ing.ID), zap.String("name", ing.Name))
	return ing, nil
}

// ListIngredients returns the ingredient catalog
func (cs *CatalogService) ListIngredients(ctx context.Context, actorID string) ([]models.Ingredient, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListIngredients")
	defer span.End()

	if _, err := loadActor(ctx, cs.store, actorID); err != nil {
		return nil, err
	}
	ings, err := cs.store.ListIngredients(ctx)
	if err != nil {
		return nil, fromStore(err, "ingredients")
	}
	return ings, nil
}

func validatePrices(prices map[string]int64) error {
	if len(prices) == 0 {
		return newError(KindInvalidArgument, "at least one size is required")
	}
	for size, price := range prices {
		if strings.TrimSpace(size) == "" {
			return newError(KindInvalidArgument, "size labels must not be empty")
		}
		if price < 0 {
			return newError(KindInvalidArgument, "price of size %q must be non-negative", size)
		}
	}
	return nil
}

func validateStock(stock *int64) error {
	if stock != nil && *stock < 0 {
		return newError(KindInvalidArgument, "stock must be non-negative")
	}
	return nil
}
