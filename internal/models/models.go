package models

import (
	"math"
	"sort"
	"time"
)

// ProductType is the menu category of a product
type ProductType string

const (
	ProductTypeServing ProductType = "serving"
	ProductTypeDrink   ProductType = "drink"
	ProductTypeSnack   ProductType = "snack"
)

// Valid reports whether t is a known product type
func (t ProductType) Valid() bool {
	switch t {
	case ProductTypeServing, ProductTypeDrink, ProductTypeSnack:
		return true
	}
	return false
}

// Customizable reports whether products of this type bill their ingredients
func (t ProductType) Customizable() bool {
	return t == ProductTypeServing
}

// CategoryQuantities counts ordered units per product type
type CategoryQuantities struct {
	Servings int64 `json:"servings"`
	Drinks   int64 `json:"drinks"`
	Snacks   int64 `json:"snacks"`
}

// Add adds qty units to the counter for t
func (q *CategoryQuantities) Add(t ProductType, qty int64) {
	switch t {
	case ProductTypeServing:
		q.Servings += qty
	case ProductTypeDrink:
		q.Drinks += qty
	case ProductTypeSnack:
		q.Snacks += qty
	}
}

// Plus returns the element-wise sum of q and o
func (q CategoryQuantities) Plus(o CategoryQuantities) CategoryQuantities {
	return CategoryQuantities{
		Servings: q.Servings + o.Servings,
		Drinks:   q.Drinks + o.Drinks,
		Snacks:   q.Snacks + o.Snacks,
	}
}

// Negate returns q with every counter sign-flipped
func (q CategoryQuantities) Negate() CategoryQuantities {
	return CategoryQuantities{Servings: -q.Servings, Drinks: -q.Drinks, Snacks: -q.Snacks}
}

// Total returns the number of units across all categories
func (q CategoryQuantities) Total() int64 {
	return q.Servings + q.Drinks + q.Snacks
}

// AccountStats holds cumulative spending of one account
type AccountStats struct {
	MoneySpent int64 `json:"money_spent"`
	CategoryQuantities
}

// Account is a customer or staff member with a prepaid balance
type Account struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Email       string       `json:"email"`
	School      string       `json:"school"`
	Balance     int64        `json:"balance"`
	Stats       AccountStats `json:"stats"`
	IsStaff     bool         `json:"is_staff"`
	IsAdmin     bool         `json:"is_admin"`
	IsAvailable bool         `json:"is_available"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Ingredient is an optional component of a customizable product
type Ingredient struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	IsVege   bool   `json:"is_vege"`
	IsVegan  bool   `json:"is_vegan"`
	Price    int64  `json:"price"`
	Allergen string `json:"allergen,omitempty"`
}

// Product is a menu entry. A nil Stock means unlimited supply.
type Product struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Type           ProductType      `json:"type"`
	SizeWithPrices map[string]int64 `json:"size_with_prices"`
	IsAvailable    bool             `json:"is_available"`
	Stock          *int64           `json:"stock,omitempty"`
	Ingredients    []Ingredient     `json:"ingredients,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// IsLimited reports whether the product has a finite stock counter
func (p *Product) IsLimited() bool {
	return p.Stock != nil
}

// UnitSurcharge is the per-unit price added by the product's ingredients.
// ok is false when the sum does not fit in an int64.
func (p *Product) UnitSurcharge() (sum int64, ok bool) {
	if !p.Type.Customizable() {
		return 0, true
	}
	for _, ing := range p.Ingredients {
		if ing.Price < 0 || sum > math.MaxInt64-ing.Price {
			return 0, false
		}
		sum += ing.Price
	}
	return sum, true
}

// Sizes returns the product's size labels in a stable order
func (p *Product) Sizes() []string {
	sizes := make([]string, 0, len(p.SizeWithPrices))
	for s := range p.SizeWithPrices {
		sizes = append(sizes, s)
	}
	sort.Strings(sizes)
	return sizes
}

// LineRequest is one line of an order as submitted by a client.
// Only the product id and the requested quantities are accepted.
type LineRequest struct {
	ProductID          string           `json:"product_id"`
	SizeWithQuantities map[string]int64 `json:"size_with_quantities"`
}

// OrderLine is a priced order line built from authoritative product data
type OrderLine struct {
	ProductID          string           `json:"product_id"`
	ProductName        string           `json:"product_name"`
	ProductType        ProductType      `json:"product_type"`
	SizeWithQuantities map[string]int64 `json:"size_with_quantities"`
	UnitPrices         map[string]int64 `json:"unit_prices"`
	Ingredients        []Ingredient     `json:"ingredients,omitempty"`
	UnitSurcharge      int64            `json:"unit_surcharge"`
	Total              int64            `json:"total"`
}

// Quantity returns the number of units ordered on the line
func (l OrderLine) Quantity() int64 {
	var n int64
	for _, q := range l.SizeWithQuantities {
		n += q
	}
	return n
}

// Stat is the global aggregate over every order and recharge
type Stat struct {
	MoneySpent     int64 `json:"money_spent"`
	OrdersCount    int64 `json:"orders_count"`
	RechargedTotal int64 `json:"recharged_total"`
	CategoryQuantities
	UpdatedAt time.Time `json:"updated_at"`
}

// StatDelta is an increment applied to the global Stat
type StatDelta struct {
	MoneySpent     int64
	OrdersCount    int64
	RechargedTotal int64
	Quantities     CategoryQuantities
}

// OutboxEvent is a domain event recorded in the same unit as the change it describes
type OutboxEvent struct {
	ID          string     `json:"id"`
	EventType   string     `json:"event_type"`
	Key         string     `json:"key"`
	Payload     []byte     `json:"payload"`
	CreatedAt   time.Time  `json:"created_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}
