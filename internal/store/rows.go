package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"canteen-service/internal/models"
)

type accountRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Email       string    `db:"email"`
	School      string    `db:"school"`
	Balance     int64     `db:"balance"`
	MoneySpent  int64     `db:"money_spent"`
	Servings    int64     `db:"servings"`
	Drinks      int64     `db:"drinks"`
	Snacks      int64     `db:"snacks"`
	IsStaff     bool      `db:"is_staff"`
	IsAdmin     bool      `db:"is_admin"`
	IsAvailable bool      `db:"is_available"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r *accountRow) toModel() *models.Account {
	return &models.Account{
		ID:      r.ID,
		Name:    r.Name,
		Email:   r.Email,
		School:  r.School,
		Balance: r.Balance,
		Stats: models.AccountStats{
			MoneySpent: r.MoneySpent,
			CategoryQuantities: models.CategoryQuantities{
				Servings: r.Servings,
				Drinks:   r.Drinks,
				Snacks:   r.Snacks,
			},
		},
		IsStaff:     r.IsStaff,
		IsAdmin:     r.IsAdmin,
		IsAvailable: r.IsAvailable,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type productRow struct {
	ID             string        `db:"id"`
	Name           string        `db:"name"`
	Type           string        `db:"type"`
	SizeWithPrices []byte        `db:"size_with_prices"`
	IsAvailable    bool          `db:"is_available"`
	Stock          sql.NullInt64 `db:"stock"`
	Ingredients    []byte        `db:"ingredients"`
	CreatedAt      time.Time     `db:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at"`
}

func (r *productRow) toModel() (*models.Product, error) {
	p := &models.Product{
		ID:          r.ID,
		Name:        r.Name,
		Type:        models.ProductType(r.Type),
		IsAvailable: r.IsAvailable,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if err := json.Unmarshal(r.SizeWithPrices, &p.SizeWithPrices); err != nil {
		return nil, fmt.Errorf("failed to decode sizes of product %s: %w", r.ID, err)
	}
	if len(r.Ingredients) > 0 {
		if err := json.Unmarshal(r.Ingredients, &p.Ingredients); err != nil {
			return nil, fmt.Errorf("failed to decode ingredients of product %s: %w", r.ID, err)
		}
	}
	if r.Stock.Valid {
		stock := r.Stock.Int64
		p.Stock = &stock
	}
	return p, nil
}

type ingredientRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Category  string    `db:"category"`
	IsVege    bool      `db:"is_vege"`
	IsVegan   bool      `db:"is_vegan"`
	Price     int64     `db:"price"`
	Allergen  string    `db:"allergen"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *ingredientRow) toModel() models.Ingredient {
	return models.Ingredient{
		ID:       r.ID,
		Name:     r.Name,
		Category: r.Category,
		IsVege:   r.IsVege,
		IsVegan:  r.IsVegan,
		Price:    r.Price,
		Allergen: r.Allergen,
	}
}

type transactionRow struct {
	ID               string         `db:"id"`
	Kind             string         `db:"kind"`
	CustomerID       string         `db:"customer_id"`
	StaffID          sql.NullString `db:"staff_id"`
	Amount           int64          `db:"amount"`
	Lines            []byte         `db:"lines"`
	Quantities       []byte         `db:"quantities"`
	State            sql.NullString `db:"state"`
	NeedsPreparation bool           `db:"needs_preparation"`
	CashedIn         bool           `db:"cashed_in"`
	CashedInAt       sql.NullTime   `db:"cashed_in_at"`
	IdempotencyKey   sql.NullString `db:"idempotency_key"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r *transactionRow) toModel() (models.Transaction, error) {
	header := models.TransactionHeader{
		ID:         r.ID,
		CustomerID: r.CustomerID,
		StaffID:    r.StaffID.String,
		CreatedAt:  r.CreatedAt,
	}

	switch models.TransactionKind(r.Kind) {
	case models.TransactionKindRecharge:
		return &models.Recharge{TransactionHeader: header, Amount: r.Amount}, nil
	case models.TransactionKindOrder:
		o := &models.Order{
			TransactionHeader: header,
			Price:             r.Amount,
			State:             models.OrderState(r.State.String),
			NeedsPreparation:  r.NeedsPreparation,
			CashedIn:          r.CashedIn,
			IdempotencyKey:    r.IdempotencyKey.String,
			UpdatedAt:         r.UpdatedAt,
		}
		if r.CashedInAt.Valid {
			at := r.CashedInAt.Time
			o.CashedInAt = &at
		}
		if err := json.Unmarshal(r.Lines, &o.Lines); err != nil {
			return nil, fmt.Errorf("failed to decode lines of order %s: %w", r.ID, err)
		}
		if err := json.Unmarshal(r.Quantities, &o.Quantities); err != nil {
			return nil, fmt.Errorf("failed to decode quantities of order %s: %w", r.ID, err)
		}
		return o, nil
	}
	return nil, fmt.Errorf("unknown transaction kind %q", r.Kind)
}

// rowEncoder turns a Transaction into its table row
type rowEncoder struct {
	row transactionRow
}

func encodeTransaction(t models.Transaction) (*transactionRow, error) {
	enc := &rowEncoder{}
	if err := t.Accept(enc); err != nil {
		return nil, err
	}
	return &enc.row, nil
}

func (e *rowEncoder) header(h models.TransactionHeader, kind models.TransactionKind) {
	e.row.ID = h.ID
	e.row.Kind = string(kind)
	e.row.CustomerID = h.CustomerID
	e.row.StaffID = nullString(h.StaffID)
	e.row.CreatedAt = h.CreatedAt
	e.row.UpdatedAt = h.CreatedAt
}

func (e *rowEncoder) VisitRecharge(r *models.Recharge) error {
	e.header(r.TransactionHeader, models.TransactionKindRecharge)
	e.row.Amount = r.Amount
	return nil
}

func (e *rowEncoder) VisitOrder(o *models.Order) error {
	e.header(o.TransactionHeader, models.TransactionKindOrder)
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("failed to encode order lines: %w", err)
	}
	quantities, err := json.Marshal(o.Quantities)
	if err != nil {
		return fmt.Errorf("failed to encode order quantities: %w", err)
	}
	e.row.Amount = o.Price
	e.row.Lines = lines
	e.row.Quantities = quantities
	e.row.State = nullString(string(o.State))
	e.row.NeedsPreparation = o.NeedsPreparation
	e.row.CashedIn = o.CashedIn
	if o.CashedInAt != nil {
		e.row.CashedInAt = sql.NullTime{Time: *o.CashedInAt, Valid: true}
	}
	e.row.IdempotencyKey = nullString(o.IdempotencyKey)
	if !o.UpdatedAt.IsZero() {
		e.row.UpdatedAt = o.UpdatedAt
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
