package store

import (
	"context"
	"database/sql"
	"fmt"

	"canteen-service/internal/models"
)

// CreateAccount inserts a new account
func (s *Store) CreateAccount(ctx context.Context, a *models.Account) error {
	query := `
		INSERT INTO accounts (id, name, email, school, balance, is_staff, is_admin, is_available)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		a.ID, a.Name, a.Email, a.School, a.Balance, a.IsStaff, a.IsAdmin, a.IsAvailable).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	return classify(err)
}

// GetAccount retrieves an account by ID
func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var row accountRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM accounts WHERE id = $1", id); err != nil {
		return nil, notFound(err, "account", id)
	}
	return row.toModel(), nil
}

// UpdateAccountRoles sets the role and availability flags of an account
func (s *Store) UpdateAccountRoles(ctx context.Context, id string, isStaff, isAdmin, isAvailable bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET is_staff = $1, is_admin = $2, is_available = $3, updated_at = NOW() WHERE id = $4",
		isStaff, isAdmin, isAvailable, id)
	return affected(res, err, "account", id)
}

func affected(res sql.Result, err error, what, id string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return nil
}
