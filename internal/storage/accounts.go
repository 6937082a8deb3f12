package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"household/internal/core"

	"github.com/google/uuid"
)

const accountColumns = `id, user_id, name, type, currency, is_active, created_at`

func scanAccount(s scanner) (core.Account, error) {
	var (
		a       core.Account
		active  int
		created string
	)
	if err := s.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &a.Currency, &active, &created); err != nil {
		return a, err
	}
	a.IsActive = active != 0
	a.CreatedAt = parseTimestamp(created)
	return a, nil
}

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	a.ID = uuid.NewString()
	a.Name = strings.TrimSpace(a.Name)
	a.IsActive = true
	a.CreatedAt = r.now()
	if a.Currency == "" {
		a.Currency = core.DefaultCurrency
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, a.Type, a.Currency, boolToInt(a.IsActive), a.CreatedAt.Format(timestampLayout))
	if err != nil {
		return core.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return a, nil
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id string) (core.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.ErrAccountNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account %s: %w", id, err)
	}
	return a, nil
}

// ListAccounts returns accounts ordered by creation; an empty userID lists all.
func (r *SQLiteRepository) ListAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []core.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *SQLiteRepository) UpdateAccount(ctx context.Context, id string, p core.AccountPatch) (core.Account, error) {
	var sets []string
	var args []any
	if p.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, strings.TrimSpace(*p.Name))
	}
	if p.Type != nil {
		sets = append(sets, "type = ?")
		args = append(args, *p.Type)
	}
	if p.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, boolToInt(*p.IsActive))
	}
	if len(sets) > 0 {
		res, err := r.db.ExecContext(ctx, `UPDATE accounts SET `+strings.Join(sets, ", ")+` WHERE id = ?`, append(args, id)...)
		if err != nil {
			return core.Account{}, fmt.Errorf("update account: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return core.Account{}, core.ErrAccountNotFound
		}
	}
	return r.GetAccount(ctx, id)
}

// ListCategories returns the seeded categories, optionally narrowed by type.
func (r *SQLiteRepository) ListCategories(ctx context.Context, typ core.TransactionType) ([]core.Category, error) {
	query := `SELECT id, name, type, icon, sort_order FROM categories`
	var args []any
	if typ != "" {
		query += ` WHERE type = ?`
		args = append(args, string(typ))
	}
	query += ` ORDER BY type, sort_order, name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []core.Category{}
	for rows.Next() {
		var (
			c    core.Category
			kind string
			icon sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Name, &kind, &icon, &c.SortOrder); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Type = core.TransactionType(kind)
		c.Icon = stringPtr(icon)
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id string) (core.Category, error) {
	var (
		c    core.Category
		kind string
		icon sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, type, icon, sort_order FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &kind, &icon, &c.SortOrder)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.ErrCategoryNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	c.Type = core.TransactionType(kind)
	c.Icon = stringPtr(icon)
	return c, nil
}
