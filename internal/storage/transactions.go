package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"household/internal/core"

	"github.com/google/uuid"
)

const transactionColumns = `id, user_id, recorded_by_user_id, account_id, type, category_id,
	recurring_rule_id, date, amount, notes, synced, created_at`

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t                       core.Transaction
		recordedBy, ruleID      sql.NullString
		notes                   sql.NullString
		typ, date, amount, made string
		synced                  int
	)
	err := s.Scan(&t.ID, &t.UserID, &recordedBy, &t.AccountID, &typ, &t.CategoryID,
		&ruleID, &date, &amount, &notes, &synced, &made)
	if err != nil {
		return t, err
	}

	t.Type = core.TransactionType(typ)
	t.RecordedByUserID = stringPtr(recordedBy)
	t.RecurringRuleID = stringPtr(ruleID)
	t.Notes = stringPtr(notes)
	t.Synced = synced != 0
	t.CreatedAt = parseTimestamp(made)

	if t.Date, err = core.ParseDate(date); err != nil {
		return t, fmt.Errorf("transaction %s date: %w", t.ID, err)
	}
	if t.Amount, err = core.ParseMoney(amount); err != nil {
		return t, fmt.Errorf("transaction %s amount %q: %w", t.ID, amount, err)
	}
	return t, nil
}

func (r *SQLiteRepository) insertTransaction(ctx context.Context, q dbtx, t core.Transaction) error {
	_, err := q.ExecContext(ctx, `INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, nullString(t.RecordedByUserID), t.AccountID, string(t.Type),
		t.CategoryID, nullString(t.RecurringRuleID), t.Date.String(), t.Amount.String(),
		nullString(t.Notes), boolToInt(t.Synced), t.CreatedAt.Format(timestampLayout))
	return err
}

// InsertGeneratedTransaction writes the transaction for rule due on date. The
// rule must still exist.
func (r *SQLiteRepository) InsertGeneratedTransaction(ctx context.Context, rule core.RecurringRule, date core.Date) (core.Transaction, error) {
	return r.insertGenerated(ctx, r.db, rule, date)
}

func (r *SQLiteRepository) insertGenerated(ctx context.Context, q dbtx, rule core.RecurringRule, date core.Date) (core.Transaction, error) {
	ok, err := exists(ctx, q, `SELECT 1 FROM recurring_rules WHERE id = ?`, rule.ID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("check recurring rule: %w", err)
	}
	if !ok {
		return core.Transaction{}, core.ErrRuleNotFound
	}

	ruleID := rule.ID
	t := core.Transaction{
		ID:              uuid.NewString(),
		UserID:          rule.UserID,
		AccountID:       rule.AccountID,
		Type:            rule.Type,
		CategoryID:      rule.CategoryID,
		RecurringRuleID: &ruleID,
		Date:            date,
		Amount:          rule.Amount,
		Notes:           rule.Notes,
		CreatedAt:       r.now(),
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	if err := r.insertTransaction(ctx, q, t); err != nil {
		return core.Transaction{}, fmt.Errorf("insert generated transaction: %w", err)
	}
	return t, nil
}

// GenerateOccurrence materializes occurrence n of rule on date. The insert and
// the counter bump from n to n+1 commit together or not at all.
func (r *SQLiteRepository) GenerateOccurrence(ctx context.Context, rule core.RecurringRule, n int, date core.Date) (core.Transaction, error) {
	var created core.Transaction
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		t, err := r.insertGenerated(ctx, tx, rule, date)
		if err != nil {
			return err
		}
		if _, err := incrementOccurrenceCount(ctx, tx, rule.ID, n); err != nil {
			return err
		}
		created = t
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.DebugContext(ctx, "Occurrence generated",
		"rule_id", rule.ID,
		"occurrence", n,
		"date", date.String(),
		"transaction_id", created.ID)
	return created, nil
}

// CreateTransaction stores a manually entered transaction.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.ID = uuid.NewString()
	t.RecurringRuleID = nil
	t.Synced = false
	t.CreatedAt = r.now()
	t.Notes = trimmedOrNil(t.Notes)
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkRefs(ctx, tx, t.AccountID, t.CategoryID); err != nil {
			return err
		}
		if err := r.insertTransaction(ctx, tx, t); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"type", t.Type,
		"amount", t.Amount.String(),
		"date", t.Date.String())
	return t, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return getTransaction(ctx, r.db, id)
}

func getTransaction(ctx context.Context, q dbtx, id string) (core.Transaction, error) {
	row := q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrTransactionNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return t, nil
}

// UpdateTransaction applies a partial update and returns the stored result.
// The sync flag is left alone: the mirror only ever appends.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error) {
	var updated core.Transaction
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		t, err := getTransaction(ctx, tx, id)
		if err != nil {
			return err
		}
		patch.Apply(&t)
		t.Notes = trimmedOrNil(t.Notes)
		if err := t.Validate(); err != nil {
			return err
		}
		if patch.ChangesRefs() {
			if err := checkRefs(ctx, tx, t.AccountID, t.CategoryID); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `UPDATE transactions SET
				user_id = ?, account_id = ?, category_id = ?, date = ?, amount = ?, notes = ?
			WHERE id = ?`,
			t.UserID, t.AccountID, t.CategoryID, t.Date.String(), t.Amount.String(),
			nullString(t.Notes), id)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction updated",
		"id", updated.ID,
		"amount", updated.Amount.String(),
		"date", updated.Date.String())
	return updated, nil
}

// likeEscaper protects LIKE wildcards in user search terms.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// orderClause renders a whitelisted ORDER BY. Amounts are stored as text, so
// they are compared numerically.
func orderClause(f core.TransactionFilter) string {
	dir := "DESC"
	if f.SortOrder == core.SortAsc {
		dir = "ASC"
	}
	switch f.SortBy {
	case core.SortByAmount:
		return " ORDER BY CAST(amount AS REAL) " + dir + ", date DESC, created_at DESC"
	case core.SortByCategory:
		return " ORDER BY (SELECT name FROM categories WHERE categories.id = transactions.category_id) " +
			dir + ", date DESC, created_at DESC"
	default:
		return " ORDER BY date " + dir + ", created_at " + dir
	}
}

// ListTransactions returns one page of transactions, newest date first unless
// the filter asks for another order.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, f core.TransactionFilter) (core.TransactionPage, error) {
	f.Normalize()

	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		where = append(where, clause)
		args = append(args, v)
	}
	if f.Type != "" {
		add("type = ?", string(f.Type))
	}
	if f.UserID != "" {
		add("user_id = ?", f.UserID)
	}
	if f.CategoryID != "" {
		add("category_id = ?", f.CategoryID)
	}
	if f.AccountID != "" {
		add("account_id = ?", f.AccountID)
	}
	if f.RecurringRuleID != "" {
		add("recurring_rule_id = ?", f.RecurringRuleID)
	}
	if f.DateFrom != nil {
		add("date >= ?", f.DateFrom.String())
	}
	if f.DateTo != nil {
		add("date <= ?", f.DateTo.String())
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		add(`notes LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(term)+"%")
	}

	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	page := core.TransactionPage{Data: []core.Transaction{}, Page: f.Page, Limit: f.Limit}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`+cond, args...).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("count transactions: %w", err)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions` + cond +
		orderClause(f) + ` LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset())...)
	if err != nil {
		return page, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return page, fmt.Errorf("scan transaction: %w", err)
		}
		page.Data = append(page.Data, t)
	}
	if err := rows.Err(); err != nil {
		return page, fmt.Errorf("iterate transactions: %w", err)
	}
	return page, nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n == 0 {
		return core.ErrTransactionNotFound
	}
	return nil
}

// GetPendingSyncTransactions returns ids of transactions not yet mirrored,
// oldest first. Rows flagged with a sync error are left for manual review.
func (r *SQLiteRepository) GetPendingSyncTransactions(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM transactions WHERE synced = 0 AND sync_error = 0
		ORDER BY created_at LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync transactions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending sync transaction: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkSynced marks a transaction as successfully mirrored
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE transactions SET synced = 1, sync_error = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	slog.InfoContext(ctx, "Transaction marked as synced", "id", id)
	return nil
}

// MarkSyncError flags a transaction whose mirror append failed permanently
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE transactions SET sync_error = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id)
	return nil
}
