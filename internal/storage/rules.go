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

const ruleColumns = `id, user_id, recorded_by_user_id, type, category_id, account_id, amount,
	currency, frequency, start_date, end_date, max_occurrences, occurrence_count,
	description, notes, is_active, created_at`

func scanRule(s scanner) (core.RecurringRule, error) {
	var (
		r                          core.RecurringRule
		recordedBy, endDate, notes sql.NullString
		maxOcc                     sql.NullInt64
		typ, freq, amount          string
		startDate, created         string
		active                     int
	)
	err := s.Scan(&r.ID, &r.UserID, &recordedBy, &typ, &r.CategoryID, &r.AccountID, &amount,
		&r.Currency, &freq, &startDate, &endDate, &maxOcc, &r.OccurrenceCount,
		&r.Description, &notes, &active, &created)
	if err != nil {
		return r, err
	}

	r.Type = core.TransactionType(typ)
	r.Frequency = core.Frequency(freq)
	r.RecordedByUserID = stringPtr(recordedBy)
	r.Notes = stringPtr(notes)
	r.IsActive = active != 0
	r.CreatedAt = parseTimestamp(created)

	if r.Amount, err = core.ParseMoney(amount); err != nil {
		return r, fmt.Errorf("rule %s amount %q: %w", r.ID, amount, err)
	}
	if r.StartDate, err = core.ParseDate(startDate); err != nil {
		return r, fmt.Errorf("rule %s start date: %w", r.ID, err)
	}
	if endDate.Valid {
		d, err := core.ParseDate(endDate.String)
		if err != nil {
			return r, fmt.Errorf("rule %s end date: %w", r.ID, err)
		}
		r.EndDate = &d
	}
	if maxOcc.Valid {
		n := int(maxOcc.Int64)
		r.MaxOccurrences = &n
	}
	return r, nil
}

func endDateArg(d *core.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func maxOccArg(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

// CreateRule inserts a new rule. ID, CreatedAt and the occurrence counter are
// assigned here; caller-provided values are ignored.
func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error) {
	rule.ID = uuid.NewString()
	rule.OccurrenceCount = 0
	rule.CreatedAt = r.now()
	rule.Description = strings.TrimSpace(rule.Description)
	rule.Notes = trimmedOrNil(rule.Notes)
	if rule.Currency == "" {
		rule.Currency = core.DefaultCurrency
	}
	if err := rule.Validate(); err != nil {
		return core.RecurringRule{}, err
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkRefs(ctx, tx, rule.AccountID, rule.CategoryID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO recurring_rules (`+ruleColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rule.ID, rule.UserID, nullString(rule.RecordedByUserID), string(rule.Type),
			rule.CategoryID, rule.AccountID, rule.Amount.String(), rule.Currency,
			string(rule.Frequency), rule.StartDate.String(), endDateArg(rule.EndDate),
			maxOccArg(rule.MaxOccurrences), rule.OccurrenceCount, rule.Description,
			nullString(rule.Notes), boolToInt(rule.IsActive), rule.CreatedAt.Format(timestampLayout))
		if err != nil {
			return fmt.Errorf("insert recurring rule: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.RecurringRule{}, err
	}

	slog.InfoContext(ctx, "Recurring rule created",
		"rule_id", rule.ID,
		"frequency", rule.Frequency,
		"start_date", rule.StartDate.String(),
		"amount", rule.Amount.String())
	return rule, nil
}

func (r *SQLiteRepository) GetRule(ctx context.Context, id string) (core.RecurringRule, error) {
	return getRule(ctx, r.db, id)
}

func getRule(ctx context.Context, q dbtx, id string) (core.RecurringRule, error) {
	row := q.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM recurring_rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringRule{}, core.ErrRuleNotFound
	}
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("get recurring rule %s: %w", id, err)
	}
	return rule, nil
}

// ListRules returns rules matching f ordered by creation time.
func (r *SQLiteRepository) ListRules(ctx context.Context, f core.RuleFilter) ([]core.RecurringRule, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, boolToInt(*f.IsActive))
	}

	query := `SELECT ` + ruleColumns + ` FROM recurring_rules`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recurring rules: %w", err)
	}
	defer rows.Close()

	rules := []core.RecurringRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recurring rules: %w", err)
	}
	return rules, nil
}

// ListActiveRules returns every rule the generator should consider.
func (r *SQLiteRepository) ListActiveRules(ctx context.Context) ([]core.RecurringRule, error) {
	active := true
	return r.ListRules(ctx, core.RuleFilter{IsActive: &active})
}

// UpdateRule applies a partial update and returns the stored result.
func (r *SQLiteRepository) UpdateRule(ctx context.Context, id string, patch core.RulePatch) (core.RecurringRule, error) {
	var updated core.RecurringRule
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		rule, err := getRule(ctx, tx, id)
		if err != nil {
			return err
		}
		patch.Apply(&rule)
		rule.Notes = trimmedOrNil(rule.Notes)
		if err := rule.Validate(); err != nil {
			return err
		}
		if patch.SetMaxOccurrences && rule.MaxOccurrences != nil && *rule.MaxOccurrences < rule.OccurrenceCount {
			return fmt.Errorf("%w: %d occurrences already generated", core.ErrInvalidMaxOccurrences, rule.OccurrenceCount)
		}
		if patch.AccountID != nil || patch.CategoryID != nil {
			if err := checkRefs(ctx, tx, rule.AccountID, rule.CategoryID); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `UPDATE recurring_rules SET
				user_id = ?, category_id = ?, account_id = ?, amount = ?, currency = ?,
				frequency = ?, start_date = ?, end_date = ?, max_occurrences = ?,
				description = ?, notes = ?, is_active = ?
			WHERE id = ?`,
			rule.UserID, rule.CategoryID, rule.AccountID, rule.Amount.String(), rule.Currency,
			string(rule.Frequency), rule.StartDate.String(), endDateArg(rule.EndDate),
			maxOccArg(rule.MaxOccurrences), rule.Description, nullString(rule.Notes),
			boolToInt(rule.IsActive), id)
		if err != nil {
			return fmt.Errorf("update recurring rule: %w", err)
		}
		updated = rule
		return nil
	})
	if err != nil {
		return core.RecurringRule{}, err
	}
	return updated, nil
}

// DeleteRule removes a rule. Transactions it generated are kept.
func (r *SQLiteRepository) DeleteRule(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recurring_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete recurring rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete recurring rule: %w", err)
	}
	if n == 0 {
		return core.ErrRuleNotFound
	}
	slog.InfoContext(ctx, "Recurring rule deleted", "rule_id", id)
	return nil
}

// IncrementOccurrenceCount advances the rule's counter from expected to
// expected+1. It fails with core.ErrOccurrenceConflict when the stored counter
// has moved, and core.ErrRuleNotFound when the rule is gone.
func (r *SQLiteRepository) IncrementOccurrenceCount(ctx context.Context, ruleID string, expected int) (core.RecurringRule, error) {
	return incrementOccurrenceCount(ctx, r.db, ruleID, expected)
}

func incrementOccurrenceCount(ctx context.Context, q dbtx, ruleID string, expected int) (core.RecurringRule, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE recurring_rules SET occurrence_count = occurrence_count + 1
		WHERE id = ? AND occurrence_count = ?`, ruleID, expected)
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("increment occurrence count: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("increment occurrence count: %w", err)
	}
	if n == 0 {
		if _, err := getRule(ctx, q, ruleID); err != nil {
			return core.RecurringRule{}, err
		}
		return core.RecurringRule{}, fmt.Errorf("%w: expected %d", core.ErrOccurrenceConflict, expected)
	}
	return getRule(ctx, q, ruleID)
}

func checkRefs(ctx context.Context, q dbtx, accountID, categoryID string) error {
	ok, err := exists(ctx, q, `SELECT 1 FROM accounts WHERE id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("check account: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrAccountNotFound, accountID)
	}
	ok, err = exists(ctx, q, `SELECT 1 FROM categories WHERE id = ?`, categoryID)
	if err != nil {
		return fmt.Errorf("check category: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrCategoryNotFound, categoryID)
	}
	return nil
}
