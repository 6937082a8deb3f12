package sheets

import (
	"context"
	"fmt"

	"household/internal/core"
)

// Row is one mirrored transaction as it appears in the spreadsheet.
type Row struct {
	TransactionID string
	Date          core.Date
	Type          core.TransactionType
	Category      string
	Notes         string
	Amount        core.Money
	RuleID        string
}

// NewRow flattens a stored transaction with its resolved category name.
func NewRow(t core.Transaction, category string) Row {
	r := Row{
		TransactionID: t.ID,
		Date:          t.Date,
		Type:          t.Type,
		Category:      category,
		Amount:        t.Amount,
	}
	if t.Notes != nil {
		r.Notes = *t.Notes
	}
	if t.RecurringRuleID != nil {
		r.RuleID = *t.RecurringRuleID
	}
	return r
}

func (r Row) Validate() error {
	if r.TransactionID == "" {
		return fmt.Errorf("row without transaction id")
	}
	if err := r.Date.Validate(); err != nil {
		return err
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if !r.Type.IsValid() {
		return core.ErrInvalidType
	}
	return nil
}

// Ports for outbound adapters.
type (
	TransactionWriter interface {
		AppendTransaction(ctx context.Context, r Row) (rowRef string, err error)
	}
)
