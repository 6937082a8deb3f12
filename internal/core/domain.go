package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

// DefaultCurrency is stored on rules created without an explicit currency.
const DefaultCurrency = "VND"

type (
	Frequency       string
	TransactionType string

	Account struct {
		ID        string    `json:"id"`
		UserID    string    `json:"userId"`
		Name      string    `json:"name"`
		Type      string    `json:"type"`
		Currency  string    `json:"currency"`
		IsActive  bool      `json:"isActive"`
		CreatedAt time.Time `json:"createdAt"`
	}

	Category struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Type      TransactionType `json:"type"`
		Icon      *string         `json:"icon"`
		SortOrder int             `json:"sortOrder"`
	}

	// RecurringRule is a template that the generator materializes into
	// transactions. OccurrenceCount is the index of the next unmaterialized
	// occurrence and only the generator advances it.
	RecurringRule struct {
		ID               string          `json:"id"`
		UserID           string          `json:"userId"`
		RecordedByUserID *string         `json:"recordedByUserId"`
		Type             TransactionType `json:"type"`
		CategoryID       string          `json:"categoryId"`
		AccountID        string          `json:"accountId"`
		Amount           Money           `json:"amount"`
		Currency         string          `json:"currency"`
		Frequency        Frequency       `json:"frequency"`
		StartDate        Date            `json:"startDate"`
		EndDate          *Date           `json:"endDate"`
		MaxOccurrences   *int            `json:"maxOccurrences"`
		OccurrenceCount  int             `json:"occurrenceCount"`
		Description      string          `json:"description"`
		Notes            *string         `json:"notes"`
		IsActive         bool            `json:"isActive"`
		CreatedAt        time.Time       `json:"createdAt"`
	}

	// Transaction is a single income or expense entry. RecurringRuleID is nil
	// for manually entered transactions.
	Transaction struct {
		ID               string          `json:"id"`
		UserID           string          `json:"userId"`
		RecordedByUserID *string         `json:"recordedByUserId"`
		AccountID        string          `json:"accountId"`
		Type             TransactionType `json:"type"`
		CategoryID       string          `json:"categoryId"`
		RecurringRuleID  *string         `json:"recurringRuleId"`
		Date             Date            `json:"date"`
		Amount           Money           `json:"amount"`
		Notes            *string         `json:"notes"`
		Synced           bool            `json:"synced"`
		CreatedAt        time.Time       `json:"createdAt"`
	}
)

var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrEmptyDescription      = errors.New("empty description")
	ErrDescriptionTooLong    = errors.New("description too long (max 200 characters)")
	ErrInvalidFrequency      = errors.New("invalid frequency")
	ErrInvalidType           = errors.New("type must be income or expense")
	ErrInvalidMaxOccurrences = errors.New("maxOccurrences must be a positive integer")
	ErrEndBeforeStart        = errors.New("end date must not be before start date")
	ErrEmptyUser             = errors.New("empty user")
	ErrEmptyAccount          = errors.New("empty account")
	ErrEmptyCategory         = errors.New("empty category")

	ErrRuleNotFound        = errors.New("recurring rule not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrCategoryNotFound    = errors.New("category not found")

	// ErrOccurrenceConflict is returned when the stored occurrence counter no
	// longer matches the index being generated.
	ErrOccurrenceConflict = errors.New("occurrence counter moved concurrently")
)

func (f Frequency) IsValid() bool {
	switch f {
	case Monthly, Quarterly, Yearly:
		return true
	default:
		return false
	}
}

func (t TransactionType) IsValid() bool {
	return t == Income || t == Expense
}

// NextDueDate returns the due date of the next unmaterialized occurrence.
func (r RecurringRule) NextDueDate() Date {
	return DueDate(r.StartDate, r.Frequency, r.OccurrenceCount)
}

// Exhausted reports whether the rule has reached its occurrence cap.
func (r RecurringRule) Exhausted() bool {
	return r.MaxOccurrences != nil && r.OccurrenceCount >= *r.MaxOccurrences
}

func (r RecurringRule) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrEmptyUser
	}
	if !r.Type.IsValid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(r.CategoryID) == "" {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(r.AccountID) == "" {
		return ErrEmptyAccount
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if !r.Frequency.IsValid() {
		return ErrInvalidFrequency
	}
	if err := r.StartDate.Validate(); err != nil {
		return fmt.Errorf("start date: %w", err)
	}
	if r.EndDate != nil {
		if err := r.EndDate.Validate(); err != nil {
			return fmt.Errorf("end date: %w", err)
		}
		if r.EndDate.Before(r.StartDate) {
			return ErrEndBeforeStart
		}
	}
	if r.MaxOccurrences != nil && *r.MaxOccurrences < 1 {
		return ErrInvalidMaxOccurrences
	}
	if len(strings.TrimSpace(r.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(r.Description) > 200 {
		return ErrDescriptionTooLong
	}
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyUser
	}
	if strings.TrimSpace(t.AccountID) == "" {
		return ErrEmptyAccount
	}
	if !t.Type.IsValid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(t.CategoryID) == "" {
		return ErrEmptyCategory
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	return t.Amount.Validate()
}

// IsGenerated reports whether the transaction was materialized from a rule.
func (t Transaction) IsGenerated() bool {
	return t.RecurringRuleID != nil
}
