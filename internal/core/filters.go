package core

import "strings"

// RuleFilter narrows rule listings. Zero values mean "any".
type RuleFilter struct {
	Type     TransactionType
	UserID   string
	IsActive *bool
}

// TransactionFilter narrows transaction listings. Zero values mean "any".
type TransactionFilter struct {
	Type            TransactionType
	UserID          string
	CategoryID      string
	AccountID       string
	RecurringRuleID string
	DateFrom        *Date
	DateTo          *Date
	// Search is a case-insensitive substring matched against notes.
	Search    string
	SortBy    SortField
	SortOrder SortOrder
	Page      int
	Limit     int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// SortField selects the listing order of transactions.
type SortField string

const (
	SortByDate     SortField = "date"
	SortByAmount   SortField = "amount"
	SortByCategory SortField = "category"
)

func (f SortField) IsValid() bool {
	switch f {
	case SortByDate, SortByAmount, SortByCategory:
		return true
	}
	return false
}

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

func (o SortOrder) IsValid() bool {
	return o == SortAsc || o == SortDesc
}

// Normalize clamps paging to sane bounds.
func (f *TransactionFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if !f.SortBy.IsValid() {
		f.SortBy = SortByDate
	}
	if !f.SortOrder.IsValid() {
		f.SortOrder = SortDesc
	}
}

func (f TransactionFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// TransactionPage is one page of a filtered listing.
type TransactionPage struct {
	Data  []Transaction `json:"data"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// RulePatch is a partial rule update. Nil pointers leave the field untouched.
// EndDate, MaxOccurrences and Notes are nullable, so their Set flags
// distinguish "clear" from "leave as is".
type RulePatch struct {
	UserID      *string
	CategoryID  *string
	AccountID   *string
	Amount      *Money
	Currency    *string
	Frequency   *Frequency
	StartDate   *Date
	Description *string
	IsActive    *bool

	SetEndDate        bool
	EndDate           *Date
	SetMaxOccurrences bool
	MaxOccurrences    *int
	SetNotes          bool
	Notes             *string
}

func (p RulePatch) IsEmpty() bool {
	return p.UserID == nil && p.CategoryID == nil && p.AccountID == nil &&
		p.Amount == nil && p.Currency == nil && p.Frequency == nil &&
		p.StartDate == nil && p.Description == nil && p.IsActive == nil &&
		!p.SetEndDate && !p.SetMaxOccurrences && !p.SetNotes
}

// Apply copies the set fields onto r. OccurrenceCount is never touched.
func (p RulePatch) Apply(r *RecurringRule) {
	if p.UserID != nil {
		r.UserID = *p.UserID
	}
	if p.CategoryID != nil {
		r.CategoryID = *p.CategoryID
	}
	if p.AccountID != nil {
		r.AccountID = *p.AccountID
	}
	if p.Amount != nil {
		r.Amount = *p.Amount
	}
	if p.Currency != nil {
		r.Currency = *p.Currency
	}
	if p.Frequency != nil {
		r.Frequency = *p.Frequency
	}
	if p.StartDate != nil {
		r.StartDate = *p.StartDate
	}
	if p.Description != nil {
		r.Description = strings.TrimSpace(*p.Description)
	}
	if p.IsActive != nil {
		r.IsActive = *p.IsActive
	}
	if p.SetEndDate {
		r.EndDate = p.EndDate
	}
	if p.SetMaxOccurrences {
		r.MaxOccurrences = p.MaxOccurrences
	}
	if p.SetNotes {
		r.Notes = p.Notes
	}
}

// TransactionPatch is a partial transaction update. Type and the rule link are
// fixed once a transaction exists.
type TransactionPatch struct {
	UserID     *string
	AccountID  *string
	CategoryID *string
	Date       *Date
	Amount     *Money

	SetNotes bool
	Notes    *string
}

func (p TransactionPatch) IsEmpty() bool {
	return p.UserID == nil && p.AccountID == nil && p.CategoryID == nil &&
		p.Date == nil && p.Amount == nil && !p.SetNotes
}

// ChangesRefs reports whether the account or category is being replaced.
func (p TransactionPatch) ChangesRefs() bool {
	return p.AccountID != nil || p.CategoryID != nil
}

func (p TransactionPatch) Apply(t *Transaction) {
	if p.UserID != nil {
		t.UserID = *p.UserID
	}
	if p.AccountID != nil {
		t.AccountID = *p.AccountID
	}
	if p.CategoryID != nil {
		t.CategoryID = *p.CategoryID
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.SetNotes {
		t.Notes = p.Notes
	}
}

// AccountPatch is a partial account update.
type AccountPatch struct {
	Name     *string
	Type     *string
	IsActive *bool
}

func (p AccountPatch) IsEmpty() bool {
	return p.Name == nil && p.Type == nil && p.IsActive == nil
}
