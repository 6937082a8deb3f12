package http

import (
	"unicode/utf8"

	"household/internal/core"
)

type createRuleRequest struct {
	UserID           string               `json:"userId" validate:"required"`
	RecordedByUserID *string              `json:"recordedByUserId"`
	Type             core.TransactionType `json:"type" validate:"required,oneof=income expense"`
	CategoryID       string               `json:"categoryId" validate:"required"`
	AccountID        string               `json:"accountId" validate:"required"`
	Amount           core.Money           `json:"amount"`
	Currency         string               `json:"currency" validate:"omitempty,len=3"`
	Frequency        core.Frequency       `json:"frequency" validate:"required,oneof=monthly quarterly yearly"`
	StartDate        core.Date            `json:"startDate"`
	EndDate          *core.Date           `json:"endDate"`
	MaxOccurrences   *int                 `json:"maxOccurrences" validate:"omitnil,min=1"`
	Description      string               `json:"description" validate:"required,max=200"`
	Notes            *string              `json:"notes" validate:"omitnil,max=1000"`
}

func (req createRuleRequest) toRule() core.RecurringRule {
	return core.RecurringRule{
		UserID:           req.UserID,
		RecordedByUserID: req.RecordedByUserID,
		Type:             req.Type,
		CategoryID:       req.CategoryID,
		AccountID:        req.AccountID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		Frequency:        req.Frequency,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		MaxOccurrences:   req.MaxOccurrences,
		Description:      req.Description,
		Notes:            req.Notes,
	}
}

type patchRuleRequest struct {
	UserID      *string         `json:"userId" validate:"omitnil,min=1"`
	CategoryID  *string         `json:"categoryId" validate:"omitnil,min=1"`
	AccountID   *string         `json:"accountId" validate:"omitnil,min=1"`
	Amount      *core.Money     `json:"amount"`
	Currency    *string         `json:"currency" validate:"omitnil,len=3"`
	Frequency   *core.Frequency `json:"frequency" validate:"omitnil,oneof=monthly quarterly yearly"`
	StartDate   *core.Date      `json:"startDate"`
	Description *string         `json:"description" validate:"omitnil,min=1,max=200"`
	IsActive    *bool           `json:"isActive"`

	EndDate        nullable[core.Date] `json:"endDate"`
	MaxOccurrences nullable[int]       `json:"maxOccurrences"`
	Notes          nullable[string]    `json:"notes"`
}

func (req patchRuleRequest) toPatch() (core.RulePatch, error) {
	if req.MaxOccurrences.Value != nil && *req.MaxOccurrences.Value < 1 {
		return core.RulePatch{}, core.ErrInvalidMaxOccurrences
	}
	return core.RulePatch{
		UserID:            req.UserID,
		CategoryID:        req.CategoryID,
		AccountID:         req.AccountID,
		Amount:            req.Amount,
		Currency:          req.Currency,
		Frequency:         req.Frequency,
		StartDate:         req.StartDate,
		Description:       req.Description,
		IsActive:          req.IsActive,
		SetEndDate:        req.EndDate.Set,
		EndDate:           req.EndDate.Value,
		SetMaxOccurrences: req.MaxOccurrences.Set,
		MaxOccurrences:    req.MaxOccurrences.Value,
		SetNotes:          req.Notes.Set,
		Notes:             req.Notes.Value,
	}, nil
}

type createTransactionRequest struct {
	UserID           string               `json:"userId" validate:"required"`
	RecordedByUserID *string              `json:"recordedByUserId"`
	AccountID        string               `json:"accountId" validate:"required"`
	Type             core.TransactionType `json:"type" validate:"required,oneof=income expense"`
	CategoryID       string               `json:"categoryId" validate:"required"`
	Date             core.Date            `json:"date"`
	Amount           core.Money           `json:"amount"`
	Notes            *string              `json:"notes" validate:"omitnil,max=1000"`
}

func (req createTransactionRequest) toTransaction() core.Transaction {
	return core.Transaction{
		UserID:           req.UserID,
		RecordedByUserID: req.RecordedByUserID,
		AccountID:        req.AccountID,
		Type:             req.Type,
		CategoryID:       req.CategoryID,
		Date:             req.Date,
		Amount:           req.Amount,
		Notes:            req.Notes,
	}
}

type patchTransactionRequest struct {
	UserID     *string     `json:"userId" validate:"omitnil,min=1"`
	AccountID  *string     `json:"accountId" validate:"omitnil,min=1"`
	CategoryID *string     `json:"categoryId" validate:"omitnil,min=1"`
	Date       *core.Date  `json:"date"`
	Amount     *core.Money `json:"amount"`

	Notes nullable[string] `json:"notes"`
}

func (req patchTransactionRequest) toPatch() (core.TransactionPatch, error) {
	if req.Notes.Value != nil && utf8.RuneCountInString(*req.Notes.Value) > 1000 {
		return core.TransactionPatch{}, badRequest{"notes must be at most 1000 characters"}
	}
	return core.TransactionPatch{
		UserID:     req.UserID,
		AccountID:  req.AccountID,
		CategoryID: req.CategoryID,
		Date:       req.Date,
		Amount:     req.Amount,
		SetNotes:   req.Notes.Set,
		Notes:      req.Notes.Value,
	}, nil
}

type createAccountRequest struct {
	UserID   string `json:"userId" validate:"required"`
	Name     string `json:"name" validate:"required,max=100"`
	Type     string `json:"type" validate:"required,max=50"`
	Currency string `json:"currency" validate:"omitempty,len=3"`
}

type patchAccountRequest struct {
	Name     *string `json:"name" validate:"omitnil,min=1,max=100"`
	Type     *string `json:"type" validate:"omitnil,min=1,max=50"`
	IsActive *bool   `json:"isActive"`
}

type runRequest struct {
	Today string `json:"today"`
}
