package services

import (
	"context"
	"errors"

	"household/internal/core"
)

// ErrEmptyPatch is returned when an update carries no fields.
var ErrEmptyPatch = errors.New("no valid fields to update")

// RuleStore is the persistence surface RuleService needs.
type RuleStore interface {
	CreateRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error)
	GetRule(ctx context.Context, id string) (core.RecurringRule, error)
	ListRules(ctx context.Context, f core.RuleFilter) ([]core.RecurringRule, error)
	UpdateRule(ctx context.Context, id string, patch core.RulePatch) (core.RecurringRule, error)
	DeleteRule(ctx context.Context, id string) error
}

// RuleView is a rule together with the date of its next unmaterialized
// occurrence.
type RuleView struct {
	core.RecurringRule
	NextDueDate core.Date `json:"nextDueDate"`
}

func viewOf(r core.RecurringRule) RuleView {
	return RuleView{RecurringRule: r, NextDueDate: r.NextDueDate()}
}

type RuleService struct {
	store RuleStore
}

func NewRuleService(store RuleStore) *RuleService {
	return &RuleService{store: store}
}

func (s *RuleService) List(ctx context.Context, f core.RuleFilter) ([]RuleView, error) {
	rules, err := s.store.ListRules(ctx, f)
	if err != nil {
		return nil, err
	}
	views := make([]RuleView, len(rules))
	for i, r := range rules {
		views[i] = viewOf(r)
	}
	return views, nil
}

func (s *RuleService) Get(ctx context.Context, id string) (RuleView, error) {
	r, err := s.store.GetRule(ctx, id)
	if err != nil {
		return RuleView{}, err
	}
	return viewOf(r), nil
}

// Create stores a new active rule. Its first occurrence is due on its start date.
func (s *RuleService) Create(ctx context.Context, rule core.RecurringRule) (RuleView, error) {
	rule.IsActive = true
	created, err := s.store.CreateRule(ctx, rule)
	if err != nil {
		return RuleView{}, err
	}
	return viewOf(created), nil
}

func (s *RuleService) Update(ctx context.Context, id string, patch core.RulePatch) (RuleView, error) {
	if patch.IsEmpty() {
		return RuleView{}, ErrEmptyPatch
	}
	updated, err := s.store.UpdateRule(ctx, id, patch)
	if err != nil {
		return RuleView{}, err
	}
	return viewOf(updated), nil
}

func (s *RuleService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteRule(ctx, id)
}
