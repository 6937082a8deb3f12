package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"household/internal/core"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// badRequest marks malformed input that never reached the domain.
type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest{"request body is empty"}
		}
		return badRequest{fmt.Sprintf("invalid JSON body: %v", err)}
	}
	if dec.More() {
		return badRequest{"request body must contain a single JSON object"}
	}
	return nil
}

// nullable distinguishes an absent JSON field from an explicit null.
type nullable[T any] struct {
	Set   bool
	Value *T
}

func (n *nullable[T]) UnmarshalJSON(b []byte) error {
	n.Set = true
	if string(b) == "null" {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

func queryTransactionType(q url.Values) (core.TransactionType, error) {
	raw := strings.TrimSpace(q.Get("type"))
	if raw == "" {
		return "", nil
	}
	t := core.TransactionType(raw)
	if !t.IsValid() {
		return "", badRequest{fmt.Sprintf("invalid type %q", raw)}
	}
	return t, nil
}

func queryBool(q url.Values, key string) (*bool, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, badRequest{fmt.Sprintf("invalid %s %q", key, raw)}
	}
	return &b, nil
}

func queryDate(q url.Values, key string) (*core.Date, error) {
	d, err := core.ParseOptionalDate(q.Get(key))
	if err != nil {
		return nil, badRequest{fmt.Sprintf("invalid %s: %v", key, err)}
	}
	return d, nil
}

func queryInt(q url.Values, key string) (int, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest{fmt.Sprintf("invalid %s %q", key, raw)}
	}
	return n, nil
}

func parseRuleFilter(q url.Values) (core.RuleFilter, error) {
	var (
		f   core.RuleFilter
		err error
	)
	if f.Type, err = queryTransactionType(q); err != nil {
		return f, err
	}
	if f.IsActive, err = queryBool(q, "isActive"); err != nil {
		return f, err
	}
	f.UserID = strings.TrimSpace(q.Get("userId"))
	return f, nil
}

func parseTransactionFilter(q url.Values) (core.TransactionFilter, error) {
	var (
		f   core.TransactionFilter
		err error
	)
	if f.Type, err = queryTransactionType(q); err != nil {
		return f, err
	}
	if f.DateFrom, err = queryDate(q, "dateFrom"); err != nil {
		return f, err
	}
	if f.DateTo, err = queryDate(q, "dateTo"); err != nil {
		return f, err
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return f, badRequest{"dateTo must not be before dateFrom"}
	}
	if f.Page, err = queryInt(q, "page"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(q, "limit"); err != nil {
		return f, err
	}
	f.UserID = strings.TrimSpace(q.Get("userId"))
	f.CategoryID = strings.TrimSpace(q.Get("categoryId"))
	f.AccountID = strings.TrimSpace(q.Get("accountId"))
	f.RecurringRuleID = strings.TrimSpace(q.Get("recurringRuleId"))
	f.Search = strings.TrimSpace(q.Get("search"))
	if raw := strings.TrimSpace(q.Get("sortBy")); raw != "" {
		f.SortBy = core.SortField(raw)
		if !f.SortBy.IsValid() {
			return f, badRequest{fmt.Sprintf("invalid sortBy %q", raw)}
		}
	}
	if raw := strings.ToLower(strings.TrimSpace(q.Get("sortOrder"))); raw != "" {
		f.SortOrder = core.SortOrder(raw)
		if !f.SortOrder.IsValid() {
			return f, badRequest{fmt.Sprintf("invalid sortOrder %q", raw)}
		}
	}
	f.Normalize()
	return f, nil
}
