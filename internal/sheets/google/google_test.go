package google

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"household/internal/core"
	ports "household/internal/sheets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnvMissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background())
	require.Error(t, err)
	assert.Equal(t, "missing GOOGLE_SPREADSHEET_ID", err.Error())
}

func TestNewFromEnvMissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "sheet-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFromEnv(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing service account credentials")
}

func TestNewFromEnvRejectsMalformedCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "sheet-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", `{"type":"authorized_user"}`)

	_, err := NewFromEnv(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse service account credentials")
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"authorized_user"}`), 0o600))
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", path)

	data, err := loadCredentials()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"authorized_user"}`, string(data))

	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", `{"inline":true}`)
	data, err = loadCredentials()
	require.NoError(t, err)
	assert.Equal(t, `{"inline":true}`, string(data))

	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", filepath.Join(t.TempDir(), "missing.json"))
	_, err = loadCredentials()
	assert.ErrorContains(t, err, "read service account file")
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base     string
		year     int
		expected string
	}{
		{"Transactions", 2025, "2025 Transactions"},
		{"  Household ", 2024, "2024 Household"},
		{"", 2023, ""},
		{"2025 Already Prefixed", 2024, "2025 Already Prefixed"},
		{"12345", 2024, "2024 12345"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, yearPrefixedName(tt.base, tt.year), tt.base)
	}
}

func TestRowValues(t *testing.T) {
	notes := "January rent"
	rule := "rule-1"
	tx := core.Transaction{
		ID:              "tx-1",
		Type:            core.Expense,
		Date:            core.NewDate(2025, 1, 31),
		Amount:          core.MustMoney("1500000"),
		Notes:           &notes,
		RecurringRuleID: &rule,
	}

	got := rowValues(ports.NewRow(tx, "Housing"))
	assert.Equal(t, []any{"2025-01-31", "expense", "Housing", "1500000.00", "January rent", "tx-1", "rule-1", 1}, got)
}

func TestAppendTransactionValidatesFirst(t *testing.T) {
	c := &Client{spreadsheetID: "test", sheetBase: defaultSheetBase}

	_, err := c.AppendTransaction(context.Background(), ports.Row{})
	assert.ErrorContains(t, err, "validation failed")

	row := ports.NewRow(core.Transaction{
		ID:     "tx-1",
		Type:   core.Income,
		Date:   core.NewDate(2025, 3, 1),
		Amount: core.MustMoney("10"),
	}, "Salary")
	_, err = c.AppendTransaction(context.Background(), row)
	assert.ErrorContains(t, err, "sheets service not initialized")
}
