package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/b2a/internal/actuals"
)

func TestRoundTrip(t *testing.T) {
	cfg := Default("proj-1", "Lakeview Remodel")
	cfg.Rates.InsuranceRate = "5"
	cfg.Rates.SalesTax = "10.1"
	cfg.Snapshots.URL = "https://billing.example.com/api"
	cfg.ReservedCodes.Profit = "90-100"

	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	rates, err := got.ProjectRates()
	require.NoError(t, err)
	assert.Equal(t, "10", rates.ProfitPercent.String())
	assert.Equal(t, "10.1", rates.SalesTax.String())
}

func TestDefaults(t *testing.T) {
	cfg := Default("proj-1", "Lakeview Remodel")

	assert.Equal(t, "proj-1", cfg.Project.ID)
	assert.Equal(t, "b2a.db", cfg.Database.Path)
	assert.Equal(t, "9900", cfg.ReservedCodes.Profit)
	assert.Equal(t, 3, cfg.Snapshots.MaxAttempts)
	assert.Empty(t, cfg.Snapshots.URL)
	assert.False(t, cfg.Git.AutoCommit)
	assert.Equal(t, "b2a", cfg.Git.AuthorName)

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, actuals.SkipUnknown, policy)

	delay, err := cfg.InitialDelay()
	require.NoError(t, err)
	assert.Equal(t, 300*time.Millisecond, delay)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("project:\n  id: proj-9\nrates:\n  profit_percent: \"12.5\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "proj-9", cfg.Project.ID)
	assert.Equal(t, "12.5", cfg.Rates.ProfitPercent)
	assert.Equal(t, "0", cfg.Rates.SalesTax)
	assert.Equal(t, "300ms", cfg.Snapshots.InitialDelay)
	assert.Equal(t, "9903", cfg.ReservedCodes.SalesTax)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad rate", "rates:\n  bo_tax: abc\n", "rates.bo_tax"},
		{"negative rate", "rates:\n  sales_tax: \"-1\"\n", "must not be negative"},
		{"bad policy", "aggregation:\n  unknown_cost_code: ignore\n", "unknown cost code policy"},
		{"bad delay", "snapshots:\n  initial_delay: soon\n", "snapshots.initial_delay"},
		{"zero attempts", "snapshots:\n  max_attempts: 0\n", "max_attempts"},
		{"zero concurrency", "snapshots:\n  concurrency: 0\n", "concurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), FileName))
	assert.Error(t, err)
}
