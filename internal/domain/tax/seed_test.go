package tax

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carepay/internal/platform/db/dbtest"
)

func TestLoadSeedEmbeddedDefaults(t *testing.T) {
	configs, err := LoadSeed("")
	require.NoError(t, err)
	require.Len(t, configs, 3)

	byYear := map[int]Configuration{}
	for _, cfg := range configs {
		byYear[cfg.TaxYear] = cfg
	}
	cfg2025, ok := byYear[2025]
	require.True(t, ok)
	assert.Equal(t, "2025.1", cfg2025.Version)
	assert.Equal(t, "176100", cfg2025.SocialSecurityWageBase.String())
	assert.True(t, cfg2025.MedicareWageBase.IsZero())
}

func TestParseSeedRejectsBadInput(t *testing.T) {
	_, err := ParseSeed([]byte("years:\n  - tax_year: 2025\n    version: \"x\"\n    effective_date: \"2025-01-01\"\n    futa_rate: \"abc\"\n"))
	assert.ErrorContains(t, err, "futa_rate")

	_, err = ParseSeed([]byte("years:\n  - tax_year: 2025\n    version: \"x\"\n    effective_date: \"2025-01-01\"\n  - tax_year: 2025\n    version: \"y\"\n    effective_date: \"2025-01-01\"\n"))
	assert.ErrorContains(t, err, "twice")

	_, err = ParseSeed([]byte("years: [unterminated"))
	assert.Error(t, err)
}

func TestSeedYearsInsertsOnlyMissingYears(t *testing.T) {
	ctx := context.Background()
	store := NewStore(dbtest.Open(t), nil)

	_, err := store.UpsertYear(ctx, testConfig(2025, "2025.3"))
	require.NoError(t, err)

	inserted, err := SeedYears(ctx, store, "")
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	inserted, err = SeedYears(ctx, store, "")
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	kept, err := store.EffectiveConfig(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, "2025.3", kept.Version)
}

func TestSeedYearsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`years:
  - tax_year: 2030
    version: "2030.1"
    effective_date: "2030-01-01"
    ss_employee_rate: "0.062"
    minimum_wage: "20"
`), 0o600))

	store := NewStore(dbtest.Open(t), nil)
	inserted, err := SeedYears(context.Background(), store, path)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	got, err := store.EffectiveConfig(context.Background(), 2030)
	require.NoError(t, err)
	assert.Equal(t, "20", got.MinimumWage.String())
}
