package tax

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed taxyears.yaml
var defaultTaxSeed []byte

type taxSeedFile struct {
	Years []taxSeedYear `yaml:"years"`
}

type taxSeedYear struct {
	TaxYear                  int    `yaml:"tax_year"`
	Version                  string `yaml:"version"`
	EffectiveDate            string `yaml:"effective_date"`
	IsDefault                bool   `yaml:"is_default"`
	SSEmployeeRate           string `yaml:"ss_employee_rate"`
	SSEmployerRate           string `yaml:"ss_employer_rate"`
	SSWageBase               string `yaml:"ss_wage_base"`
	MedicareEmployeeRate     string `yaml:"medicare_employee_rate"`
	MedicareEmployerRate     string `yaml:"medicare_employer_rate"`
	MedicareWageBase         string `yaml:"medicare_wage_base"`
	FUTARate                 string `yaml:"futa_rate"`
	FUTAWageBase             string `yaml:"futa_wage_base"`
	StateCode                string `yaml:"state_code"`
	SUIRate                  string `yaml:"sui_rate"`
	SUIWageBase              string `yaml:"sui_wage_base"`
	StatePaidLeaveRate       string `yaml:"state_paid_leave_rate"`
	StatePaidLeaveWageBase   string `yaml:"state_paid_leave_wage_base"`
	FederalWithholdingRate   string `yaml:"federal_withholding_rate"`
	StateWithholdingRate     string `yaml:"state_withholding_rate"`
	StandardDeductionSingle  string `yaml:"standard_deduction_single"`
	StandardDeductionMarried string `yaml:"standard_deduction_married"`
	MinimumWage              string `yaml:"minimum_wage"`
}

// LoadSeed reads a seed file, or the embedded defaults when path is empty.
func LoadSeed(path string) ([]Configuration, error) {
	raw := defaultTaxSeed
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read tax seed: %w", err)
		}
		raw = data
	}
	return ParseSeed(raw)
}

func ParseSeed(raw []byte) ([]Configuration, error) {
	var file taxSeedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse tax seed: %w", err)
	}
	out := make([]Configuration, 0, len(file.Years))
	seen := map[int]bool{}
	for _, year := range file.Years {
		if seen[year.TaxYear] {
			return nil, fmt.Errorf("tax seed lists year %d twice", year.TaxYear)
		}
		seen[year.TaxYear] = true
		cfg, err := year.toConfiguration()
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (y taxSeedYear) toConfiguration() (Configuration, error) {
	effective, err := time.Parse(dateLayout, y.EffectiveDate)
	if err != nil {
		return Configuration{}, fmt.Errorf("tax year %d: effective_date: %w", y.TaxYear, err)
	}
	cfg := Configuration{
		TaxYear:       y.TaxYear,
		Version:       y.Version,
		EffectiveDate: effective,
		IsDefault:     y.IsDefault,
		StateCode:     y.StateCode,
	}
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"ss_employee_rate", y.SSEmployeeRate, &cfg.SocialSecurityEmployeeRate},
		{"ss_employer_rate", y.SSEmployerRate, &cfg.SocialSecurityEmployerRate},
		{"ss_wage_base", y.SSWageBase, &cfg.SocialSecurityWageBase},
		{"medicare_employee_rate", y.MedicareEmployeeRate, &cfg.MedicareEmployeeRate},
		{"medicare_employer_rate", y.MedicareEmployerRate, &cfg.MedicareEmployerRate},
		{"medicare_wage_base", y.MedicareWageBase, &cfg.MedicareWageBase},
		{"futa_rate", y.FUTARate, &cfg.FUTARate},
		{"futa_wage_base", y.FUTAWageBase, &cfg.FUTAWageBase},
		{"sui_rate", y.SUIRate, &cfg.SUIRate},
		{"sui_wage_base", y.SUIWageBase, &cfg.SUIWageBase},
		{"state_paid_leave_rate", y.StatePaidLeaveRate, &cfg.StatePaidLeaveRate},
		{"state_paid_leave_wage_base", y.StatePaidLeaveWageBase, &cfg.StatePaidLeaveWageBase},
		{"federal_withholding_rate", y.FederalWithholdingRate, &cfg.FederalWithholdingRate},
		{"state_withholding_rate", y.StateWithholdingRate, &cfg.StateWithholdingRate},
		{"standard_deduction_single", y.StandardDeductionSingle, &cfg.StandardDeductionSingle},
		{"standard_deduction_married", y.StandardDeductionMarried, &cfg.StandardDeductionMarried},
		{"minimum_wage", y.MinimumWage, &cfg.MinimumWage},
	}
	for _, f := range fields {
		if f.raw == "" {
			*f.dst = decimal.Zero
			continue
		}
		value, err := decimal.NewFromString(f.raw)
		if err != nil {
			return Configuration{}, fmt.Errorf("tax year %d: %s: %w", y.TaxYear, f.name, err)
		}
		*f.dst = value
	}
	if err := Validate(cfg); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

// SeedYears inserts one row per seeded year that the store does not have
// yet. Existing years are never overwritten or duplicated.
func SeedYears(ctx context.Context, store *Store, seedPath string) (int, error) {
	configs, err := LoadSeed(seedPath)
	if err != nil {
		return 0, err
	}
	inserted := 0
	for _, cfg := range configs {
		ok, err := store.InsertIfAbsent(ctx, cfg)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
			slog.Info("seeded tax year", "taxYear", cfg.TaxYear, "version", cfg.Version)
		}
	}
	return inserted, nil
}
