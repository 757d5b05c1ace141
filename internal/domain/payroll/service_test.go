package payroll

import (
	"bytes"
	"context"
	"database/sql"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carepay/internal/domain/audit"
	"carepay/internal/domain/household"
	"carepay/internal/domain/ledger"
	"carepay/internal/domain/tax"
	"carepay/internal/platform/crypto"
	"carepay/internal/platform/db/dbtest"
	"carepay/internal/platform/metrics"
)

type fixture struct {
	db        *sql.DB
	svc       *Service
	audit     *audit.Service
	metrics   *metrics.Metrics
	employer  household.Employer
	caregiver household.Caregiver
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	handle := dbtest.Open(t)
	m := metrics.New()
	auditor := audit.New(handle, m)
	cipher, err := crypto.New(bytes.Repeat([]byte{5}, 32), m)
	require.NoError(t, err)
	households := household.NewStore(handle, cipher, auditor)
	taxes := tax.NewStore(handle, auditor)

	_, err = taxes.UpsertYear(ctx, config2025())
	require.NoError(t, err)

	employer, err := households.CreateEmployer(ctx, household.EmployerSettings{
		Name:              "Rivera Household",
		TaxID:             "12-3456789",
		WeekendMultiplier: d("1.5"),
	})
	require.NoError(t, err)
	caregiver, err := households.CreateCaregiver(ctx, household.NewCaregiver{
		EmployerID: employer.ID,
		FirstName:  "Ana",
		LastName:   "Santos",
		SSN:        "123-45-6789",
		HourlyRate: d("20"),
	})
	require.NoError(t, err)

	return fixture{
		db:        handle,
		svc:       NewService(handle, households, taxes, auditor, m),
		audit:     auditor,
		metrics:   m,
		employer:  employer,
		caregiver: caregiver,
	}
}

func (f fixture) addScenarioHours(t *testing.T) {
	t.Helper()
	for date, hours := range map[string]string{
		"2025-03-03": "8",
		"2025-03-04": "8",
		"2025-03-05": "8",
		"2025-03-06": "8",
		"2025-03-07": "8",
		"2025-03-08": "5",
	} {
		_, err := f.svc.AddTimeEntry(context.Background(), f.caregiver.ID, day(date), d(hours), "")
		require.NoError(t, err)
	}
}

func TestRunPayrollScenario(t *testing.T) {
	f := newFixture(t)
	f.addScenarioHours(t)

	rec, err := f.svc.RunPayroll(context.Background(), f.caregiver.ID, day("2025-03-02"), day("2025-03-15"))
	require.NoError(t, err)

	assert.Equal(t, "950", rec.GrossWages.String())
	assert.Equal(t, "58.9", rec.EmployeeSocialSecurity.String())
	assert.Equal(t, "13.775", rec.EmployeeMedicare.String())
	assert.Equal(t, "877.325", rec.NetPay.String())
	assert.Equal(t, "2025.1", rec.TaxVersion)
	assert.Equal(t, StatusDraft, rec.Status)
	assert.False(t, rec.IsFinalized)
	assert.Equal(t, f.employer.ID, rec.EmployerID)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.PayrollRuns.WithLabelValues("ok")))

	entries, err := f.svc.ListTimeEntries(context.Background(), f.caregiver.ID, day("2025-03-01"), day("2025-03-31"))
	require.NoError(t, err)
	require.Len(t, entries, 6)
	for _, e := range entries {
		assert.True(t, e.IsFinalized)
		assert.Equal(t, rec.ID, e.PayrollRecordID)
	}

	logged, err := f.audit.List(context.Background(), audit.Filter{TableName: "payroll_records", RecordID: rec.ID}, 10, 0)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, "create", logged[0].Action)
}

func TestRunPayrollWithoutHours(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RunPayroll(context.Background(), f.caregiver.ID, day("2025-03-02"), day("2025-03-15"))
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.PayrollRuns.WithLabelValues("insufficient_data")))
}

func TestRunPayrollWithoutTaxYear(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AddTimeEntry(context.Background(), f.caregiver.ID, day("2027-03-03"), d("8"), "")
	require.NoError(t, err)

	_, err = f.svc.RunPayroll(context.Background(), f.caregiver.ID, day("2027-03-01"), day("2027-03-14"))
	require.ErrorIs(t, err, tax.ErrNoConfiguration)
	var noCfg *tax.NoConfigurationError
	require.ErrorAs(t, err, &noCfg)
	assert.Equal(t, 2027, noCfg.Year)

	entries, err := f.svc.ListTimeEntries(context.Background(), f.caregiver.ID, day("2027-03-01"), day("2027-03-14"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].IsFinalized, "a failed run must not finalize entries")
}

func TestFrozenTaxVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addScenarioHours(t)

	rec, err := f.svc.RunPayroll(ctx, f.caregiver.ID, day("2025-03-02"), day("2025-03-15"))
	require.NoError(t, err)
	approved, err := f.svc.ApproveRecord(ctx, rec.ID)
	require.NoError(t, err)

	next := config2025()
	next.Version = "2025.2"
	next.SocialSecurityEmployeeRate = d("0.07")
	next.MedicareEmployeeRate = d("0.02")
	_, err = f.svc.Tax.UpsertYear(ctx, next)
	require.NoError(t, err)

	after, err := f.svc.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, approved, after)
	assert.Equal(t, "2025.1", after.TaxVersion)
	assert.Equal(t, "58.9", after.EmployeeSocialSecurity.String())

	_, err = f.db.Exec("UPDATE payroll_records SET gross_wages = '1' WHERE id = ?", rec.ID)
	assert.ErrorContains(t, err, "finalized")
}

func TestApproveAndVoid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addScenarioHours(t)
	rec, err := f.svc.RunPayroll(ctx, f.caregiver.ID, day("2025-03-02"), day("2025-03-15"))
	require.NoError(t, err)

	approved, err := f.svc.ApproveRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	assert.True(t, approved.IsFinalized)

	_, err = f.svc.ApproveRecord(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.VoidRecord(ctx, rec.ID, " ")
	assert.ErrorIs(t, err, ErrInvalidState)

	voided, err := f.svc.VoidRecord(ctx, rec.ID, "wrong hourly rate")
	require.NoError(t, err)
	assert.True(t, voided.IsVoided)
	assert.Equal(t, "wrong hourly rate", voided.VoidReason)
	require.NotNil(t, voided.VoidedAt)
	assert.Equal(t, "950", voided.GrossWages.String())

	_, err = f.svc.VoidRecord(ctx, rec.ID, "again")
	assert.ErrorIs(t, err, ErrRecordVoided)

	_, err = f.svc.ApproveRecord(ctx, "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	visible, err := f.svc.ListRecords(ctx, RecordFilter{CaregiverID: f.caregiver.ID}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, visible)
	all, err := f.svc.ListRecords(ctx, RecordFilter{CaregiverID: f.caregiver.ID, IncludeVoided: true, Year: 2025}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = f.db.Exec("DELETE FROM payroll_records WHERE id = ?", rec.ID)
	assert.ErrorContains(t, err, "never deleted")
}

func TestVoidBlockedWhilePaymentsOutstanding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addScenarioHours(t)
	rec, err := f.svc.RunPayroll(ctx, f.caregiver.ID, day("2025-03-02"), day("2025-03-15"))
	require.NoError(t, err)
	rec, err = f.svc.ApproveRecord(ctx, rec.ID)
	require.NoError(t, err)

	payments := ledger.NewStore(f.db, f.audit, f.metrics)
	txn, created, err := payments.CreateTransaction(ctx, ledger.CreateRequest{
		IdempotencyKey:     "pay-" + rec.ID,
		EmployerID:         f.employer.ID,
		CaregiverID:        f.caregiver.ID,
		PayrollRecordID:    rec.ID,
		AmountCents:        rec.NetPayCents(),
		SourceAccount:      "000123456789",
		DestinationAccount: "555500001234",
		TaxLogicVersion:    rec.TaxVersion,
	})
	require.NoError(t, err)
	require.True(t, created)

	_, err = f.svc.VoidRecord(ctx, rec.ID, "wrong hourly rate")
	require.ErrorIs(t, err, ErrPaymentsOutstanding)
	still, err := f.svc.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, still.IsVoided)

	_, err = payments.UpdateStatus(ctx, txn.ID, ledger.StatusFailed, "ach-return-R01")
	require.NoError(t, err)

	voided, err := f.svc.VoidRecord(ctx, rec.ID, "wrong hourly rate")
	require.NoError(t, err)
	assert.True(t, voided.IsVoided)
}

func TestClosedPeriodRejectsNewHoursUntilVoided(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addScenarioHours(t)
	rec, err := f.svc.RunPayroll(ctx, f.caregiver.ID, day("2025-03-02"), day("2025-03-15"))
	require.NoError(t, err)

	_, err = f.svc.AddTimeEntry(ctx, f.caregiver.ID, day("2025-03-10"), d("4"), "")
	assert.ErrorIs(t, err, ErrPeriodClosed)

	_, err = f.svc.VoidRecord(ctx, rec.ID, "missed hours")
	require.NoError(t, err)

	_, err = f.svc.AddTimeEntry(ctx, f.caregiver.ID, day("2025-03-10"), d("4"), "")
	require.NoError(t, err)
	rerun, err := f.svc.RunPayroll(ctx, f.caregiver.ID, day("2025-03-02"), day("2025-03-15"))
	require.NoError(t, err)
	assert.Equal(t, "4", rerun.RegularHours.String())
	assert.NotEqual(t, rec.ID, rerun.ID)
}

func TestOvertimeCarriesAcrossStraddledWeek(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for date, hours := range map[string]string{"2025-03-03": "8", "2025-03-04": "8"} {
		_, err := f.svc.AddTimeEntry(ctx, f.caregiver.ID, day(date), d(hours), "")
		require.NoError(t, err)
	}
	first, err := f.svc.RunPayroll(ctx, f.caregiver.ID, day("2025-03-02"), day("2025-03-04"))
	require.NoError(t, err)
	assert.Equal(t, "16", first.RegularHours.String())

	for _, date := range []string{"2025-03-05", "2025-03-06", "2025-03-07"} {
		_, err := f.svc.AddTimeEntry(ctx, f.caregiver.ID, day(date), d("10"), "")
		require.NoError(t, err)
	}
	second, err := f.svc.RunPayroll(ctx, f.caregiver.ID, day("2025-03-05"), day("2025-03-18"))
	require.NoError(t, err)
	assert.Equal(t, "24", second.RegularHours.String())
	assert.Equal(t, "6", second.OvertimeHours.String())
}

func TestYTDAcrossPeriods(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addScenarioHours(t)
	first, err := f.svc.RunPayroll(ctx, f.caregiver.ID, day("2025-03-02"), day("2025-03-15"))
	require.NoError(t, err)

	_, err = f.svc.AddTimeEntry(ctx, f.caregiver.ID, day("2025-03-17"), d("8"), "")
	require.NoError(t, err)
	second, err := f.svc.RunPayroll(ctx, f.caregiver.ID, day("2025-03-16"), day("2025-03-29"))
	require.NoError(t, err)

	agg, err := f.svc.YTDAggregates(ctx, f.caregiver.ID, 2025, day("2025-03-29"))
	require.NoError(t, err)
	assert.Equal(t, 0, agg.Records, "drafts are not part of paystub totals")

	_, err = f.svc.ApproveRecord(ctx, first.ID)
	require.NoError(t, err)
	_, err = f.svc.ApproveRecord(ctx, second.ID)
	require.NoError(t, err)

	agg, err = f.svc.YTDAggregates(ctx, f.caregiver.ID, 2025, day("2025-03-29"))
	require.NoError(t, err)
	assert.Equal(t, 1, agg.Records, "only records ending before the cutoff")
	assert.Equal(t, "950", agg.GrossWages.String())
	assert.Equal(t, "877.325", agg.NetPay.String())

	agg, err = f.svc.YTDAggregates(ctx, f.caregiver.ID, 2025, day("2026-01-01"))
	require.NoError(t, err)
	assert.Equal(t, 2, agg.Records)
	assert.Equal(t, "1110", agg.GrossWages.String())

	agg, err = f.svc.YTDAggregates(ctx, f.caregiver.ID, 2024, day("2026-01-01"))
	require.NoError(t, err)
	assert.Equal(t, 0, agg.Records)
	assert.True(t, agg.GrossWages.IsZero())
}

func TestWageBaseCarriesAcrossRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	low := config2025()
	low.SocialSecurityWageBase = d("1000")
	_, err := f.svc.Tax.UpsertYear(ctx, low)
	require.NoError(t, err)

	f.addScenarioHours(t)
	_, err = f.svc.RunPayroll(ctx, f.caregiver.ID, day("2025-03-02"), day("2025-03-15"))
	require.NoError(t, err)

	_, err = f.svc.AddTimeEntry(ctx, f.caregiver.ID, day("2025-03-17"), d("8"), "")
	require.NoError(t, err)
	second, err := f.svc.RunPayroll(ctx, f.caregiver.ID, day("2025-03-16"), day("2025-03-29"))
	require.NoError(t, err)

	// 50 of the 160 dollars are still under the 1000 base.
	assert.Equal(t, "3.1", second.EmployeeSocialSecurity.String())
}

func TestAddTimeEntryValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddTimeEntry(ctx, f.caregiver.ID, day("2025-03-03"), d("-1"), "")
	assert.ErrorIs(t, err, ErrInvalidTimeEntry)
	_, err = f.svc.AddTimeEntry(ctx, f.caregiver.ID, day("2025-03-03"), d("25"), "")
	assert.ErrorIs(t, err, ErrInvalidTimeEntry)
	_, err = f.svc.AddTimeEntry(ctx, "missing", day("2025-03-03"), d("8"), "")
	assert.ErrorIs(t, err, household.ErrCaregiverNotFound)

	require.NoError(t, f.svc.Households.DeactivateCaregiver(ctx, f.caregiver.ID))
	_, err = f.svc.AddTimeEntry(ctx, f.caregiver.ID, day("2025-03-03"), d("8"), "")
	assert.ErrorIs(t, err, ErrCaregiverInactive)
}

func TestFinalizedEntriesAreFrozen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addScenarioHours(t)
	_, err := f.svc.RunPayroll(ctx, f.caregiver.ID, day("2025-03-02"), day("2025-03-15"))
	require.NoError(t, err)

	_, err = f.db.Exec("UPDATE time_entries SET hours_worked = '12' WHERE caregiver_id = ?", f.caregiver.ID)
	assert.ErrorContains(t, err, "finalized")
}

func TestNetPayCents(t *testing.T) {
	assert.Equal(t, int64(87733), Record{NetPay: d("877.325")}.NetPayCents())
	assert.Equal(t, int64(87732), Record{NetPay: d("877.3249")}.NetPayCents())
	assert.Equal(t, int64(100), Record{NetPay: decimal.NewFromInt(1)}.NetPayCents())
}
