package payroll

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"carepay/internal/domain/household"
	"carepay/internal/domain/tax"
	"carepay/internal/platform/metrics"
	"carepay/internal/platform/querier"
)

type Auditor interface {
	Record(ctx context.Context, tableName, recordID, action string, changes any)
}

type Service struct {
	DB         *sql.DB
	Store      *Store
	Households *household.Store
	Tax        *tax.Store
	Audit      Auditor
	Metrics    *metrics.Metrics
	now        func() time.Time
}

func NewService(handle *sql.DB, households *household.Store, taxes *tax.Store, auditor Auditor, m *metrics.Metrics) *Service {
	return &Service{
		DB:         handle,
		Store:      NewStore(handle),
		Households: households,
		Tax:        taxes,
		Audit:      auditor,
		Metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) record(ctx context.Context, table, id, action string, changes any) {
	if s.Audit != nil {
		s.Audit.Record(ctx, table, id, action, changes)
	}
}

// RunPayroll computes a draft record for the caregiver's unfinalized hours in
// [start, end]. Reading inputs, inserting the record and finalizing the
// consumed entries happen in one transaction.
func (s *Service) RunPayroll(ctx context.Context, caregiverID string, start, end time.Time) (Record, error) {
	rec, err := s.runPayroll(ctx, caregiverID, start, end)
	switch {
	case err == nil:
		s.Metrics.RecordPayrollRun("ok")
	case errors.Is(err, ErrInsufficientData):
		s.Metrics.RecordPayrollRun("insufficient_data")
	case errors.Is(err, tax.ErrNoConfiguration):
		s.Metrics.RecordPayrollRun("no_configuration")
	default:
		s.Metrics.RecordPayrollRun("error")
	}
	return rec, err
}

func (s *Service) runPayroll(ctx context.Context, caregiverID string, start, end time.Time) (Record, error) {
	start, end = truncateDay(start), truncateDay(end)
	if end.Before(start) {
		return Record{}, fmt.Errorf("%w: end %s is before start %s", ErrInvalidPeriod, end.Format(dateLayout), start.Format(dateLayout))
	}

	var rec Record
	err := querier.RunInTx(ctx, s.DB, func(ctx context.Context) error {
		caregiver, err := s.Households.GetCaregiver(ctx, caregiverID)
		if err != nil {
			return err
		}
		if !caregiver.IsActive {
			return ErrCaregiverInactive
		}
		employer, err := s.Households.GetEmployer(ctx, caregiver.EmployerID)
		if err != nil {
			return err
		}
		entries, err := s.Store.ListEntries(ctx, caregiverID, start, end, true)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return &InsufficientDataError{CaregiverID: caregiverID, Start: start, End: end}
		}
		cfg, err := s.Tax.EffectiveConfig(ctx, end.Year())
		if err != nil {
			return err
		}
		carryIn, err := s.Store.PaidEntries(ctx, caregiverID, weekStart(start), start)
		if err != nil {
			return err
		}
		prior, err := s.Store.PriorRecords(ctx, caregiverID, end.Year(), start, false)
		if err != nil {
			return err
		}
		ytd := decimal.Zero
		for _, r := range prior {
			ytd = ytd.Add(r.GrossWages)
		}

		result, err := Calculate(CalculationInput{
			EmployerID:  employer.ID,
			CaregiverID: caregiver.ID,
			PeriodStart: start,
			PeriodEnd:   end,
			Rates: PayRates{
				HourlyRate:             caregiver.HourlyRate,
				WeekendMultiplier:      employer.WeekendMultiplier,
				HolidayMultiplier:      employer.HolidayMultiplier,
				OvertimeMultiplier:     employer.OvertimeMultiplier,
				OvertimeThresholdHours: employer.OvertimeThresholdHours,
			},
			Entries:            entries,
			CarryIn:            carryIn,
			Tax:                ApplyOverrides(cfg, employer.StateRateOverrides),
			YTDWages:           ytd,
			WithholdingEnabled: employer.WithholdingEnabled,
			Withholding:        caregiver.Withholding,
			PayPeriodsPerYear:  household.PeriodsPerYear(employer.PayFrequency),
		})
		if err != nil {
			return err
		}

		now := s.now()
		rec = result.Record
		rec.ID = uuid.NewString()
		rec.CreatedAt = now
		rec.UpdatedAt = now
		if err := s.Store.InsertRecord(ctx, rec); err != nil {
			return err
		}
		if err := s.Store.FinalizeEntries(ctx, rec.ID, result.FinalizedEntryIDs); err != nil {
			return err
		}
		s.record(ctx, "payroll_records", rec.ID, "create", map[string]any{
			"caregiverId":        rec.CaregiverID,
			"payPeriodStart":     rec.PayPeriodStart.Format(dateLayout),
			"payPeriodEnd":       rec.PayPeriodEnd.Format(dateLayout),
			"grossWages":         rec.GrossWages.String(),
			"netPay":             rec.NetPay.String(),
			"taxVersion":         rec.TaxVersion,
			"calculationVersion": rec.CalculationVersion,
			"timeEntries":        result.FinalizedEntryIDs,
		})
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	if !rec.IsMinimumWageCompliant {
		slog.Warn("payroll below minimum wage", "recordId", rec.ID, "caregiverId", caregiverID, "taxVersion", rec.TaxVersion)
	}
	return s.Store.GetRecord(ctx, rec.ID)
}

func (s *Service) GetRecord(ctx context.Context, id string) (Record, error) {
	return s.Store.GetRecord(ctx, id)
}

func (s *Service) ListRecords(ctx context.Context, filter RecordFilter, limit, offset int) ([]Record, error) {
	return s.Store.ListRecords(ctx, filter, limit, offset)
}

// ApproveRecord moves a draft to approved. Approval finalizes the record.
func (s *Service) ApproveRecord(ctx context.Context, id string) (Record, error) {
	err := querier.RunInTx(ctx, s.DB, func(ctx context.Context) error {
		ok, err := s.Store.Approve(ctx, id, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return s.explainRejected(ctx, id)
		}
		s.record(ctx, "payroll_records", id, "approve", map[string]any{"status": StatusApproved})
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return s.Store.GetRecord(ctx, id)
}

// VoidRecord flags a record as void. Its consumed time entries stay
// finalized and attributed to it. A record with any payment that has not
// failed cannot be voided.
func (s *Service) VoidRecord(ctx context.Context, id, reason string) (Record, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Record{}, fmt.Errorf("%w: a void reason is required", ErrInvalidState)
	}
	err := querier.RunInTx(ctx, s.DB, func(ctx context.Context) error {
		outstanding, err := s.Store.OutstandingPayments(ctx, id)
		if err != nil {
			return err
		}
		if outstanding > 0 {
			return fmt.Errorf("%w: %d bound to record %s", ErrPaymentsOutstanding, outstanding, id)
		}
		ok, err := s.Store.Void(ctx, id, reason, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return s.explainRejected(ctx, id)
		}
		s.record(ctx, "payroll_records", id, "void", map[string]any{"reason": reason})
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return s.Store.GetRecord(ctx, id)
}

func (s *Service) explainRejected(ctx context.Context, id string) error {
	current, err := s.Store.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if current.IsVoided {
		return ErrRecordVoided
	}
	return fmt.Errorf("%w: record is %s", ErrInvalidState, current.Status)
}

// YTDAggregates sums the caregiver's finalized, non-voided records whose
// period ends in year before the given date. Paystubs show these totals.
func (s *Service) YTDAggregates(ctx context.Context, caregiverID string, year int, before time.Time) (YTDAggregate, error) {
	agg := YTDAggregate{
		CaregiverID:             caregiverID,
		Year:                    year,
		GrossWages:              decimal.Zero,
		EmployeeSocialSecurity:  decimal.Zero,
		EmployeeMedicare:        decimal.Zero,
		EmployeeStatePayrollTax: decimal.Zero,
		FederalWithholding:      decimal.Zero,
		StateWithholding:        decimal.Zero,
		TotalEmployeeDeductions: decimal.Zero,
		TotalEmployerTaxes:      decimal.Zero,
		NetPay:                  decimal.Zero,
	}
	records, err := s.Store.PriorRecords(ctx, caregiverID, year, truncateDay(before), true)
	if err != nil {
		return YTDAggregate{}, err
	}
	for _, r := range records {
		agg.add(r)
	}
	return agg, nil
}

// AddTimeEntry records hours for a caregiver. Days already covered by a
// non-voided payroll record are closed.
func (s *Service) AddTimeEntry(ctx context.Context, caregiverID string, workDate time.Time, hours decimal.Decimal, notes string) (TimeEntry, error) {
	if hours.IsNegative() {
		return TimeEntry{}, fmt.Errorf("%w: hours must not be negative", ErrInvalidTimeEntry)
	}
	if hours.GreaterThan(decimal.NewFromInt(24)) {
		return TimeEntry{}, fmt.Errorf("%w: more than 24 hours in a day", ErrInvalidTimeEntry)
	}
	entry := TimeEntry{
		ID:          uuid.NewString(),
		CaregiverID: caregiverID,
		WorkDate:    truncateDay(workDate),
		Hours:       hours,
		Notes:       strings.TrimSpace(notes),
		CreatedAt:   s.now(),
	}
	err := querier.RunInTx(ctx, s.DB, func(ctx context.Context) error {
		caregiver, err := s.Households.GetCaregiver(ctx, caregiverID)
		if err != nil {
			return err
		}
		if !caregiver.IsActive {
			return ErrCaregiverInactive
		}
		covered, err := s.Store.PeriodCovered(ctx, caregiverID, entry.WorkDate)
		if err != nil {
			return err
		}
		if covered {
			return fmt.Errorf("%w: %s", ErrPeriodClosed, entry.WorkDate.Format(dateLayout))
		}
		entry.EmployerID = caregiver.EmployerID
		if err := s.Store.InsertEntry(ctx, entry); err != nil {
			return err
		}
		s.record(ctx, "time_entries", entry.ID, "create", map[string]any{
			"caregiverId": caregiverID,
			"workDate":    entry.WorkDate.Format(dateLayout),
			"hours":       hours.String(),
		})
		return nil
	})
	if err != nil {
		return TimeEntry{}, err
	}
	return entry, nil
}

func (s *Service) ListTimeEntries(ctx context.Context, caregiverID string, start, end time.Time) ([]TimeEntry, error) {
	return s.Store.ListEntries(ctx, caregiverID, truncateDay(start), truncateDay(end), false)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
