package db

// BaselineVersion covers the table creations that legacy installs already
// carry from before schema versioning existed.
const BaselineVersion = 7

var LegacyTables = []string{
	"employers",
	"caregivers",
	"time_entries",
	"payroll_records",
	"tax_configurations",
	"payment_transactions",
	"audit_log",
}

// Steps is the ordered schema history. Append only; never edit a released step.
var Steps = []Step{
	{ID: 1, Name: "create_employers", Ops: []Op{
		CreateTable("employers", `
			CREATE TABLE employers (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				tax_id_enc TEXT NOT NULL DEFAULT '',
				state_code TEXT NOT NULL DEFAULT '',
				pay_frequency TEXT NOT NULL DEFAULT 'biweekly',
				default_hourly_rate TEXT NOT NULL DEFAULT '0',
				weekend_multiplier TEXT NOT NULL DEFAULT '1',
				state_rate_overrides TEXT NOT NULL DEFAULT '{}',
				processor_credentials_enc TEXT NOT NULL DEFAULT '',
				withholding_enabled INTEGER NOT NULL DEFAULT 0,
				is_active INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`),
	}},
	{ID: 2, Name: "create_caregivers", Ops: []Op{
		CreateTable("caregivers", `
			CREATE TABLE caregivers (
				id TEXT PRIMARY KEY,
				employer_id TEXT NOT NULL REFERENCES employers(id),
				first_name TEXT NOT NULL,
				last_name TEXT NOT NULL,
				ssn_enc TEXT NOT NULL DEFAULT '',
				hourly_rate TEXT NOT NULL,
				payout_method TEXT NOT NULL DEFAULT 'direct_deposit',
				payout_account_enc TEXT NOT NULL DEFAULT '',
				payout_account_masked TEXT NOT NULL DEFAULT '',
				is_active INTEGER NOT NULL DEFAULT 1,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`),
	}},
	{ID: 3, Name: "create_time_entries", Ops: []Op{
		CreateTable("time_entries", `
			CREATE TABLE time_entries (
				id TEXT PRIMARY KEY,
				employer_id TEXT NOT NULL REFERENCES employers(id),
				caregiver_id TEXT NOT NULL REFERENCES caregivers(id),
				work_date TEXT NOT NULL,
				hours_worked TEXT NOT NULL CHECK (CAST(hours_worked AS REAL) >= 0),
				notes TEXT NOT NULL DEFAULT '',
				is_finalized INTEGER NOT NULL DEFAULT 0,
				payroll_record_id TEXT,
				created_at TIMESTAMP NOT NULL
			)`),
	}},
	{ID: 4, Name: "create_payroll_records", Ops: []Op{
		CreateTable("payroll_records", `
			CREATE TABLE payroll_records (
				id TEXT PRIMARY KEY,
				employer_id TEXT NOT NULL REFERENCES employers(id),
				caregiver_id TEXT NOT NULL REFERENCES caregivers(id),
				pay_period_start TEXT NOT NULL,
				pay_period_end TEXT NOT NULL,
				regular_hours TEXT NOT NULL,
				weekend_hours TEXT NOT NULL,
				holiday_hours TEXT NOT NULL,
				overtime_hours TEXT NOT NULL,
				regular_wages TEXT NOT NULL,
				weekend_wages TEXT NOT NULL,
				holiday_wages TEXT NOT NULL,
				overtime_wages TEXT NOT NULL,
				gross_wages TEXT NOT NULL,
				employee_social_security TEXT NOT NULL,
				employee_medicare TEXT NOT NULL,
				employee_state_payroll_tax TEXT NOT NULL,
				federal_withholding TEXT NOT NULL,
				state_withholding TEXT NOT NULL,
				total_employee_deductions TEXT NOT NULL,
				employer_social_security TEXT NOT NULL,
				employer_medicare TEXT NOT NULL,
				employer_futa TEXT NOT NULL,
				employer_suta TEXT NOT NULL,
				total_employer_taxes TEXT NOT NULL,
				net_pay TEXT NOT NULL,
				calculation_version TEXT NOT NULL,
				tax_version TEXT NOT NULL,
				is_minimum_wage_compliant INTEGER NOT NULL DEFAULT 1,
				status TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'approved')),
				is_finalized INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`),
	}},
	{ID: 5, Name: "create_tax_configurations", Ops: []Op{
		CreateTable("tax_configurations", `
			CREATE TABLE tax_configurations (
				id TEXT PRIMARY KEY,
				tax_year INTEGER NOT NULL,
				ss_employee_rate TEXT NOT NULL,
				ss_employer_rate TEXT NOT NULL,
				ss_wage_base TEXT NOT NULL,
				medicare_employee_rate TEXT NOT NULL,
				medicare_employer_rate TEXT NOT NULL,
				medicare_wage_base TEXT NOT NULL DEFAULT '0',
				futa_rate TEXT NOT NULL,
				futa_wage_base TEXT NOT NULL,
				state_code TEXT NOT NULL DEFAULT '',
				sui_rate TEXT NOT NULL DEFAULT '0',
				sui_wage_base TEXT NOT NULL DEFAULT '0',
				state_paid_leave_rate TEXT NOT NULL DEFAULT '0',
				state_paid_leave_wage_base TEXT NOT NULL DEFAULT '0',
				federal_withholding_rate TEXT NOT NULL DEFAULT '0',
				state_withholding_rate TEXT NOT NULL DEFAULT '0',
				standard_deduction_single TEXT NOT NULL DEFAULT '0',
				standard_deduction_married TEXT NOT NULL DEFAULT '0',
				minimum_wage TEXT NOT NULL DEFAULT '0',
				effective_date TEXT NOT NULL,
				version TEXT NOT NULL,
				is_default INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`),
	}},
	{ID: 6, Name: "create_payment_transactions", Ops: []Op{
		CreateTable("payment_transactions", `
			CREATE TABLE payment_transactions (
				id TEXT PRIMARY KEY,
				idempotency_key TEXT NOT NULL UNIQUE,
				employer_id TEXT NOT NULL REFERENCES employers(id),
				caregiver_id TEXT REFERENCES caregivers(id),
				payroll_record_id TEXT REFERENCES payroll_records(id),
				amount_cents INTEGER NOT NULL CHECK (amount_cents > 0),
				currency TEXT NOT NULL DEFAULT 'USD',
				status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'paid', 'failed', 'reversed')),
				source_account_masked TEXT NOT NULL DEFAULT '',
				destination_account_masked TEXT NOT NULL DEFAULT '',
				external_reference TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`),
	}},
	{ID: 7, Name: "create_audit_log", Ops: []Op{
		CreateTable("audit_log", `
			CREATE TABLE audit_log (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				employer_id TEXT NOT NULL DEFAULT '',
				table_name TEXT NOT NULL,
				record_id TEXT NOT NULL,
				action TEXT NOT NULL,
				changes TEXT NOT NULL DEFAULT '{}',
				request_id TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL
			)`),
	}},
	{ID: 8, Name: "payroll_records_voiding", Ops: []Op{
		AddColumn("payroll_records", "is_voided", "INTEGER NOT NULL DEFAULT 0"),
		AddColumn("payroll_records", "void_reason", "TEXT NOT NULL DEFAULT ''"),
		AddColumn("payroll_records", "voided_at", "TIMESTAMP"),
	}},
	{ID: 9, Name: "payment_transactions_tax_logic_version", Ops: []Op{
		AddColumn("payment_transactions", "tax_logic_version", "TEXT NOT NULL DEFAULT ''"),
	}},
	{ID: 10, Name: "employers_premium_pay", Ops: []Op{
		AddColumn("employers", "holiday_multiplier", "TEXT NOT NULL DEFAULT '1'"),
		AddColumn("employers", "overtime_multiplier", "TEXT NOT NULL DEFAULT '1.5'"),
		AddColumn("employers", "overtime_threshold_hours", "TEXT NOT NULL DEFAULT '40'"),
	}},
	{ID: 11, Name: "lookup_and_uniqueness_indexes", Ops: []Op{
		Exec("drop duplicate tax years", `
			DELETE FROM tax_configurations
			WHERE rowid NOT IN (SELECT MAX(rowid) FROM tax_configurations GROUP BY tax_year)`),
		CreateIndex("idx_tax_configurations_year",
			"CREATE UNIQUE INDEX idx_tax_configurations_year ON tax_configurations(tax_year)"),
		CreateIndex("idx_caregivers_employer",
			"CREATE INDEX idx_caregivers_employer ON caregivers(employer_id)"),
		CreateIndex("idx_time_entries_caregiver_date",
			"CREATE INDEX idx_time_entries_caregiver_date ON time_entries(caregiver_id, work_date)"),
		CreateIndex("idx_payroll_records_period",
			"CREATE UNIQUE INDEX idx_payroll_records_period ON payroll_records(caregiver_id, pay_period_start, pay_period_end) WHERE is_voided = 0"),
		CreateIndex("idx_payment_transactions_record",
			"CREATE INDEX idx_payment_transactions_record ON payment_transactions(payroll_record_id)"),
		CreateIndex("idx_audit_log_record",
			"CREATE INDEX idx_audit_log_record ON audit_log(table_name, record_id)"),
	}},
	{ID: 12, Name: "append_only_triggers", Ops: []Op{
		CreateTrigger("trg_audit_log_no_update", `
			CREATE TRIGGER trg_audit_log_no_update BEFORE UPDATE ON audit_log
			BEGIN SELECT RAISE(ABORT, 'audit_log is append-only'); END`),
		CreateTrigger("trg_audit_log_no_delete", `
			CREATE TRIGGER trg_audit_log_no_delete BEFORE DELETE ON audit_log
			BEGIN SELECT RAISE(ABORT, 'audit_log is append-only'); END`),
		CreateTrigger("trg_payroll_records_frozen", `
			CREATE TRIGGER trg_payroll_records_frozen
			BEFORE UPDATE OF regular_hours, weekend_hours, holiday_hours, overtime_hours,
				regular_wages, weekend_wages, holiday_wages, overtime_wages, gross_wages,
				employee_social_security, employee_medicare, employee_state_payroll_tax,
				federal_withholding, state_withholding, total_employee_deductions,
				employer_social_security, employer_medicare, employer_futa, employer_suta,
				total_employer_taxes, net_pay, calculation_version, tax_version
			ON payroll_records
			WHEN OLD.is_finalized = 1
			BEGIN SELECT RAISE(ABORT, 'payroll record is finalized'); END`),
		CreateTrigger("trg_payroll_records_no_delete", `
			CREATE TRIGGER trg_payroll_records_no_delete BEFORE DELETE ON payroll_records
			BEGIN SELECT RAISE(ABORT, 'payroll records are never deleted'); END`),
		CreateTrigger("trg_time_entries_frozen", `
			CREATE TRIGGER trg_time_entries_frozen
			BEFORE UPDATE OF work_date, hours_worked, caregiver_id ON time_entries
			WHEN OLD.is_finalized = 1
			BEGIN SELECT RAISE(ABORT, 'time entry is finalized'); END`),
		CreateTrigger("trg_payment_transactions_immutable", `
			CREATE TRIGGER trg_payment_transactions_immutable
			BEFORE UPDATE OF id, idempotency_key, employer_id, caregiver_id, payroll_record_id,
				amount_cents, currency, source_account_masked, destination_account_masked
			ON payment_transactions
			BEGIN SELECT RAISE(ABORT, 'payment amount and parties are immutable'); END`),
		CreateTrigger("trg_payment_transactions_no_delete", `
			CREATE TRIGGER trg_payment_transactions_no_delete BEFORE DELETE ON payment_transactions
			BEGIN SELECT RAISE(ABORT, 'payment ledger is append-only'); END`),
	}},
	{ID: 13, Name: "caregivers_withholding_elections", Ops: []Op{
		AddColumn("caregivers", "filing_status", "TEXT NOT NULL DEFAULT 'single'"),
		AddColumn("caregivers", "multiple_jobs", "INTEGER NOT NULL DEFAULT 0"),
		AddColumn("caregivers", "dependents_credit", "TEXT NOT NULL DEFAULT '0'"),
		AddColumn("caregivers", "other_income", "TEXT NOT NULL DEFAULT '0'"),
		AddColumn("caregivers", "deductions", "TEXT NOT NULL DEFAULT '0'"),
		AddColumn("caregivers", "extra_withholding", "TEXT NOT NULL DEFAULT '0'"),
	}},
	{ID: 14, Name: "single_active_employer", Ops: []Op{
		CreateIndex("idx_employers_single_active",
			"CREATE UNIQUE INDEX idx_employers_single_active ON employers(is_active) WHERE is_active = 1"),
	}},
}

// LatestVersion is the version a fully migrated store records.
func LatestVersion() int {
	return Steps[len(Steps)-1].ID
}
