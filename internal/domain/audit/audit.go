package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"carepay/internal/platform/metrics"
	"carepay/internal/platform/querier"
	"carepay/internal/requestctx"
)

type Entry struct {
	ID         int64           `json:"id"`
	EmployerID string          `json:"employerId"`
	TableName  string          `json:"tableName"`
	RecordID   string          `json:"recordId"`
	Action     string          `json:"action"`
	Changes    json.RawMessage `json:"changes"`
	RequestID  string          `json:"requestId"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type Filter struct {
	EmployerID string
	TableName  string
	RecordID   string
	Action     string
}

type Service struct {
	DB      *sql.DB
	Metrics *metrics.Metrics
	now     func() time.Time
}

func New(db *sql.DB, m *metrics.Metrics) *Service {
	return &Service{DB: db, Metrics: m, now: func() time.Time { return time.Now().UTC() }}
}

// Record appends an entry. It never fails the caller: marshal or insert
// errors are logged and counted. Inside a context transaction the entry joins
// it, so a rolled-back mutation leaves no audit trail.
func (s *Service) Record(ctx context.Context, tableName, recordID, action string, changes any) {
	payload := []byte("{}")
	if changes != nil {
		encoded, err := json.Marshal(changes)
		if err != nil {
			s.warn(tableName, recordID, action, err)
			return
		}
		payload = encoded
	}

	_, err := querier.Conn(ctx, s.DB).ExecContext(ctx, `
		INSERT INTO audit_log (employer_id, table_name, record_id, action, changes, request_id, created_at)
		VALUES (?,?,?,?,?,?,?)
	`, requestctx.GetEmployerID(ctx), tableName, recordID, action, string(payload), requestctx.GetRequestID(ctx), s.now())
	if err != nil {
		s.warn(tableName, recordID, action, err)
	}
}

func (s *Service) warn(tableName, recordID, action string, err error) {
	s.Metrics.RecordAuditFailure()
	slog.Warn("audit record failed", "table", tableName, "recordId", recordID, "action", action, "err", err)
}

func (s *Service) Count(ctx context.Context, filter Filter) (int, error) {
	query, args := buildBaseQuery("SELECT COUNT(1)", filter)
	var total int
	if err := querier.Conn(ctx, s.DB).QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]Entry, error) {
	query, args := buildBaseQuery(
		"SELECT id, employer_id, table_name, record_id, action, changes, request_id, created_at", filter)
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := querier.Conn(ctx, s.DB).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var entry Entry
		var changes string
		if err := rows.Scan(&entry.ID, &entry.EmployerID, &entry.TableName, &entry.RecordID, &entry.Action, &changes, &entry.RequestID, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Changes = json.RawMessage(changes)
		out = append(out, entry)
	}
	return out, rows.Err()
}

func buildBaseQuery(prefix string, filter Filter) (string, []any) {
	query := prefix + " FROM audit_log WHERE 1 = 1"
	var args []any
	if filter.EmployerID != "" {
		query += " AND employer_id = ?"
		args = append(args, filter.EmployerID)
	}
	if filter.TableName != "" {
		query += " AND table_name = ?"
		args = append(args, filter.TableName)
	}
	if filter.RecordID != "" {
		query += " AND record_id = ?"
		args = append(args, filter.RecordID)
	}
	if filter.Action != "" {
		query += " AND action = ?"
		args = append(args, filter.Action)
	}
	return query, args
}
