package shared

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestValidatorCollectsSortedIssues(t *testing.T) {
	v := NewValidator()
	v.Required("reason", " ", "is required")
	v.Enum("status", "refunded", []string{"paid", "failed", "reversed"}, "is not a valid status")
	start, _ := v.Date("start", "2025-03-16")
	end, _ := v.Date("end", "2025-03-02")
	v.DateOrder("start", start, "end", end)
	v.Decimal("hours", "-1")
	v.Decimal("rate", "abc")

	issues := v.Issues()
	if len(issues) != 6 {
		t.Fatalf("expected 6 issues, got %d: %+v", len(issues), issues)
	}
	if issues[0].Field != "end" || issues[len(issues)-1].Field != "status" {
		t.Fatalf("issues not sorted by field: %+v", issues)
	}

	rec := httptest.NewRecorder()
	if !v.Reject(rec, "req-1") {
		t.Fatal("expected reject")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestValidatorDecimal(t *testing.T) {
	v := NewValidator()
	value, ok := v.Decimal("hours", "7.25")
	if !ok || value.String() != "7.25" || v.HasIssues() {
		t.Fatalf("unexpected decimal parse: %v %v %+v", value, ok, v.Issues())
	}
}

func TestParseDateNormalizesToUTCDay(t *testing.T) {
	parsed, err := ParseDate("2025-03-10T23:30:00-05:00")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	want := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	if !parsed.Equal(want) {
		t.Fatalf("expected %v, got %v", want, parsed)
	}
	if zero, err := ParseDate(""); err != nil || !zero.IsZero() {
		t.Fatalf("expected zero time for empty input, got %v %v", zero, err)
	}
}

func TestValidatorPage(t *testing.T) {
	v := NewValidator()
	page := v.Page(httptest.NewRequest(http.MethodGet, "/?limit=900&offset=20", nil), RecordPages)
	if page.Limit != RecordPages.Max || page.Offset != 20 || v.HasIssues() {
		t.Fatalf("unexpected page %+v %+v", page, v.Issues())
	}

	page = v.Page(httptest.NewRequest(http.MethodGet, "/", nil), AuditPages)
	if page.Limit != AuditPages.Default || page.Offset != 0 {
		t.Fatalf("unexpected default page %+v", page)
	}

	v.Page(httptest.NewRequest(http.MethodGet, "/?limit=-3&offset=x", nil), PaymentPages)
	issues := v.Issues()
	if len(issues) != 2 || issues[0].Field != "limit" || issues[1].Field != "offset" {
		t.Fatalf("expected limit and offset issues, got %+v", issues)
	}
}

func TestValidatorYearAndCents(t *testing.T) {
	v := NewValidator()
	if year, ok := v.Year("year", "2025"); !ok || year != 2025 {
		t.Fatalf("unexpected year %d %v", year, ok)
	}
	v.Cents("amountCents", 0)
	if v.HasIssues() {
		t.Fatalf("unexpected issues %+v", v.Issues())
	}
	v.Year("year", "25000")
	v.Cents("amountCents", -1)
	v.Enum("status", "PAID", []string{"paid"}, "must be paid")
	if len(v.Issues()) != 3 {
		t.Fatalf("expected 3 issues, got %+v", v.Issues())
	}
}
