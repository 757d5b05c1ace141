package shared

import (
	"net/http"
	"strconv"
	"strings"
)

// PageBounds is the default and largest page a listing serves.
type PageBounds struct {
	Default int
	Max     int
}

var (
	RecordPages  = PageBounds{Default: 50, Max: 200}
	PaymentPages = PageBounds{Default: 50, Max: 200}
	AuditPages   = PageBounds{Default: 100, Max: 500}
)

type Page struct {
	Limit  int
	Offset int
}

// Page reads limit and offset from the query string. A limit above Max is
// clamped; anything that is not a count is reported on v.
func (v *Validator) Page(r *http.Request, bounds PageBounds) Page {
	page := Page{Limit: bounds.Default}
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			v.Add("limit", "must be a positive integer")
		} else {
			page.Limit = n
		}
	}
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			v.Add("offset", "must be zero or a positive integer")
		} else {
			page.Offset = n
		}
	}
	if bounds.Max > 0 && page.Limit > bounds.Max {
		page.Limit = bounds.Max
	}
	return page
}

// SetTotal reports the unpaged row count of a listing.
func SetTotal(w http.ResponseWriter, total int) {
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
}
