package firefly

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/papermes/internal/apperrors"
)

// ID is a ledger-assigned identifier. The ledger sends ids as strings but older
// payloads and hand-written requests use numbers; both decode to the same ID.
type ID string

func (id ID) String() string { return string(id) }

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return &apperrors.SchemaError{Field: "id", Message: fmt.Sprintf("id must be a string or number, got %s", b)}
	}
	*id = ID(n.String())
	return nil
}

// IDFromInt formats a numeric id.
func IDFromInt(n int64) ID {
	return ID(strconv.FormatInt(n, 10))
}

// Date is a calendar date written as YYYY-MM-DD. Ledger responses use full
// RFC 3339 timestamps, which decode to their calendar date.
type Date struct {
	civil.Date
}

// NewDate wraps a civil.Date.
func NewDate(d civil.Date) Date {
	return Date{Date: d}
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	return Date{Date: civil.DateOf(t)}
}

// ParseDate parses YYYY-MM-DD or an RFC 3339 timestamp.
func ParseDate(s string) (Date, error) {
	if d, err := civil.ParseDate(s); err == nil {
		return Date{Date: d}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, &apperrors.SchemaError{Field: "date", Message: fmt.Sprintf("invalid date %q", s)}
	}
	return DateOf(t), nil
}

// Ptr returns a pointer to a copy of d, for the optional date fields.
func (d Date) Ptr() *Date {
	return &d
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Date.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return &apperrors.SchemaError{Field: "date", Message: "date must be a string", Err: err}
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Envelope is the JSON:API style wrapper around every ledger response.
type Envelope[T any] struct {
	Data  T                          `json:"data"`
	Meta  Meta                       `json:"meta,omitempty"`
	Links map[string]json.RawMessage `json:"links,omitempty"`
}

// Meta carries response metadata; only pagination is modelled.
type Meta struct {
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination describes the position of a page within a listing.
type Pagination struct {
	Total       int `json:"total"`
	Count       int `json:"count"`
	PerPage     int `json:"per_page"`
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}
