package events

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100

	// MaxOffset bounds (page-1)*limit so the store never sees an overflowed skip.
	MaxOffset = math.MaxInt32
)

// Filter selects a page of events. Date bounds are inclusive and independent.
type Filter struct {
	Page     int
	Limit    int
	Search   string
	DateFrom *time.Time
	DateTo   *time.Time
}

func (f Filter) Offset() int {
	if f.Page <= 1 || f.Limit <= 0 {
		return 0
	}
	if f.Page-1 > MaxOffset/f.Limit {
		return MaxOffset
	}
	return (f.Page - 1) * f.Limit
}

func (f Filter) normalized() Filter {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

type Page struct {
	Data       []Event    `json:"data"`
	Pagination Pagination `json:"pagination"`
}

type FilterError struct {
	Field   string
	Message string
}

func (e FilterError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ParseFilter reads page, limit, search, dateFrom and dateTo from a query string.
func ParseFilter(values url.Values) (Filter, error) {
	filter := Filter{Page: DefaultPage, Limit: DefaultLimit}

	page, err := parsePositive(values, "page", DefaultPage, 0)
	if err != nil {
		return filter, err
	}
	filter.Page = page

	limit, err := parsePositive(values, "limit", DefaultLimit, MaxLimit)
	if err != nil {
		return filter, err
	}
	filter.Limit = limit

	if filter.Page-1 > MaxOffset/filter.Limit {
		return filter, FilterError{Field: "page", Message: fmt.Sprintf("must be at most %d for limit %d", MaxOffset/filter.Limit+1, filter.Limit)}
	}

	filter.Search = strings.TrimSpace(values.Get("search"))

	if filter.DateFrom, err = parseBound("dateFrom", values.Get("dateFrom")); err != nil {
		return filter, err
	}
	if filter.DateTo, err = parseBound("dateTo", values.Get("dateTo")); err != nil {
		return filter, err
	}
	return filter, nil
}

func parsePositive(values url.Values, field string, fallback, max int) (int, error) {
	raw := strings.TrimSpace(values.Get(field))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, FilterError{Field: field, Message: "must be a number"}
	}
	if parsed < 1 {
		return 0, FilterError{Field: field, Message: "must be at least 1"}
	}
	if max > 0 && parsed > max {
		return 0, FilterError{Field: field, Message: fmt.Sprintf("must be between 1 and %d", max)}
	}
	return parsed, nil
}

// parseBound accepts RFC 3339 timestamps or calendar dates (midnight UTC).
func parseBound(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		parsed = parsed.UTC()
		return &parsed, nil
	}
	parsed, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, FilterError{Field: field, Message: "must be an ISO 8601 date or timestamp"}
	}
	return &parsed, nil
}

func totalPages(total int64, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
