package pagination

import (
	"fmt"
	"net/http"
	"strconv"
)

// Params is a requested page.
type Params struct {
	Page  int
	Limit int
}

// Offset is the row offset of the page.
func (p Params) Offset() int { return CalculateOffset(p.Page, p.Limit) }

// ParseQueryParams reads "page" and "limit" from the query string, applying
// cfg defaults when they are absent.
func ParseQueryParams(r *http.Request, cfg Config) (Params, error) {
	params := Params{Page: 1, Limit: cfg.DefaultLimit}
	q := r.URL.Query()

	if s := q.Get("page"); s != "" {
		page, err := strconv.Atoi(s)
		if err != nil || page < 1 {
			return params, fmt.Errorf("invalid query parameter: page must be a positive integer")
		}
		params.Page = page
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 || limit > cfg.MaxLimit {
			return params, fmt.Errorf("invalid query parameter: limit must be between 1 and %d", cfg.MaxLimit)
		}
		params.Limit = limit
	}
	return params, nil
}

// Metadata describes the returned page.
type Metadata struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

// NewMetadata builds the metadata of params over total rows.
func NewMetadata(params Params, total int64) Metadata {
	return Metadata{
		Total:      total,
		Page:       params.Page,
		Limit:      params.Limit,
		TotalPages: CalculateTotalPages(total, params.Limit),
	}
}

// Response wraps one page of items.
type Response[T any] struct {
	Data       []T      `json:"data"`
	Pagination Metadata `json:"pagination"`
}

// NewResponse never encodes a nil Data as null.
func NewResponse[T any](data []T, meta Metadata) Response[T] {
	if data == nil {
		data = []T{}
	}
	return Response[T]{Data: data, Pagination: meta}
}
