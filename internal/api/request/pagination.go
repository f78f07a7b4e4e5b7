package request

import (
	"net/http"
	"strconv"
)

// Pagination holds parsed pagination parameters. Agents and plans page by
// cursor; execution and log listings page by offset.
type Pagination struct {
	Limit  int
	Cursor string
	Offset int
}

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ParsePagination extracts limit, cursor, and offset from query parameters.
func ParsePagination(r *http.Request) Pagination {
	p := Pagination{
		Limit:  DefaultLimit,
		Cursor: r.URL.Query().Get("cursor"),
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			p.Limit = limit
		}
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset > 0 {
			p.Offset = offset
		}
	}

	return p
}
