package request

import (
	"net/http"

	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/model"
)

var allowedActions = map[string]bool{
	model.ActionCopy:      true,
	model.ActionDelete:    true,
	model.ActionIgnored:   true,
	model.ActionCopyError: true,
}

// ParseLogFilter reads the per-file log listing filters from the query
// string. An action outside the known set is dropped rather than passed
// through to the query.
func ParseLogFilter(r *http.Request) core.ListParams {
	pg := ParsePagination(r)
	q := r.URL.Query()

	params := core.ListParams{
		Search: q.Get("search"),
		Limit:  pg.Limit,
		Offset: pg.Offset,
	}
	if action := q.Get("action"); allowedActions[action] {
		params.Action = action
	}
	if q.Get("order") == "desc" {
		params.Order = "desc"
	}
	return params
}
