package request

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edvin/backhaul/internal/model"
)

func TestParseLogFilter(t *testing.T) {
	r := httptest.NewRequest("GET", "/executions/x/logs?action=Delete&search=report&order=desc&limit=10&offset=20", nil)

	params := ParseLogFilter(r)
	assert.Equal(t, model.ActionDelete, params.Action)
	assert.Equal(t, "report", params.Search)
	assert.Equal(t, "desc", params.Order)
	assert.Equal(t, 10, params.Limit)
	assert.Equal(t, 20, params.Offset)
}

func TestParseLogFilterRejectsUnknownAction(t *testing.T) {
	r := httptest.NewRequest("GET", "/executions/x/logs?action=DROP+TABLE", nil)
	params := ParseLogFilter(r)
	assert.Empty(t, params.Action)
}

func TestParseLogFilterDefaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/executions/x/logs", nil)
	params := ParseLogFilter(r)
	assert.Empty(t, params.Action)
	assert.Empty(t, params.Order)
	assert.Equal(t, DefaultLimit, params.Limit)
	assert.Equal(t, 0, params.Offset)
}

func TestParsePaginationClampsLimit(t *testing.T) {
	r := httptest.NewRequest("GET", "/agents?limit=10000&cursor=abc", nil)
	pg := ParsePagination(r)
	assert.Equal(t, MaxLimit, pg.Limit)
	assert.Equal(t, "abc", pg.Cursor)
}

func TestParsePaginationIgnoresGarbage(t *testing.T) {
	r := httptest.NewRequest("GET", "/agents?limit=-5&offset=x", nil)
	pg := ParsePagination(r)
	assert.Equal(t, DefaultLimit, pg.Limit)
	assert.Equal(t, 0, pg.Offset)
}
