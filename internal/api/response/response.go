// Package response holds the JSON envelope helpers shared by all handlers.
package response

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the envelope every non-2xx response carries.
type ErrorBody struct {
	Error string `json:"error"`
}

// Page wraps a cursor-paginated list. NextCursor is the ID to resume from;
// it is omitted on the last page.
type Page struct {
	Items      any    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{Error: message})
}

func WritePaginated(w http.ResponseWriter, status int, items any, nextCursor string, hasMore bool) {
	WriteJSON(w, status, Page{Items: items, NextCursor: nextCursor, HasMore: hasMore})
}
