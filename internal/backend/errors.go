package backend

import (
	"errors"
	"net/http"
)

// Category is the user-facing classification of a failed operation. Stores
// classify; only the presentation layer turns a category into text.
type Category string

const (
	// CategoryUnauthorized is a 401 from an authenticated call.
	CategoryUnauthorized Category = "unauthorized"
	// CategoryNotFound covers 404 and 409, surfaced as an operation failure.
	CategoryNotFound Category = "not_found"
	// CategoryGeneric covers network errors and anything unclassified.
	CategoryGeneric Category = "generic"
)

// Classify maps an error from a backend call onto its category.
func Classify(err error) Category {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return CategoryGeneric
	}
	switch apiErr.Status {
	case http.StatusUnauthorized:
		return CategoryUnauthorized
	case http.StatusNotFound, http.StatusConflict:
		return CategoryNotFound
	default:
		return CategoryGeneric
	}
}
