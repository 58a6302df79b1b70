// Package contextkeys defines typed context keys for request-scoped values.
package contextkeys

type contextKey string

const (
	UserReference contextKey = "userReference"
	UserRole      contextKey = "userRole"
)
