// Package idgen renders document identifiers in their canonical
// 36-character textual form.
package idgen

import "github.com/google/uuid"

// New generates a fresh 128-bit identifier.
func New() string {
	return uuid.New().String()
}

// Valid reports whether s is a syntactically valid canonical identifier.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
