// Package id provides unique identifier generation for sessions.
package id

import "github.com/google/uuid"

// Prefix starts every session ID.
const Prefix = "ses-"

// Generate creates a new unique session ID.
// Format: ses-<uuid v4>
// Example: ses-3f1c9a4e-8b2d-4c6f-9e1a-7d5b2c8f0a13
func Generate() string {
	return Prefix + uuid.NewString()
}

// Valid reports whether s has the shape produced by Generate.
func Valid(s string) bool {
	if len(s) <= len(Prefix) || s[:len(Prefix)] != Prefix {
		return false
	}
	_, err := uuid.Parse(s[len(Prefix):])
	return err == nil
}
