package auth

import (
	"net/mail"
	"strings"
)

// NormalizeEmail trims and lower-cases an address for storage and lookup
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail checks if the provided email address is a bare valid address
func IsValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
