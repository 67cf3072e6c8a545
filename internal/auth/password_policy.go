package auth

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"storyboard/internal/config"
)

// Violation names one broken password rule
type Violation string

// Password rules, in the order Validate reports them.
const (
	ViolationTooShort    Violation = "too_short"
	ViolationTooLong     Violation = "too_long"
	ViolationNoUppercase Violation = "no_uppercase"
	ViolationNoLowercase Violation = "no_lowercase"
	ViolationNoDigit     Violation = "no_digit"
	ViolationNoSymbol    Violation = "no_symbol"
)

var violationMessages = map[Violation]string{
	ViolationTooShort:    "password is too short",
	ViolationTooLong:     "password is too long",
	ViolationNoUppercase: "password must contain at least one uppercase letter",
	ViolationNoLowercase: "password must contain at least one lowercase letter",
	ViolationNoDigit:     "password must contain at least one digit",
	ViolationNoSymbol:    "password must contain at least one symbol",
}

// Message returns a human readable rule description
func (v Violation) Message() string {
	if msg, ok := violationMessages[v]; ok {
		return msg
	}
	return string(v)
}

// StrengthResult is the outcome of PasswordPolicy.Validate
type StrengthResult struct {
	Valid      bool
	Violations []Violation
}

// PasswordPolicy is the configurable password strength rule set
type PasswordPolicy struct {
	MinLength     int
	MaxLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// NewPasswordPolicy builds the policy from configuration
func NewPasswordPolicy(cfg config.PasswordConfig) PasswordPolicy {
	return PasswordPolicy{
		MinLength:     cfg.MinLength,
		MaxLength:     cfg.MaxLength,
		RequireUpper:  cfg.RequireUpper,
		RequireLower:  cfg.RequireLower,
		RequireDigit:  cfg.RequireDigit,
		RequireSymbol: cfg.RequireSymbol,
	}
}

// Validate reports every rule the password breaks. Length minimum counts
// characters, the maximum counts bytes since bcrypt ignores anything past 72.
func (p PasswordPolicy) Validate(password string) StrengthResult {
	var violations []Violation

	if utf8.RuneCountInString(password) < p.MinLength {
		violations = append(violations, ViolationTooShort)
	}
	if p.MaxLength > 0 && len(password) > p.MaxLength {
		violations = append(violations, ViolationTooLong)
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasDigit = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSymbol = true
		}
	}

	if p.RequireUpper && !hasUpper {
		violations = append(violations, ViolationNoUppercase)
	}
	if p.RequireLower && !hasLower {
		violations = append(violations, ViolationNoLowercase)
	}
	if p.RequireDigit && !hasDigit {
		violations = append(violations, ViolationNoDigit)
	}
	if p.RequireSymbol && !hasSymbol {
		violations = append(violations, ViolationNoSymbol)
	}

	return StrengthResult{Valid: len(violations) == 0, Violations: violations}
}

// Describe renders violations with the policy's length bounds
func (p PasswordPolicy) Describe(violations []Violation) []string {
	out := make([]string, len(violations))
	for i, v := range violations {
		switch v {
		case ViolationTooShort:
			out[i] = fmt.Sprintf("password must be at least %d characters long", p.MinLength)
		case ViolationTooLong:
			out[i] = fmt.Sprintf("password must be at most %d bytes long", p.MaxLength)
		default:
			out[i] = v.Message()
		}
	}
	return out
}
