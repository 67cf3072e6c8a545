package auth_test

import (
	"strings"
	"testing"

	"storyboard/internal/auth"
	"storyboard/internal/config"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func defaultPolicy() auth.PasswordPolicy {
	return auth.NewPasswordPolicy(config.Defaults().Password)
}

func TestPasswordPolicy_Validate(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     []auth.Violation
	}{
		{"strong", "Correct-Horse-9", nil},
		{"unicode letters", "Ärger-über-9", nil},
		{"empty", "", []auth.Violation{
			auth.ViolationTooShort, auth.ViolationNoUppercase, auth.ViolationNoLowercase,
			auth.ViolationNoDigit, auth.ViolationNoSymbol,
		}},
		{"too short", "Ab1!", []auth.Violation{auth.ViolationTooShort}},
		{"no uppercase", "correct-horse-9", []auth.Violation{auth.ViolationNoUppercase}},
		{"no lowercase", "CORRECT-HORSE-9", []auth.Violation{auth.ViolationNoLowercase}},
		{"no digit", "Correct-Horse-X", []auth.Violation{auth.ViolationNoDigit}},
		{"no symbol", "CorrectHorse9", []auth.Violation{auth.ViolationNoSymbol}},
		{"too long", "Aa1!" + strings.Repeat("x", 69), []auth.Violation{auth.ViolationTooLong}},
		{"multibyte counts characters for minimum", "Éé1!Éé1!", nil},
	}

	p := defaultPolicy()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Validate(tt.password)
			assert.Equal(t, tt.want, res.Violations)
			assert.Equal(t, len(tt.want) == 0, res.Valid)
		})
	}
}

func TestPasswordPolicy_Describe(t *testing.T) {
	p := defaultPolicy()
	got := p.Describe([]auth.Violation{auth.ViolationTooShort, auth.ViolationTooLong, auth.ViolationNoDigit})
	assert.Equal(t, []string{
		"password must be at least 8 characters long",
		"password must be at most 72 bytes long",
		"password must contain at least one digit",
	}, got)
}

func TestPasswordPolicy_Relaxed(t *testing.T) {
	p := auth.PasswordPolicy{MinLength: 4}
	assert.True(t, p.Validate("abcd").Valid)
	assert.False(t, p.Validate("abc").Valid)
}

func TestPasswordPolicy_Properties(t *testing.T) {
	p := defaultPolicy()

	rapid.Check(t, func(t *rapid.T) {
		password := rapid.String().Draw(t, "password")
		res := p.Validate(password)

		if res.Valid != (len(res.Violations) == 0) {
			t.Fatalf("valid=%v with violations %v", res.Valid, res.Violations)
		}
		seen := map[auth.Violation]bool{}
		for _, v := range res.Violations {
			if seen[v] {
				t.Fatalf("violation %s reported twice", v)
			}
			seen[v] = true
		}
		if len(password) > p.MaxLength && !seen[auth.ViolationTooLong] {
			t.Fatalf("%d byte password not reported too long", len(password))
		}
	})

	// appending every character class to a valid-length string fixes all class rules
	rapid.Check(t, func(t *rapid.T) {
		base := rapid.StringMatching(`[a-z]{8,40}`).Draw(t, "base")
		if res := p.Validate(base + "A1!"); !res.Valid {
			t.Fatalf("%q rejected: %v", base+"A1!", res.Violations)
		}
	})
}
