package validation_test

import (
	"testing"

	"storyboard/internal/validation"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

type displayName struct {
	Name string `validate:"required,nospaces,nocontrol,max=100"`
}

func TestRules(t *testing.T) {
	v := validator.New()
	validation.Register(v)

	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"plain name", "Ada Lovelace", true},
		{"unicode name", "Zoë Øster", true},
		{"only spaces", "   ", false},
		{"tabs and newlines", "\t\n", false},
		{"embedded newline", "Ada\nLovelace", false},
		{"nul byte", "Ada\x00", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(displayName{Name: tt.input})
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		validation.Initialize()
		validation.Initialize()
	})
}
