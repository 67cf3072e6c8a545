// Package validation registers the request binding rules that validator/v10 lacks
package validation

import (
	"strings"
	"sync"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var once sync.Once

// Initialize registers the custom rules on gin's validator. Safe to call more than once.
func Initialize() {
	once.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		Register(v)
	})
}

// Register adds the custom rules to v
func Register(v *validator.Validate) {
	for tag, fn := range map[string]validator.Func{
		"nospaces":  validateNoSpaces,
		"nocontrol": validateNoControl,
	} {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(err)
		}
	}
}

// validateNoSpaces rejects strings made only of whitespace
func validateNoSpaces(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// validateNoControl rejects control characters such as newlines and NUL
func validateNoControl(fl validator.FieldLevel) bool {
	return strings.IndexFunc(fl.Field().String(), unicode.IsControl) < 0
}
