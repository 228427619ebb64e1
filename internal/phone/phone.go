// Package phone holds the input predicates used by the onboarding dialogues.
package phone

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is returned for input that is not a phone number of the form
// 7XXXXXXXXXX.
var ErrInvalid = errors.New("invalid phone number")

// "number" only admits ASCII digits, so len counts bytes and runes alike.
const rule = "required,len=11,number,startswith=7"

var validate = validator.New()

// Valid reports whether s is exactly "7" followed by ten decimal digits.
func Valid(s string) bool {
	return validate.Var(s, rule) == nil
}

// Parse trims surrounding whitespace and validates the result.
func Parse(text string) (string, error) {
	p := strings.TrimSpace(text)
	if !Valid(p) {
		return "", ErrInvalid
	}
	return p, nil
}

// IsCancel reports whether text is the single-character cancellation token:
// x in Latin or Cyrillic script, either case.
func IsCancel(text string) bool {
	switch strings.TrimSpace(text) {
	case "x", "X", "х", "Х":
		return true
	}
	return false
}
