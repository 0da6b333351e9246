package domain

import (
	"fmt"
	"unicode"
)

// MinPasswordLength mirrors the identity framework's default policy.
const MinPasswordLength = 6

// ValidatePassword enforces the default identity password policy: at least
// MinPasswordLength characters with an upper-case letter, a lower-case
// letter, a digit and a non-alphanumeric character.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakPassword, MinPasswordLength)
	}
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case !unicode.IsLetter(r):
			symbol = true
		}
	}
	switch {
	case !upper:
		return fmt.Errorf("%w: needs an upper-case letter", ErrWeakPassword)
	case !lower:
		return fmt.Errorf("%w: needs a lower-case letter", ErrWeakPassword)
	case !digit:
		return fmt.Errorf("%w: needs a digit", ErrWeakPassword)
	case !symbol:
		return fmt.Errorf("%w: needs a non-alphanumeric character", ErrWeakPassword)
	}
	return nil
}
