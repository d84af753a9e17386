package validator

import (
	"errors"
	"net/mail"
	"strings"
	"unicode"
)

var (
	ErrInvalidEmail    = errors.New("invalid email format")
	ErrWeakPassword    = errors.New("password must be at least 10 characters and mix letters and digits")
	ErrInvalidOrgName  = errors.New("firm name must be between 2 and 120 characters")
	ErrInvalidFullName = errors.New("full name is required")
)

// Email checks that email is a bare address (no display name) with a
// dotted domain.
func Email(email string) error {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || !strings.Contains(parts[1], ".") {
		return ErrInvalidEmail
	}
	return nil
}

func Password(pw string) error {
	if len(pw) < 10 || len(pw) > 72 {
		return ErrWeakPassword
	}
	var letter, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return ErrWeakPassword
	}
	return nil
}

func OrgName(name string) error {
	n := len(strings.TrimSpace(name))
	if n < 2 || n > 120 {
		return ErrInvalidOrgName
	}
	return nil
}
