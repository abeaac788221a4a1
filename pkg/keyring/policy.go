package keyring

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// MinPassphraseLength is the minimum passphrase length in characters.
const MinPassphraseLength = 12

// Strength represents the estimated strength of a passphrase.
type Strength int

const (
	StrengthWeak Strength = iota
	StrengthFair
	StrengthGood
	StrengthStrong
)

// String returns a human-readable representation of the strength.
func (s Strength) String() string {
	switch s {
	case StrengthWeak:
		return "weak"
	case StrengthFair:
		return "fair"
	case StrengthGood:
		return "good"
	case StrengthStrong:
		return "strong"
	default:
		return "unknown"
	}
}

// Validation is the result of ValidatePassphrase.
type Validation struct {
	Valid    bool     // Whether the passphrase meets the length requirement
	Strength Strength // Estimated strength
	Warnings []string // Suggestions for improvement (not errors)
}

// ValidatePassphrase checks the length requirement and estimates strength.
// Only the length is enforced; complexity produces warnings.
func ValidatePassphrase(passphrase string) *Validation {
	length := utf8.RuneCountInString(passphrase)
	if length < MinPassphraseLength {
		return &Validation{
			Valid:    false,
			Strength: StrengthWeak,
			Warnings: []string{fmt.Sprintf("Passphrase must be at least %d characters", MinPassphraseLength)},
		}
	}

	var hasUpper, hasLower, hasDigit, hasOther bool
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasOther = true
		}
	}

	complexity := 0
	for _, ok := range []bool{hasUpper, hasLower, hasDigit, hasOther} {
		if ok {
			complexity++
		}
	}

	result := &Validation{Valid: true}
	if complexity < 2 {
		result.Warnings = append(result.Warnings,
			"Consider mixing words, numbers, and symbols")
	}

	switch {
	case complexity >= 3 && length >= 20:
		result.Strength = StrengthStrong
	case complexity >= 2 && length >= 16:
		result.Strength = StrengthGood
	default:
		result.Strength = StrengthFair
	}
	return result
}
