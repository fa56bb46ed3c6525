package identity

import (
	"errors"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

var ErrInvalidPhone = errors.New("enter a valid phone number")

// PhoneNormalizer validates contact numbers and stores them in E.164 form.
// Numbers without a country prefix are read in the default region.
type PhoneNormalizer struct {
	region string
}

func NewPhoneNormalizer(region string) *PhoneNormalizer {
	return &PhoneNormalizer{region: strings.ToUpper(region)}
}

// Normalize returns "" for a blank number.
func (n *PhoneNormalizer) Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	num, err := phonenumbers.Parse(raw, n.region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// CountDigits counts the decimal digits in s, ignoring separators.
func CountDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
