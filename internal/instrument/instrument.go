// Package instrument handles security identifier parsing and validation:
// ISINs (ISO 6166), WKNs, and ISO 4217 currency codes.
package instrument

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrInvalidISIN     = errors.New("instrument: invalid ISIN")
	ErrInvalidWKN      = errors.New("instrument: invalid WKN")
	ErrInvalidCurrency = errors.New("instrument: invalid currency code")
)

// isinRegex matches: {2-letter country}{9 alphanumerics}{check digit}
// Example: US0378331005
var isinRegex = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)

// wknRegex matches the 6-character German securities code.
// Example: 865985
var wknRegex = regexp.MustCompile(`^[A-Z0-9]{6}$`)

var currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)

// ParseISIN validates the format and check digit of an ISIN and returns it
// unchanged. The check digit is computed with the Luhn algorithm over the
// digit expansion of the code (A=10 ... Z=35).
func ParseISIN(isin string) (string, error) {
	if !isinRegex.MatchString(isin) {
		return "", fmt.Errorf("%w: %q (expected 2-letter country, 9 alphanumerics, check digit)",
			ErrInvalidISIN, isin)
	}
	if !luhnValid(isin) {
		return "", fmt.Errorf("%w: %q (check digit mismatch)", ErrInvalidISIN, isin)
	}
	return isin, nil
}

// ValidateWKN checks the 6-character secondary identifier. Empty is allowed;
// the WKN is optional on an asset.
func ValidateWKN(wkn string) error {
	if wkn == "" {
		return nil
	}
	if !wknRegex.MatchString(wkn) {
		return fmt.Errorf("%w: %q (expected 6 alphanumerics)", ErrInvalidWKN, wkn)
	}
	return nil
}

// ValidateCurrency checks a 3-letter ISO 4217 code.
func ValidateCurrency(code string) error {
	if !currencyRegex.MatchString(code) {
		return fmt.Errorf("%w: %q (expected 3 uppercase letters)", ErrInvalidCurrency, code)
	}
	return nil
}

// luhnValid runs the Luhn check over the ISIN's digit expansion.
func luhnValid(isin string) bool {
	var digits []int
	for _, r := range isin {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		default: // A-Z expands to two digits (A=10 ... Z=35)
			v := int(r-'A') + 10
			digits = append(digits, v/10, v%10)
		}
	}

	sum := 0
	double := true // start doubling at the digit left of the check digit
	for i := len(digits) - 2; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}

	check := (10 - sum%10) % 10
	return check == digits[len(digits)-1]
}
