// Package telephony drives the provider-bridged phone leg of a
// transfer: number validation, the voice script the callee hears, the
// provider REST gateway, and the background monitors that follow each
// placed call to a terminal status.
package telephony

import (
	"fmt"
	"regexp"
)

// e164 requires a leading +, a non-zero country digit, and 8 to 15
// digits in total.
var e164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// ValidatePhone checks that s is an E.164 phone number, for example
// +12125551234.
func ValidatePhone(s string) error {
	if !e164.MatchString(s) {
		return fmt.Errorf("telephony: %q is not an E.164 phone number", s)
	}
	return nil
}
