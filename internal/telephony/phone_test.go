package telephony

import "testing"

func TestValidatePhone(t *testing.T) {
	valid := []string{
		"+12125551234",
		"+442071838750",
		"+861012345678",
		"+99912345678901",
	}
	for _, number := range valid {
		if err := ValidatePhone(number); err != nil {
			t.Errorf("ValidatePhone(%q) = %v, want nil", number, err)
		}
	}

	// Missing plus, zero country code, wrong length, separators.
	invalid := []string{
		"",
		"2125551234",
		"+1",
		"+02125551234",
		"+1212555123456789",
		"+1 212 555 1234",
		"+1-212-555-1234",
		"12125551234+",
	}
	for _, number := range invalid {
		if err := ValidatePhone(number); err == nil {
			t.Errorf("ValidatePhone(%q) = nil, want error", number)
		}
	}
}
