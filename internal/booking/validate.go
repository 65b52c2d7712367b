package booking

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minPhoneDigits    = 7
	minPostcodeLength = 6
)

var (
	emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)
	nonDigits    = regexp.MustCompile(`\D`)
)

// FieldErrors maps a field name to its error message. A missing key means
// the field is valid.
type FieldErrors map[string]string

// Empty reports whether no field has an error.
func (e FieldErrors) Empty() bool { return len(e) == 0 }

// Validate checks every field of the form independently and returns all
// errors found. An empty result means the form may be submitted.
func Validate(f ContactForm) FieldErrors {
	errs := FieldErrors{}

	if strings.TrimSpace(f.FirstName) == "" {
		errs[FieldFirstName] = "First Name is required"
	}
	if strings.TrimSpace(f.Surname) == "" {
		errs[FieldSurname] = "Surname is required"
	}
	if strings.TrimSpace(f.Address) == "" {
		errs[FieldAddress] = "Address is required"
	}

	if strings.TrimSpace(f.Email) == "" {
		errs[FieldEmail] = "Email is required"
	} else if !emailPattern.MatchString(f.Email) {
		errs[FieldEmail] = "Enter a valid email address"
	}

	digits := PhoneDigits(f.Phone)
	if digits == "" {
		errs[FieldPhone] = "Phone is required"
	} else if len(digits) < minPhoneDigits {
		errs[FieldPhone] = "Phone must be at least 7 digits"
	}

	postcode := strings.TrimSpace(f.Postcode)
	if postcode == "" {
		errs[FieldPostcode] = "Postcode is required"
	} else if utf8.RuneCountInString(postcode) < minPostcodeLength {
		errs[FieldPostcode] = "Postcode must be at least 6 characters"
	}

	return errs
}

// PhoneDigits strips everything but ASCII digits from a phone number.
func PhoneDigits(phone string) string {
	return nonDigits.ReplaceAllString(phone, "")
}
