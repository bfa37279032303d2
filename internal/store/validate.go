package store

import (
	"errors"
	"strings"
)

// ErrNotFound is wrapped when an updated or fetched row does not exist
var ErrNotFound = errors.New("not found")

var (
	errPhoneRequired = errors.New("phone is required")
	errDuplicateCall = errors.New("call record already exists")
)

func (f AppointmentFields) validate() error {
	switch {
	case f.Service == "":
		return errors.New("service is required")
	case f.Date == "":
		return errors.New("date is required")
	case f.Time == "":
		return errors.New("time is required")
	}
	return nil
}

func (f AppointmentFields) duration() int {
	if f.Duration > 0 {
		return f.Duration
	}
	return DefaultAppointmentMinutes
}

// withheldNumbers are the placeholders Twilio sends in From when caller ID is
// anonymous, restricted, blocked or unavailable
var withheldNumbers = map[string]bool{
	"+266696687":   true,
	"+7378742833":  true,
	"+2562533":     true,
	"+8656696":     true,
	"+86282452253": true,
}

// CallerID returns raw when it is a dialable number and "" otherwise, so
// withheld callers never share a customer record
func CallerID(raw string) string {
	phone := strings.TrimSpace(raw)
	if phone == "" || withheldNumbers[phone] {
		return ""
	}
	digits := 0
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return ""
		}
	}
	if digits < 7 {
		return ""
	}
	return phone
}
