// Package phone holds the contact-number normalisation shared by every
// source adapter and the case registry.
package phone

import "strings"

// Normalize strips surrounding whitespace and hyphens. A 12-digit number with
// a leading "01" is a mobile number dialled with a trunk prefix; the leading
// zero is dropped.
func Normalize(raw string) string {
	number := strings.ReplaceAll(strings.TrimSpace(raw), "-", "")
	if len(number) == 12 && strings.HasPrefix(number, "01") {
		number = number[1:]
	}
	return number
}
