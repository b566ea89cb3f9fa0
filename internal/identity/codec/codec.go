// Package codec converts between the two product-coding schemes the system
// reconciles: 14-digit GTINs carried by EPCIS events and barcodes, and 10/11
// digit NDCs carried by commercial documents.
package codec

import (
	"fmt"
	"strings"

	"github.com/pharmtrace/pharmtrace-backend/pkg/errors"
)

// PharmaPrefix is the GS1 prefix assigned to US pharmaceutical NDC-derived GTINs.
const PharmaPrefix = "03"

// NDCToGTIN converts a 10- or 11-digit NDC into a 14-digit GTIN.
//
// Non-digit characters (dashes, spaces) are stripped first. A 10-digit NDC is
// padded to 11 with a leading zero, the "03" pharmaceutical prefix is
// prepended, and the GS1 mod-10 check digit is appended.
func NDCToGTIN(ndc string) (string, error) {
	cleaned := digitsOnly(ndc)

	switch len(cleaned) {
	case 10:
		cleaned = "0" + cleaned
	case 11:
		// already normalized
	default:
		return "", errors.InvalidFormat("NDC must contain 10 or 11 digits")
	}

	body := PharmaPrefix + cleaned
	return body + string(rune('0'+CheckDigit(body))), nil
}

// GTINToNDC extracts the labeler (5), product (4), and package (2) segments
// from a GTIN and returns them dash-separated.
//
// For a 14-digit GTIN the two-digit prefix and the trailing check digit are
// stripped; a 12-digit input is segmented from offset 0. The segment widths
// are not self-describing in GTIN, so this is a best-effort display
// conversion: it is an exact inverse only for GTINs produced by NDCToGTIN.
func GTINToNDC(gtin string) (string, error) {
	cleaned := digitsOnly(gtin)

	var core string
	switch len(cleaned) {
	case 14:
		core = cleaned[2:13]
	case 12:
		core = cleaned[0:11]
	default:
		return "", errors.InvalidFormat("GTIN must contain 12 or 14 digits")
	}

	return core[0:5] + "-" + core[5:9] + "-" + core[9:11], nil
}

// CheckDigit computes the GS1 mod-10 check digit over the given digit string,
// using alternating weights 3/1 starting from the rightmost digit.
func CheckDigit(digits string) int {
	sum := 0
	weight := 3
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * weight
		if weight == 3 {
			weight = 1
		} else {
			weight = 3
		}
	}
	return (10 - sum%10) % 10
}

// IsGTIN14 reports whether s is a well-formed 14-digit GTIN with a valid
// check digit. Inputs must already be bare ASCII digit strings.
func IsGTIN14(s string) bool {
	if len(s) != 14 || !allDigits(s) {
		return false
	}
	return CheckDigit(s[:13]) == int(s[13]-'0')
}

// ValidateDigits rejects identifiers that are not bare ASCII digit strings of
// the expected length. Used at the boundary before any codec or matching work.
func ValidateDigits(s string, length int) error {
	if len(s) != length || !allDigits(s) {
		return errors.InvalidFormat(fmt.Sprintf("identifier must be a %d-digit string", length))
	}
	return nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
