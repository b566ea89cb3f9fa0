// Package gs1 parses GS1 DataMatrix barcode payloads from pharmaceutical
// packaging. Payloads are a concatenation of application identifiers (AIs):
// 01 GTIN (fixed 14), 17 expiration YYMMDD (fixed 6), 10 lot and 21 serial
// (both variable length, FNC1-terminated).
package gs1

import (
	"fmt"
	"strings"

	"github.com/pharmtrace/pharmtrace-backend/pkg/errors"
)

// GroupSeparator is the FNC1 character (ASCII 29) terminating variable-length fields.
const GroupSeparator = '\x1d'

// fixed AI field lengths; zero means variable-length
var aiLengths = map[string]int{
	"01": 14,
	"10": 0,
	"17": 6,
	"21": 0,
}

// ScanData holds the fields parsed from one DataMatrix payload.
type ScanData struct {
	GTIN           string
	SerialNumber   string
	LotNumber      string
	ExpirationDate string // YYYY-MM-DD
	NDC            string // dashed, derived from GTINs with the 003 prefix
}

// Parse decodes a raw DataMatrix payload into its GS1 fields.
//
// Some handheld scanners (the Tera D5100 among them) emit the literal digits
// "029" where FNC1 should appear. The parser treats "029" as a separator only
// when it sits at a field boundary, i.e. when a known AI follows it.
func Parse(raw string) (*ScanData, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.InvalidFormat("empty scan data")
	}

	result := &ScanData{}
	remaining := raw

	for len(remaining) >= 2 {
		ai := remaining[:2]
		length, known := aiLengths[ai]
		if !known {
			// Skip unknown character and retry; scanners occasionally leak
			// symbology prefixes into the payload.
			remaining = remaining[1:]
			continue
		}
		remaining = remaining[2:]

		var value string
		if length == 0 {
			value, remaining = readVariable(remaining)
		} else {
			if len(remaining) < length {
				break
			}
			value = remaining[:length]
			remaining = skipSeparator(remaining[length:])
		}

		switch ai {
		case "01":
			if result.GTIN == "" {
				result.GTIN = value
			}
		case "21":
			if result.SerialNumber == "" {
				result.SerialNumber = value
			}
		case "10":
			if result.LotNumber == "" {
				result.LotNumber = value
			}
		case "17":
			if result.ExpirationDate == "" {
				result.ExpirationDate = expandDate(value)
			}
		}
	}

	// GTINs with the 003 prefix carry a 9-digit NDC at positions 4-12
	if strings.HasPrefix(result.GTIN, "003") && len(result.GTIN) >= 12 {
		ndcRaw := result.GTIN[3:12]
		result.NDC = ndcRaw[:5] + "-" + ndcRaw[5:]
	}

	if result.GTIN == "" && result.SerialNumber == "" && result.LotNumber == "" {
		return nil, errors.InvalidFormat("no GS1 application identifiers found in scan data")
	}

	return result, nil
}

// readVariable consumes a variable-length field value and returns it along
// with the unconsumed remainder. The field ends at FNC1, at the "029" scanner
// separator, or at the start of the next known AI.
func readVariable(s string) (value, rest string) {
	j := 0
	for j < len(s) {
		if s[j] == GroupSeparator {
			return s[:j], s[j+1:]
		}

		// "029" counts as a separator only when a known AI follows it
		if j+4 < len(s) && s[j:j+3] == "029" {
			if _, ok := aiLengths[s[j+3:j+5]]; ok {
				return s[:j], s[j+3:]
			}
		}

		// next AI without any separator
		if j+1 < len(s) {
			if _, ok := aiLengths[s[j:j+2]]; ok {
				return s[:j], s[j:]
			}
		}

		j++
	}
	return s, ""
}

// skipSeparator drops a trailing FNC1 or "029" separator after a fixed-length field.
func skipSeparator(s string) string {
	if s == "" {
		return s
	}
	if s[0] == GroupSeparator {
		return s[1:]
	}
	if len(s) >= 5 && s[:3] == "029" {
		if _, ok := aiLengths[s[3:5]]; ok {
			return s[3:]
		}
	}
	return s
}

// expandDate converts a YYMMDD expiration into YYYY-MM-DD.
// Two-digit years pivot at 50: 00-49 map to 20xx, 50-99 to 19xx.
func expandDate(v string) string {
	if len(v) != 6 || !isDigits(v) {
		return ""
	}

	yy := int(v[0]-'0')*10 + int(v[1]-'0')
	year := 2000 + yy
	if yy >= 50 {
		year = 1900 + yy
	}

	return fmt.Sprintf("%04d-%s-%s", year, v[2:4], v[4:6])
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
