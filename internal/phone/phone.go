// Package phone holds E.164 helpers used for lookup keys and notifications.
package phone

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

var (
	e164Pattern   = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	stripPattern  = regexp.MustCompile(`[^\d+]`)
	unknownRegion = "ZZ"
)

// Normalize removes everything except digits and '+', e.g. "+852 9123-4567" -> "+85291234567"
func Normalize(raw string) string {
	return stripPattern.ReplaceAllString(raw, "")
}

// Validate reports whether number is E.164: '+', no leading zero, 2-15 digits
func Validate(number string) bool {
	return e164Pattern.MatchString(number)
}

// Hash returns the SHA-256 hex digest used as the lookup key for a number
func Hash(number string) string {
	sum := sha256.Sum256([]byte(number))
	return hex.EncodeToString(sum[:])
}

// ShortHash is the hash prefix used in log lines
func ShortHash(number string) string {
	return Hash(number)[:8]
}

// Region returns the ISO 3166 region of an E.164 number, or "" when unknown
func Region(number string) string {
	parsed, err := phonenumbers.Parse(number, "")
	if err != nil {
		return ""
	}
	region := phonenumbers.GetRegionCodeForNumber(parsed)
	if region == unknownRegion {
		return ""
	}
	return region
}

// Mask hides all but the first and last two characters (e.g. +8*******67)
func Mask(number string) string {
	if len(number) <= 4 {
		return "****"
	}
	return number[:2] + strings.Repeat("*", len(number)-4) + number[len(number)-2:]
}
