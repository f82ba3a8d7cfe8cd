// Package certinfo extracts the validity window from a DER encoded
// certificate without going through crypto/x509. It only walks as far into
// the TBSCertificate as the Validity field and never fails the caller:
// anything it does not understand yields ok=false.
package certinfo

import (
	"strconv"
	"time"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// versionTag is the explicit [0] tag wrapping TBSCertificate.version.
var versionTag = cbasn1.Tag(0).Constructed().ContextSpecific()

// Validity returns the notBefore and notAfter times of a DER certificate.
//
// The optional version field is skipped when present, so both v1
// certificates (no version tag) and v3 certificates are accepted.
func Validity(der []byte) (notBefore, notAfter time.Time, ok bool) {
	input := cryptobyte.String(der)

	var cert, tbs, validity cryptobyte.String
	if !input.ReadASN1(&cert, cbasn1.SEQUENCE) {
		return time.Time{}, time.Time{}, false
	}
	if !cert.ReadASN1(&tbs, cbasn1.SEQUENCE) {
		return time.Time{}, time.Time{}, false
	}
	if !tbs.SkipOptionalASN1(versionTag) {
		return time.Time{}, time.Time{}, false
	}
	// serialNumber, signature, issuer
	if !tbs.SkipASN1(cbasn1.INTEGER) ||
		!tbs.SkipASN1(cbasn1.SEQUENCE) ||
		!tbs.SkipASN1(cbasn1.SEQUENCE) {
		return time.Time{}, time.Time{}, false
	}
	if !tbs.ReadASN1(&validity, cbasn1.SEQUENCE) {
		return time.Time{}, time.Time{}, false
	}

	notBefore, ok = readTime(&validity)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	notAfter, ok = readTime(&validity)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	return notBefore, notAfter, true
}

// Expiry returns the notAfter time of the leaf certificate in a raw chain.
func Expiry(chain [][]byte) (time.Time, bool) {
	if len(chain) == 0 {
		return time.Time{}, false
	}
	_, notAfter, ok := Validity(chain[0])
	if !ok {
		return time.Time{}, false
	}
	return notAfter, true
}

func readTime(s *cryptobyte.String) (time.Time, bool) {
	var raw cryptobyte.String
	var tag cbasn1.Tag
	if !s.ReadAnyASN1(&raw, &tag) {
		return time.Time{}, false
	}
	switch tag {
	case cbasn1.UTCTime:
		return ParseUTCTime(string(raw))
	case cbasn1.GeneralizedTime:
		return ParseGeneralizedTime(string(raw))
	default:
		return time.Time{}, false
	}
}

// ParseUTCTime parses an ASN.1 UTCTime in either the YYMMDDHHMMZ or the
// YYMMDDHHMMSSZ form. Two digit years below 50 map to 20YY, the rest to 19YY.
func ParseUTCTime(s string) (time.Time, bool) {
	var fields []int
	switch len(s) {
	case 11:
		fields = splitDigits(s[:10], 2)
	case 13:
		fields = splitDigits(s[:12], 2)
	default:
		return time.Time{}, false
	}
	if fields == nil || s[len(s)-1] != 'Z' {
		return time.Time{}, false
	}
	year := fields[0] + 1900
	if fields[0] < 50 {
		year = fields[0] + 2000
	}
	sec := 0
	if len(fields) == 6 {
		sec = fields[5]
	}
	return build(year, fields[1], fields[2], fields[3], fields[4], sec)
}

// ParseGeneralizedTime parses the YYYYMMDDHHMMSSZ form used for dates past 2049.
func ParseGeneralizedTime(s string) (time.Time, bool) {
	if len(s) != 15 || s[14] != 'Z' {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(s[:4])
	if err != nil || !allDigits(s[:4]) {
		return time.Time{}, false
	}
	fields := splitDigits(s[4:14], 2)
	if fields == nil {
		return time.Time{}, false
	}
	return build(year, fields[0], fields[1], fields[2], fields[3], fields[4])
}

func build(year, month, day, hour, minute, sec int) (time.Time, bool) {
	t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.UTC)
	// time.Date normalises out-of-range values; reject them instead.
	if t.Year() != year || int(t.Month()) != month || t.Day() != day ||
		t.Hour() != hour || t.Minute() != minute || t.Second() != sec {
		return time.Time{}, false
	}
	return t, true
}

func splitDigits(s string, width int) []int {
	if len(s)%width != 0 || !allDigits(s) {
		return nil
	}
	out := make([]int, 0, len(s)/width)
	for i := 0; i < len(s); i += width {
		n, err := strconv.Atoi(s[i : i+width])
		if err != nil {
			return nil
		}
		out = append(out, n)
	}
	return out
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
