package certinfo

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

func selfSigned(t *testing.T, notBefore, notAfter time.Time) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: "example.com"},
		DNSNames:     []string{"example.com"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	return der
}

// v1Certificate builds a certificate whose TBSCertificate has no explicit
// version tag, so Validity sits at index 3 instead of 4.
func v1Certificate(notBefore, notAfter string) []byte {
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(cert *cryptobyte.Builder) {
		cert.AddASN1(cbasn1.SEQUENCE, func(tbs *cryptobyte.Builder) {
			tbs.AddASN1Int64(7)
			tbs.AddASN1(cbasn1.SEQUENCE, func(alg *cryptobyte.Builder) {
				alg.AddASN1ObjectIdentifier([]int{1, 2, 840, 10045, 4, 3, 2})
			})
			tbs.AddASN1(cbasn1.SEQUENCE, func(*cryptobyte.Builder) {}) // issuer
			tbs.AddASN1(cbasn1.SEQUENCE, func(v *cryptobyte.Builder) {
				v.AddASN1(cbasn1.UTCTime, func(c *cryptobyte.Builder) { c.AddBytes([]byte(notBefore)) })
				v.AddASN1(cbasn1.UTCTime, func(c *cryptobyte.Builder) { c.AddBytes([]byte(notAfter)) })
			})
			tbs.AddASN1(cbasn1.SEQUENCE, func(*cryptobyte.Builder) {}) // subject
		})
		cert.AddASN1(cbasn1.SEQUENCE, func(alg *cryptobyte.Builder) {
			alg.AddASN1ObjectIdentifier([]int{1, 2, 840, 10045, 4, 3, 2})
		})
		cert.AddASN1BitString([]byte{0})
	})
	return b.BytesOrPanic()
}

func TestValidity_V3Certificate(t *testing.T) {
	nb := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	na := time.Date(2034, 3, 1, 12, 30, 15, 0, time.UTC)
	der := selfSigned(t, nb, na)

	gotNB, gotNA, ok := Validity(der)
	if !ok {
		t.Fatal("expected validity to parse")
	}
	if !gotNB.Equal(nb) {
		t.Errorf("notBefore = %v, want %v", gotNB, nb)
	}
	if !gotNA.Equal(na) {
		t.Errorf("notAfter = %v, want %v", gotNA, na)
	}
}

// The walk skips the optional version tag instead of indexing field 4 of the
// TBSCertificate, which changes the outcome for certificates without one.
func TestValidity_AcceptsCertificateWithoutVersionTag(t *testing.T) {
	der := v1Certificate("2401010000Z", "260101000000Z")
	nb, na, ok := Validity(der)
	if !ok {
		t.Fatal("expected v1 certificate to parse")
	}
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); !nb.Equal(want) {
		t.Errorf("notBefore = %v, want %v", nb, want)
	}
	if want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC); !na.Equal(want) {
		t.Errorf("notAfter = %v, want %v", na, want)
	}
}

func TestValidity_GeneralizedTime(t *testing.T) {
	nb := time.Date(2049, 6, 1, 0, 0, 0, 0, time.UTC)
	na := time.Date(2055, 6, 1, 0, 0, 0, 0, time.UTC)
	der := selfSigned(t, nb, na)

	_, gotNA, ok := Validity(der)
	if !ok {
		t.Fatal("expected validity to parse")
	}
	if !gotNA.Equal(na) {
		t.Errorf("notAfter = %v, want %v", gotNA, na)
	}
}

func TestValidity_Malformed(t *testing.T) {
	good := selfSigned(t, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	tests := []struct {
		name string
		der  []byte
	}{
		{"empty", nil},
		{"not a sequence", []byte{0x02, 0x01, 0x01}},
		{"truncated", good[:len(good)/3]},
		{"wrong inner tag", []byte{0x30, 0x03, 0x02, 0x01, 0x01}},
		{"bad time text", v1Certificate("24010100000", "2601010000Z")},
		{"wrong time length", v1Certificate("2401010000Z", "26010100Z")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, ok := Validity(tt.der); ok {
				t.Error("expected ok=false")
			}
		})
	}
}

func TestExpiry(t *testing.T) {
	na := time.Date(2031, 1, 2, 3, 4, 5, 0, time.UTC)
	leaf := selfSigned(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), na)
	other := selfSigned(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), na.AddDate(5, 0, 0))

	got, ok := Expiry([][]byte{leaf, other})
	if !ok || !got.Equal(na) {
		t.Errorf("Expiry = %v, %v; want %v", got, ok, na)
	}
	if _, ok := Expiry(nil); ok {
		t.Error("expected no expiry for empty chain")
	}
	if _, ok := Expiry([][]byte{{0xff}}); ok {
		t.Error("expected no expiry for garbage")
	}
}

func TestParseUTCTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"991231235959Z", time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC), true},
		{"000101000000Z", time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"2503151230Z", time.Date(2025, 3, 15, 12, 30, 0, 0, time.UTC), true},
		{"491231235959Z", time.Date(2049, 12, 31, 23, 59, 59, 0, time.UTC), true},
		{"500101000000Z", time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"99123123595Z", time.Time{}, false},
		{"9912312359590Z", time.Time{}, false},
		{"99123123595aZ", time.Time{}, false},
		{"991231235959X", time.Time{}, false},
		{"991331235959Z", time.Time{}, false},
		{"990230000000Z", time.Time{}, false},
		{"-9123123595Z", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseUTCTime(tt.in)
		if ok != tt.ok {
			t.Errorf("ParseUTCTime(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("ParseUTCTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseGeneralizedTime(t *testing.T) {
	got, ok := ParseGeneralizedTime("20551231235959Z")
	if !ok || !got.Equal(time.Date(2055, 12, 31, 23, 59, 59, 0, time.UTC)) {
		t.Errorf("ParseGeneralizedTime = %v, %v", got, ok)
	}
	if _, ok := ParseGeneralizedTime("2055123123595Z"); ok {
		t.Error("expected short input to fail")
	}
	if _, ok := ParseGeneralizedTime("+0551231235959Z"); ok {
		t.Error("expected sign in year to fail")
	}
}
