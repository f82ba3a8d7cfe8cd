// Package revocation reports whether a server's leaf certificate has been
// revoked. It consults a stapled OCSP response first, then the OCSP
// responders and CRL distribution points named in the certificate.
package revocation

import (
	"context"
	"crypto/x509"
	"fmt"
	"net/http"
	"time"
)

const defaultHTTPTimeout = 10 * time.Second

// State classifies a revocation finding.
type State int

const (
	// Revoked means an OCSP responder or CRL lists the certificate.
	Revoked State = iota + 1
	// Unreachable means revocation data could not be fetched or parsed.
	Unreachable
	// StapleInvalid means the stapled OCSP response is unusable.
	StapleInvalid
	// CRLStale means a CRL is past its NextUpdate.
	CRLStale
)

func (s State) String() string {
	switch s {
	case Revoked:
		return "revoked"
	case Unreachable:
		return "unreachable"
	case StapleInvalid:
		return "staple invalid"
	case CRLStale:
		return "CRL stale"
	default:
		return "unknown"
	}
}

// Finding is one problem found while checking revocation.
type Finding struct {
	State  State
	Detail string
}

func (f Finding) String() string {
	return fmt.Sprintf("revocation %s: %s", f.State, f.Detail)
}

// Checker fetches revocation data over HTTP. CRLs are cached for the life of
// the Checker.
type Checker struct {
	client *http.Client
	crls   *CRLCache
	nowFn  func() time.Time
}

// NewChecker returns a Checker using client, or a client with a 10s timeout
// when client is nil.
func NewChecker(client *http.Client) *Checker {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Checker{client: client, crls: NewCRLCache(), nowFn: time.Now}
}

// Check inspects the leaf of chain (raw DER, leaf first). OCSP needs the
// issuer at chain[1]; CRLs only need the leaf. No findings means nothing was
// revoked or there was nothing to check.
func (c *Checker) Check(ctx context.Context, chain [][]byte, staple []byte) []Finding {
	if len(chain) == 0 {
		return nil
	}
	leaf, err := x509.ParseCertificate(chain[0])
	if err != nil {
		return []Finding{{State: Unreachable, Detail: fmt.Sprintf("parsing leaf certificate: %v", err)}}
	}
	var issuer *x509.Certificate
	if len(chain) > 1 {
		issuer, _ = x509.ParseCertificate(chain[1]) //nolint:errcheck // OCSP is skipped without an issuer
	}

	var findings []Finding
	if issuer != nil {
		if f := c.checkOCSP(ctx, leaf, issuer, staple); f != nil {
			findings = append(findings, *f)
		}
	}
	if f := c.checkCRL(ctx, leaf); f != nil {
		findings = append(findings, *f)
	}
	return findings
}
