package revocation

import (
	"bytes"
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/crypto/ocsp"
)

const maxOCSPResponse = 1 << 20

// checkOCSP uses the stapled response when there is one, otherwise the first
// responder listed in the certificate.
func (c *Checker) checkOCSP(ctx context.Context, cert, issuer *x509.Certificate, staple []byte) *Finding {
	if len(staple) > 0 {
		return c.checkStaple(staple, issuer)
	}
	if len(cert.OCSPServer) == 0 {
		return nil
	}
	return c.queryOCSP(ctx, cert, issuer)
}

func (c *Checker) checkStaple(staple []byte, issuer *x509.Certificate) *Finding {
	resp, err := ocsp.ParseResponse(staple, issuer)
	if err != nil {
		return &Finding{State: StapleInvalid, Detail: fmt.Sprintf("OCSP staple parse error: %v", err)}
	}
	if !resp.NextUpdate.IsZero() && resp.NextUpdate.Before(c.nowFn()) {
		return &Finding{State: StapleInvalid, Detail: "OCSP staple expired at " + resp.NextUpdate.UTC().Format("2006-01-02 15:04 UTC")}
	}
	return statusFinding(resp.Status, "OCSP staple")
}

func (c *Checker) queryOCSP(ctx context.Context, cert, issuer *x509.Certificate) *Finding {
	responder := cert.OCSPServer[0]
	reqBytes, err := ocsp.CreateRequest(cert, issuer, nil)
	if err != nil {
		return &Finding{State: Unreachable, Detail: fmt.Sprintf("OCSP request creation failed: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, responder, bytes.NewReader(reqBytes))
	if err != nil {
		return &Finding{State: Unreachable, Detail: fmt.Sprintf("OCSP responder %s: %v", responder, err)}
	}
	req.Header.Set("Content-Type", "application/ocsp-request")
	httpResp, err := c.client.Do(req)
	if err != nil {
		return &Finding{State: Unreachable, Detail: fmt.Sprintf("OCSP responder %s: %v", responder, err)}
	}
	defer httpResp.Body.Close() //nolint:errcheck // read-only check

	respBytes, err := io.ReadAll(io.LimitReader(httpResp.Body, maxOCSPResponse))
	if err != nil {
		return &Finding{State: Unreachable, Detail: fmt.Sprintf("OCSP response read error: %v", err)}
	}
	resp, err := ocsp.ParseResponse(respBytes, issuer)
	if err != nil {
		return &Finding{State: Unreachable, Detail: fmt.Sprintf("OCSP response parse error: %v", err)}
	}
	return statusFinding(resp.Status, "OCSP responder "+responder)
}

func statusFinding(st int, source string) *Finding {
	switch st {
	case ocsp.Good:
		return nil
	case ocsp.Revoked:
		return &Finding{State: Revoked, Detail: source + " reports the certificate revoked"}
	default:
		return &Finding{State: Unreachable, Detail: fmt.Sprintf("%s returned status %d", source, st)}
	}
}
