package revocation

import (
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
)

const maxCRL = 10 << 20

// checkCRL looks the certificate's serial up in each distribution point.
func (c *Checker) checkCRL(ctx context.Context, cert *x509.Certificate) *Finding {
	for _, dp := range cert.CRLDistributionPoints {
		crl := c.crls.Get(dp, c.nowFn())
		if crl == nil {
			var err error
			crl, err = c.fetchCRL(ctx, dp)
			if err != nil {
				return &Finding{State: Unreachable, Detail: fmt.Sprintf("CRL fetch from %s: %v", dp, err)}
			}
			c.crls.Set(dp, crl, c.nowFn())
		}

		if !crl.NextUpdate.IsZero() && crl.NextUpdate.Before(c.nowFn()) {
			return &Finding{State: CRLStale, Detail: fmt.Sprintf("CRL from %s expired %s", dp, crl.NextUpdate.UTC().Format("2006-01-02 15:04 UTC"))}
		}
		for _, revoked := range crl.RevokedCertificateEntries {
			if cert.SerialNumber.Cmp(revoked.SerialNumber) == 0 {
				return &Finding{State: Revoked, Detail: fmt.Sprintf("CRL from %s lists serial %s", dp, cert.SerialNumber.Text(16))}
			}
		}
	}
	return nil
}

func (c *Checker) fetchCRL(ctx context.Context, url string) (*x509.RevocationList, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req) //nolint:gosec // distribution points come from the certificate
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // read-only fetch

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCRL))
	if err != nil {
		return nil, fmt.Errorf("reading CRL: %w", err)
	}
	return x509.ParseRevocationList(data)
}
