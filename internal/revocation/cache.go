package revocation

import (
	"crypto/x509"
	"sync"
	"time"
)

const defaultCRLLifetime = time.Hour

// CRLCache holds parsed CRLs keyed by distribution point URL.
type CRLCache struct {
	entries map[string]crlEntry
	mu      sync.RWMutex
}

type crlEntry struct {
	crl       *x509.RevocationList
	expiresAt time.Time
}

// NewCRLCache creates an empty cache.
func NewCRLCache() *CRLCache {
	return &CRLCache{entries: make(map[string]crlEntry)}
}

// Get returns the CRL cached for url, or nil if it is missing or expired at now.
func (c *CRLCache) Get(url string, now time.Time) *x509.RevocationList {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[url]
	if !ok || now.After(e.expiresAt) {
		return nil
	}
	return e.crl
}

// Set caches crl until its NextUpdate, or for an hour when it has none.
func (c *CRLCache) Set(url string, crl *x509.RevocationList, now time.Time) {
	expires := crl.NextUpdate
	if expires.IsZero() {
		expires = now.Add(defaultCRLLifetime)
	}
	c.mu.Lock()
	c.entries[url] = crlEntry{crl: crl, expiresAt: expires}
	c.mu.Unlock()
}
