package probe

import (
	"crypto/tls"
	"fmt"
	"strings"
)

// Posture lists weaknesses in the negotiated TLS parameters. Plain HTTP
// connections have none.
func (c *Conn) Posture() []string {
	if c.TLSVersion == 0 {
		return nil
	}
	var issues []string
	if v := weakVersion(c.TLSVersion); v != "" {
		issues = append(issues, "weak TLS version: "+v)
	}
	if issue := weakCipher(c.CipherSuite); issue != "" {
		issues = append(issues, issue)
	}
	return issues
}

func weakVersion(v uint16) string {
	switch v {
	case tls.VersionSSL30: //nolint:staticcheck // deliberately checking deprecated version
		return "SSL 3.0"
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	default:
		return ""
	}
}

func weakCipher(id uint16) string {
	if id == 0 {
		return ""
	}
	name := tls.CipherSuiteName(id)
	for _, cs := range tls.InsecureCipherSuites() {
		if cs.ID != id {
			continue
		}
		for _, tag := range []string{"RC4", "3DES", "NULL"} {
			if strings.Contains(name, tag) {
				return fmt.Sprintf("weak cipher: %s (%s)", name, tag)
			}
		}
		return fmt.Sprintf("weak cipher: %s (insecure)", name)
	}
	if strings.Contains(name, "CBC") {
		return "CBC-mode cipher: " + name
	}
	return ""
}
