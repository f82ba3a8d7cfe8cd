// Package checks implements the monitoring checks built on the HTTP client
// core: a multi-address site check and a generic JSON status check.
package checks

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/nagcheck/internal/httpconn"
	"github.com/ppiankov/nagcheck/internal/revocation"
)

// Observer receives per-address measurements while a check runs.
type Observer interface {
	ObserveRequest(target, address string, ok bool, request, connect time.Duration)
	ObserveCertificate(target, address string, notAfter time.Time)
}

// RevocationChecker reports revocation problems for a raw DER chain.
type RevocationChecker interface {
	Check(ctx context.Context, chain [][]byte, staple []byte) []revocation.Finding
}

// ResolveFunc returns the IPv4 addresses for host.
type ResolveFunc func(ctx context.Context, host string) ([]string, error)

type settings struct {
	connOpts []httpconn.Option
	observer Observer
	resolve  ResolveFunc
	revoker  RevocationChecker
	nowFn    func() time.Time
}

// Option configures a check.
type Option func(*settings)

// WithConnOptions passes options through to every connection the check
// opens.
func WithConnOptions(opts ...httpconn.Option) Option {
	return func(s *settings) {
		s.connOpts = append(s.connOpts, opts...)
	}
}

// WithObserver reports measurements to o.
func WithObserver(o Observer) Option {
	return func(s *settings) {
		s.observer = o
	}
}

// WithResolver replaces DNS resolution.
func WithResolver(fn ResolveFunc) Option {
	return func(s *settings) {
		s.resolve = fn
	}
}

// WithRevocationChecker replaces the OCSP/CRL checker used when revocation
// checking is enabled.
func WithRevocationChecker(rc RevocationChecker) Option {
	return func(s *settings) {
		s.revoker = rc
	}
}

func newSettings(opts []Option) settings {
	s := settings{resolve: resolveIPv4, nowFn: time.Now}
	for _, fn := range opts {
		fn(&s)
	}
	return s
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, string, bool, time.Duration, time.Duration) {}
func (nopObserver) ObserveCertificate(string, string, time.Time)                     {}

func (s settings) obs() Observer {
	if s.observer == nil {
		return nopObserver{}
	}
	return s.observer
}

// resolveIPv4 looks up A records for host. An IP literal resolves to itself.
func resolveIPv4(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{ip.String()}, nil
	}
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", strings.TrimSuffix(host, "."))
	if err != nil {
		return nil, err
	}
	addrs := make([]string, 0, len(ips))
	for _, ip := range ips {
		addrs = append(addrs, ip.String())
	}
	sort.Strings(addrs)
	return addrs, nil
}

// ParseHeader splits "name: value", trimming both parts.
func ParseHeader(s string) (httpconn.Header, error) {
	name, value, ok := strings.Cut(s, ":")
	if !ok {
		return httpconn.Header{}, fmt.Errorf("header %q must be in 'name:value' format", s)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return httpconn.Header{}, fmt.Errorf("header %q has an empty name", s)
	}
	return httpconn.Header{Name: name, Value: strings.TrimSpace(value)}, nil
}

// ParseHeaders applies ParseHeader to each entry.
func ParseHeaders(in []string) ([]httpconn.Header, error) {
	out := make([]httpconn.Header, 0, len(in))
	for _, s := range in {
		h, err := ParseHeader(s)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
