// Package probe opens the TCP, and optionally TLS, connection an HTTP check
// runs over. It captures the raw peer certificate chain and the time spent
// connecting.
package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// DialContextFunc is the signature used to establish TCP connections.
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

var (
	// ErrInvalidURI is returned for a malformed target before any I/O happens.
	ErrInvalidURI = errors.New("invalid URI")

	// ErrUnknown wraps DNS, TCP, TLS and protocol failures.
	ErrUnknown = errors.New("connection failed")
)

const (
	defaultHTTPPort  = 80
	defaultHTTPSPort = 443
)

// Target identifies the endpoint to connect to. Address is what gets dialled
// (a hostname or an IP); Hostname is used for SNI, certificate verification
// and the Host header.
type Target struct {
	Address  string
	Hostname string
	Port     int
	Secure   bool
}

// DefaultPort returns 443 for secure targets and 80 otherwise.
func (t Target) DefaultPort() int {
	if t.Secure {
		return defaultHTTPSPort
	}
	return defaultHTTPPort
}

// Normalize fills in the default port and falls back to Address when no
// Hostname was given.
func (t Target) Normalize() Target {
	if t.Port == 0 {
		t.Port = t.DefaultPort()
	}
	if t.Hostname == "" {
		t.Hostname = t.Address
	}
	return t
}

// HostPort returns the dial address.
func (t Target) HostPort() string {
	return net.JoinHostPort(t.Address, strconv.Itoa(t.Port))
}

// Scheme returns "https" or "http".
func (t Target) Scheme() string {
	if t.Secure {
		return "https"
	}
	return "http"
}

// Validate reports ErrInvalidURI when the target cannot be dialled.
func (t Target) Validate() error {
	if t.Address == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidURI)
	}
	if strings.ContainsAny(t.Address, " /?#@") {
		return fmt.Errorf("%w: address %q", ErrInvalidURI, t.Address)
	}
	if t.Hostname == "" || strings.ContainsAny(t.Hostname, " /?#@:") {
		return fmt.Errorf("%w: hostname %q", ErrInvalidURI, t.Hostname)
	}
	if t.Port < 1 || t.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidURI, t.Port)
	}
	return nil
}

// Conn is an established connection plus what was learnt while opening it.
type Conn struct {
	net.Conn

	// PeerCertificates holds the raw DER chain presented by the server,
	// leaf first. Empty for plain HTTP.
	PeerCertificates [][]byte
	// OCSPStaple is the OCSP response stapled during the handshake, if any.
	OCSPStaple       []byte
	ConnectDuration  time.Duration
	TLSVersion       uint16
	CipherSuite      uint16
}

// Options configures Connect.
type Options struct {
	Dial    DialContextFunc
	RootCAs *x509.CertPool
}

// Option mutates Options.
type Option func(*Options)

// WithDialer routes the TCP connection through dialFn.
func WithDialer(dialFn DialContextFunc) Option {
	return func(o *Options) {
		o.Dial = dialFn
	}
}

// WithRootCAs replaces the system trust anchors used to verify servers.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(o *Options) {
		o.RootCAs = pool
	}
}

// SOCKS5Dialer returns a dial function that tunnels through the SOCKS5 proxy
// listening on addr.
func SOCKS5Dialer(addr string) (DialContextFunc, error) {
	socksDialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("creating SOCKS5 dialer: %w", err)
	}
	ctxDialer, ok := socksDialer.(proxy.ContextDialer)
	if !ok {
		return nil, errors.New("SOCKS5 dialer does not support DialContext")
	}
	return ctxDialer.DialContext, nil
}

// Connect dials the target and, for secure targets, completes a TLS handshake
// using Hostname for SNI and certificate verification. The context bounds the
// whole operation.
func Connect(ctx context.Context, t Target, opts ...Option) (*Conn, error) {
	t = t.Normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}

	o := Options{Dial: (&net.Dialer{}).DialContext}
	for _, fn := range opts {
		fn(&o)
	}

	start := time.Now()
	rawConn, err := o.Dial(ctx, "tcp", t.HostPort())
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %w", ErrUnknown, t.HostPort(), err)
	}

	if !t.Secure {
		return &Conn{Conn: rawConn}, nil
	}

	tlsConn := tls.Client(rawConn, &tls.Config{
		ServerName: t.Hostname,
		RootCAs:    o.RootCAs,
		MinVersion: tls.VersionTLS12,
	})
	if hsErr := tlsConn.HandshakeContext(ctx); hsErr != nil {
		rawConn.Close() //nolint:errcheck // best-effort cleanup on handshake failure
		return nil, fmt.Errorf("%w: TLS handshake with %s: %w", ErrUnknown, t.Hostname, hsErr)
	}
	elapsed := time.Since(start)

	state := tlsConn.ConnectionState()
	chain := make([][]byte, 0, len(state.PeerCertificates))
	for _, c := range state.PeerCertificates {
		chain = append(chain, c.Raw)
	}

	return &Conn{
		Conn:             tlsConn,
		PeerCertificates: chain,
		OCSPStaple:       state.OCSPResponse,
		ConnectDuration:  elapsed,
		TLSVersion:       state.Version,
		CipherSuite:      state.CipherSuite,
	}, nil
}
