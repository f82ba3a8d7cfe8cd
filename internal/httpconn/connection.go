// Package httpconn is a small HTTP/1.1 client built for health checks. A
// Connection is opened once per check and shares a single physical stream
// between every request made on it; each exchange runs against one absolute
// deadline.
package httpconn

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/http/httpguts"

	"github.com/ppiankov/nagcheck/internal/certinfo"
	"github.com/ppiankov/nagcheck/internal/probe"
	"github.com/ppiankov/nagcheck/internal/stream"
)

const tracerName = "github.com/ppiankov/nagcheck/internal/httpconn"

type options struct {
	probeOpts []probe.Option
	tracer    trace.Tracer
}

// Option configures Connect and Perform.
type Option func(*options)

// WithDialer routes TCP connections through dialFn, for example a SOCKS5
// proxy.
func WithDialer(dialFn probe.DialContextFunc) Option {
	return func(o *options) {
		o.probeOpts = append(o.probeOpts, probe.WithDialer(dialFn))
	}
}

// WithRootCAs verifies servers against pool instead of the system roots.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(o *options) {
		o.probeOpts = append(o.probeOpts, probe.WithRootCAs(pool))
	}
}

// WithTracer records connect and exchange spans on tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

func buildOptions(opts []Option) options {
	o := options{tracer: otel.Tracer(tracerName)}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Connection is an open connection to one endpoint. It lives for a single
// check invocation.
type Connection struct {
	reactor *Reactor
	target  probe.Target
	shared  *stream.Shared
	opts    options

	connectDuration  time.Duration
	peerCertificates [][]byte
	ocspStaple       []byte
	expiry           time.Time
	hasExpiry        bool
	posture          []string
}

// Connect opens the connection on reactor r. The context bounds the connect
// step only.
func Connect(ctx context.Context, r *Reactor, t probe.Target, opts ...Option) (*Connection, error) {
	o := buildOptions(opts)
	t = t.Normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}

	ctx, span := o.tracer.Start(ctx, "httpconn.connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.ServerAddress(t.Hostname),
			semconv.ServerPort(t.Port),
			attribute.String("net.peer.address", t.Address),
			attribute.Bool("tls", t.Secure),
		),
	)
	defer span.End()

	conn, err := race(ctx, r,
		func() (*probe.Conn, error) { return probe.Connect(ctx, t, o.probeOpts...) },
		nil,
		func(c *probe.Conn) { c.Close() }, //nolint:errcheck // abandoned connection
	)
	if err != nil {
		err = classify(ctx, "connecting to "+t.HostPort(), err)
		endSpan(span, err)
		return nil, err
	}

	c := &Connection{
		reactor:          r,
		target:           t,
		shared:           stream.New(stream.NewStream(conn)),
		opts:             o,
		connectDuration:  conn.ConnectDuration,
		peerCertificates: conn.PeerCertificates,
		ocspStaple:       conn.OCSPStaple,
		posture:          conn.Posture(),
	}
	if exp, ok := certinfo.Expiry(conn.PeerCertificates); ok {
		c.expiry, c.hasExpiry = exp, true
		span.SetAttributes(attribute.String("tls.server.not_after", exp.Format(time.RFC3339)))
	}
	slog.Debug("connected", "address", t.Address, "hostname", t.Hostname, "port", t.Port,
		"secure", t.Secure, "duration", c.connectDuration)
	endSpan(span, nil)
	return c, nil
}

// Target returns the normalized target.
func (c *Connection) Target() probe.Target {
	return c.target
}

// ConnectDuration is the time from dial start to handshake completion. It is
// zero for plain HTTP.
func (c *Connection) ConnectDuration() time.Duration {
	return c.connectDuration
}

// PeerCertificates returns the raw DER chain the server presented.
func (c *Connection) PeerCertificates() [][]byte {
	return c.peerCertificates
}

// OCSPStaple returns the OCSP response stapled during the handshake.
func (c *Connection) OCSPStaple() []byte {
	return c.ocspStaple
}

// CertificateExpiry returns the notAfter of the leaf certificate, when one
// could be read.
func (c *Connection) CertificateExpiry() (time.Time, bool) {
	return c.expiry, c.hasExpiry
}

// Posture lists weaknesses in the negotiated TLS parameters.
func (c *Connection) Posture() []string {
	return c.posture
}

// Close closes the shared stream. Requests still queued fail.
func (c *Connection) Close() error {
	return c.shared.Close()
}

// Perform sends req and reads the full response. Every step, from waiting for
// the shared stream to draining the body, must finish before now+timeout. A
// zero timeout leaves only the context to bound the exchange.
//
// Any failure, including a timeout, discards the physical stream; the next
// Perform reconnects.
func (c *Connection) Perform(ctx context.Context, req Request, timeout time.Duration) (*Response, error) {
	if !req.Method.Supported() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, req.Method)
	}
	wire, err := c.serialize(req)
	if err != nil {
		return nil, err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, time.Now().Add(timeout))
		defer cancel()
	}
	deadline, _ := ctx.Deadline()

	ctx, span := c.opts.tracer.Start(ctx, "httpconn.perform",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(string(req.Method)),
			semconv.ServerAddress(c.target.Hostname),
			semconv.ServerPort(c.target.Port),
			semconv.URLPath(req.Path),
		),
	)
	defer span.End()

	resp, err := c.exchange(ctx, deadline, req, wire)
	if err != nil {
		endSpan(span, err)
		slog.Debug("http exchange failed", "hostname", c.target.Hostname, "path", req.Path, "err", err)
		return nil, err
	}
	span.SetAttributes(semconv.HTTPResponseStatusCode(resp.StatusCode))
	endSpan(span, nil)
	slog.Debug("http exchange", "hostname", c.target.Hostname, "path", req.Path,
		"status", resp.StatusCode, "duration", resp.Duration())
	return resp, nil
}

func (c *Connection) exchange(ctx context.Context, deadline time.Time, req Request, wire []byte) (*Response, error) {
	b, err := race(ctx, c.reactor,
		func() (*stream.Borrowed, error) { return c.shared.Borrow(ctx) },
		nil,
		func(b *stream.Borrowed) { b.Release() },
	)
	if err != nil {
		return nil, classify(ctx, "waiting for connection", err)
	}
	defer b.Release()

	st := b.Stream()
	if st == nil {
		conn, connErr := race(ctx, c.reactor,
			func() (*probe.Conn, error) { return probe.Connect(ctx, c.target, c.opts.probeOpts...) },
			nil,
			func(pc *probe.Conn) { pc.Close() }, //nolint:errcheck // abandoned connection
		)
		if connErr != nil {
			return nil, classify(ctx, "reconnecting to "+c.target.HostPort(), connErr)
		}
		st = b.Attach(conn)
	}

	// The socket deadline backs up the race: an abandoned step unblocks
	// once it is forced into the past.
	if !deadline.IsZero() {
		st.Conn.SetDeadline(deadline) //nolint:errcheck // enforced again by abandon
	}
	abandon := func() {
		st.Conn.SetDeadline(time.Unix(1, 0)) //nolint:errcheck // best effort
	}

	resp, err := c.roundTrip(ctx, st, wire, abandon)
	if err != nil {
		b.Discard()
		return nil, err
	}
	if resp.close {
		b.Discard()
	} else {
		st.Conn.SetDeadline(time.Time{}) //nolint:errcheck // stream stays usable
	}
	return resp.Response, nil
}

type fullResponse struct {
	*Response
	close bool
}

func (c *Connection) roundTrip(ctx context.Context, st *stream.Stream, wire []byte, abandon func()) (*fullResponse, error) {
	start := time.Now()
	_, err := race(ctx, c.reactor, func() (int, error) { return st.Conn.Write(wire) }, abandon, nil)
	if err != nil {
		return nil, classify(ctx, "sending request", err)
	}

	hr, err := race(ctx, c.reactor, func() (*http.Response, error) { return http.ReadResponse(st.Reader, nil) }, abandon, nil)
	if err != nil {
		return nil, classify(ctx, "reading response headers", err)
	}
	requestDuration := time.Since(start)

	bodyStart := time.Now()
	body, err := race(ctx, c.reactor, func() ([]byte, error) {
		defer hr.Body.Close()
		return io.ReadAll(hr.Body)
	}, abandon, nil)
	if err != nil {
		return nil, classify(ctx, "reading response body", err)
	}
	responseDuration := time.Since(bodyStart)

	return &fullResponse{
		Response: &Response{
			StatusCode:       hr.StatusCode,
			StatusMessage:    statusMessage(hr),
			Headers:          flattenHeaders(hr.Header),
			Body:             body,
			BodyEncoding:     declaredCharset(hr.Header.Get("Content-Type")),
			RequestDuration:  requestDuration,
			ResponseDuration: responseDuration,
		},
		close: hr.Close,
	}, nil
}

// serialize renders req as an HTTP/1.1 request. A Host header is added
// unless the caller supplied one; it carries the port only when the port is
// not the default for the scheme.
func (c *Connection) serialize(req Request) ([]byte, error) {
	path := req.Path
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") || strings.ContainsAny(path, " \r\n") {
		return nil, fmt.Errorf("%w: path %q", ErrInvalidURI, req.Path)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s HTTP/1.1\r\n", req.Method, path)

	hasHost, hasLength := false, false
	for _, h := range req.Headers {
		if !httpguts.ValidHeaderFieldName(h.Name) || !httpguts.ValidHeaderFieldValue(h.Value) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidHeader, h.Name)
		}
		switch {
		case strings.EqualFold(h.Name, "Host"):
			hasHost = true
		case strings.EqualFold(h.Name, "Content-Length"):
			hasLength = true
		}
	}
	if !hasHost {
		fmt.Fprintf(&buf, "Host: %s\r\n", c.hostHeader())
	}
	for _, h := range req.Headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", h.Name, h.Value)
	}
	if req.Method == MethodPost && !hasLength {
		fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(req.Body))
	}
	buf.WriteString("\r\n")
	if req.Method == MethodPost {
		buf.Write(req.Body)
	}
	return buf.Bytes(), nil
}

func (c *Connection) hostHeader() string {
	if c.target.Port == c.target.DefaultPort() {
		return c.target.Hostname
	}
	return c.target.Hostname + ":" + strconv.Itoa(c.target.Port)
}

// classify maps a step failure to the package error taxonomy.
func classify(ctx context.Context, step string, err error) error {
	switch {
	case errors.Is(err, ErrTimeout),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s", ErrTimeout, step)
	case errors.Is(err, ErrInvalidURI), errors.Is(err, ErrUnknown):
		return err
	default:
		return fmt.Errorf("%w: %s: %w", ErrUnknown, step, err)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return
	}
	span.SetStatus(codes.Ok, "")
}

func statusMessage(hr *http.Response) string {
	// hr.Status is "200 OK"; keep only the reason phrase.
	if _, reason, ok := strings.Cut(hr.Status, " "); ok {
		return reason
	}
	return ""
}

func flattenHeaders(h http.Header) []Header {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	var out []Header
	for _, name := range names {
		for _, v := range h[name] {
			out = append(out, Header{Name: name, Value: v})
		}
	}
	return out
}

func declaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}
