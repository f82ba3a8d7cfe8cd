package httpconn

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/ppiankov/nagcheck/internal/probe"
)

var (
	// ErrInvalidURI is returned for a malformed target or path before any
	// I/O happens.
	ErrInvalidURI = probe.ErrInvalidURI

	// ErrUnknown wraps DNS, TCP, TLS and protocol failures.
	ErrUnknown = probe.ErrUnknown

	// ErrTimeout is returned when the deadline passes at any step.
	ErrTimeout = errors.New("timed out")

	// ErrUnsupportedMethod is returned for methods outside the supported set.
	ErrUnsupportedMethod = errors.New("unsupported method")

	// ErrInvalidHeader is returned for header names or values that cannot be
	// written to the wire.
	ErrInvalidHeader = errors.New("invalid header")

	// ErrNoEncoding is returned by BodyString when the response did not
	// declare a usable character encoding.
	ErrNoEncoding = errors.New("no body encoding declared")

	// ErrBodyDecode is returned by BodyString when the body is not valid in
	// the declared encoding.
	ErrBodyDecode = errors.New("body does not match declared encoding")
)

// Method is an HTTP request method.
type Method string

const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
)

// Supported reports whether requests with this method can be sent.
func (m Method) Supported() bool {
	return m == MethodGet || m == MethodPost
}

// ParseMethod converts a method name, case-insensitively.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(s))
	if !m.Supported() {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMethod, s)
	}
	return m, nil
}

// Header is one header field. Order is preserved on the wire.
type Header struct {
	Name  string
	Value string
}

// Request is an HTTP request to send over a Connection.
type Request struct {
	Method  Method
	Path    string
	Headers []Header
	Body    []byte
}

// Get returns a GET request for path.
func Get(path string, headers ...Header) Request {
	return Request{Method: MethodGet, Path: path, Headers: headers}
}

// Post returns a POST request for path carrying body.
func Post(path string, body []byte, headers ...Header) Request {
	return Request{Method: MethodPost, Path: path, Headers: headers, Body: body}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode    int
	StatusMessage string
	Headers       []Header

	Body []byte

	// BodyEncoding is the charset parameter of Content-Type, empty when the
	// server did not declare one.
	BodyEncoding string

	// RequestDuration covers sending the request and reading the status
	// line and headers. ResponseDuration covers draining the body.
	RequestDuration  time.Duration
	ResponseDuration time.Duration
}

// Duration is the total time of the exchange.
func (r *Response) Duration() time.Duration {
	return r.RequestDuration + r.ResponseDuration
}

// Header returns the values of the named header, matched case-insensitively.
func (r *Response) Header(name string) []string {
	var values []string
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			values = append(values, h.Value)
		}
	}
	return values
}

// BodyString decodes the body with the declared encoding. It fails when no
// encoding was declared, the label is not recognised or the bytes are not
// valid in that encoding.
func (r *Response) BodyString() (string, error) {
	if r.BodyEncoding == "" {
		return "", ErrNoEncoding
	}
	enc, err := htmlindex.Get(r.BodyEncoding)
	if err != nil {
		return "", fmt.Errorf("%w: unrecognised charset %q", ErrNoEncoding, r.BodyEncoding)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		return "", fmt.Errorf("%w: charset %q", ErrNoEncoding, r.BodyEncoding)
	}
	if name == "utf-8" {
		if !utf8.Valid(r.Body) {
			return "", fmt.Errorf("%w: invalid utf-8", ErrBodyDecode)
		}
		return string(r.Body), nil
	}
	utf16Body := name == "utf-16le" || name == "utf-16be"
	if utf16Body && !validUTF16(r.Body, name == "utf-16be") {
		return "", fmt.Errorf("%w: invalid %s sequence", ErrBodyDecode, name)
	}
	out, err := enc.NewDecoder().Bytes(r.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrBodyDecode, name, err)
	}
	// Legacy decoders substitute U+FFFD for bytes they cannot map instead of
	// failing, so a replacement rune in their output marks invalid input.
	// This misreports the rare legacy body that encodes U+FFFD itself.
	if !utf16Body && strings.ContainsRune(string(out), utf8.RuneError) {
		return "", fmt.Errorf("%w: invalid %s sequence", ErrBodyDecode, name)
	}
	return string(out), nil
}

// validUTF16 reports whether b is a whole number of code units with every
// surrogate correctly paired.
func validUTF16(b []byte, bigEndian bool) bool {
	if len(b)%2 != 0 {
		return false
	}
	unit := func(i int) uint16 {
		if bigEndian {
			return binary.BigEndian.Uint16(b[i:])
		}
		return binary.LittleEndian.Uint16(b[i:])
	}
	for i := 0; i < len(b); i += 2 {
		u := unit(i)
		switch {
		case u >= 0xDC00 && u <= 0xDFFF:
			return false
		case u >= 0xD800 && u <= 0xDBFF:
			if i+2 >= len(b) {
				return false
			}
			if next := unit(i + 2); next < 0xDC00 || next > 0xDFFF {
				return false
			}
			i += 2
		}
	}
	return true
}
