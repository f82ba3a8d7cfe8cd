package httpconn

import (
	"context"
	"errors"
	"time"

	"github.com/ppiankov/nagcheck/internal/probe"
)

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	Success OutcomeKind = iota
	Timeout
	Failure
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	default:
		return "failure"
	}
}

// SimpleRequest describes a one-shot exchange: connect, send one request,
// read the response.
type SimpleRequest struct {
	Address  string
	Hostname string
	Port     int
	Secure   bool

	Method  Method
	Path    string
	Headers []Header
	Body    []byte

	// Timeout bounds connect and exchange together. Zero means no limit
	// beyond the context.
	Timeout time.Duration
}

// SimpleResponse is a Response plus what the connection learnt.
type SimpleResponse struct {
	*Response

	ConnectDuration   time.Duration
	CertificateExpiry *time.Time
	PeerCertificates  [][]byte
	OCSPStaple        []byte
	Posture           []string
}

// Outcome is the result of Perform. Response is set for Success; Failure
// describes what went wrong otherwise and Err holds the underlying error.
type Outcome struct {
	Kind     OutcomeKind
	Response *SimpleResponse
	Failure  string
	Err      error
}

// Perform runs req on a reactor of its own and reports a tagged outcome.
// It never returns an error: failures are part of the Outcome.
func Perform(ctx context.Context, req SimpleRequest, opts ...Option) Outcome {
	r := NewReactor(ctx)
	defer r.Close()

	ctx = r.Context()
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	method := req.Method
	if method == "" {
		method = MethodGet
	}
	if !method.Supported() {
		return failed(ErrUnsupportedMethod)
	}

	conn, err := Connect(ctx, r, probe.Target{
		Address:  req.Address,
		Hostname: req.Hostname,
		Port:     req.Port,
		Secure:   req.Secure,
	}, opts...)
	if err != nil {
		return failed(err)
	}
	defer conn.Close()

	resp, err := conn.Perform(ctx, Request{
		Method:  method,
		Path:    req.Path,
		Headers: req.Headers,
		Body:    req.Body,
	}, 0)
	if err != nil {
		return failed(err)
	}

	out := &SimpleResponse{
		Response:         resp,
		ConnectDuration:  conn.ConnectDuration(),
		PeerCertificates: conn.PeerCertificates(),
		OCSPStaple:       conn.OCSPStaple(),
		Posture:          conn.Posture(),
	}
	if exp, ok := conn.CertificateExpiry(); ok {
		out.CertificateExpiry = &exp
	}
	return Outcome{Kind: Success, Response: out}
}

func failed(err error) Outcome {
	if errors.Is(err, ErrTimeout) {
		return Outcome{Kind: Timeout, Failure: err.Error(), Err: err}
	}
	return Outcome{Kind: Failure, Failure: err.Error(), Err: err}
}
