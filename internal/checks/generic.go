package checks

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/ppiankov/nagcheck/internal/httpconn"
	"github.com/ppiankov/nagcheck/internal/status"
)

// GenericPrefix identifies the generic check in plugin output.
const GenericPrefix = "GENERIC"

// GenericOptions configures the generic check.
type GenericOptions struct {
	// Target is the URL of an endpoint answering with a JSON document:
	//
	//	{"status": "ok", "status-message": "...", "additional-messages": ["..."]}
	Target string

	RequestTimeWarning  time.Duration
	RequestTimeCritical time.Duration
	RequestTimeout      time.Duration
}

// Generic relays the status reported by a JSON status endpoint.
type Generic struct {
	opts GenericOptions
	s    settings
}

// NewGeneric returns a generic check.
func NewGeneric(opts GenericOptions, options ...Option) *Generic {
	return &Generic{opts: opts, s: newSettings(options)}
}

// Run performs the check.
func (g *Generic) Run(ctx context.Context) (status.Result, error) {
	b := status.NewBuilder()

	req, err := g.request()
	if err != nil {
		b.Unknown("Unknown connection error: " + err.Error())
		return b.Finalize(GenericPrefix), nil
	}

	start := time.Now()
	out := httpconn.Perform(ctx, req, g.s.connOpts...)
	elapsed := time.Since(start)

	if out.Kind != httpconn.Success {
		g.s.obs().ObserveRequest(g.opts.Target, req.Address, false, 0, 0)
		if errors.Is(out.Err, httpconn.ErrInvalidURI) {
			b.Unknown("Unknown connection error: " + out.Failure)
		} else {
			b.Critical("Connection IO error: " + out.Failure)
		}
		return b.Finalize(GenericPrefix), nil
	}
	resp := out.Response
	g.s.obs().ObserveRequest(g.opts.Target, req.Address, true, resp.Duration(), resp.ConnectDuration)

	status.CheckDurationLessThan(b, g.opts.RequestTimeWarning, g.opts.RequestTimeCritical,
		"Request took "+status.FormatDurationShort(elapsed), elapsed)
	b.PerfData("request", elapsed.Seconds(), "s")

	body, err := decodeBody(resp.Response)
	if err != nil {
		b.Critical("Error decoding result as UTF-8 string: " + err.Error())
		return b.Finalize(GenericPrefix), nil
	}
	if !gjson.Valid(body) {
		b.Critical("Error decoding JSON structure: invalid JSON")
		return b.Finalize(GenericPrefix), nil
	}

	doc := gjson.Parse(body)
	st := doc.Get("status")
	if !st.Exists() || st.Type != gjson.String {
		b.Critical("Error decoding JSON structure: missing string field status")
		return b.Finalize(GenericPrefix), nil
	}
	message := doc.Get("status-message").String()
	if parsed, ok := status.Parse(st.String()); ok {
		switch parsed {
		case status.OK:
			b.OK(message)
		case status.Warning:
			b.Warning(message)
		case status.Critical:
			b.Critical(message)
		default:
			b.Unknown(message)
		}
	} else {
		b.Unknown("Invalid check result status: " + st.String())
	}
	doc.Get("additional-messages").ForEach(func(_, v gjson.Result) bool {
		b.ExtraInformation(v.String())
		return true
	})
	return b.Finalize(GenericPrefix), nil
}

func (g *Generic) request() (httpconn.SimpleRequest, error) {
	u, err := url.Parse(g.opts.Target)
	if err != nil {
		return httpconn.SimpleRequest{}, fmt.Errorf("invalid target: %w", err)
	}
	var secure bool
	switch u.Scheme {
	case "http":
	case "https":
		secure = true
	default:
		return httpconn.SimpleRequest{}, fmt.Errorf("invalid target %q: scheme must be http or https", g.opts.Target)
	}
	if u.Hostname() == "" {
		return httpconn.SimpleRequest{}, fmt.Errorf("invalid target %q: missing host", g.opts.Target)
	}
	var port int
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return httpconn.SimpleRequest{}, fmt.Errorf("invalid target %q: bad port", g.opts.Target)
		}
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return httpconn.SimpleRequest{
		Address:  u.Hostname(),
		Hostname: u.Hostname(),
		Port:     port,
		Secure:   secure,
		Method:   httpconn.MethodGet,
		Path:     path,
		Headers:  []httpconn.Header{{Name: "Accept", Value: "application/json"}},
		Timeout:  g.opts.RequestTimeout,
	}, nil
}

// decodeBody honours a declared charset and otherwise requires UTF-8.
func decodeBody(resp *httpconn.Response) (string, error) {
	if resp.BodyEncoding != "" {
		return resp.BodyString()
	}
	if !utf8.Valid(resp.Body) {
		return "", errors.New("invalid utf-8")
	}
	return string(resp.Body), nil
}
