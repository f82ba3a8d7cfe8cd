package checks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/nagcheck/internal/httpconn"
	"github.com/ppiankov/nagcheck/internal/revocation"
	"github.com/ppiankov/nagcheck/internal/status"
)

// HTTPPrefix identifies the site check in plugin output.
const HTTPPrefix = "HTTP"

// HTTPOptions configures the site check.
type HTTPOptions struct {
	// Address is resolved to IPv4 addresses; every address is checked.
	Address string
	// Hostname is used for SNI and the Host header. Defaults to Address.
	Hostname string
	Port     int
	Secure   bool

	Method      httpconn.Method
	Path        string
	SendHeaders []httpconn.Header
	Body        []byte

	ExpectStatusCodes []int
	ExpectHeaders     []httpconn.Header
	ExpectBodyText    string

	ResponseTimeWarning  time.Duration
	ResponseTimeCritical time.Duration

	// Certificates expiring within CertCritical are critical, within
	// CertWarning a warning.
	CertWarning  time.Duration
	CertCritical time.Duration

	// CheckRevocation consults OCSP and CRLs for the leaf certificate of
	// secure targets.
	CheckRevocation bool

	Timeout time.Duration
}

// HTTP checks a site on every address its name resolves to.
type HTTP struct {
	opts HTTPOptions
	s    settings
}

// NewHTTP returns a site check. Unset options take the plugin defaults:
// GET /, expecting status 200.
func NewHTTP(opts HTTPOptions, options ...Option) *HTTP {
	if opts.Hostname == "" {
		opts.Hostname = opts.Address
	}
	if opts.Method == "" {
		opts.Method = httpconn.MethodGet
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	if len(opts.ExpectStatusCodes) == 0 {
		opts.ExpectStatusCodes = []int{200}
	}
	s := newSettings(options)
	if opts.CheckRevocation && s.revoker == nil {
		s.revoker = revocation.NewChecker(nil)
	}
	return &HTTP{opts: opts, s: s}
}

type outcomeKind int

const (
	outcomeChecked outcomeKind = iota
	outcomeConnectionError
	outcomeTimeout
	outcomeOtherError
)

type addressResult struct {
	address  string
	kind     outcomeKind
	status   status.Status
	duration time.Duration
	connect  time.Duration
	messages []string
	detail   string
	// notes become extra information lines without affecting status.
	notes []string
}

// Run performs the check.
func (h *HTTP) Run(ctx context.Context) (status.Result, error) {
	if h.opts.Address == "" {
		return status.Result{}, fmt.Errorf("%w: address is required", httpconn.ErrInvalidURI)
	}
	b := status.NewBuilder()

	start := time.Now()
	addresses, err := h.s.resolve(ctx, h.opts.Address)
	lookup := time.Since(start)
	if err != nil {
		slog.Debug("resolving address", "address", h.opts.Address, "err", err)
	}
	if len(addresses) == 0 {
		b.Critical("Failed to resolve hostname: " + h.opts.Address)
		return b.Finalize(HTTPPrefix), nil
	}
	b.ExtraInformation(fmt.Sprintf("Resolved %s to %d %s in %s",
		h.opts.Address, len(addresses), plural(len(addresses), "host", "hosts"), status.FormatDurationLong(lookup)))

	results := make([]addressResult, len(addresses))
	var g errgroup.Group
	for i, addr := range addresses {
		g.Go(func() error {
			results[i] = h.checkAddress(ctx, addr)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // per-address failures are carried in results

	var counts [4]int
	var ok, warn, crit int
	var durations, connects []time.Duration
	for _, r := range results {
		switch r.kind {
		case outcomeChecked:
			b.ExtraInformation(r.address + ": " + strings.Join(r.messages, ", "))
			durations = append(durations, r.duration)
			if r.connect > 0 {
				connects = append(connects, r.connect)
			}
			switch r.status {
			case status.OK:
				ok++
			case status.Warning:
				warn++
			default:
				crit++
			}
			b.Update(r.status)
		case outcomeTimeout:
			b.ExtraInformation(r.address + ": timeout")
			counts[r.kind]++
			b.Update(status.Critical)
		default:
			b.ExtraInformation(r.address + ": " + r.detail)
			counts[r.kind]++
			b.Update(status.Critical)
		}
		for _, note := range r.notes {
			b.ExtraInformation(r.address + ": " + note)
		}
	}

	for _, c := range []struct {
		n     int
		label string
	}{
		{counts[outcomeOtherError], "reported unknown errors"},
		{counts[outcomeTimeout], "timed out"},
		{counts[outcomeConnectionError], "failed to connect"},
		{crit, "critical"},
		{warn, "warning"},
		{ok, "ok"},
	} {
		if c.n > 0 {
			b.OK(fmt.Sprintf("%d %s %s", c.n, plural(c.n, "host", "hosts"), c.label))
		}
	}

	if len(durations) > 0 {
		longest := slices.Max(durations)
		status.CheckDurationLessThan(b, h.opts.ResponseTimeWarning, h.opts.ResponseTimeCritical,
			"request took "+status.FormatDurationLong(longest), longest)
		b.PerfData("request", longest.Seconds(), "s")
	}
	if len(connects) > 0 {
		b.PerfData("connect", slices.Max(connects).Seconds(), "s")
	}
	return b.Finalize(HTTPPrefix), nil
}

func (h *HTTP) checkAddress(ctx context.Context, addr string) addressResult {
	out := httpconn.Perform(ctx, httpconn.SimpleRequest{
		Address:  addr,
		Hostname: h.opts.Hostname,
		Port:     h.opts.Port,
		Secure:   h.opts.Secure,
		Method:   h.opts.Method,
		Path:     h.opts.Path,
		Headers:  h.opts.SendHeaders,
		Body:     h.opts.Body,
		Timeout:  h.opts.Timeout,
	}, h.s.connOpts...)

	obs := h.s.obs()
	switch out.Kind {
	case httpconn.Timeout:
		obs.ObserveRequest(h.opts.Address, addr, false, 0, 0)
		return addressResult{address: addr, kind: outcomeTimeout}
	case httpconn.Failure:
		obs.ObserveRequest(h.opts.Address, addr, false, 0, 0)
		return addressResult{address: addr, kind: outcomeConnectionError, detail: "failed to connect: " + out.Failure}
	}

	resp := out.Response
	obs.ObserveRequest(h.opts.Address, addr, true, resp.Duration(), resp.ConnectDuration)
	if resp.CertificateExpiry != nil {
		obs.ObserveCertificate(h.opts.Address, addr, *resp.CertificateExpiry)
	}

	r := addressResult{
		address:  addr,
		kind:     outcomeChecked,
		status:   status.OK,
		duration: resp.Duration(),
		connect:  resp.ConnectDuration,
		notes:    resp.Posture,
	}
	h.checkStatusCode(&r, resp)
	h.checkHeaders(&r, resp)
	if err := h.checkBody(&r, resp); err != nil {
		return addressResult{address: addr, kind: outcomeOtherError, detail: err.Error()}
	}
	h.checkCertificate(&r, resp)
	if h.opts.CheckRevocation && len(resp.PeerCertificates) > 0 {
		h.checkRevocation(ctx, &r, resp)
	}
	return r
}

func (h *HTTP) checkStatusCode(r *addressResult, resp *httpconn.SimpleResponse) {
	if slices.Contains(h.opts.ExpectStatusCodes, resp.StatusCode) {
		r.messages = append(r.messages, fmt.Sprintf("status %d", resp.StatusCode))
		return
	}
	r.messages = append(r.messages, fmt.Sprintf("status %d (critical)", resp.StatusCode))
	r.status = r.status.Escalate(status.Critical)
}

func (h *HTTP) checkHeaders(r *addressResult, resp *httpconn.SimpleResponse) {
	if len(h.opts.ExpectHeaders) == 0 {
		return
	}
	var matched, missing, mismatched int
	for _, want := range h.opts.ExpectHeaders {
		values := resp.Header(want.Name)
		switch {
		case len(values) == 0:
			missing++
		case slices.Contains(values, want.Value):
			matched++
		default:
			mismatched++
		}
	}
	if matched > 0 {
		r.messages = append(r.messages, fmt.Sprintf("matched %d headers", matched))
	}
	if missing > 0 {
		r.messages = append(r.messages, fmt.Sprintf("missing %d headers (warning)", missing))
		r.status = r.status.Escalate(status.Warning)
	}
	if mismatched > 0 {
		r.messages = append(r.messages, fmt.Sprintf("failed to match %d headers (critical)", mismatched))
		r.status = r.status.Escalate(status.Critical)
	}
}

// checkBody matches the expected text against the decoded body. A body with
// no declared charset is matched byte for byte.
func (h *HTTP) checkBody(r *addressResult, resp *httpconn.SimpleResponse) error {
	if h.opts.ExpectBodyText == "" {
		return nil
	}
	var found bool
	body, err := resp.BodyString()
	switch {
	case err == nil:
		found = strings.Contains(body, h.opts.ExpectBodyText)
	case errors.Is(err, httpconn.ErrNoEncoding):
		found = bytes.Contains(resp.Body, []byte(h.opts.ExpectBodyText))
	default:
		return fmt.Errorf("decoding body: %w", err)
	}
	if found {
		r.messages = append(r.messages, "body text matched")
		return nil
	}
	r.messages = append(r.messages, "body text not matched (critical)")
	r.status = r.status.Escalate(status.Critical)
	return nil
}

func (h *HTTP) checkCertificate(r *addressResult, resp *httpconn.SimpleResponse) {
	if resp.CertificateExpiry == nil {
		return
	}
	remaining := resp.CertificateExpiry.Sub(h.s.nowFn())
	switch {
	case h.opts.CertCritical > 0 && remaining < h.opts.CertCritical:
		r.status = r.status.Escalate(status.Critical)
		r.messages = append(r.messages, fmt.Sprintf("certificate expires in %d hours", int64(remaining/time.Hour)))
	case h.opts.CertWarning > 0 && remaining < h.opts.CertWarning:
		r.status = r.status.Escalate(status.Warning)
		r.messages = append(r.messages, fmt.Sprintf("certificate expires in %d days (warning)", int64(remaining/(24*time.Hour))))
	default:
		r.messages = append(r.messages, fmt.Sprintf("certificate expires in %d weeks", int64(remaining/(7*24*time.Hour))))
	}
}

// checkRevocation escalates on revoked certificates and stale revocation
// data. Unreachable responders are reported but do not change the status.
func (h *HTTP) checkRevocation(ctx context.Context, r *addressResult, resp *httpconn.SimpleResponse) {
	findings := h.s.revoker.Check(ctx, resp.PeerCertificates, resp.OCSPStaple)
	worst := status.OK
	for _, f := range findings {
		r.notes = append(r.notes, f.String())
		switch f.State {
		case revocation.Revoked:
			worst = worst.Escalate(status.Critical)
		case revocation.StapleInvalid, revocation.CRLStale:
			worst = worst.Escalate(status.Warning)
		}
	}
	switch worst {
	case status.Critical:
		r.messages = append(r.messages, "certificate revoked (critical)")
	case status.Warning:
		r.messages = append(r.messages, "revocation data stale (warning)")
	}
	r.status = r.status.Escalate(worst)
}
