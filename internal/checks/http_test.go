package checks

import (
	"context"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/nagcheck/internal/httpconn"
	"github.com/ppiankov/nagcheck/internal/revocation"
	"github.com/ppiankov/nagcheck/internal/status"
)

func staticResolver(addrs ...string) ResolveFunc {
	return func(context.Context, string) ([]string, error) {
		return addrs, nil
	}
}

func serverPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	return srv.Listener.Addr().(*net.TCPAddr).Port
}

type recordingObserver struct {
	mu       sync.Mutex
	requests map[string]bool
	certs    map[string]time.Time
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{requests: map[string]bool{}, certs: map[string]time.Time{}}
}

func (o *recordingObserver) ObserveRequest(_, address string, ok bool, _, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests[address] = ok
}

func (o *recordingObserver) ObserveCertificate(_, address string, notAfter time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.certs[address] = notAfter
}

func siteHandler(code int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-App", "nagcheck")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(code)
		w.Write([]byte(body)) //nolint:errcheck // test handler
	}
}

func runHTTP(t *testing.T, opts HTTPOptions, options ...Option) status.Result {
	t.Helper()
	res, err := NewHTTP(opts, options...).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func TestHTTP_AllChecksPass(t *testing.T) {
	hosts := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hosts <- r.Host
		siteHandler(200, "<h1>hello world</h1>")(w, r)
	}))
	defer srv.Close()

	obs := newRecordingObserver()
	res := runHTTP(t, HTTPOptions{
		Address:        "site.test",
		Port:           serverPort(t, srv),
		ExpectHeaders:  []httpconn.Header{{Name: "x-app", Value: "nagcheck"}},
		ExpectBodyText: "hello world",
		Timeout:        5 * time.Second,
	}, WithResolver(staticResolver("127.0.0.1")), WithObserver(obs))

	if res.Status != status.OK {
		t.Fatalf("Status = %v (%s), want OK", res.Status, res.Message)
	}
	if !strings.HasPrefix(res.Message, "1 host ok, request took ") {
		t.Errorf("Message = %q", res.Message)
	}
	if !strings.HasPrefix(res.ExtraInformation[0], "Resolved site.test to 1 host in ") {
		t.Errorf("extra[0] = %q", res.ExtraInformation[0])
	}
	if want := "127.0.0.1: status 200, matched 1 headers, body text matched"; res.ExtraInformation[1] != want {
		t.Errorf("extra[1] = %q, want %q", res.ExtraInformation[1], want)
	}
	if gotHost := <-hosts; !strings.HasPrefix(gotHost, "site.test:") {
		t.Errorf("Host = %q, want site.test:<port>", gotHost)
	}
	if len(res.PerformanceData) != 1 || !strings.HasPrefix(res.PerformanceData[0], "'request'=") {
		t.Errorf("PerformanceData = %v", res.PerformanceData)
	}
	if !obs.requests["127.0.0.1"] {
		t.Error("observer did not see a successful request")
	}
}

func TestHTTP_ResponseChecks(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		opts    HTTPOptions
		status  status.Status
		summary string
		detail  string
	}{
		{
			name:    "unexpected status",
			handler: siteHandler(503, "down"),
			status:  status.Critical,
			summary: "1 host critical",
			detail:  "127.0.0.1: status 503 (critical)",
		},
		{
			name:    "alternative status accepted",
			handler: siteHandler(301, ""),
			opts:    HTTPOptions{ExpectStatusCodes: []int{200, 301}},
			status:  status.OK,
			summary: "1 host ok",
			detail:  "127.0.0.1: status 301",
		},
		{
			name:    "missing header",
			handler: siteHandler(200, "ok"),
			opts:    HTTPOptions{ExpectHeaders: []httpconn.Header{{Name: "X-Missing", Value: "1"}}},
			status:  status.Warning,
			summary: "1 host warning",
			detail:  "127.0.0.1: status 200, missing 1 headers (warning)",
		},
		{
			name:    "mismatched header",
			handler: siteHandler(200, "ok"),
			opts: HTTPOptions{ExpectHeaders: []httpconn.Header{
				{Name: "X-App", Value: "other"},
				{Name: "X-Missing", Value: "1"},
			}},
			status:  status.Critical,
			summary: "1 host critical",
			detail:  "127.0.0.1: status 200, missing 1 headers (warning), failed to match 1 headers (critical)",
		},
		{
			name:    "body text not matched",
			handler: siteHandler(200, "maintenance"),
			opts:    HTTPOptions{ExpectBodyText: "welcome"},
			status:  status.Critical,
			summary: "1 host critical",
			detail:  "127.0.0.1: status 200, body text not matched (critical)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			opts := tt.opts
			opts.Address = "site.test"
			opts.Port = serverPort(t, srv)
			opts.Timeout = 5 * time.Second
			res := runHTTP(t, opts, WithResolver(staticResolver("127.0.0.1")))

			if res.Status != tt.status {
				t.Errorf("Status = %v, want %v (%s)", res.Status, tt.status, res.Message)
			}
			if !strings.HasPrefix(res.Message, tt.summary+", ") {
				t.Errorf("Message = %q, want prefix %q", res.Message, tt.summary)
			}
			if res.ExtraInformation[1] != tt.detail {
				t.Errorf("detail = %q, want %q", res.ExtraInformation[1], tt.detail)
			}
		})
	}
}

func TestHTTP_BodyWithoutCharsetMatchesBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("\xffmarker\xfe")) //nolint:errcheck // test handler
	}))
	defer srv.Close()

	res := runHTTP(t, HTTPOptions{
		Address:        "127.0.0.1",
		Port:           serverPort(t, srv),
		ExpectBodyText: "marker",
		Timeout:        5 * time.Second,
	})
	if res.Status != status.OK {
		t.Errorf("Status = %v (%v)", res.Status, res.ExtraInformation)
	}
}

func TestHTTP_UndecodableBodyIsUnknownError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte{0xff, 0xfe}) //nolint:errcheck // test handler
	}))
	defer srv.Close()

	res := runHTTP(t, HTTPOptions{
		Address:        "127.0.0.1",
		Port:           serverPort(t, srv),
		ExpectBodyText: "x",
		Timeout:        5 * time.Second,
	})
	if res.Status != status.Critical {
		t.Errorf("Status = %v, want CRITICAL", res.Status)
	}
	if !strings.HasPrefix(res.Message, "1 host reported unknown errors") {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestHTTP_MixedAddresses(t *testing.T) {
	srv := httptest.NewServer(siteHandler(200, "ok"))
	defer srv.Close()

	obs := newRecordingObserver()
	res := runHTTP(t, HTTPOptions{
		Address: "site.test",
		Port:    serverPort(t, srv),
		Timeout: 5 * time.Second,
	}, WithResolver(staticResolver("127.0.0.1", "127.0.0.2")), WithObserver(obs))

	if res.Status != status.Critical {
		t.Errorf("Status = %v, want CRITICAL", res.Status)
	}
	if !strings.HasPrefix(res.Message, "1 host failed to connect, 1 host ok, ") {
		t.Errorf("Message = %q", res.Message)
	}
	if !strings.HasPrefix(res.ExtraInformation[2], "127.0.0.2: failed to connect: ") {
		t.Errorf("extra[2] = %q", res.ExtraInformation[2])
	}
	if ok, seen := obs.requests["127.0.0.2"]; !seen || ok {
		t.Error("observer should record the failed address")
	}
}

func TestHTTP_ResolutionFailure(t *testing.T) {
	failing := func(context.Context, string) ([]string, error) {
		return nil, errors.New("no such host")
	}
	res := runHTTP(t, HTTPOptions{Address: "nowhere.invalid"}, WithResolver(failing))
	if res.Status != status.Critical || res.Message != "Failed to resolve hostname: nowhere.invalid" {
		t.Errorf("Run = %v %q", res.Status, res.Message)
	}
}

func TestHTTP_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(200)
	}))
	defer srv.Close()
	defer close(release)

	res := runHTTP(t, HTTPOptions{
		Address: "127.0.0.1",
		Port:    serverPort(t, srv),
		Timeout: 100 * time.Millisecond,
	})
	if res.Status != status.Critical {
		t.Errorf("Status = %v, want CRITICAL", res.Status)
	}
	if res.Message != "1 host timed out" {
		t.Errorf("Message = %q", res.Message)
	}
	if res.ExtraInformation[1] != "127.0.0.1: timeout" {
		t.Errorf("extra[1] = %q", res.ExtraInformation[1])
	}
}

func TestHTTP_ResponseTimeThreshold(t *testing.T) {
	srv := httptest.NewServer(siteHandler(200, "ok"))
	defer srv.Close()

	res := runHTTP(t, HTTPOptions{
		Address:              "127.0.0.1",
		Port:                 serverPort(t, srv),
		ResponseTimeCritical: time.Nanosecond,
		Timeout:              5 * time.Second,
	})
	if res.Status != status.Critical {
		t.Errorf("Status = %v, want CRITICAL", res.Status)
	}
	if !strings.Contains(res.Message, "(critical is ") {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestHTTP_CertificateExpiry(t *testing.T) {
	srv := httptest.NewTLSServer(siteHandler(200, "ok"))
	defer srv.Close()
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	notAfter := srv.Certificate().NotAfter

	tests := []struct {
		name      string
		remaining time.Duration
		status    status.Status
		message   string
	}{
		{"critical", 72 * time.Hour, status.Critical, "certificate expires in 72 hours"},
		{"warning", 6*24*time.Hour + time.Hour, status.Warning, "certificate expires in 6 days (warning)"},
		{"fine", 30 * 24 * time.Hour, status.OK, "certificate expires in 4 weeks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := newRecordingObserver()
			check := NewHTTP(HTTPOptions{
				Address:      "site.test",
				Hostname:     "example.com",
				Port:         serverPort(t, srv),
				Secure:       true,
				CertWarning:  7 * 24 * time.Hour,
				CertCritical: 5 * 24 * time.Hour,
				Timeout:      5 * time.Second,
			},
				WithResolver(staticResolver("127.0.0.1")),
				WithConnOptions(httpconn.WithRootCAs(pool)),
				WithObserver(obs),
			)
			check.s.nowFn = func() time.Time { return notAfter.Add(-tt.remaining) }

			res, err := check.Run(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if res.Status != tt.status {
				t.Errorf("Status = %v, want %v (%v)", res.Status, tt.status, res.ExtraInformation)
			}
			if want := "127.0.0.1: status 200, " + tt.message; res.ExtraInformation[1] != want {
				t.Errorf("detail = %q, want %q", res.ExtraInformation[1], want)
			}
			if !obs.certs["127.0.0.1"].Equal(notAfter.Truncate(time.Second)) {
				t.Errorf("observed notAfter = %v, want %v", obs.certs["127.0.0.1"], notAfter)
			}
			if len(res.PerformanceData) != 2 {
				t.Errorf("PerformanceData = %v, want request and connect", res.PerformanceData)
			}
		})
	}
}

type fakeRevoker struct {
	mu       sync.Mutex
	findings []revocation.Finding
	chains   int
}

func (f *fakeRevoker) Check(_ context.Context, chain [][]byte, _ []byte) []revocation.Finding {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chains += len(chain)
	return f.findings
}

func TestHTTP_Revocation(t *testing.T) {
	srv := httptest.NewTLSServer(siteHandler(200, "ok"))
	defer srv.Close()
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())

	tests := []struct {
		name     string
		findings []revocation.Finding
		status   status.Status
		message  string
	}{
		{"clean", nil, status.OK, ""},
		{"revoked", []revocation.Finding{{State: revocation.Revoked, Detail: "OCSP staple reports the certificate revoked"}},
			status.Critical, "certificate revoked (critical)"},
		{"stale", []revocation.Finding{{State: revocation.CRLStale, Detail: "CRL from http://crl.test expired"}},
			status.Warning, "revocation data stale (warning)"},
		{"unreachable", []revocation.Finding{{State: revocation.Unreachable, Detail: "OCSP responder http://ocsp.test: refused"}},
			status.OK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := &fakeRevoker{findings: tt.findings}
			res := runHTTP(t, HTTPOptions{
				Address:         "site.test",
				Hostname:        "example.com",
				Port:            serverPort(t, srv),
				Secure:          true,
				CheckRevocation: true,
				Timeout:         5 * time.Second,
			},
				WithResolver(staticResolver("127.0.0.1")),
				WithConnOptions(httpconn.WithRootCAs(pool)),
				WithRevocationChecker(rc),
			)
			if res.Status != tt.status {
				t.Errorf("Status = %v, want %v (%v)", res.Status, tt.status, res.ExtraInformation)
			}
			if rc.chains == 0 {
				t.Error("revocation checker was not given the peer chain")
			}
			if tt.message != "" && !strings.Contains(res.ExtraInformation[1], tt.message) {
				t.Errorf("detail = %q, want %q", res.ExtraInformation[1], tt.message)
			}
			for _, f := range tt.findings {
				want := "127.0.0.1: " + f.String()
				found := false
				for _, line := range res.ExtraInformation {
					found = found || line == want
				}
				if !found {
					t.Errorf("missing extra line %q in %v", want, res.ExtraInformation)
				}
			}
		})
	}
}

func TestHTTP_RevocationSkippedForPlainHTTP(t *testing.T) {
	srv := httptest.NewServer(siteHandler(200, "ok"))
	defer srv.Close()

	rc := &fakeRevoker{findings: []revocation.Finding{{State: revocation.Revoked}}}
	res := runHTTP(t, HTTPOptions{
		Address:         "127.0.0.1",
		Port:            serverPort(t, srv),
		CheckRevocation: true,
		Timeout:         5 * time.Second,
	}, WithRevocationChecker(rc))
	if res.Status != status.OK || rc.chains != 0 {
		t.Errorf("Status = %v, chains checked = %d", res.Status, rc.chains)
	}
}

func TestNewHTTP_DefaultRevocationChecker(t *testing.T) {
	if NewHTTP(HTTPOptions{Address: "x"}).s.revoker != nil {
		t.Error("revocation checker should not be created unless enabled")
	}
	if NewHTTP(HTTPOptions{Address: "x", CheckRevocation: true}).s.revoker == nil {
		t.Error("expected a default revocation checker")
	}
}

func TestHTTP_RequiresAddress(t *testing.T) {
	if _, err := NewHTTP(HTTPOptions{}).Run(context.Background()); !errors.Is(err, httpconn.ErrInvalidURI) {
		t.Errorf("Run = %v, want ErrInvalidURI", err)
	}
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		in      string
		want    httpconn.Header
		wantErr bool
	}{
		{"Accept: text/html", httpconn.Header{Name: "Accept", Value: "text/html"}, false},
		{" X-Token :abc:def ", httpconn.Header{Name: "X-Token", Value: "abc:def"}, false},
		{"X-Empty:", httpconn.Header{Name: "X-Empty", Value: ""}, false},
		{"no separator", httpconn.Header{}, true},
		{": value", httpconn.Header{}, true},
	}
	for _, tt := range tests {
		got, err := ParseHeader(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseHeader(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseHeader(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseHeaders([]string{"A: b", "bad"}); err == nil {
		t.Error("ParseHeaders should fail on a bad entry")
	}
}

func TestResolveIPv4_Literal(t *testing.T) {
	addrs, err := resolveIPv4(context.Background(), "192.0.2.10")
	if err != nil || len(addrs) != 1 || addrs[0] != "192.0.2.10" {
		t.Errorf("resolveIPv4 = %v, %v", addrs, err)
	}
}
