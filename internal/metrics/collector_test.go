package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ppiankov/nagcheck/internal/status"
)

func TestRecordResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	b := status.NewBuilder()
	b.Warning("request took 2.00 seconds (warning is 1.00s)")
	c.RecordResult("http", "example.com", b.Finalize("HTTP"), 2*time.Second)

	labels := prometheus.Labels{"check": "http", "target": "example.com"}
	if got := testutil.ToFloat64(c.checkStatus.With(labels)); got != 1 {
		t.Errorf("check_status = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.checkDuration.With(labels)); got != 2 {
		t.Errorf("check_duration_seconds = %v, want 2", got)
	}
}

func TestObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveRequest("example.com", "10.0.0.1", true, 250*time.Millisecond, 100*time.Millisecond)
	c.ObserveRequest("example.com", "10.0.0.2", false, 0, 0)

	ok := prometheus.Labels{"target": "example.com", "address": "10.0.0.1"}
	failed := prometheus.Labels{"target": "example.com", "address": "10.0.0.2"}

	if got := testutil.ToFloat64(c.probeSuccess.With(ok)); got != 1 {
		t.Errorf("probe_success{ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.probeSuccess.With(failed)); got != 0 {
		t.Errorf("probe_success{failed} = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.requestDuration.With(ok)); got != 0.25 {
		t.Errorf("http_request_duration_seconds = %v, want 0.25", got)
	}
	if got := testutil.ToFloat64(c.connectDuration.With(ok)); got != 0.1 {
		t.Errorf("http_connect_duration_seconds = %v, want 0.1", got)
	}
	if got := testutil.CollectAndCount(c.requestDuration); got != 1 {
		t.Errorf("request duration series = %d, want 1 (failed exchanges have none)", got)
	}
}

func TestObserveCertificate(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c.nowFn = func() time.Time { return now }

	notAfter := now.Add(48 * time.Hour)
	c.ObserveCertificate("example.com", "10.0.0.1", notAfter)

	labels := prometheus.Labels{"target": "example.com", "address": "10.0.0.1"}
	if got := testutil.ToFloat64(c.certNotAfter.With(labels)); got != float64(notAfter.Unix()) {
		t.Errorf("cert_not_after_timestamp = %v, want %v", got, notAfter.Unix())
	}
	if got := testutil.ToFloat64(c.certExpiresIn.With(labels)); got != 48*3600 {
		t.Errorf("cert_expires_in_seconds = %v, want %v", got, 48*3600)
	}
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordResult("generic", "http://localhost/status", status.NewBuilder().Finalize("GENERIC"), time.Second)

	path := filepath.Join(t.TempDir(), "nagcheck.prom")
	if err := WriteTextfile(path, reg); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `nagcheck_check_status{check="generic",target="http://localhost/status"} 0`) {
		t.Errorf("textfile missing check_status series:\n%s", data)
	}
}

func TestWriteTextfile_BadPath(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	if err := WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"), reg); err == nil {
		t.Error("expected error for missing directory")
	}
}
