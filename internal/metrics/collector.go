// Package metrics provides Prometheus instrumentation for nagcheck. Checks
// are short-lived processes, so the registry is written to a node-exporter
// textfile rather than served.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ppiankov/nagcheck/internal/status"
)

// Collector records check outcomes and per-address HTTP measurements as
// Prometheus gauges.
type Collector struct {
	nowFn           func() time.Time
	checkStatus     *prometheus.GaugeVec
	checkDuration   *prometheus.GaugeVec
	probeSuccess    *prometheus.GaugeVec
	requestDuration *prometheus.GaugeVec
	connectDuration *prometheus.GaugeVec
	certNotAfter    *prometheus.GaugeVec
	certExpiresIn   *prometheus.GaugeVec
	mu              sync.Mutex
}

// NewCollector creates and registers metrics on the given registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		nowFn: time.Now,

		checkStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nagcheck",
			Name:      "check_status",
			Help:      "Check status as plugin exit code (0=ok, 1=warning, 2=critical, 3=unknown).",
		}, []string{"check", "target"}),

		checkDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nagcheck",
			Name:      "check_duration_seconds",
			Help:      "Wall-clock duration of the last check run in seconds.",
		}, []string{"check", "target"}),

		probeSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nagcheck",
			Name:      "probe_success",
			Help:      "Whether the HTTP exchange with an address completed (1=ok, 0=failed).",
		}, []string{"target", "address"}),

		requestDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nagcheck",
			Name:      "http_request_duration_seconds",
			Help:      "Time to send the request and read the full response.",
		}, []string{"target", "address"}),

		connectDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nagcheck",
			Name:      "http_connect_duration_seconds",
			Help:      "Time from dial start to TLS handshake completion.",
		}, []string{"target", "address"}),

		certNotAfter: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nagcheck",
			Name:      "cert_not_after_timestamp",
			Help:      "Unix timestamp of the leaf certificate notAfter.",
		}, []string{"target", "address"}),

		certExpiresIn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nagcheck",
			Name:      "cert_expires_in_seconds",
			Help:      "Seconds until the leaf certificate expires (negative if expired).",
		}, []string{"target", "address"}),
	}

	reg.MustRegister(c.checkStatus)
	reg.MustRegister(c.checkDuration)
	reg.MustRegister(c.probeSuccess)
	reg.MustRegister(c.requestDuration)
	reg.MustRegister(c.connectDuration)
	reg.MustRegister(c.certNotAfter)
	reg.MustRegister(c.certExpiresIn)

	return c
}

// RecordResult sets the status and duration gauges for one check run.
func (c *Collector) RecordResult(check, target string, res status.Result, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	labels := prometheus.Labels{"check": check, "target": target}
	c.checkStatus.With(labels).Set(float64(res.Status.ExitCode()))
	c.checkDuration.With(labels).Set(elapsed.Seconds())
}

// ObserveRequest records the outcome of one exchange with address.
func (c *Collector) ObserveRequest(target, address string, ok bool, request, connect time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	labels := prometheus.Labels{"target": target, "address": address}
	if !ok {
		c.probeSuccess.With(labels).Set(0)
		return
	}
	c.probeSuccess.With(labels).Set(1)
	c.requestDuration.With(labels).Set(request.Seconds())
	if connect > 0 {
		c.connectDuration.With(labels).Set(connect.Seconds())
	}
}

// ObserveCertificate records the leaf certificate expiry seen at address.
func (c *Collector) ObserveCertificate(target, address string, notAfter time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	labels := prometheus.Labels{"target": target, "address": address}
	c.certNotAfter.With(labels).Set(float64(notAfter.Unix()))
	c.certExpiresIn.With(labels).Set(notAfter.Sub(c.nowFn()).Seconds())
}

// WriteTextfile writes everything gathered by g to path in the text
// exposition format, replacing the file atomically.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
