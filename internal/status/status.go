// Package status provides the check severity lattice and the result builder
// every nagcheck plugin reports through.
package status

// Status is the severity of a check outcome.
type Status int

const (
	OK Status = iota
	Warning
	Critical
	Unknown
)

// String returns the upper-case label printed after the check prefix.
func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case Warning:
		return "WARNING"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ExitCode maps the status to the monitoring-plugin exit code.
//
//	0 = ok
//	1 = warning
//	2 = critical
//	3 = unknown
func (s Status) ExitCode() int {
	switch s {
	case OK:
		return 0
	case Warning:
		return 1
	case Critical:
		return 2
	default:
		return 3
	}
}

// DefaultMessage is used when a check finishes without any status message.
func (s Status) DefaultMessage() string {
	switch s {
	case OK:
		return "no problems detected"
	case Warning:
		return "minor problems detected"
	case Critical:
		return "major problems detected"
	default:
		return "unable to perform check"
	}
}

// Escalate returns the status after observing next. Severity only rises:
// Critical beats everything, Warning beats Ok and Unknown, and Unknown only
// replaces Ok so that uncertainty never hides a confirmed problem.
func (s Status) Escalate(next Status) Status {
	switch next {
	case Critical:
		return Critical
	case Warning:
		if s == OK || s == Unknown {
			return Warning
		}
	case Unknown:
		if s == OK {
			return Unknown
		}
	}
	return s
}

// Parse converts a lower-case status word ("ok", "warning", "critical",
// "unknown") to a Status.
func Parse(s string) (Status, bool) {
	switch s {
	case "ok":
		return OK, true
	case "warning":
		return Warning, true
	case "critical":
		return Critical, true
	case "unknown":
		return Unknown, true
	default:
		return Unknown, false
	}
}
