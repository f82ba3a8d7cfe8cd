package status

import (
	"fmt"
	"time"
)

// CheckDurationLessThan records value against optional warning and critical
// upper bounds. A zero bound means no limit.
func CheckDurationLessThan(b *Builder, warning, critical time.Duration, message string, value time.Duration) {
	switch {
	case critical > 0 && value > critical:
		b.Critical(fmt.Sprintf("%s (critical is %s)", message, FormatDurationShort(critical)))
	case warning > 0 && value > warning:
		b.Warning(fmt.Sprintf("%s (warning is %s)", message, FormatDurationShort(warning)))
	default:
		b.OK(message)
	}
}

// CheckRatioGreaterThan records a ratio in [0,1] that should stay above the
// warning and critical lower bounds. A zero bound means no limit.
func CheckRatioGreaterThan(b *Builder, warning, critical float64, message string, value float64) {
	switch {
	case critical > 0 && value < critical:
		b.Critical(fmt.Sprintf("%s or %d%% (critical is %d%%)", message, percent(value), percent(critical)))
	case warning > 0 && value < warning:
		b.Warning(fmt.Sprintf("%s or %d%% (warning is %d%%)", message, percent(value), percent(warning)))
	default:
		b.OK(fmt.Sprintf("%s or %d%%", message, percent(value)))
	}
}

// CheckRatioLesserThan is the mirror of CheckRatioGreaterThan for ratios that
// should stay below their bounds.
func CheckRatioLesserThan(b *Builder, warning, critical float64, message string, value float64) {
	switch {
	case critical > 0 && value > critical:
		b.Critical(fmt.Sprintf("%s or %d%% (critical is %d%%)", message, percent(value), percent(critical)))
	case warning > 0 && value > warning:
		b.Warning(fmt.Sprintf("%s or %d%% (warning is %d%%)", message, percent(value), percent(warning)))
	default:
		b.OK(fmt.Sprintf("%s or %d%%", message, percent(value)))
	}
}

func percent(v float64) int64 {
	return int64(v * 100)
}
