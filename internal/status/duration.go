package status

import (
	"fmt"
	"time"
)

type unitNames struct {
	days, hours, minutes      string
	second, seconds           string
	millisecond, milliseconds string
	microsecond, microseconds string
}

var (
	longUnits = unitNames{
		days: " days", hours: " hours", minutes: " minutes",
		second: " second", seconds: " seconds",
		millisecond: " millisecond", milliseconds: " milliseconds",
		microsecond: " microsecond", microseconds: " microseconds",
	}
	shortUnits = unitNames{
		days: "d", hours: "h", minutes: "m",
		second: "s", seconds: "s",
		millisecond: "ms", milliseconds: "ms",
		microsecond: "µs", microseconds: "µs",
	}
)

// FormatDurationLong renders d with about three significant digits and
// spelled-out units, e.g. "1.50 seconds".
func FormatDurationLong(d time.Duration) string {
	return formatDuration(d, &longUnits)
}

// FormatDurationShort is FormatDurationLong with abbreviated units, e.g. "1.50s".
func FormatDurationShort(d time.Duration) string {
	return formatDuration(d, &shortUnits)
}

func formatDuration(d time.Duration, u *unitNames) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	micros := int64(d%time.Second) / int64(time.Microsecond)

	switch {
	case secs >= 8_640_000:
		return fmt.Sprintf("%d%s", secs/86_400, u.days)
	case secs >= 864_000:
		return fmt.Sprintf("%d.%01d%s", secs/86_400, secs*10/86_400%10, u.days)
	case secs >= 86_400:
		return fmt.Sprintf("%d.%02d%s", secs/86_400, secs*100/86_400%100, u.days)
	case secs >= 36_000:
		return fmt.Sprintf("%d.%01d%s", secs/3_600, secs*10/3_600%10, u.hours)
	case secs >= 6_000:
		return fmt.Sprintf("%d.%02d%s", secs/3_600, secs*100/3_600%100, u.hours)
	case secs >= 600:
		return fmt.Sprintf("%d.%01d%s", secs/60, secs*10/60%10, u.minutes)
	case secs >= 100:
		return fmt.Sprintf("%d.%02d%s", secs/60, secs*100/60%100, u.minutes)
	case secs >= 10:
		return fmt.Sprintf("%d.%01d%s", secs, micros/100_000, u.seconds)
	case secs >= 1:
		name := u.seconds
		if secs == 1 && micros == 0 {
			name = u.second
		}
		return fmt.Sprintf("%d.%02d%s", secs, micros/10_000, name)
	case micros >= 100_000:
		return fmt.Sprintf("%d%s", micros/1000, u.milliseconds)
	case micros >= 10_000:
		return fmt.Sprintf("%d.%01d%s", micros/1000, micros%1000/100, u.milliseconds)
	case micros >= 1_000:
		name := u.milliseconds
		if micros == 1_000 {
			name = u.millisecond
		}
		return fmt.Sprintf("%d.%02d%s", micros/1000, micros%1000/10, name)
	case micros >= 1:
		name := u.microseconds
		if micros == 1 {
			name = u.microsecond
		}
		return fmt.Sprintf("%d%s", micros, name)
	default:
		return "0"
	}
}
