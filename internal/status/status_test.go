package status

import (
	"math/rand/v2"
	"testing"
	"time"
)

func TestEscalate(t *testing.T) {
	tests := []struct {
		from, next, want Status
	}{
		{OK, OK, OK},
		{OK, Warning, Warning},
		{OK, Critical, Critical},
		{OK, Unknown, Unknown},
		{Warning, Unknown, Warning},
		{Warning, OK, Warning},
		{Warning, Critical, Critical},
		{Unknown, Warning, Warning},
		{Unknown, Critical, Critical},
		{Unknown, OK, Unknown},
		{Critical, Unknown, Critical},
		{Critical, Warning, Critical},
		{Critical, OK, Critical},
	}
	for _, tt := range tests {
		if got := tt.from.Escalate(tt.next); got != tt.want {
			t.Errorf("%s.Escalate(%s) = %s, want %s", tt.from, tt.next, got, tt.want)
		}
	}
}

func severityRank(s Status) int {
	switch s {
	case Critical:
		return 3
	case Warning:
		return 2
	case Unknown:
		return 1
	default:
		return 0
	}
}

func TestBuilder_RandomSequencesMatchMaxFold(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	all := []Status{OK, Warning, Critical, Unknown}

	for iter := 0; iter < 500; iter++ {
		b := NewBuilder()
		want := OK
		n := rng.IntN(12)
		for i := 0; i < n; i++ {
			st := all[rng.IntN(len(all))]
			switch st {
			case OK:
				b.OK("ok")
			case Warning:
				b.Warning("warning")
			case Critical:
				b.Critical("critical")
			case Unknown:
				b.Unknown("unknown")
			}
			if severityRank(st) > severityRank(want) {
				want = st
			}
		}
		if got := b.Status(); got != want {
			t.Fatalf("iteration %d: status = %s, want %s", iter, got, want)
		}
	}
}

func TestFinalize_DefaultMessages(t *testing.T) {
	tests := []struct {
		st   Status
		want string
	}{
		{OK, "no problems detected"},
		{Warning, "minor problems detected"},
		{Critical, "major problems detected"},
		{Unknown, "unable to perform check"},
	}
	for _, tt := range tests {
		b := NewBuilder()
		b.Update(tt.st)
		r := b.Finalize("HTTP")
		if r.Message != tt.want {
			t.Errorf("Finalize(%s).Message = %q, want %q", tt.st, r.Message, tt.want)
		}
		if r.Status != tt.st {
			t.Errorf("Finalize status = %s, want %s", r.Status, tt.st)
		}
	}
}

func TestFinalize_JoinsMessages(t *testing.T) {
	b := NewBuilder()
	b.OK("status 200")
	b.Warning("missing 1 headers (warning)")
	b.ExtraInformation("  10.0.0.1: status 200\n10.0.0.2: timeout\n")
	b.PerfData("time", 0.25, "s")

	r := b.Finalize("HTTP")
	if r.Prefix != "HTTP" {
		t.Errorf("prefix = %q", r.Prefix)
	}
	if r.Message != "status 200, missing 1 headers (warning)" {
		t.Errorf("message = %q", r.Message)
	}
	if r.Status != Warning {
		t.Errorf("status = %s, want WARNING", r.Status)
	}
	if len(r.ExtraInformation) != 2 || r.ExtraInformation[1] != "10.0.0.2: timeout" {
		t.Errorf("extra = %q", r.ExtraInformation)
	}
	if len(r.PerformanceData) != 1 || r.PerformanceData[0] != "'time'=0.25s" {
		t.Errorf("perfdata = %q", r.PerformanceData)
	}
}

func TestFinalize_IsDetachedFromBuilder(t *testing.T) {
	b := NewBuilder()
	b.OK("first")
	r := b.Finalize("X")
	b.Critical("second")
	if len(r.Messages) != 1 || r.Status != OK {
		t.Errorf("result changed after finalize: %+v", r)
	}
}

func TestExitCode(t *testing.T) {
	want := map[Status]int{OK: 0, Warning: 1, Critical: 2, Unknown: 3}
	for st, code := range want {
		if got := st.ExitCode(); got != code {
			t.Errorf("%s.ExitCode() = %d, want %d", st, got, code)
		}
	}
}

func TestParse(t *testing.T) {
	if st, ok := Parse("warning"); !ok || st != Warning {
		t.Errorf("Parse(warning) = %s, %v", st, ok)
	}
	if _, ok := Parse("bogus"); ok {
		t.Error("expected Parse(bogus) to fail")
	}
}

func TestCheckDurationLessThan(t *testing.T) {
	tests := []struct {
		name     string
		warn     time.Duration
		crit     time.Duration
		value    time.Duration
		want     Status
		wantText string
	}{
		{"no limits", 0, 0, time.Hour, OK, "took"},
		{"under both", time.Second, 2 * time.Second, 500 * time.Millisecond, OK, "took"},
		{"over warning", time.Second, 2 * time.Second, 1500 * time.Millisecond, Warning, "took (warning is 1.00s)"},
		{"over critical", time.Second, 2 * time.Second, 3 * time.Second, Critical, "took (critical is 2.00s)"},
		{"critical only", 0, 2 * time.Second, 3 * time.Second, Critical, "took (critical is 2.00s)"},
		{"equal is not over", time.Second, 0, time.Second, OK, "took"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			CheckDurationLessThan(b, tt.warn, tt.crit, "took", tt.value)
			r := b.Finalize("T")
			if r.Status != tt.want {
				t.Errorf("status = %s, want %s", r.Status, tt.want)
			}
			if r.Message != tt.wantText {
				t.Errorf("message = %q, want %q", r.Message, tt.wantText)
			}
		})
	}
}

func TestCheckRatioGreaterThan(t *testing.T) {
	b := NewBuilder()
	CheckRatioGreaterThan(b, 0.2, 0.1, "free space", 0.15)
	r := b.Finalize("DISK")
	if r.Status != Warning {
		t.Errorf("status = %s, want WARNING", r.Status)
	}
	if r.Message != "free space or 15% (warning is 20%)" {
		t.Errorf("message = %q", r.Message)
	}

	b = NewBuilder()
	CheckRatioGreaterThan(b, 0, 0, "free space", 0.01)
	if b.Status() != OK {
		t.Errorf("no limits should stay OK, got %s", b.Status())
	}
}

func TestCheckRatioLesserThan(t *testing.T) {
	b := NewBuilder()
	CheckRatioLesserThan(b, 0.8, 0.9, "used", 0.95)
	if b.Status() != Critical {
		t.Errorf("status = %s, want CRITICAL", b.Status())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d     time.Duration
		long  string
		short string
	}{
		{0, "0", "0"},
		{time.Microsecond, "1 microsecond", "1µs"},
		{250 * time.Microsecond, "250 microseconds", "250µs"},
		{time.Millisecond, "1.00 millisecond", "1.00ms"},
		{12345 * time.Microsecond, "12.3 milliseconds", "12.3ms"},
		{250 * time.Millisecond, "250 milliseconds", "250ms"},
		{time.Second, "1.00 second", "1.00s"},
		{1500 * time.Millisecond, "1.50 seconds", "1.50s"},
		{12 * time.Second, "12.0 seconds", "12.0s"},
		{150 * time.Second, "2.50 minutes", "2.50m"},
		{2 * time.Hour, "2.00 hours", "2.00h"},
		{36 * time.Hour, "1.50 days", "1.50d"},
	}
	for _, tt := range tests {
		if got := FormatDurationLong(tt.d); got != tt.long {
			t.Errorf("FormatDurationLong(%v) = %q, want %q", tt.d, got, tt.long)
		}
		if got := FormatDurationShort(tt.d); got != tt.short {
			t.Errorf("FormatDurationShort(%v) = %q, want %q", tt.d, got, tt.short)
		}
	}
}
