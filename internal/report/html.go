// Package report renders recorded check runs as self-contained HTML or CSV.
package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"time"

	"github.com/ppiankov/nagcheck/internal/history"
	"github.com/ppiankov/nagcheck/internal/status"
)

//go:embed templates/history.html
var templateFS embed.FS

var reportTmpl = template.Must(template.ParseFS(templateFS, "templates/history.html"))

// Generate renders runs as a self-contained HTML availability report.
func Generate(runs []history.Run, title string, now time.Time) ([]byte, error) {
	data := reportData{
		Title:       title,
		GeneratedAt: now.UTC().Format("2006-01-02 15:04 UTC"),
		TotalCount:  len(runs),
		Targets:     summarize(runs),
	}
	for _, r := range sortRuns(runs) {
		switch r.ExitCode {
		case 0:
			data.OKCount++
		case 1:
			data.WarningCount++
		case 2:
			data.CriticalCount++
		default:
			data.UnknownCount++
		}
		data.Runs = append(data.Runs, runRow{
			Class:    statusClass(r.ExitCode),
			Status:   r.Status,
			At:       r.At.UTC().Format("2006-01-02 15:04:05 UTC"),
			Check:    r.Check,
			Target:   r.Target,
			Duration: status.FormatDurationShort(r.Duration),
			Message:  r.Message,
		})
	}

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type reportData struct {
	Title         string
	GeneratedAt   string
	Targets       []targetRow
	Runs          []runRow
	TotalCount    int
	OKCount       int
	WarningCount  int
	CriticalCount int
	UnknownCount  int
}

type targetRow struct {
	Class        string
	Check        string
	Target       string
	LatestStatus string
	LatestAt     string
	Availability string
	Runs         int
}

type runRow struct {
	Class    string
	Status   string
	At       string
	Check    string
	Target   string
	Duration string
	Message  string
}

// summarize returns one row per check target: its latest status and the
// share of runs that were OK.
func summarize(runs []history.Run) []targetRow {
	type key struct{ check, target string }
	type agg struct {
		latest history.Run
		ok     int
		total  int
	}
	byTarget := map[key]*agg{}
	var order []key
	for i := range runs {
		r := &runs[i]
		k := key{r.Check, r.Target}
		a, ok := byTarget[k]
		if !ok {
			a = &agg{latest: *r}
			byTarget[k] = a
			order = append(order, k)
		}
		if r.At.After(a.latest.At) {
			a.latest = *r
		}
		a.total++
		if r.ExitCode == 0 {
			a.ok++
		}
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].check != order[j].check {
			return order[i].check < order[j].check
		}
		return order[i].target < order[j].target
	})

	rows := make([]targetRow, 0, len(order))
	for _, k := range order {
		a := byTarget[k]
		rows = append(rows, targetRow{
			Class:        statusClass(a.latest.ExitCode),
			Check:        k.check,
			Target:       k.target,
			LatestStatus: a.latest.Status,
			LatestAt:     a.latest.At.UTC().Format("2006-01-02 15:04 UTC"),
			Availability: formatAvailability(a.ok, a.total),
			Runs:         a.total,
		})
	}
	return rows
}

func formatAvailability(ok, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(ok)*100/float64(total))
}

func statusClass(exitCode int) string {
	switch exitCode {
	case 0:
		return "ok"
	case 1:
		return "warning"
	case 2:
		return "critical"
	default:
		return "unknown"
	}
}

// sortRuns orders runs by severity (critical, unknown, warning, ok), newest
// first within a severity.
func sortRuns(runs []history.Run) []history.Run {
	sorted := make([]history.Run, len(runs))
	copy(sorted, runs)

	sevOrder := map[int]int{2: 0, 3: 1, 1: 2, 0: 3}

	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := sevOrder[sorted[i].ExitCode], sevOrder[sorted[j].ExitCode]
		if si != sj {
			return si < sj
		}
		return sorted[i].At.After(sorted[j].At)
	})

	return sorted
}
