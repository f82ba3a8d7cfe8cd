package status

import (
	"fmt"
	"strings"
)

// Result is the frozen outcome of one check invocation.
type Result struct {
	Status           Status   `json:"-"`
	StatusLabel      string   `json:"status"`
	Prefix           string   `json:"prefix"`
	Message          string   `json:"message"`
	Messages         []string `json:"messages,omitempty"`
	ExtraInformation []string `json:"extraInformation,omitempty"`
	PerformanceData  []string `json:"performanceData,omitempty"`
}

// NewResult builds a Result directly, joining messages or falling back to the
// status default phrase.
func NewResult(st Status, prefix string, messages, perfData, extra []string) Result {
	msg := st.DefaultMessage()
	if len(messages) > 0 {
		msg = strings.Join(messages, ", ")
	}
	return Result{
		Status:           st,
		StatusLabel:      st.String(),
		Prefix:           prefix,
		Message:          msg,
		Messages:         messages,
		ExtraInformation: extra,
		PerformanceData:  perfData,
	}
}

// Builder accumulates status messages while a check runs.
// The zero value is ready to use and starts at OK.
type Builder struct {
	status   Status
	messages []string
	perfData []string
	extra    []string
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Status returns the running status.
func (b *Builder) Status() Status {
	return b.status
}

// OK records a message without changing the status.
func (b *Builder) OK(msg string) {
	b.messages = append(b.messages, msg)
}

// Warning records a message and escalates to Warning.
func (b *Builder) Warning(msg string) {
	b.messages = append(b.messages, msg)
	b.status = b.status.Escalate(Warning)
}

// Critical records a message and escalates to Critical.
func (b *Builder) Critical(msg string) {
	b.messages = append(b.messages, msg)
	b.status = b.status.Escalate(Critical)
}

// Unknown records a message and escalates to Unknown.
func (b *Builder) Unknown(msg string) {
	b.messages = append(b.messages, msg)
	b.status = b.status.Escalate(Unknown)
}

// Update escalates the status without recording a message.
func (b *Builder) Update(st Status) {
	b.status = b.status.Escalate(st)
}

// ExtraInformation appends diagnostic lines, one per line of text.
func (b *Builder) ExtraInformation(text string) {
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		b.extra = append(b.extra, line)
	}
}

// PerfData appends a performance data fragment in 'label'=value[unit] form.
func (b *Builder) PerfData(label string, value float64, unit string) {
	b.perfData = append(b.perfData, fmt.Sprintf("'%s'=%g%s", label, value, unit))
}

// Finalize freezes the builder into a Result carrying the check prefix.
func (b *Builder) Finalize(prefix string) Result {
	return NewResult(b.status, prefix, clone(b.messages), clone(b.perfData), clone(b.extra))
}

func clone(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
