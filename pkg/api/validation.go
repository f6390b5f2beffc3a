package api

import (
	"fmt"
	"strings"
)

// Severity grades a validation issue.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// KeyAvailability classifies whether a state key is guaranteed at a point of
// the graph.
type KeyAvailability int

const (
	KeyNever KeyAvailability = iota
	KeySometimes
	KeyAlways
)

func (k KeyAvailability) String() string {
	switch k {
	case KeyAlways:
		return "always"
	case KeySometimes:
		return "sometimes"
	default:
		return "never"
	}
}

// Issue is one finding of a validation pass.
type Issue struct {
	Severity Severity
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s", i.Severity, i.Message)
}

// ValidationResult collects issues in discovery order.
type ValidationResult struct {
	Issues []Issue
}

func (r *ValidationResult) AddError(format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Severity: SeverityError, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) AddWarning(format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Severity: SeverityWarning, Message: fmt.Sprintf(format, args...)})
}

// IsSafe reports whether no error-level issue was found. Warnings do not
// make a graph unsafe.
func (r *ValidationResult) IsSafe() bool {
	return len(r.Errors()) == 0
}

func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings()) > 0
}

func (r *ValidationResult) Errors() []Issue { return r.filter(SeverityError) }

func (r *ValidationResult) Warnings() []Issue { return r.filter(SeverityWarning) }

func (r *ValidationResult) filter(sev Severity) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == sev {
			out = append(out, i)
		}
	}
	return out
}

// Summary renders the result for humans.
func (r *ValidationResult) Summary() string {
	if len(r.Issues) == 0 {
		return "Validation passed: no issues found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Validation found %d error(s) and %d warning(s):\n", len(r.Errors()), len(r.Warnings()))
	for _, i := range r.Issues {
		b.WriteString("  ")
		b.WriteString(i.String())
		b.WriteByte('\n')
	}
	return b.String()
}
