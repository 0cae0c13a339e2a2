// Package diag defines the diagnostics produced by every stage of the
// backend and the typed errors the evaluator aborts with.
package diag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"qlower/internal/token"
)

type Kind int

const (
	ParseError Kind = iota
	DerivationFailure
	CapabilityViolation
	UnresolvedCallee
	BoundedLoopOverflow
	RecursionDepthExceeded
	AllocationSpaceExhausted
	UnsupportedDynamicOperation
	EvaluationFailure
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case ParseError:
		return "ParseError"
	case DerivationFailure:
		return "DerivationFailure"
	case CapabilityViolation:
		return "CapabilityViolation"
	case UnresolvedCallee:
		return "UnresolvedCallee"
	case BoundedLoopOverflow:
		return "BoundedLoopOverflow"
	case RecursionDepthExceeded:
		return "RecursionDepthExceeded"
	case AllocationSpaceExhausted:
		return "AllocationSpaceExhausted"
	case UnsupportedDynamicOperation:
		return "UnsupportedDynamicOperation"
	case EvaluationFailure:
		return "EvaluationFailure"
	case Cancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Diagnostic is one user-facing report.
type Diagnostic struct {
	Kind       Kind
	Severity   Severity
	Message    string
	Span       token.Pos
	Context    string
	Callable   string
	Variant    string
	Capability string
	Profile    string
}

func (d Diagnostic) String() string {
	var b strings.Builder
	if d.Span.IsValid() {
		b.WriteString(d.Span.String())
		b.WriteString(": ")
	}
	b.WriteString(d.Severity.String())
	b.WriteString(" ")
	b.WriteString(d.Kind.String())
	b.WriteString(": ")
	b.WriteString(d.Message)
	if d.Context != "" {
		b.WriteString(" (at `")
		b.WriteString(d.Context)
		b.WriteString("`)")
	}
	return b.String()
}

// List is an ordered batch of diagnostics.
type List []Diagnostic

func (l List) Len() int      { return len(l) }
func (l List) Swap(i, j int) { l[i], l[j] = l[j], l[i] }
func (l List) Less(i, j int) bool {
	a, b := l[i], l[j]
	if a.Span != b.Span {
		if a.Span.Before(b.Span) {
			return true
		}
		if b.Span.Before(a.Span) {
			return false
		}
	}
	if a.Callable != b.Callable {
		return a.Callable < b.Callable
	}
	if a.Variant != b.Variant {
		return a.Variant < b.Variant
	}
	if a.Capability != b.Capability {
		return a.Capability < b.Capability
	}
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return a.Message < b.Message
}

// Sort orders by span, then callable, then capability.
func (l List) Sort() { sort.Stable(l) }

func (l List) HasErrors() bool {
	for _, d := range l {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Filter returns the diagnostics of kind k.
func (l List) Filter(k Kind) List {
	var out List
	for _, d := range l {
		if d.Kind == k {
			out = append(out, d)
		}
	}
	return out
}

func (l List) String() string {
	lines := make([]string, 0, len(l))
	for _, d := range l {
		lines = append(lines, d.String())
	}
	return strings.Join(lines, "\n")
}

// Error is a fatal failure of a compilation stage.
type Error struct {
	Kind     Kind
	Message  string
	Pos      token.Pos
	Context  string
	Callable string
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s: %s", e.Pos, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Diagnostic converts e into an error-severity report.
func (e *Error) Diagnostic() Diagnostic {
	return Diagnostic{
		Kind:     e.Kind,
		Severity: SeverityError,
		Message:  e.Message,
		Span:     e.Pos,
		Context:  e.Context,
		Callable: e.Callable,
	}
}

// ErrCancelled is returned when the caller's context is done.
var ErrCancelled = &Error{Kind: Cancelled, Message: "compilation cancelled"}

// Errorf builds a stack-annotated *Error.
func Errorf(kind Kind, pos token.Pos, format string, args ...interface{}) error {
	return errors.WithStack(&Error{Kind: kind, Message: fmt.Sprintf(format, args...), Pos: pos})
}

// AsError recovers the *Error at the root of err.
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	e, ok := errors.Cause(err).(*Error)
	return e, ok
}

// KindOf reports the kind of err, or EvaluationFailure when err is not typed.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return EvaluationFailure
}

// FromError turns any stage error into a diagnostic.
func FromError(err error) Diagnostic {
	if e, ok := AsError(err); ok {
		return e.Diagnostic()
	}
	return Diagnostic{Kind: EvaluationFailure, Severity: SeverityError, Message: err.Error()}
}

// Render prints d followed by the offending source line and a caret.
func Render(source string, d Diagnostic) string {
	head := d.String()
	if !d.Span.IsValid() {
		if line, col, ok := LocateContext(source, d.Context); ok {
			d.Span = token.Pos{Line: line, Column: col}
		} else {
			return head
		}
	}
	lines := strings.Split(source, "\n")
	if d.Span.Line > len(lines) {
		return head
	}
	text := strings.TrimRight(lines[d.Span.Line-1], "\r")
	caret := strings.Repeat(" ", max(d.Span.Column-1, 0)) + "^"
	return head + "\n    " + text + "\n    " + caret
}

func LocateContext(source string, context string) (line int, col int, ok bool) {
	ctx := strings.TrimSpace(context)
	if ctx == "" {
		return 0, 0, false
	}
	lines := strings.Split(source, "\n")
	normalize := func(s string) string {
		s = strings.TrimSpace(s)
		s = strings.ReplaceAll(s, " ", "")
		s = strings.ReplaceAll(s, "\t", "")
		return s
	}
	normalizedCtx := normalize(strings.Trim(ctx, "`"))

	matchLine := -1
	for i, ln := range lines {
		if normalize(ln) == normalizedCtx {
			if matchLine != -1 {
				matchLine = -2
				break
			}
			matchLine = i
		}
	}
	if matchLine >= 0 {
		ln := lines[matchLine]
		col := strings.Index(ln, strings.TrimSpace(strings.Trim(ctx, "`")))
		if col < 0 {
			col = len(ln) - len(strings.TrimLeft(ln, " \t"))
		}
		return matchLine + 1, col + 1, true
	}

	candidates := []string{ctx}
	if trimmed := strings.Trim(ctx, "`"); trimmed != ctx {
		candidates = append(candidates, trimmed)
	}
	bestLine := -1
	bestCol := -1
	for i, ln := range lines {
		for _, c := range candidates {
			if c == "" {
				continue
			}
			if idx := strings.Index(ln, c); idx >= 0 {
				if bestLine != -1 {
					return 0, 0, false
				}
				bestLine = i + 1
				bestCol = idx + 1
			}
		}
	}
	if bestLine != -1 {
		return bestLine, bestCol, true
	}
	return 0, 0, false
}
