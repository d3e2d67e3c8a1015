package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDecode     Phase = "decode"     // binary cursor and heaps
	PhaseLoad       Phase = "load"       // metadata tables to IR
	PhaseSpecialize Phase = "specialize" // template instantiation
	PhaseUnstack    Phase = "unstack"    // stack elimination
	PhaseResolve    Phase = "resolve"    // assembly location
)

// Kind categorizes the error
type Kind string

const (
	KindMalformedMetadata      Kind = "malformed_metadata"
	KindUnresolvedTemplateSlot Kind = "unresolved_template_slot"
	KindInternalConsistency    Kind = "internal_consistency"
	KindOutOfBounds            Kind = "out_of_bounds"
	KindInvalidInput           Kind = "invalid_input"
	KindNotFound               Kind = "not_found"
	KindUnsupported            Kind = "unsupported"
)

// NoOffset marks an error that is not tied to a buffer position.
const NoOffset = -1

// Error is the structured error type used throughout the module
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	TypeName string
	Detail   string
	Path     []string
	Offset   int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Offset >= 0 {
		fmt.Fprintf(&b, " (offset 0x%x)", e.Offset)
	}

	if e.TypeName != "" {
		b.WriteString(": type ")
		b.WriteString(e.TypeName)
	}

	if e.Detail != "" {
		if e.TypeName != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase:  phase,
			Kind:   kind,
			Offset: NoOffset,
		},
	}
}

// Path sets the element path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// TypeName sets the IR type name involved
func (b *Builder) TypeName(t string) *Builder {
	b.err.TypeName = t
	return b
}

// Offset sets the buffer offset
func (b *Builder) Offset(off int) *Builder {
	b.err.Offset = off
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Malformed creates a malformed metadata error at a buffer offset
func Malformed(offset int, detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindMalformedMetadata,
		Offset: offset,
		Detail: detail,
	}
}

// ReadPastEnd creates the error returned when a read would leave the buffer
func ReadPastEnd(offset, want, length int) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindMalformedMetadata,
		Offset: offset,
		Detail: fmt.Sprintf("read of %d bytes exceeds buffer length %d", want, length),
		Value:  want,
	}
}

// Consistency creates an internal consistency error
func Consistency(phase Phase, detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInternalConsistency,
		Offset: NoOffset,
		Detail: detail,
	}
}

// UnresolvedSlot creates an unresolved template slot error
func UnresolvedSlot(typeName string) *Error {
	return &Error{
		Phase:    PhaseSpecialize,
		Kind:     KindUnresolvedTemplateSlot,
		Offset:   NoOffset,
		TypeName: typeName,
		Detail:   "parameter not found by identity or name",
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Offset: NoOffset,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// Unsupported creates an unsupported construct error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Offset: NoOffset,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Offset: NoOffset,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Offset: NoOffset,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Offset: NoOffset,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates a metadata loading error that keeps the decode cause
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindMalformedMetadata,
		Offset: NoOffset,
		Detail: detail,
		Cause:  cause,
	}
}
