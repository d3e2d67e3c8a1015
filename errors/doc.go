// Package errors provides structured error types for the metadata reader.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes context: element path, IR type name, buffer offset and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindMalformedMetadata).
//		Path("#~", "TypeDef").
//		Offset(0x1a4).
//		Detail("coded index tag %d out of range", tag).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Malformed(offset, "bad stream header")
//	err := errors.Consistency(errors.PhaseUnstack, "stack depth %d != %d", a, b)
//
// All errors implement the standard error interface and support errors.Is/As.
// Two *Error values match under errors.Is when Phase and Kind agree.
package errors
