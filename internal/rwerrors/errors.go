// Package rwerrors defines the structured error and panic types used
// across the rewriter, following the error-kind taxonomy of spec.md §7:
// structural violations, analysis failures, malformed input, and
// allocation failure.
package rwerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// StructuralError represents a programmer error detected while mutating
// the chunk tree: inserting an already-parented chunk, calling
// Mutator.SetPosition on a non-Absolute position, splitting a block that
// isn't a Block's child, and similar invariant violations. spec.md §7
// says these "never recover" — code that detects one should panic with a
// *StructuralError rather than return it.
type StructuralError struct {
	Context string
	Cause   error
}

func (e *StructuralError) Error() string {
	if e.Cause == nil {
		return e.Context
	}
	return fmt.Sprintf("%s: %v", e.Context, e.Cause)
}

func (e *StructuralError) Unwrap() error { return e.Cause }

// Structural panics with a *StructuralError built from context and an
// optional cause.
func Structural(context string, cause error) {
	panic(&StructuralError{Context: context, Cause: cause})
}

// MalformedInputError is fatal: the ELF image could not be parsed into a
// usable Module. Ingestion aborts and this error is returned (not
// panicked) to the caller of Ingest, which is the one external interface
// spec.md names for this failure kind.
type MalformedInputError struct {
	Path  string
	Cause error
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed ELF input %q: %v", e.Path, e.Cause)
}

func (e *MalformedInputError) Unwrap() error { return e.Cause }

// WrapMalformed wraps cause as a *MalformedInputError for path, adding a
// stack trace via pkg/errors so a human can locate where ingestion gave
// up without re-running under a debugger.
func WrapMalformed(path string, cause error) error {
	if cause == nil {
		return nil
	}
	return &MalformedInputError{Path: path, Cause: errors.WithStack(cause)}
}

// AllocationError reports that the sandbox could not satisfy a request to
// allocate size bytes. Per spec.md §7 this is "fatal for the affected
// function"; the generator reports it and the pipeline halts that
// function's relocation (but, unlike MalformedInputError, does not abort
// ingestion of the rest of the module).
type AllocationError struct {
	Requested uint64
	Available uint64
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("sandbox allocation failed: requested %d bytes, %d available",
		e.Requested, e.Available)
}

// ErrSemanticSizeMismatch is returned by Mutator.InsertBeforeJumpTo when
// the two instructions being semantically swapped have different
// encoded sizes. spec.md §9 leaves this case's contract ambiguous and
// directs implementers to treat it as an error rather than guess at
// truncation or padding semantics.
var ErrSemanticSizeMismatch = errors.New("insertBeforeJumpTo: semantic sizes differ, swap would change addresses")

// AnalysisWarning is not an error type callers propagate — spec.md §7
// says analysis failures are "logged, reference left as literal, pipeline
// continues." It gives a warning a single well-known shape; the passes
// in internal/pass do not construct it and log their warnings as logrus
// fields instead.
type AnalysisWarning struct {
	Pass    string
	Chunk   string
	Message string
}

func (w AnalysisWarning) String() string {
	return fmt.Sprintf("[%s] %s: %s", w.Pass, w.Chunk, w.Message)
}
