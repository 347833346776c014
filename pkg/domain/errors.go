package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Error kinds surfaced by the pipeline.
var (
	ErrTransport          = errors.New("transport failure")
	ErrMalformedRow       = errors.New("malformed row")
	ErrIncompleteAssembly = errors.New("incomplete assembly")
	ErrValidationRejected = errors.New("validation rejected")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrDimensionMismatch  = errors.New("matrix dimension mismatch")
)

// TransportError reports a network or HTTP failure on a remote call.
// StatusCode is zero when no response was received.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(" ")
	b.WriteString(e.URL)
	if e.StatusCode != 0 {
		b.WriteString(": unexpected status ")
		b.WriteString(strconv.Itoa(e.StatusCode))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// MalformedRowError reports a row payload that cannot be used: the service
// flagged it as failed, it has the wrong length, or it does not decode.
type MalformedRowError struct {
	Dataset Dataset
	Row     int
	Reason  string
	Err     error
}

func (e *MalformedRowError) Error() string {
	msg := fmt.Sprintf("dataset %s row %d: %s", e.Dataset, e.Row, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedRowError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrMalformedRow.
func (e *MalformedRowError) Is(target error) bool {
	return target == ErrMalformedRow
}

// IncompleteAssemblyError reports row indexes that were never written, written
// twice, or lie outside [0, size).
type IncompleteAssemblyError struct {
	Size       int
	Missing    []int
	Duplicates []int
	OutOfRange []int
}

func (e *IncompleteAssemblyError) Error() string {
	parts := make([]string, 0, 3)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing rows "+formatIndexes(e.Missing))
	}
	if len(e.Duplicates) > 0 {
		parts = append(parts, "duplicate rows "+formatIndexes(e.Duplicates))
	}
	if len(e.OutOfRange) > 0 {
		parts = append(parts, "rows out of range "+formatIndexes(e.OutOfRange))
	}
	return fmt.Sprintf("assemble %dx%d matrix: %s", e.Size, e.Size, strings.Join(parts, "; "))
}

// Is reports whether target is ErrIncompleteAssembly.
func (e *IncompleteAssemblyError) Is(target error) bool {
	return target == ErrIncompleteAssembly
}

// ValidationRejectedError reports a non-success response from the validator.
type ValidationRejectedError struct {
	StatusCode int
	Body       string
}

func (e *ValidationRejectedError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("validator returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("validator returned status %d: %s", e.StatusCode, e.Body)
}

// Is reports whether target is ErrValidationRejected.
func (e *ValidationRejectedError) Is(target error) bool {
	return target == ErrValidationRejected
}

// formatIndexes renders at most eight indexes so large failures stay readable.
func formatIndexes(idx []int) string {
	const limit = 8
	shown := idx
	if len(shown) > limit {
		shown = shown[:limit]
	}
	strs := make([]string, len(shown))
	for i, v := range shown {
		strs[i] = strconv.Itoa(v)
	}
	out := "[" + strings.Join(strs, " ")
	if len(idx) > limit {
		out += fmt.Sprintf(" ... +%d more", len(idx)-limit)
	}
	return out + "]"
}
