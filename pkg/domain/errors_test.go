package domain

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindsMatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"transport", &TransportError{Op: "GET", URL: "http://x/A/row/0", Err: io.EOF}, ErrTransport},
		{"malformed", &MalformedRowError{Dataset: DatasetA, Row: 3, Reason: "service reported failure"}, ErrMalformedRow},
		{"assembly", &IncompleteAssemblyError{Size: 2, Missing: []int{1}}, ErrIncompleteAssembly},
		{"validation", &ValidationRejectedError{StatusCode: 400}, ErrValidationRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("stage: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			for _, other := range []error{ErrTransport, ErrMalformedRow, ErrIncompleteAssembly, ErrValidationRejected} {
				if other != tt.sentinel {
					assert.NotErrorIs(t, wrapped, other)
				}
			}
		})
	}
}

func TestTransportErrorUnwrapsCause(t *testing.T) {
	err := &TransportError{Op: "POST", URL: "http://x/init/2", Err: io.ErrUnexpectedEOF}
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "POST http://x/init/2: unexpected EOF", err.Error())

	status := &TransportError{Op: "GET", URL: "http://x/B/row/1", StatusCode: 503}
	assert.Equal(t, "GET http://x/B/row/1: unexpected status 503", status.Error())
}

func TestIncompleteAssemblyErrorMessage(t *testing.T) {
	err := &IncompleteAssemblyError{
		Size:       12,
		Missing:    []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		Duplicates: []int{11},
	}
	assert.Equal(t, "assemble 12x12 matrix: missing rows [0 1 2 3 4 5 6 7 ... +2 more]; duplicate rows [11]", err.Error())

	var target *IncompleteAssemblyError
	require.True(t, errors.As(fmt.Errorf("wrap: %w", err), &target))
	assert.Equal(t, []int{11}, target.Duplicates)
}

func TestRowResponseCauseText(t *testing.T) {
	cause := "row not initialised"
	assert.Equal(t, "", RowResponse{}.CauseText())
	assert.Equal(t, cause, RowResponse{Cause: &cause}.CauseText())
}
