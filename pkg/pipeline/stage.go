package pipeline

import (
	"fmt"
	"time"
)

// Stage names a step of a pipeline run.
type Stage string

const (
	// StageInit asks the service to create both datasets.
	StageInit Stage = "init"
	// StageFetchA retrieves dataset A.
	StageFetchA Stage = "fetch_a"
	// StageFetchB retrieves dataset B.
	StageFetchB Stage = "fetch_b"
	// StageMultiply computes A×B.
	StageMultiply Stage = "multiply"
	// StageReduce digests the product.
	StageReduce Stage = "reduce"
	// StageValidate submits the digest.
	StageValidate Stage = "validate"
	// StageDone is terminal on success.
	StageDone Stage = "done"
	// StageFailed is terminal on any error and absorbs every later step.
	StageFailed Stage = "failed"
)

// Stages lists the working stages in execution order.
var Stages = []Stage{StageInit, StageFetchA, StageFetchB, StageMultiply, StageReduce, StageValidate}

// Terminal reports whether no stage can follow s.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// StageRecord is the timing of one completed or failed stage.
type StageRecord struct {
	Stage    Stage
	Duration time.Duration
	Err      error
}

// StageError is the terminal error of a failed run.
type StageError struct {
	RunID string
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
