package pipeline

import "fmt"

// State is a pipeline position. Runs move strictly forward:
// EXPORTED -> QUANTIZED -> (BENCHMARKED | SKIPPED_BENCHMARK) -> MANIFESTED.
type State string

const (
	StateStart            State = "START"
	StateExported         State = "EXPORTED"
	StateQuantized        State = "QUANTIZED"
	StateBenchmarked      State = "BENCHMARKED"
	StateSkippedBenchmark State = "SKIPPED_BENCHMARK"
	StateManifested       State = "MANIFESTED"
)

// Stage names the component that drives a transition
type Stage string

const (
	StageExport    Stage = "export"
	StageQuantize  Stage = "quantize"
	StageBenchmark Stage = "benchmark"
	StageManifest  Stage = "manifest"
)

// Stages lists the four stages in execution order
var Stages = []Stage{StageExport, StageQuantize, StageBenchmark, StageManifest}

// IsTerminal reports whether no further transition exists
func IsTerminal(s State) bool {
	return s == StateManifested
}

// stageFrom returns the stage that leaves state s
func stageFrom(s State) Stage {
	switch s {
	case StateStart:
		return StageExport
	case StateExported:
		return StageQuantize
	case StateQuantized:
		return StageBenchmark
	default:
		return StageManifest
	}
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateStart:
		return to == StateExported
	case StateExported:
		return to == StateQuantized
	case StateQuantized:
		return to == StateBenchmarked || to == StateSkippedBenchmark
	case StateBenchmarked, StateSkippedBenchmark:
		return to == StateManifested
	default:
		return false
	}
}

// Result is the tagged outcome of one transition: either the next state or
// the reason the run halted.
type Result struct {
	Next State
	Err  error
}

// Ok advances to next
func Ok(next State) Result { return Result{Next: next} }

// Fail halts the run
func Fail(err error) Result { return Result{Err: err} }

// StageError reports which stage halted a run and the last state reached
type StageError struct {
	Stage Stage
	State State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed (reached %s): %v", e.Stage, e.State, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
