// Package oracle decides whether the subject engine agrees with the
// reference engine.
//
// A test case flows through one Environment: Setup maps identical code and
// data regions into both engines, the stream builder emits instructions into
// the code region, Inject writes the same initial state into both engines,
// Run executes one translation unit on the subject and the same instruction
// count on the reference, and the Comparator with its ToleranceMode and
// SkipPolicy turns the two resulting states into a Verdict. When no
// reference engine is available the environment is degraded and the
// Replayer checks the subject against golden traces instead.
package oracle

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrConfiguration marks a test-authoring mistake. It is fatal to the
	// case and never retried.
	ErrConfiguration = errors.New("oracle: configuration error")

	// ErrCodeRegionFull is returned when an emission would overrun the code
	// region.
	ErrCodeRegionFull = fmt.Errorf("%w: code region full", ErrConfiguration)

	// ErrGeneratorExhausted means a value generator hit its draw cap.
	ErrGeneratorExhausted = errors.New("oracle: value generator exhausted its draws")
)
