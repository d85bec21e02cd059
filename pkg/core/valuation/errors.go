package valuation

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a kernel failure.
type ErrorKind string

const (
	KindStructural        ErrorKind = "STRUCTURAL_VALIDATION"
	KindTerminalStability ErrorKind = "TERMINAL_STABILITY"
	KindScenarioWeights   ErrorKind = "SCENARIO_WEIGHTS"
)

// Sentinels for errors.Is. Every *ValidationError unwraps to exactly one of them.
var (
	ErrStructural        = errors.New("structural validation error")
	ErrTerminalStability = errors.New("terminal stability violation")
	ErrScenarioWeights   = errors.New("scenario weight error")
)

// ValidationError is the only error type the kernel returns.
// Field and Value echo the offending input back to the caller.
type ValidationError struct {
	Kind   ErrorKind `json:"kind"`
	Field  string    `json:"field"`
	Value  any       `json:"value,omitempty"`
	Reason string    `json:"reason"`
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s=%v: %s", e.Kind, e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	switch e.Kind {
	case KindTerminalStability:
		return ErrTerminalStability
	case KindScenarioWeights:
		return ErrScenarioWeights
	default:
		return ErrStructural
	}
}

func structuralErr(field string, value any, reason string) error {
	return &ValidationError{Kind: KindStructural, Field: field, Value: value, Reason: reason}
}

// ScenarioWeightError builds a scenario-weight failure. Exported for the
// scenario engine, which lives in its own package.
func ScenarioWeightError(field string, value any, reason string) error {
	return &ValidationError{Kind: KindScenarioWeights, Field: field, Value: value, Reason: reason}
}

// StructuralError builds a structural failure for callers outside this package
// (scenario sweeps, record decoding) that reject malformed requests.
func StructuralError(field string, value any, reason string) error {
	return structuralErr(field, value, reason)
}
