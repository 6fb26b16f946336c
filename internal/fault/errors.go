// Package fault defines the typed failures shared by every component and
// the mapping from failure kind to process exit code.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the machine-readable tag carried by every typed failure.
type Kind string

const (
	KindInputNotFound            Kind = "InputNotFound"
	KindInputSchemaError         Kind = "InputSchemaError"
	KindInputLengthMismatch      Kind = "InputLengthMismatch"
	KindInputValueError          Kind = "InputValueError"
	KindConfigError              Kind = "ConfigError"
	KindDispatchInfeasible       Kind = "DispatchInfeasible"
	KindInvalidWeights           Kind = "InvalidWeights"
	KindInvalidAction            Kind = "InvalidAction"
	KindObservationShapeMismatch Kind = "ObservationShapeMismatch"
	KindCheckpointIOError        Kind = "CheckpointIOError"
	KindMetricExtractionWarning  Kind = "MetricExtractionWarning"
	KindTrainingFailed           Kind = "TrainingFailed"
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitInput      = 1
	ExitInfeasible = 2
	ExitTraining   = 3
)

// Kinded is implemented by every typed failure in this package.
type Kinded interface {
	error
	Kind() Kind
}

// InputError reports a problem with one of the declared input files.
type InputError struct {
	kind   Kind
	Path   string
	Detail string
	Err    error
}

func (e *InputError) Kind() Kind { return e.kind }

func (e *InputError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.kind))
	if e.Path != "" {
		fmt.Fprintf(&b, " [%s]", e.Path)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *InputError) Unwrap() error { return e.Err }

func InputNotFound(path string, err error) error {
	return &InputError{kind: KindInputNotFound, Path: path, Err: err}
}

func InputSchema(path, format string, args ...any) error {
	return &InputError{kind: KindInputSchemaError, Path: path, Detail: fmt.Sprintf(format, args...)}
}

func InputLength(path string, got, want int) error {
	return &InputError{
		kind:   KindInputLengthMismatch,
		Path:   path,
		Detail: fmt.Sprintf("got %d rows, want %d", got, want),
	}
}

func InputValue(path, format string, args ...any) error {
	return &InputError{kind: KindInputValueError, Path: path, Detail: fmt.Sprintf(format, args...)}
}

// ConfigError reports an invalid or unreadable configuration value.
type ConfigError struct {
	Field  string
	Detail string
	Err    error
}

func (e *ConfigError) Kind() Kind { return KindConfigError }

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("ConfigError: %s: %s", e.Field, e.Detail)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

func Config(field, format string, args ...any) error {
	return &ConfigError{Field: field, Detail: fmt.Sprintf(format, args...)}
}

// DispatchInfeasible is raised when the balance engine cannot honour the
// battery constraints at a given hour.
type DispatchInfeasible struct {
	Hour         int
	SOC          float64
	EVResidual   float64
	MallResidual float64
	Reason       string
}

func (e *DispatchInfeasible) Kind() Kind { return KindDispatchInfeasible }

func (e *DispatchInfeasible) Error() string {
	return fmt.Sprintf("DispatchInfeasible at hour %d (soc=%.6f ev_residual=%.3f mall_residual=%.3f): %s",
		e.Hour, e.SOC, e.EVResidual, e.MallResidual, e.Reason)
}

// ContractError covers violations between components: bad weights, bad
// actions and observation shape drift.
type ContractError struct {
	kind   Kind
	Detail string
}

func (e *ContractError) Kind() Kind { return e.kind }

func (e *ContractError) Error() string { return string(e.kind) + ": " + e.Detail }

func InvalidWeights(format string, args ...any) error {
	return &ContractError{kind: KindInvalidWeights, Detail: fmt.Sprintf(format, args...)}
}

func InvalidAction(format string, args ...any) error {
	return &ContractError{kind: KindInvalidAction, Detail: fmt.Sprintf(format, args...)}
}

func ObservationShape(got, want int) error {
	return &ContractError{
		kind:   KindObservationShapeMismatch,
		Detail: fmt.Sprintf("observation has %d values, want %d", got, want),
	}
}

// CheckpointIOError reports a checkpoint that could not be persisted after a retry.
type CheckpointIOError struct {
	Path string
	Err  error
}

func (e *CheckpointIOError) Kind() Kind { return KindCheckpointIOError }

func (e *CheckpointIOError) Error() string {
	return fmt.Sprintf("CheckpointIOError [%s]: %v", e.Path, e.Err)
}

func (e *CheckpointIOError) Unwrap() error { return e.Err }

// MetricExtractionWarning is the only non-fatal kind: a metric was missing
// from the inner environment info and a default was substituted.
type MetricExtractionWarning struct {
	Metric  string
	Default float64
}

func (e *MetricExtractionWarning) Kind() Kind { return KindMetricExtractionWarning }

func (e *MetricExtractionWarning) Error() string {
	return fmt.Sprintf("MetricExtractionWarning: %q missing, using %g", e.Metric, e.Default)
}

// TrainingFailed wraps any error that aborted a training or evaluation run.
type TrainingFailed struct {
	Agent string
	Err   error
}

func (e *TrainingFailed) Kind() Kind { return KindTrainingFailed }

func (e *TrainingFailed) Error() string {
	return fmt.Sprintf("TrainingFailed [%s]: %v", e.Agent, e.Err)
}

func (e *TrainingFailed) Unwrap() error { return e.Err }

// KindOf returns the most specific kind found in err's chain. Input, config
// and dispatch kinds win over a TrainingFailed wrapper so the exit code
// reflects the root cause.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var found Kind
	for e := err; e != nil; e = errors.Unwrap(e) {
		k, ok := e.(Kinded)
		if !ok {
			continue
		}
		if found == "" || found == KindTrainingFailed {
			found = k.Kind()
		}
	}
	return found
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if k, ok := e.(Kinded); ok && k.Kind() == kind {
			return true
		}
	}
	return false
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case KindDispatchInfeasible:
		return ExitInfeasible
	case KindInputNotFound, KindInputSchemaError, KindInputLengthMismatch, KindInputValueError,
		KindConfigError, KindInvalidWeights:
		return ExitInput
	default:
		return ExitTraining
	}
}
