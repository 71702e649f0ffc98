// Package corerr defines the error taxonomy shared by every runtime-core
// subsystem: configuration, validation, dependency, load, enable/disable,
// task, and internal-fatal errors. Each type carries a short code plus a
// human-readable message, mirroring the embedder-facing error convention
// used throughout the rest of the stack (NewOSError("CODE", "message")).
package corerr

import "fmt"

// Code identifies the category of a core error.
type Code string

const (
	CodeConfiguration Code = "CONFIGURATION_ERROR"
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
	CodeLoad          Code = "LOAD_ERROR"
	CodeEnable        Code = "ENABLE_ERROR"
	CodeDisable       Code = "DISABLE_ERROR"
	CodeTask          Code = "TASK_ERROR"
	CodeInternalFatal Code = "INTERNAL_FATAL"
)

// CoreError is the common shape of every error produced by the runtime
// core. Code is stable and safe to branch on; Message is for humans.
type CoreError struct {
	Code    Code
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Err }

func newError(code Code, message string, err error) *CoreError {
	return &CoreError{Code: code, Message: message, Err: err}
}

// ConfigurationError reports a parse or I/O failure on a config file.
func ConfigurationError(message string, err error) *CoreError {
	return newError(CodeConfiguration, message, err)
}

// ValidationError reports that a typed config rejected its content via
// Validate(). Messages holds the human-readable validation errors.
type ValidationErr struct {
	*CoreError
	ConfigID string
	Messages []string
}

func ValidationError(configID string, messages []string) *ValidationErr {
	return &ValidationErr{
		CoreError: newError(CodeValidation, fmt.Sprintf("config %q failed validation", configID), nil),
		ConfigID:  configID,
		Messages:  messages,
	}
}

// DependencyError reports an unsatisfied hard dependency or a cycle.
func DependencyError(unitID, message string) *CoreError {
	return newError(CodeDependency, fmt.Sprintf("unit %q: %s", unitID, message), nil)
}

// LoadError reports a failure during discovery, manifest parsing, symbol
// resolution, instantiation, or OnLoad.
func LoadError(unitID, message string, err error) *CoreError {
	return newError(CodeLoad, fmt.Sprintf("unit %q: %s", unitID, message), err)
}

// EnableError reports an exception raised from OnEnable.
func EnableError(unitID string, err error) *CoreError {
	return newError(CodeEnable, fmt.Sprintf("unit %q failed to enable", unitID), err)
}

// DisableError reports an exception raised from OnDisable. Disable is
// best-effort: this error is logged, never propagated to force a rollback.
func DisableError(unitID string, err error) *CoreError {
	return newError(CodeDisable, fmt.Sprintf("unit %q failed to disable cleanly", unitID), err)
}

// TaskError reports a panic or error surfaced from a scheduled closure.
// Counted and logged; never propagated out of the tick loop.
func TaskError(owner string, err error) *CoreError {
	return newError(CodeTask, fmt.Sprintf("task owned by %q failed", owner), err)
}

// InternalFatalError reports a core-internal invariant violation. Unlike
// every other error in this package, it is meant to propagate and to
// drive the lifecycle orchestrator into Stopping.
func InternalFatalError(message string, err error) *CoreError {
	return newError(CodeInternalFatal, message, err)
}
