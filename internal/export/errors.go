package export

import (
	"errors"
	"fmt"
	"strings"
)

// Failure kinds. Every error leaving this package wraps exactly one of
// these sentinels so callers classify outcomes with errors.Is instead of
// branching on backend identity.
var (
	// ErrValidation marks a malformed timeline rejected before compilation.
	ErrValidation = errors.New("validation failure")
	// ErrClassification marks a payload that could not be measured.
	ErrClassification = errors.New("classification failure")
	// ErrCompile marks a compiler invariant violation. Unreachable for
	// timelines that passed validation.
	ErrCompile = errors.New("compile failure")
	// ErrEngineLoad marks a failed local engine initialization. A later
	// export may retry the load.
	ErrEngineLoad = errors.New("engine load failure")
	// ErrExecution marks a processing error reported by either backend.
	ErrExecution = errors.New("execution failure")
	// ErrTransport marks a network-level error talking to the remote
	// worker, distinct from a processing error it reports.
	ErrTransport = errors.New("transport failure")
	// ErrCancelled marks an export aborted mid-flight. Cleanup still runs.
	ErrCancelled = errors.New("export cancelled")
)

// ErrBusy rejects a second concurrent export on the same exporter.
var ErrBusy = fmt.Errorf("%w: an export is already running", ErrValidation)

// wrapFailure tags err with a failure kind and operation context.
func wrapFailure(kind error, op string, err error) error {
	op = strings.TrimSpace(op)
	if err == nil {
		return fmt.Errorf("%w: %s", kind, op)
	}
	if op == "" {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return fmt.Errorf("%w: %s: %w", kind, op, err)
}
