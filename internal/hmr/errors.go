package hmr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotLoaded means Update was called before the first Load.
var ErrNotLoaded = errors.New("hmr: engine has not been loaded")

// ErrModuleNotFound means a module id has no registered definition.
var ErrModuleNotFound = errors.New("module not found")

// ReloadRequiredError lists the modules whose update nobody accepted. The caller
// has to fall back to a full reload.
type ReloadRequiredError struct {
	IDs []ModuleID
}

func (e *ReloadRequiredError) Error() string {
	return "can't accept changes for: " + strings.Join(Strings(e.IDs), ", ")
}

// ExecError wraps a failure while executing a module body or one of its callbacks.
type ExecError struct {
	ID    ModuleID
	Phase string // "execute" or "accept"
	Err   error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Phase, e.ID, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// recovered converts a panic value into an error.
func recovered(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", v)
}
