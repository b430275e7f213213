package obs

import (
	"fmt"
	"os"
	"sync"
)

// Wrap wraps err with additional context, a thin fmt.Errorf-based
// helper rather than a custom error-chain type.
func Wrap(err error, msg string) error {
	if err == nil {
		return fmt.Errorf("%s", msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// abortHook is invoked by Abort. SetAbortHook lets a test substitute a
// non-exiting hook so the corruption-abort path of spec.md §7 kind 5 is exercisable
// without killing the test binary.
var (
	abortMu   sync.Mutex
	abortHook = func() { os.Exit(1) }
)

// SetAbortHook overrides the action taken on unrecoverable corruption.
// Adapted from GracefulShutdown's LIFO hook registration pattern,
// repurposed here for an abort path instead of a clean-exit path.
func SetAbortHook(hook func()) {
	abortMu.Lock()
	defer abortMu.Unlock()
	abortHook = hook
}

// Abort runs the registered abort hook. Called after logging a FATAL
// record for corruption-class failures (spec.md §7: "assertion
// violations on block traversal... abort. Cross-process corruption
// cannot be partially recovered.").
func Abort() {
	abortMu.Lock()
	hook := abortHook
	abortMu.Unlock()
	hook()
}
