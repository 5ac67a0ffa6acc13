// Package debug is the tree's diagnostic sink: component-tagged printf
// logging that stays silent unless the DEBUG environment variable is set
// and a writer has been routed in. User-facing output goes to stdout
// directly; everything that only matters when something misbehaves goes
// through here.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	mu   sync.Mutex
	sink io.Writer
)

// Enabled reports whether diagnostic logging is switched on. DEBUG=1 or
// DEBUG=true enables it; anything else leaves every Log call a no-op.
func Enabled() bool {
	switch os.Getenv("DEBUG") {
	case "1", "true":
		return true
	}
	return false
}

// SetDebugOutput routes diagnostic lines to w. Passing nil silences the
// package again.
func SetDebugOutput(w io.Writer) {
	mu.Lock()
	sink = w
	mu.Unlock()
}

// Log writes one diagnostic line tagged with the component that produced
// it. The line is formatted before the sink lock is taken and written in a
// single call so concurrent components never interleave mid-line.
func Log(component, format string, args ...interface{}) {
	if !Enabled() {
		return
	}

	msg := fmt.Sprintf(format, args...)

	mu.Lock()
	defer mu.Unlock()
	if sink == nil {
		return
	}
	fmt.Fprintf(sink, "[DEBUG:%s] %s", component, msg)
}

// LogIndexing tags diagnostics from the indexing pipeline (scanner,
// watcher, pools).
func LogIndexing(format string, args ...interface{}) {
	Log("INDEX", format, args...)
}
