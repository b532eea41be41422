package parse

import (
	"fmt"

	"github.com/golang/glog"
)

// Logging convention in the `parse` package:
// Info:
//     essential events for abnormal behavior. This level should be silent on normal operation
//     this includes:
//     - locally rejected operations (busy flags, missing required fields, wrong value types)
//       that never reach the server. These are reported to the caller only as a false return,
//       so the log line is the only detail available
//     - abnormal transport exits
// Error:
//     unrecoverable crash details
//     this includes:
//     - unexpected panics raised out of user callbacks, even if handled and suppressed
// Debug (V(1) and up):
//     key events for trace debugging
//     this includes:
//     - request/response summaries with the class name and object id as filterable tags

type LogFunction func(format string, a ...any)

// LogFn returns a tagged logger for frequent per-subsystem events.
// The tag convention is a short bracketed label, e.g. "[obj]", "[file]".
func LogFn(level glog.Level, tag string) LogFunction {
	return func(format string, a ...any) {
		if glog.V(level) {
			m := fmt.Sprintf(format, a...)
			glog.Infof("%s%s\n", tag, m)
		}
	}
}

func SubLogFn(level glog.Level, log LogFunction, tag string) LogFunction {
	return func(format string, a ...any) {
		if glog.V(level) {
			log("%s%s", tag, fmt.Sprintf(format, a...))
		}
	}
}
