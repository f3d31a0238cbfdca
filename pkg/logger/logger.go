package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

var (
	mu          sync.Mutex
	verboseMode bool
	silentMode  bool
	infoLogger  *log.Logger
	debugLogger *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
)

func init() {
	// Progress goes to stderr so a report written to stdout stays parseable.
	SetOutput(os.Stderr)
}

// SetOutput redirects info, debug and warning output. Errors always go to stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	infoLogger = log.New(w, "", 0)
	debugLogger = log.New(w, "", 0)
	warnLogger = log.New(w, "WARN: ", 0)
	errorLogger = log.New(os.Stderr, "ERROR: ", 0)
}

// SetVerbose enables or disables verbose logging.
func SetVerbose(verbose bool) {
	mu.Lock()
	verboseMode = verbose
	mu.Unlock()
}

// SetSilent suppresses informational progress output.
func SetSilent(silent bool) {
	mu.Lock()
	silentMode = silent
	mu.Unlock()
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.Lock()
	defer mu.Unlock()
	return verboseMode
}

func getTimestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

// Debugf logs a formatted debug message if verbose mode is enabled.
// Includes a timestamp.
func Debugf(format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if verboseMode {
		debugLogger.Printf("[%s] DEBUG: %s", getTimestamp(), fmt.Sprintf(format, v...))
	}
}

// Infof logs a formatted informational message unless silent mode is on.
func Infof(format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if !silentMode {
		infoLogger.Printf(format, v...)
	}
}

// Warnf logs a degraded, non-fatal condition. Silent mode hides it unless verbose.
func Warnf(format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if !silentMode || verboseMode {
		warnLogger.Printf(format, v...)
	}
}

// Errorf logs a formatted error message.
func Errorf(format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	errorLogger.Printf(format, v...)
}
