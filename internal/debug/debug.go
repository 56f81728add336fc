package debug

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (session opened, collage uploaded)
	LevelLive    = 2 // Live info (state changes, countdown, shots)
	LevelVerbose = 3 // Verbose (layout, filter, request details)
	LevelTrace   = 4 // Trace (GPIO, frames, rendering library)
)

const prefix = "[BoothGo] "

var (
	mu     sync.RWMutex
	level  int
	out    io.Writer = os.Stdout
	logger *log.Logger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (session lifecycle, uploads)
// 2 = live info (state changes, countdown, shots)
// 3 = verbose (layout, filters, request details)
// 4 = trace (GPIO, frames, very low level)
func Init(debugLevel int) {
	mu.Lock()
	defer mu.Unlock()
	level = debugLevel
	logger = nil
	if level > LevelOff {
		logger = log.New(out, prefix, log.LstdFlags|log.Lmicroseconds)
	}
}

// SetOutput redirects debug output, e.g. to stdout plus the web log stream.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	if logger != nil {
		logger.SetOutput(w)
	}
}

// Level returns the current debug level.
func Level() int {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

func printf(minLevel int, format string, args ...interface{}) {
	mu.RLock()
	l, lg := level, logger
	mu.RUnlock()
	if l >= minLevel && lg != nil {
		lg.Printf(format, args...)
	}
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	printf(LevelInfo, "[INFO] "+format, args...)
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	printf(LevelInfo, "═══════════════════════════════════════")
	printf(LevelInfo, "  %s", title)
	printf(LevelInfo, "═══════════════════════════════════════")
}

// Upload prints the outcome of an upload (level 1).
func Upload(sink string, err error) {
	if err != nil {
		printf(LevelInfo, "[INFO] Upload via %s failed: %v", sink, err)
		return
	}
	printf(LevelInfo, "[INFO] Upload via %s succeeded", sink)
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	printf(LevelLive, "[LIVE] "+format, args...)
}

// State prints a session state transition (level 2).
func State(from, to string) {
	printf(LevelLive, "[LIVE] State %s -> %s", from, to)
}

// Countdown prints a countdown tick (level 2).
func Countdown(value int) {
	printf(LevelLive, "[LIVE] Countdown %d", value)
}

// Shot prints a photo capture (level 2).
func Shot(index, total int) {
	printf(LevelLive, "[LIVE] Shot %d/%d taken", index, total)
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	printf(LevelVerbose, "[VERBOSE] "+format, args...)
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	printf(LevelVerbose, "[VERBOSE] %s: %+v", name, v)
}

// Section prints a section separator (level 3).
func Section(name string) {
	printf(LevelVerbose, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	printf(LevelVerbose, "  %s", name)
	printf(LevelVerbose, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	printf(LevelInfo, "[INFO]   %s = %v", name, value)
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, GPIO).
func Trace(format string, args ...interface{}) {
	printf(LevelTrace, "[TRACE] "+format, args...)
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	printf(LevelTrace, "[GPIO] %s pin=%d value=%v", operation, pin, value)
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	printf(LevelInfo, "[ERROR] %v", err)
}

// Fmt is a helper function that returns a formatted string
// only if debug is enabled (to avoid unnecessary allocations).
func Fmt(format string, args ...interface{}) string {
	if Level() > 0 {
		return fmt.Sprintf(format, args...)
	}
	return ""
}

// traceWriter forwards slog text records to Trace.
type traceWriter struct{}

func (traceWriter) Write(p []byte) (int, error) {
	Trace("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// Slog returns a structured logger for libraries that expect *slog.Logger.
// Its records are emitted at trace level.
func Slog() *slog.Logger {
	return slog.New(slog.NewTextHandler(traceWriter{}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
