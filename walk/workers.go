package walk

import (
	"log/slog"
	"os"
	"runtime"
	"strconv"
)

// EnvMaxCPUCores caps the parse worker count.
const EnvMaxCPUCores = "DEMISTO_SDK_MAX_CPU_CORES"

// EnvMaxThreads is the legacy spelling of the same knob, honored as a
// deprecation alias when the canonical variable is unset.
const EnvMaxThreads = "MAX_DEMISTO_SDK_THREADS"

// WorkersFromEnv reads the worker cap from the environment. Returns zero
// when neither variable carries a positive integer. Values above the
// logical CPU count are clamped to it.
func WorkersFromEnv() int {
	n := 0
	if v := os.Getenv(EnvMaxCPUCores); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	} else if v := os.Getenv(EnvMaxThreads); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			slog.Warn("MAX_DEMISTO_SDK_THREADS is deprecated, use DEMISTO_SDK_MAX_CPU_CORES")
			n = parsed
		}
	}
	if n > runtime.NumCPU() {
		n = runtime.NumCPU()
	}
	return n
}

// Workers resolves the parse worker count: the env cap when set, otherwise
// the logical CPU count.
func Workers() int {
	if n := WorkersFromEnv(); n > 0 {
		return n
	}
	return runtime.NumCPU()
}
