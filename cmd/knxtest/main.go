// knxtest - KNX device integration test harness
//
// knxtest drives simulated KNX devices (switches, dimmers, shutters) over an
// in-process or MQTT-backed group bus and checks their behaviour: percentage
// control, locking and threshold-based sun protection. The value commands
// are a manual console for the KNX value codec.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Exit codes.
const (
	exitFailures = 1 // a test case or check failed
	exitError    = 2 // configuration, usage or runtime error
)

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command error to the process exit status. Failures have
// already been reported by the command; anything else is printed here.
func exitCode(err error) int {
	if errors.Is(err, errFailures) {
		return exitFailures
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return exitError
}
