package config

import (
	"fmt"
	"os"
)

// Exitf prints the formatted message to stderr and terminates the process
// with status 1. Command mains use it for unrecoverable startup failures
// that happen before logging is configured.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
