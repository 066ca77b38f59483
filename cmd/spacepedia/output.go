package main

import (
	"fmt"
	"os"
)

// ANSI codes for the progress helpers. --no-color disables them wholesale.
const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func paint(code, s string) string {
	if noColor {
		return s
	}
	return code + s + ansiReset
}

// Progress and diagnostics go to stderr so stdout stays pipeable.

func stepf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", paint(ansiBold, "::"), fmt.Sprintf(format, args...))
}

func successf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", paint(ansiGreen, "done:"), fmt.Sprintf(format, args...))
}

func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", paint(ansiYellow, "warning:"), fmt.Sprintf(format, args...))
}

func failf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", paint(ansiRed, "error:"), fmt.Sprintf(format, args...))
}

// kv prints one aligned label/value line on stdout for report commands.
// The label is padded before painting so ANSI codes do not skew alignment.
func kv(label, format string, args ...any) {
	padded := fmt.Sprintf("%-16s", label)
	fmt.Fprintf(os.Stdout, "%s %s\n", paint(ansiBold, padded), fmt.Sprintf(format, args...))
}
