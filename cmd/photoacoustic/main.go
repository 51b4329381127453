// Package main implements the photoacoustic processing engine: a
// continuously running directed graph of signal processing stages over
// dual-channel sensor frames, reconfigurable at runtime through an HTTP
// gateway.
package main

import (
	"fmt"
	"os"
	"runtime"
)

const version = "0.1.0"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
