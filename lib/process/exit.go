// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// exitCoder is an error that selects the process exit status. Commands
// that already reported their outcome return one so nothing more is
// printed.
type exitCoder interface {
	ExitCode() int
}

// Fatal reports err and exits. An error carrying an exit code exits
// with that code silently; anything else prints "error: err" to stderr
// and exits 1.
func Fatal(err error) {
	os.Exit(report(os.Stderr, err))
}

// report writes err to w as Fatal would and returns the exit status.
func report(w io.Writer, err error) int {
	var coder exitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	fmt.Fprintf(w, "error: %v\n", err)
	return 1
}
