package lib

import (
	"errors"
	"fmt"
	"os"
)

// ExitCoder is implemented by errors that choose the process exit code.
type ExitCoder interface {
	ExitCode() int
}

// Code returns the exit code for err: 0 for nil, the code of the first
// ExitCoder in its chain, 1 otherwise.
func Code(err error) int {
	if err == nil {
		return 0
	}
	var ec ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return 1
}

// Exit prints the error and exits the program with its exit code
func Exit(err error) {
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(os.Stderr, "Error:", msg)
	}
	os.Exit(Code(err))
}
