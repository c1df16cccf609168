package testutil

import (
	"io"
	"log"
	"os"
	"testing"
)

// TestLogger returns a logger for use in tests. Output is discarded unless
// the package is run with -v, where it goes to stdout.
func TestLogger(t *testing.T) *log.Logger {
	t.Helper()

	out := io.Discard
	if testing.Verbose() {
		out = os.Stdout
	}
	return log.New(out, "[test] ", log.LstdFlags)
}
