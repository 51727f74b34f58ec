package main

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withFakeServer(t *testing.T) *int {
	t.Helper()
	orig := startServer
	var calls int
	startServer = func(io.Writer) int {
		calls++
		return 0
	}
	t.Cleanup(func() { startServer = orig })
	return &calls
}

func TestRunDefaultsToServer(t *testing.T) {
	calls := withFakeServer(t)
	var out, errOut bytes.Buffer

	code := Run([]string{"anchorage"}, &out, &errOut)
	assert.Equal(t, 0, code)
	assert.Equal(t, 1, *calls)

	code = Run([]string{"anchorage", "serve"}, &out, &errOut)
	assert.Equal(t, 0, code)
	assert.Equal(t, 2, *calls)
}

func TestRunHelp(t *testing.T) {
	calls := withFakeServer(t)
	var out, errOut bytes.Buffer

	code := Run([]string{"anchorage", "help"}, &out, &errOut)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "export")
	assert.Zero(t, *calls)
}

func TestRunUnknownCommand(t *testing.T) {
	calls := withFakeServer(t)
	var out, errOut bytes.Buffer

	code := Run([]string{"anchorage", "bogus"}, &out, &errOut)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "Unknown command")
	assert.Zero(t, *calls)
}

func TestRunExportRejectsBadRange(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"anchorage", "export", "-from", "not-a-time"}, &out, &errOut)
	assert.Equal(t, 2, code)

	code = Run([]string{"anchorage", "export",
		"-from", "2026-03-14T00:00:00Z", "-to", "2026-03-13T00:00:00Z"}, &out, &errOut)
	assert.Equal(t, 2, code)
}
