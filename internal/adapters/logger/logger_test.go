package logger_test

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kbridge/internal/adapters/logger"
	"go.trai.ch/kbridge/internal/core/domain"
	"go.trai.ch/zerr"
)

// captureStderr captures output written to os.Stderr during the execution of fn.
func captureStderr(t *testing.T, fn func()) string {
	t.Helper()

	originalStderr := os.Stderr
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stderr = w
	defer func() { os.Stderr = originalStderr }()

	done := make(chan string, 1)
	go func() {
		buf, _ := io.ReadAll(r)
		done <- string(buf)
	}()

	fn()

	require.NoError(t, w.Close())
	output := <-done
	require.NoError(t, r.Close())
	return output
}

func TestLogger_Info(t *testing.T) {
	output := captureStderr(t, func() {
		// Created inside the capture so it binds the redirected stderr.
		lg := logger.New()
		lg.Info("swept cache", "evicted", 3)
	})

	assert.Contains(t, output, "INFO")
	assert.Contains(t, output, "swept cache")
	assert.Contains(t, output, "evicted=3")
}

func TestLogger_Error(t *testing.T) {
	var buf bytes.Buffer
	lg := logger.New()
	lg.SetOutput(&buf)

	lg.Error(zerr.With(zerr.Wrap(domain.ErrKeyCollision, "canonical forms differ"), "key", "00000000000000ff"))

	output := buf.String()
	assert.Contains(t, output, "ERROR")
	assert.Contains(t, output, "canonical forms differ")
	assert.Contains(t, output, "00000000000000ff")
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	lg := logger.New()
	lg.SetOutput(&buf)

	lg.Debug("hidden by default")
	assert.Empty(t, buf.String())

	lg.SetLevel(domain.LogLevelDebug)
	lg.Debug("purging invalid cache entry", "key", "0000000000000001")
	assert.Contains(t, buf.String(), "purging invalid cache entry")

	buf.Reset()
	lg.SetLevel(domain.LogLevelError)
	lg.Warn("failed to write key journal")
	assert.Empty(t, strings.TrimSpace(buf.String()))
}
