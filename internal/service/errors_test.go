package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify("llm", nil))

	err := Classify("llm", fmt.Errorf("post: %w", context.DeadlineExceeded))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrUnavailable)

	err = Classify("llm", timeoutErr{})
	assert.ErrorIs(t, err, ErrTimeout)

	err = Classify("tts", errors.New("dial tcp 127.0.0.1:7851: connect: connection refused"))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "tts")

	// caller cancellation is not a service failure
	err = Classify("llm", context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrUnavailable)

	// already classified errors pass through
	orig := Timeout("llm", "slow", nil)
	assert.Same(t, orig, Classify("llm", orig))
}

func TestErrorRetryable(t *testing.T) {
	assert.True(t, Timeout("llm", "slow", nil).IsRetryable())
	assert.False(t, Unavailable("llm", "down", nil).IsRetryable())
}

func TestStatusError(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusInternalServerError,
		Body:       io.NopCloser(strings.NewReader(`{"error":"model not found"}`)),
	}
	err := StatusError("llm", resp)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "model not found")
}

func TestProcessLauncher(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sleep")
	}
	if err := checkBinary("sleep"); err != nil {
		t.Skip(err)
	}

	var buf bytes.Buffer
	logger := log.New(&buf)
	logger.SetLevel(log.DebugLevel)
	l := &ProcessLauncher{GracePeriod: time.Second, Logger: logger}
	proc, err := l.Launch(context.Background(), LaunchSpec{Command: "sleep", Args: []string{"30"}})
	require.NoError(t, err)
	assert.Positive(t, proc.Pid())

	start := time.Now()
	require.NoError(t, proc.Stop(context.Background()))
	assert.Less(t, time.Since(start), 5*time.Second)

	// stopping twice is fine
	require.NoError(t, proc.Stop(context.Background()))

	assert.Contains(t, buf.String(), "Started service process")
	assert.Contains(t, buf.String(), "Service process exited")
}

func TestProcessLauncherMissingBinary(t *testing.T) {
	_, err := NewProcessLauncher(log.New(io.Discard)).Launch(context.Background(), LaunchSpec{Command: "definitely-not-a-real-binary-xyz"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in PATH")
}
