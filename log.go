package main

import (
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "carlos").CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "carlos.log"), nil
}

// setupLog sends log output to a file in the user's cache directory, out
// of the way of the conversation.
func setupLog() (func() error, error) {
	log.SetOutput(os.Stderr)
	log.SetLevel(log.WarnLevel)

	path, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
		// log disabled
		return func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		// log disabled
		return func() error { return nil }, nil
	}
	log.SetOutput(f)
	log.SetLevel(log.InfoLevel)
	log.SetReportTimestamp(true)
	return f.Close, nil
}
