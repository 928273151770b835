package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// setupLog sends log output to stderr, or to the file named by log.file
// when one is configured. The returned closer releases the file.
func setupLog() (func() error, error) {
	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(false)

	logFile := viper.GetString("log.file")
	if logFile == "" {
		return func() error { return nil }, nil
	}

	logFile, err := homedir.Expand(logFile)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		return nil, err
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, err
	}

	log.SetOutput(io.MultiWriter(os.Stderr, f))
	log.SetReportTimestamp(true)
	return f.Close, nil
}
