// Package logging wires up the per-subsystem btclog loggers shared by every
// component of the resolver, the same way daemon/log.go backs lnd's
// subsystem loggers by a single rotating backend.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// LogWriter is a stub io.Writer that's given to the backend logger, but
// whose real destination is swapped at runtime by InitLogRotator. This
// mirrors build.LogWriter in the lnd lineage: subsystem loggers can be
// created at package-init time, before the log file location is known.
type LogWriter struct {
	io.Writer
}

// Write sends p to the destination set by InitLogRotator, or to standard
// output if InitLogRotator hasn't run yet.
func (w *LogWriter) Write(p []byte) (int, error) {
	if w.Writer == nil {
		return os.Stdout.Write(p)
	}
	return w.Writer.Write(p)
}

var (
	logWriter  = &LogWriter{}
	backendLog = btclog.NewBackend(logWriter)
	logRotator *rotator.Rotator
)

// NewSubLogger creates a new subsystem logger tagged with the given
// four-letter subsystem name, backed by the shared rotating log file.
// Loggers may be created and written to before InitLogRotator runs; until
// it has, their output goes to standard output only.
func NewSubLogger(tag string) btclog.Logger {
	return backendLog.Logger(tag)
}

// InitLogRotator initializes the logging rotator to write logs to logFile
// and create roll files in the same directory. Log output written before
// it is called goes to standard output only.
func InitLogRotator(logFile string, maxLogFileSize, maxLogFiles int) error {
	r, err := rotator.New(logFile, int64(maxLogFileSize*1024), false, maxLogFiles)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %v", err)
	}

	pr, pw := io.Pipe()
	go r.Run(pr)

	logWriter.Writer = io.MultiWriter(pw, os.Stdout)
	logRotator = r
	return nil
}

// SetLevel sets the log level for the given subsystem logger.
func SetLevel(logger btclog.Logger, levelStr string) {
	level, ok := btclog.LevelFromString(levelStr)
	if !ok {
		level = btclog.LevelInfo
	}
	logger.SetLevel(level)
}
