// Package logging implements the thin "logging sink" contract every
// supervised child is expected to honor: attach to whatever pipe the parent
// gave it and start emitting structured records through logrus.
//
// The real log-collection/aggregation pipeline (rotation, shipping,
// multi-process fan-in) is an external collaborator per SPEC_FULL.md - this
// package only models the interface a child uses to plug into it.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Sink is anything a child process can attach its logger to: an inherited
// pipe fd, a file, or (in tests) an in-memory buffer.
type Sink interface {
	io.Writer
}

// FDSink wraps an open *os.File as a Sink. The re-exec'd child subcommand
// wraps its inherited stdout in it, which the supervisor connects to its own
// stdout (the Go analogue of the distilled spec's
// set_multiprocessing_logging_queue); no fd number is passed through opts.
type FDSink struct {
	*os.File
}

// Setup attaches logrus's default logger (and the package-level standard
// logger used across this module) to sink at the given level. It is safe
// to call more than once; the last call wins.
func Setup(sink Sink, level logrus.Level) *logrus.Logger {
	logger := logrus.StandardLogger()
	if sink != nil {
		logger.SetOutput(sink)
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}

// Shutdown flushes and releases the sink, if it is a closer. Errors are
// swallowed - there is nowhere left to log them to once the sink itself is
// going away.
func Shutdown(sink Sink) {
	if closer, ok := sink.(io.Closer); ok {
		_ = closer.Close()
	}
}
