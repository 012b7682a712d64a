/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"io"
	"os"
	"sync"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-regkit/log"
)

// LoggerOpts configures the logger returned by NewLoggerWithOpts.
type LoggerOpts struct {
	// Output is where encoded entries are written. Defaults to os.Stderr.
	Output io.Writer
	// Level is the minimal level of written entries. Defaults to log.LevelDebug.
	Level log.Level
}

// NewLogger returns a logger writing JSON lines of all levels to stderr.
// It encodes entries synchronously, so it should not be used outside of tests.
func NewLogger() log.FieldLogger {
	return NewLoggerWithOpts(LoggerOpts{})
}

// NewLoggerWithOpts returns a JSON logger configured with opts.
func NewLoggerWithOpts(opts LoggerOpts) log.FieldLogger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	w := &syncEntryWriter{
		output: opts.Output,
		encoder: logf.NewJSONEncoder(logf.JSONEncoderConfig{
			EncodeTime:   logf.RFC3339NanoTimeEncoder,
			FieldKeyTime: "time",
		}),
	}
	logger := &log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, w)}
	if opts.Level != "" {
		return logger.WithLevel(opts.Level)
	}
	return logger
}

type syncEntryWriter struct {
	mu      sync.Mutex
	output  io.Writer
	encoder logf.Encoder
}

//nolint:gocritic
func (w *syncEntryWriter) WriteEntry(e logf.Entry) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var buf logf.Buffer
	if err := w.encoder.Encode(&buf, e); err != nil {
		_, _ = io.WriteString(w.output, err.Error()+"\n")
		return
	}
	_, _ = w.output.Write(buf.Data)
}
