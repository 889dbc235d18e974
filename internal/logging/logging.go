// Package logging builds the loggers used across a run: bracketed-prefix
// stderr loggers, optionally teed into a size-rotated log file.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig enables persistent logging to a rotated file. The zero
// value disables file logging.
type FileConfig struct {
	// Path of the log file. Empty disables file logging.
	Path string

	// MaxSizeMB rotates the file when it exceeds this size.
	MaxSizeMB int

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int
}

// Setup wires the process-wide log sink. Output always goes to stderr;
// with a FileConfig it is additionally mirrored into a rotating file, so
// unattended watch runs keep a history the terminal does not.
//
// The returned writer is what New-created loggers write to.
func Setup(cfg FileConfig) io.Writer {
	if cfg.Path == "" {
		return os.Stderr
	}
	rotated := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    max(cfg.MaxSizeMB, 10),
		MaxBackups: max(cfg.MaxBackups, 3),
		Compress:   true,
	}
	return io.MultiWriter(os.Stderr, rotated)
}

// New creates a logger with the conventional bracketed prefix, e.g.
// "[session] ".
func New(out io.Writer, name string) *log.Logger {
	return log.New(out, "["+name+"] ", log.LstdFlags)
}

// Quiet returns a logger that discards everything.
func Quiet() *log.Logger {
	return log.New(io.Discard, "", 0)
}
