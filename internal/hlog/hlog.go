// Package hlog builds the daemon's logr.Logger on top of zerolog.
package hlog

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/kardianos/service"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the log destination and verbosity.
type Options struct {
	// File is a rotating log file. It is used only when the process is not
	// attached to a terminal or a service manager journal.
	File  string
	Debug bool
}

// New returns a logger writing to stderr or to Options.File.
func New(opts Options) logr.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	zerologr.NameFieldName = "logger"
	zerologr.NameSeparator = "/"

	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	terminal := IsTerminal()
	zl := zerolog.New(writer(opts.File, terminal)).Level(level)
	if terminal {
		zl = zl.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			NoColor:    os.Getenv("NO_COLOR") != "",
			TimeFormat: time.RFC3339,
		})
	}
	zl = zl.With().Timestamp().Logger()
	return zerologr.New(&zl)
}

func writer(file string, terminal bool) io.Writer {
	if file == "" || terminal || service.Interactive() {
		return os.Stderr
	}
	// Under systemd, stderr goes to the journal.
	if os.Getenv("JOURNAL_STREAM") != "" || os.Getenv("INVOCATION_ID") != "" {
		return os.Stderr
	}
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
}

func IsTerminal() bool {
	return isatty.IsTerminal(os.Stderr.Fd())
}
