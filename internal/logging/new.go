package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// EnvVar names the environment variable holding the log level.
const EnvVar = "XDP_CHECK_LOG"

// Format represents the log output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat parses a format string into a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %q", s)
	}
}

// Options configures the logger factory.
type Options struct {
	// CLILevel is the level from the command line (highest precedence).
	CLILevel string
	// EnvLevel is the level from XDP_CHECK_LOG.
	EnvLevel string
	// Format is the output format (text or json).
	Format Format
	// Output is the writer for log output. Defaults to os.Stderr so that
	// logs never mix with a report on stdout.
	Output io.Writer
}

// New creates a logger. Precedence: CLILevel > EnvLevel > DefaultLevel.
func New(opts Options) (*logrus.Logger, error) {
	level := DefaultLevel
	switch {
	case opts.CLILevel != "":
		l, err := ParseLevel(opts.CLILevel)
		if err != nil {
			return nil, fmt.Errorf("invalid --log-level: %w", err)
		}
		level = l
	case opts.EnvLevel != "":
		l, err := ParseLevel(opts.EnvLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvVar, err)
		}
		level = l
	}

	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	log := logrus.New()
	log.SetOutput(output)
	log.SetLevel(level.ToLogrus())
	switch opts.Format {
	case FormatJSON:
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}
	return log, nil
}
