// Package logging configures the logrus logger used by xdp-check.
package logging

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Level is a log level. Values mirror logrus, which orders levels from
// panic (0) to trace (6).
type Level uint32

const (
	LevelError Level = Level(logrus.ErrorLevel)
	LevelWarn  Level = Level(logrus.WarnLevel)
	LevelInfo  Level = Level(logrus.InfoLevel)
	LevelDebug Level = Level(logrus.DebugLevel)
	// LevelTrace is the most verbose level; it logs every program visited by
	// the inventory cursor.
	LevelTrace Level = Level(logrus.TraceLevel)
)

// DefaultLevel is used when neither the flag nor the environment set a level.
const DefaultLevel = LevelWarn

// ParseLevel parses a string into a Level.
// Supported values: trace, debug, info, warn, error (case-insensitive).
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error", "err":
		return LevelError, nil
	default:
		return DefaultLevel, fmt.Errorf("unknown log level: %q", s)
	}
}

// ToLogrus converts Level to logrus.Level.
func (l Level) ToLogrus() logrus.Level {
	return logrus.Level(l)
}

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("Level(%d)", l)
	}
}
