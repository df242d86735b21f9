package logger

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is the set of options for the root logger.
type Config struct {
	Level string // One of trace, debug, info, warn, error, crit (case insensitive)
	File  string // Optional log file, rotated in place

	MaxSize    int // Megabytes before a log file is rotated
	MaxBackups int // Rotated files to keep
	MaxAge     int // Days to keep rotated files
}

// ParseLevel converts a textual level into a log level.
func ParseLevel(level string) (log.Lvl, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	switch level {
	case "":
		return log.LvlInfo, nil
	case "warning":
		return log.LvlWarn, nil
	}
	lvl, err := log.LvlFromString(level)
	if err != nil {
		return lvl, fmt.Errorf("invalid log level %q", level)
	}
	return lvl, nil
}

// Setup configures the root logger to print colored terminal logs to stderr
// and, if requested, logfmt records into a rotated log file.
func Setup(cfg Config) error {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	handler := log.StreamHandler(os.Stderr, log.TerminalFormat(true))
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
		}
		handler = log.MultiHandler(handler, log.StreamHandler(rotator, log.LogfmtFormat()))
	}
	log.Root().SetHandler(log.LvlFilterHandler(lvl, handler))
	return nil
}
