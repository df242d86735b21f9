// Package logger configures the root logger and bridges the NSQ libraries'
// log output into it.
package logger

import (
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// cut splits off the first space separated word of s.
func cut(s string) (string, string) {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, ' '); idx >= 0 {
		return s[:idx], strings.TrimSpace(s[idx+1:])
	}
	return s, ""
}

// NSQDLogger is a helper that wraps the log messages emitted by the embedded
// NSQ daemon into log messages native to this project.
type NSQDLogger struct {
	Logger log.Logger
}

// Output implements the lg.Logger interface used by NSQ.
func (l *NSQDLogger) Output(maxdepth int, s string) error {
	// Unpack the log context: "LEVEL: [MODULE:] message"
	level, s := cut(s)

	logger := l.Logger
	if module, rest := cut(s); len(module) > 1 && strings.HasSuffix(module, ":") {
		logger = l.Logger.New("module", strings.ToLower(strings.TrimSuffix(module, ":")))
		s = rest
	}
	switch level {
	case "DEBUG:":
		logger.Trace("Broker server emitted log", "msg", s)
	case "INFO:":
		logger.Debug("Broker server emitted log", "msg", s)
	case "WARNING:", "WARN:":
		logger.Warn("Broker server emitted log", "msg", s)
	case "ERROR:", "FATAL:":
		logger.Error("Broker server emitted log", "msg", s)
	default:
		logger.Error("Broker server emitted unknown log", "msg", s)
	}
	return nil
}

// clientLog unpacks a go-nsq client log line: "LVL <id> <tag> message".
func clientLog(s string) (level, id, tag, msg string) {
	level, s = cut(s)
	id, s = cut(s)
	tag, msg = cut(s)
	return level, id, strings.Trim(tag, "()[]"), msg
}

// emit logs a go-nsq client message at the level matching its prefix.
func emit(logger log.Logger, level, what, msg string) {
	switch level {
	case "DBG":
		logger.Trace("Broker "+what+" emitted log", "msg", msg)
	case "INF":
		logger.Debug("Broker "+what+" emitted log", "msg", msg)
	case "WRN":
		logger.Warn("Broker "+what+" emitted log", "msg", msg)
	case "ERR":
		logger.Error("Broker "+what+" emitted log", "msg", msg)
	default:
		logger.Error("Broker "+what+" emitted unknown log", "msg", msg)
	}
}

// NSQProducerLogger is a helper that wraps the log messages emitted by the NSQ
// producer into log messages native to this project.
type NSQProducerLogger struct {
	Logger log.Logger
}

// Output implements the lg.Logger interface used by NSQ.
func (l *NSQProducerLogger) Output(maxdepth int, s string) error {
	level, id, addr, msg := clientLog(s)
	emit(l.Logger.New("id", id, "nsqd", addr), level, "producer", msg)
	return nil
}

// NSQConsumerLogger is a helper that wraps the log messages emitted by the NSQ
// consumer into log messages native to this project.
type NSQConsumerLogger struct {
	Logger log.Logger
}

// Output implements the lg.Logger interface used by NSQ.
func (l *NSQConsumerLogger) Output(maxdepth int, s string) error {
	level, id, sub, msg := clientLog(s)
	emit(l.Logger.New("id", id, "sub", sub), level, "consumer", msg)
	return nil
}
