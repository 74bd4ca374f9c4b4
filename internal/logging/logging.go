package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logrus.Logger writing text-formatted entries to stderr at
// the given level ("debug", "info", "warn", "error", "fatal", "panic") and
// returns an Entry on it tagged with node_id. An unrecognized level falls
// back to info.
func New(nodeID, level string) *logrus.Entry {
	logger := logrus.New()
	logger.Out = os.Stderr
	logger.Level = parseLevel(level)
	logger.Formatter = &logrus.TextFormatter{FullTimestamp: true}

	return logger.WithField("node_id", nodeID)
}

func parseLevel(level string) logrus.Level {
	switch level {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}
