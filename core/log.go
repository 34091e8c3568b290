package core

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds a structured JSON logger writing to path, or to
// stdout if path is empty, the same construction the health-logging
// component uses: logrus.New(), a JSON formatter, and an explicit
// output target rather than the package-level default logger.
func NewLogger(level, path string) (*logrus.Logger, error) {
	lg := logrus.New()
	lg.SetFormatter(&logrus.JSONFormatter{})

	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("log: open %s: %w", path, err)
		}
		lg.SetOutput(f)
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	lg.SetLevel(parsed)
	return lg, nil
}
