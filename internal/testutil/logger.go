package testutil

import (
	"io"

	"github.com/sirupsen/logrus"
)

// NewTestLogger returns a logger that discards output so test runs stay quiet.
func NewTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}
