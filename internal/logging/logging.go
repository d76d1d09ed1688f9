// Package logging constructs the zap logger used across every coordinator
// and worker binary.
package logging

import "go.uber.org/zap"

// New builds a production logger, or a development logger with
// human-readable console output when dev is true.
func New(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Must is New but panics on error, for use in main() before any request has
// been served.
func Must(dev bool) *zap.Logger {
	l, err := New(dev)
	if err != nil {
		panic(err)
	}
	return l
}
