// Package logging builds the zap loggers used by the binaries and the HTTP
// layer. The kernel packages never log.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// New returns a production zap logger at the given level (debug, info, warn, error).
func New(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
