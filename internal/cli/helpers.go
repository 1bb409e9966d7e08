// Package cli wires configuration, storage and the execution engine for the
// tsw commands.
package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/tsw/internal/config"
	"github.com/aretw0/tsw/internal/logging"
)

// NewLogger creates the application logger from the log settings.
func NewLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewWithFormat(cfg.Format, level)
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}
