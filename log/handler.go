package log

import (
	"io"
	"log/slog"

	gethlog "github.com/ethereum/go-ethereum/log"
)

// NewTerminalHandlerWithLevel returns a handler which only emits records at or above lvl.
func NewTerminalHandlerWithLevel(wr io.Writer, lvl slog.Level, useColor bool) *gethlog.TerminalHandler {
	return gethlog.NewTerminalHandlerWithLevel(wr, lvl, useColor)
}

// DiscardHandler returns a no-op handler
func DiscardHandler() slog.Handler {
	return gethlog.DiscardHandler()
}
