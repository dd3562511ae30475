package buslog

import (
	"context"
	"log/slog"

	"github.com/ivanbuilds/panel-go/pkg/eventid"
)

// SlogAdapter writes bus events to an slog.Logger. Useful for
// development when you want bus traffic in the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates an SlogAdapter writing to the given logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("kind", event.Kind.String()),
	}

	if event.EventID != 0 {
		attrs = append(attrs, slog.String("event_id", eventid.EventID(event.EventID).String()))
	}
	if event.Valid != nil {
		attrs = append(attrs, slog.Bool("valid", *event.Valid))
	}
	if event.SourceAlias != 0 {
		attrs = append(attrs, slog.Int("source_alias", int(event.SourceAlias)))
	}
	if event.Frame != "" {
		attrs = append(attrs, slog.String("frame", event.Frame))
	}
	if event.Detail != "" {
		attrs = append(attrs, slog.String("detail", event.Detail))
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "bus event", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
