// Package buslog provides structured capture of bus traffic.
//
// This package defines the Logger interface and Event type for
// recording every event the panel sends or observes on the LCC bus.
// It is separate from operational logging (slog) - bus capture gives a
// complete machine-readable trace for debugging layout problems like
// duplicate event IDs or a silent feedback producer.
//
// # Basic Usage
//
//	// Development: events in the console via slog
//	client.SetBusLogger(buslog.NewSlogAdapter(slog.Default()))
//
//	// Production: compact CBOR trace file
//	fl, _ := buslog.NewFileLogger("panel.blog")
//	client.SetBusLogger(fl)
//
//	// Both at once
//	client.SetBusLogger(buslog.NewMultiLogger(
//	    buslog.NewSlogAdapter(slog.Default()),
//	    fl,
//	))
//
// Trace files are a stream of CBOR-encoded events; Reader streams them
// back with optional filtering.
package buslog
