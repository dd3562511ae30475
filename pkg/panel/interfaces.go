package panel

import (
	"context"

	"github.com/ivanbuilds/panel-go/pkg/busclient"
	"github.com/ivanbuilds/panel-go/pkg/eventid"
	"github.com/ivanbuilds/panel-go/pkg/storage"
	"github.com/ivanbuilds/panel-go/pkg/turnout"
)

// BusClient is the slice of the protocol client the panel drives.
type BusClient interface {
	// Connect attaches to a GridConnect hub and starts receiving.
	Connect(ctx context.Context, address string) error

	// Close detaches from the hub.
	Close() error

	// SendEvent produces an event on the bus.
	SendEvent(ctx context.Context, event eventid.EventID) error

	// QueryProducer broadcasts a producer-identify request.
	QueryProducer(ctx context.Context, event eventid.EventID) error

	// OnReport sets the event report handler.
	OnReport(handler busclient.ReportHandler)

	// OnProducerIdentified sets the producer-identified handler.
	OnProducerIdentified(handler busclient.ProducerIdentifiedHandler)

	// RegisterEvents records a turnout's event pair for
	// consumer-identify replies.
	RegisterEvents(eventNormal, eventReverse eventid.EventID)

	// UnregisterAllEvents clears the registered event set.
	UnregisterAllEvents()
}

// Compile-time check: *busclient.Client implements BusClient.
var _ BusClient = (*busclient.Client)(nil)

// PersistenceStore loads and saves the turnout list.
type PersistenceStore interface {
	// Load returns the persisted definitions, nil when nothing was
	// ever saved.
	Load() ([]turnout.Definition, error)

	// Save writes the definitions.
	Save(defs []turnout.Definition) error
}

// Compile-time check: *storage.FileStore implements PersistenceStore.
var _ PersistenceStore = (*storage.FileStore)(nil)
