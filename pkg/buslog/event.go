package buslog

import (
	"time"
)

// Event is one captured bus occurrence.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event was captured (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the hub connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates traffic flow relative to the panel.
	Direction Direction `cbor:"3,keyasint"`

	// Kind classifies the bus message.
	Kind Kind `cbor:"4,keyasint"`

	// EventID is the 64-bit LCC event identifier, when the message
	// carries one.
	EventID uint64 `cbor:"5,keyasint,omitempty"`

	// Valid is the validity flag of a producer/consumer-identified
	// message. Nil for other kinds.
	Valid *bool `cbor:"6,keyasint,omitempty"`

	// SourceAlias is the 12-bit CAN alias of the sending node, when
	// known.
	SourceAlias uint16 `cbor:"7,keyasint,omitempty"`

	// Frame is the raw GridConnect text of the frame, when captured
	// at the transport layer.
	Frame string `cbor:"8,keyasint,omitempty"`

	// Detail carries an error message or other free text.
	Detail string `cbor:"9,keyasint,omitempty"`
}

// Direction indicates the direction of bus traffic.
type Direction uint8

const (
	// DirectionIn is traffic observed on the bus.
	DirectionIn Direction = 0
	// DirectionOut is traffic produced by the panel.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Kind classifies a bus message.
type Kind uint8

const (
	// KindReport is an unconditional event report.
	KindReport Kind = 0
	// KindProducerIdentified is a response to a producer query.
	KindProducerIdentified Kind = 1
	// KindProducerQuery is an outbound identify-producer request.
	KindProducerQuery Kind = 2
	// KindConsumerIdentified is a consumer-identified response.
	KindConsumerIdentified Kind = 3
	// KindControl is link management traffic (alias negotiation etc).
	KindControl Kind = 4
	// KindError is a capture of a transport or decode error.
	KindError Kind = 5
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindReport:
		return "REPORT"
	case KindProducerIdentified:
		return "PRODUCER_IDENTIFIED"
	case KindProducerQuery:
		return "PRODUCER_QUERY"
	case KindConsumerIdentified:
		return "CONSUMER_IDENTIFIED"
	case KindControl:
		return "CONTROL"
	case KindError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
