package eventid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Parse errors.
var (
	// ErrInvalidEventID indicates the string is not a valid event ID.
	ErrInvalidEventID = errors.New("invalid event ID")

	// ErrInvalidNodeID indicates the string is not a valid node ID.
	ErrInvalidNodeID = errors.New("invalid node ID")
)

// EventID is a 64-bit LCC event identifier.
type EventID uint64

// String formats the event ID as eight dotted-hex bytes.
func (e EventID) String() string {
	var sb strings.Builder
	for shift := 56; shift >= 0; shift -= 8 {
		if shift < 56 {
			sb.WriteByte('.')
		}
		fmt.Fprintf(&sb, "%02X", uint8(e>>shift))
	}
	return sb.String()
}

// Bytes returns the event ID as 8 big-endian bytes.
func (e EventID) Bytes() [8]byte {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(e >> (56 - 8*i))
	}
	return b
}

// FromBytes builds an event ID from 8 big-endian bytes.
func FromBytes(b []byte) EventID {
	var e EventID
	for i := 0; i < 8 && i < len(b); i++ {
		e |= EventID(b[i]) << (56 - 8*i)
	}
	return e
}

// ParseEventID parses an event ID in dotted-hex form
// ("05.01.01.01.22.60.00.00") or as plain hex ("0501010122600000").
func ParseEventID(s string) (EventID, error) {
	v, err := parseDottedHex(s, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidEventID, s)
	}
	return EventID(v), nil
}

// NodeID is a 48-bit LCC node identifier.
type NodeID uint64

// String formats the node ID as six dotted-hex bytes.
func (n NodeID) String() string {
	var sb strings.Builder
	for shift := 40; shift >= 0; shift -= 8 {
		if shift < 40 {
			sb.WriteByte('.')
		}
		fmt.Fprintf(&sb, "%02X", uint8(n>>shift))
	}
	return sb.String()
}

// ParseNodeID parses a node ID in dotted-hex form ("05.01.01.01.9F.60")
// or as plain hex ("050101019F60").
func ParseNodeID(s string) (NodeID, error) {
	v, err := parseDottedHex(s, 6)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNodeID, s)
	}
	return NodeID(v), nil
}

// parseDottedHex parses either n dot-separated hex bytes or a plain
// hex string of up to n bytes.
func parseDottedHex(s string, n int) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty string")
	}

	if strings.Contains(s, ".") {
		parts := strings.Split(s, ".")
		if len(parts) != n {
			return 0, fmt.Errorf("expected %d bytes, got %d", n, len(parts))
		}
		var v uint64
		for _, p := range parts {
			b, err := strconv.ParseUint(p, 16, 8)
			if err != nil {
				return 0, err
			}
			v = v<<8 | b
		}
		return v, nil
	}

	v, err := strconv.ParseUint(s, 16, n*8)
	if err != nil {
		return 0, err
	}
	return v, nil
}
