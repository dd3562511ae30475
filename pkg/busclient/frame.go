package busclient

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Frame size limits.
const (
	// MaxFrameDataLen is the CAN payload limit.
	MaxFrameDataLen = 8

	// MaxGridConnectLen is the longest encoded frame:
	// ":X" + 8 header digits + "N" + 16 data digits + ";".
	MaxGridConnectLen = 28
)

// Framing errors.
var (
	// ErrMalformedFrame indicates GridConnect text that cannot be parsed.
	ErrMalformedFrame = errors.New("malformed gridconnect frame")

	// ErrFrameTooLong indicates a CAN payload over 8 bytes.
	ErrFrameTooLong = errors.New("frame data too long")
)

// Frame is a single CAN frame with a 29-bit extended identifier.
type Frame struct {
	// ID is the 29-bit CAN header.
	ID uint32

	// Data is the payload, at most 8 bytes.
	Data []byte
}

// IsOpenLCB reports whether the frame carries an OpenLCB message
// rather than CAN-level link control traffic.
func (f Frame) IsOpenLCB() bool {
	return f.ID&frameBitOpenLCB != 0
}

// MTI extracts the message type indicator from a global OpenLCB frame.
func (f Frame) MTI() uint16 {
	return uint16((f.ID >> 12) & 0xFFF)
}

// SourceAlias extracts the 12-bit alias of the sending node.
func (f Frame) SourceAlias() uint16 {
	return uint16(f.ID & 0xFFF)
}

// ControlField extracts the 15-bit variable field of a CAN control
// frame (CID, RID, AMD, AME, AMR).
func (f Frame) ControlField() uint32 {
	return (f.ID >> 12) & 0x7FFF
}

// EncodeGridConnect renders the frame in GridConnect text form.
func EncodeGridConnect(f Frame) (string, error) {
	if len(f.Data) > MaxFrameDataLen {
		return "", fmt.Errorf("%w: %d bytes", ErrFrameTooLong, len(f.Data))
	}

	var b strings.Builder
	b.Grow(MaxGridConnectLen)
	fmt.Fprintf(&b, ":X%08XN", f.ID&0x1FFFFFFF)
	for _, d := range f.Data {
		fmt.Fprintf(&b, "%02X", d)
	}
	b.WriteByte(';')
	return b.String(), nil
}

// ParseGridConnect parses one GridConnect frame. The input must be a
// complete frame from ':' through ';', surrounding whitespace allowed.
func ParseGridConnect(s string) (Frame, error) {
	s = strings.TrimSpace(s)
	if len(s) < 12 || s[0] != ':' || s[len(s)-1] != ';' {
		return Frame{}, fmt.Errorf("%w: %q", ErrMalformedFrame, s)
	}
	// Only extended (29-bit) frames are used on OpenLCB.
	if s[1] != 'X' && s[1] != 'x' {
		return Frame{}, fmt.Errorf("%w: not an extended frame: %q", ErrMalformedFrame, s)
	}

	header := s[2:10]
	id, err := strconv.ParseUint(header, 16, 32)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: bad header %q", ErrMalformedFrame, header)
	}

	// 'N' for a normal frame; 'R' (remote) frames are not used.
	if s[10] != 'N' && s[10] != 'n' {
		return Frame{}, fmt.Errorf("%w: unsupported frame type %q", ErrMalformedFrame, s[10:11])
	}

	hexData := s[11 : len(s)-1]
	if len(hexData)%2 != 0 {
		return Frame{}, fmt.Errorf("%w: odd data length", ErrMalformedFrame)
	}
	if len(hexData)/2 > MaxFrameDataLen {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLong, len(hexData)/2)
	}

	var data []byte
	if len(hexData) > 0 {
		data = make([]byte, len(hexData)/2)
		for i := 0; i < len(data); i++ {
			b, err := strconv.ParseUint(hexData[2*i:2*i+2], 16, 8)
			if err != nil {
				return Frame{}, fmt.Errorf("%w: bad data byte %q", ErrMalformedFrame, hexData[2*i:2*i+2])
			}
			data[i] = byte(b)
		}
	}

	return Frame{ID: uint32(id) & 0x1FFFFFFF, Data: data}, nil
}
