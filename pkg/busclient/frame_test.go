package busclient

import (
	"errors"
	"testing"
)

func TestGridConnectRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  string
	}{
		{
			name:  "event report",
			frame: Frame{ID: 0x195B45A3, Data: []byte{0x05, 0x01, 0x01, 0x01, 0x22, 0x60, 0x00, 0x00}},
			want:  ":X195B45A3N0501010122600000;",
		},
		{
			name:  "reserve id no data",
			frame: Frame{ID: 0x107005A3},
			want:  ":X107005A3N;",
		},
		{
			name:  "alias map definition",
			frame: Frame{ID: 0x107015A3, Data: []byte{0x05, 0x01, 0x01, 0x01, 0x22, 0x60}},
			want:  ":X107015A3N050101012260;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeGridConnect(tt.frame)
			if err != nil {
				t.Fatalf("EncodeGridConnect: %v", err)
			}
			if got != tt.want {
				t.Errorf("EncodeGridConnect = %q, want %q", got, tt.want)
			}

			parsed, err := ParseGridConnect(got)
			if err != nil {
				t.Fatalf("ParseGridConnect: %v", err)
			}
			if parsed.ID != tt.frame.ID {
				t.Errorf("ID = %08X, want %08X", parsed.ID, tt.frame.ID)
			}
			if len(parsed.Data) != len(tt.frame.Data) {
				t.Fatalf("data length = %d, want %d", len(parsed.Data), len(tt.frame.Data))
			}
			for i := range parsed.Data {
				if parsed.Data[i] != tt.frame.Data[i] {
					t.Errorf("data[%d] = %02X, want %02X", i, parsed.Data[i], tt.frame.Data[i])
				}
			}
		})
	}
}

func TestParseGridConnectToleratesWhitespace(t *testing.T) {
	frame, err := ParseGridConnect("\r\n:X195B45A3N0501010122600000;\n")
	if err != nil {
		t.Fatalf("ParseGridConnect: %v", err)
	}
	if frame.MTI() != mtiEventReport {
		t.Errorf("MTI = %03X, want %03X", frame.MTI(), mtiEventReport)
	}
	if frame.SourceAlias() != 0x5A3 {
		t.Errorf("SourceAlias = %03X, want 5A3", frame.SourceAlias())
	}
}

func TestParseGridConnectLowercase(t *testing.T) {
	frame, err := ParseGridConnect(":x195b45a3n0501010122600000;")
	if err != nil {
		t.Fatalf("ParseGridConnect: %v", err)
	}
	if frame.ID != 0x195B45A3 {
		t.Errorf("ID = %08X, want 195B45A3", frame.ID)
	}
}

func TestParseGridConnectMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no colon", "X195B45A3N00;"},
		{"no semicolon", ":X195B45A3N00"},
		{"standard frame", ":S123N00;"},
		{"remote frame", ":X195B45A3R;"},
		{"bad header hex", ":XGGGGGGGGN00;"},
		{"odd data length", ":X195B45A3N050;"},
		{"bad data hex", ":X195B45A3Nzz;"},
		{"too short", ":X1;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseGridConnect(tt.input); !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("ParseGridConnect(%q) error = %v, want ErrMalformedFrame", tt.input, err)
			}
		})
	}
}

func TestParseGridConnectTooLong(t *testing.T) {
	_, err := ParseGridConnect(":X195B45A3N050101012260000000;")
	if !errors.Is(err, ErrFrameTooLong) {
		t.Errorf("error = %v, want ErrFrameTooLong", err)
	}
}

func TestEncodeGridConnectTooLong(t *testing.T) {
	_, err := EncodeGridConnect(Frame{ID: 1, Data: make([]byte, 9)})
	if !errors.Is(err, ErrFrameTooLong) {
		t.Errorf("error = %v, want ErrFrameTooLong", err)
	}
}

func TestFrameClassification(t *testing.T) {
	report := Frame{ID: openLCBHeader(mtiEventReport, 0x123)}
	if !report.IsOpenLCB() {
		t.Error("event report frame should be OpenLCB")
	}
	if report.MTI() != mtiEventReport {
		t.Errorf("MTI = %03X, want %03X", report.MTI(), mtiEventReport)
	}
	if report.SourceAlias() != 0x123 {
		t.Errorf("SourceAlias = %03X, want 123", report.SourceAlias())
	}

	rid := Frame{ID: controlHeader(controlRID, 0x123)}
	if rid.IsOpenLCB() {
		t.Error("reserve-id frame should not be OpenLCB")
	}
	if rid.ControlField() != controlRID {
		t.Errorf("ControlField = %04X, want %04X", rid.ControlField(), controlRID)
	}
}

func TestCIDHeaders(t *testing.T) {
	// Node 05.01.01.01.22.60: CID1 carries the top 12 bits (0x050),
	// CID2 the next (0x101), CID3 0x012, CID4 0x260, with 7..4 in the
	// top nibble of the variable field.
	const nodeID = 0x050101012260
	const alias = 0x5A3

	want := []uint32{0x170505A3, 0x161015A3, 0x150125A3, 0x142605A3}
	for n := 1; n <= 4; n++ {
		got := cidHeader(n, nodeID, alias)
		if got != want[n-1] {
			t.Errorf("cidHeader(%d) = %08X, want %08X", n, got, want[n-1])
		}
	}
}

func TestAliasSeq(t *testing.T) {
	seq := newAliasSeq(0x050101012260)
	seen := make(map[uint16]bool)
	for i := 0; i < 100; i++ {
		alias := seq.next()
		if alias == 0 {
			t.Fatal("alias sequence produced zero")
		}
		if alias > 0xFFF {
			t.Fatalf("alias %X out of 12-bit range", alias)
		}
		seen[alias] = true
	}
	if len(seen) < 50 {
		t.Errorf("alias sequence poorly distributed: %d distinct in 100", len(seen))
	}

	// Same seed yields the same first candidate.
	a := newAliasSeq(42).next()
	b := newAliasSeq(42).next()
	if a != b {
		t.Errorf("sequence not deterministic: %X != %X", a, b)
	}

	if newAliasSeq(0).next() == 0 {
		t.Error("zero seed must still produce a nonzero alias")
	}
}
