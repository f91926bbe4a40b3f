package wire

import (
	"bytes"
	"testing"
)

// TestCtrlRoundTrip covers P9 (wire round-trip): encoding then decoding
// any control packet yields the original tagged record.
func TestCtrlRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		pkt  CtrlPacket
	}{
		{
			name: "lookup result, scenario 6",
			pkt: CtrlPacket{
				Cmd:      CmdLookupResult,
				Service:  0x12345678,
				Instance: 0x9ABCDEF0,
				Node:     7,
				Port:     300,
			},
		},
		{
			name: "new server",
			pkt: CtrlPacket{
				Cmd:      CmdNewServer,
				Service:  1,
				Instance: 0x10001,
				Node:     2,
				Port:     100,
			},
		},
		{
			name: "del server all zero",
			pkt:  CtrlPacket{Cmd: CmdDelServer},
		},
		{
			name: "del client",
			pkt: CtrlPacket{
				Cmd:        CmdDelClient,
				ClientNode: 5,
				ClientPort: 300,
			},
		},
		{
			name: "hello",
			pkt:  CtrlPacket{Cmd: CmdHello},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := EncodeCtrl(tt.pkt)
			if len(b) != ctrlPacketLen {
				t.Fatalf("encoded length = %d, want %d", len(b), ctrlPacketLen)
			}
			got, err := DecodeCtrl(b)
			if err != nil {
				t.Fatalf("DecodeCtrl: %v", err)
			}
			if got != tt.pkt {
				t.Fatalf("round trip mismatch: got %+v, want %+v", got, tt.pkt)
			}
		})
	}
}

func TestCtrlDecodeBareBodylessCommands(t *testing.T) {
	for _, cmd := range []Command{CmdHello, CmdExit, CmdPing, CmdResumeTx, CmdBye} {
		b := make([]byte, 4)
		b[0] = byte(cmd)
		got, err := DecodeCtrl(b)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", cmd, err)
		}
		if got.Cmd != cmd {
			t.Fatalf("%s: got cmd %v", cmd, got.Cmd)
		}
	}
}

func TestCtrlDecodeRejectsShortPayloadCommand(t *testing.T) {
	b := make([]byte, 4)
	b[0] = byte(CmdNewServer)
	if _, err := DecodeCtrl(b); err == nil {
		t.Fatal("expected DecodeError for bare NEW_SERVER")
	}
}

func TestCtrlDecodeRejectsTruncated(t *testing.T) {
	if _, err := DecodeCtrl(nil); err == nil {
		t.Fatal("expected error for empty packet")
	}
	b := EncodeCtrl(CtrlPacket{Cmd: CmdNewServer, Service: 1, Port: 1})
	if _, err := DecodeCtrl(b[:10]); err == nil {
		t.Fatal("expected error for truncated payload packet")
	}
}

func TestLookupRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		pkt  LookupPacket
	}{
		{name: "reset", pkt: LookupPacket{Type: LookupReset}},
		{name: "publish", pkt: LookupPacket{Type: LookupPublish, Service: 3, Instance: 1}},
		{name: "bye", pkt: LookupPacket{Type: LookupBye, Service: 3, Instance: 1}},
		{name: "query", pkt: LookupPacket{Type: LookupQuery, Service: 3, Instance: 0, Ifilter: 0}},
		{
			name: "notice",
			pkt:  LookupPacket{Type: LookupNotice, Seq: 2, Service: 3, Instance: 1, Node: 5, Port: 200},
		},
		{name: "notice terminator", pkt: LookupPacket{Type: LookupNotice}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := EncodeLookup(tt.pkt)
			got, err := DecodeLookup(b)
			if err != nil {
				t.Fatalf("DecodeLookup: %v", err)
			}
			if got != tt.pkt {
				t.Fatalf("round trip mismatch: got %+v, want %+v", got, tt.pkt)
			}
		})
	}
}

func TestLookupDecodeUnknownType(t *testing.T) {
	b := EncodeLookup(LookupPacket{Type: LookupPublish, Service: 1, Instance: 1})
	b[0] = 99 // corrupt the type tag
	if _, err := DecodeLookup(b); err == nil {
		t.Fatal("expected DecodeError for unknown lookup type")
	}
}

func TestPackUnpackInstance(t *testing.T) {
	v, i := PackInstance(1, 2), uint32(0)
	_ = i
	gotVersion, gotInstance := UnpackInstance(v)
	if gotVersion != 1 || gotInstance != 2 {
		t.Fatalf("got version=%d instance=%d, want 1,2", gotVersion, gotInstance)
	}
}

func TestEncodeCtrlIsLittleEndian(t *testing.T) {
	b := EncodeCtrl(CtrlPacket{Cmd: CmdNewServer, Service: 1, Instance: 0x10001, Node: 2, Port: 100})
	want := []byte{4, 0, 0, 0, 1, 0, 0, 0, 1, 0, 1, 0, 2, 0, 0, 0, 100, 0, 0, 0}
	if !bytes.Equal(b, want) {
		t.Fatalf("got % x, want % x", b, want)
	}
}
