// Package wire encodes and decodes the two binary packet formats that
// flow over a QRTR socket: the control packet exchanged between control
// ports, and the legacy lookup packet exchanged with the name-service
// port. Both formats are fixed-layout and little-endian on the wire
// regardless of host byte order.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Command identifies a control packet's operation.
type Command uint32

const (
	CmdHello        Command = 2
	CmdBye          Command = 3
	CmdNewServer    Command = 4
	CmdDelServer    Command = 5
	CmdDelClient    Command = 6
	CmdResumeTx     Command = 7
	CmdExit         Command = 8
	CmdPing         Command = 9
	CmdNewLookup    Command = 10
	CmdDelLookup    Command = 11
	CmdLookupResult Command = 12
)

func (c Command) String() string {
	switch c {
	case CmdHello:
		return "hello"
	case CmdBye:
		return "bye"
	case CmdNewServer:
		return "new-server"
	case CmdDelServer:
		return "del-server"
	case CmdDelClient:
		return "del-client"
	case CmdResumeTx:
		return "resume-tx"
	case CmdExit:
		return "exit"
	case CmdPing:
		return "ping"
	case CmdNewLookup:
		return "new-lookup"
	case CmdDelLookup:
		return "del-lookup"
	case CmdLookupResult:
		return "lookup-result"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(c))
	}
}

// ctrlPacketLen is the fixed wire size of a control packet: a 4-byte
// command followed by the larger of the two payload unions (4 u32 fields).
const ctrlPacketLen = 20

// bodyless reports whether c carries no payload and may be sent/received
// as a bare 4-byte command.
func bodyless(c Command) bool {
	switch c {
	case CmdHello, CmdExit, CmdPing, CmdResumeTx, CmdBye:
		return true
	default:
		return false
	}
}

// CtrlPacket is a decoded control packet. Only the fields relevant to
// Cmd are meaningful; DecodeCtrl never populates fields outside the
// command's union.
type CtrlPacket struct {
	Cmd Command

	// server union, valid for NewServer/DelServer/NewLookup/DelLookup/LookupResult
	Service  uint32
	Instance uint32
	Node     uint32
	Port     uint32

	// client union, valid for DelClient
	ClientNode uint32
	ClientPort uint32
}

// EncodeCtrl serializes a control packet to its 20-byte wire form. For
// HELLO/EXIT/PING/RESUME_TX/bare BYE, the fixed-size form is still
// produced (all union fields zero); short-form encoding is a sender-side
// optimization the protocol permits but this implementation does not
// take, matching the size of every reply the registry emits.
func EncodeCtrl(p CtrlPacket) []byte {
	buf := make([]byte, ctrlPacketLen)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(p.Cmd))

	switch p.Cmd {
	case CmdDelClient:
		binary.LittleEndian.PutUint32(buf[4:8], p.ClientNode)
		binary.LittleEndian.PutUint32(buf[8:12], p.ClientPort)
	default:
		binary.LittleEndian.PutUint32(buf[4:8], p.Service)
		binary.LittleEndian.PutUint32(buf[8:12], p.Instance)
		binary.LittleEndian.PutUint32(buf[12:16], p.Node)
		binary.LittleEndian.PutUint32(buf[16:20], p.Port)
	}
	return buf
}

// DecodeCtrl parses a control packet. Packets shorter than 4 bytes are
// rejected as DecodeError, as is a bare 4-byte packet for a command that
// carries a payload; a 4-byte packet is accepted for commands that carry
// no payload. Any packet longer than 4 but shorter than 20 bytes is
// rejected whatever its command.
func DecodeCtrl(b []byte) (CtrlPacket, error) {
	if len(b) < 4 {
		return CtrlPacket{}, &DecodeError{Reason: "packet shorter than command header"}
	}
	cmd := Command(binary.LittleEndian.Uint32(b[0:4]))

	if len(b) == 4 {
		if !bodyless(cmd) {
			return CtrlPacket{}, &DecodeError{Reason: fmt.Sprintf("%s requires a payload", cmd)}
		}
		return CtrlPacket{Cmd: cmd}, nil
	}

	if len(b) < ctrlPacketLen {
		return CtrlPacket{}, &DecodeError{Reason: "short control packet"}
	}

	p := CtrlPacket{Cmd: cmd}
	switch cmd {
	case CmdDelClient:
		p.ClientNode = binary.LittleEndian.Uint32(b[4:8])
		p.ClientPort = binary.LittleEndian.Uint32(b[8:12])
	case CmdNewServer, CmdDelServer, CmdNewLookup, CmdDelLookup, CmdLookupResult:
		p.Service = binary.LittleEndian.Uint32(b[4:8])
		p.Instance = binary.LittleEndian.Uint32(b[8:12])
		p.Node = binary.LittleEndian.Uint32(b[12:16])
		p.Port = binary.LittleEndian.Uint32(b[16:20])
	default:
		// HELLO/EXIT/PING/RESUME_TX/BYE sent with a full-size body: union
		// bytes are present but unused by those commands.
	}
	return p, nil
}

// PackInstance combines a 16-bit version and a 16-bit instance number
// into the opaque 32-bit instance field, per the layout documented in
// the original client library (low 16 bits version, high 16 bits
// instance number). Exposed for diagnostics and client-facing helpers;
// UnpackInstance is the inverse daemon.WriteRegistryDump uses to split
// the version back out for the /debug/registry endpoint.
func PackInstance(version, instance uint16) uint32 {
	return uint32(instance)<<16 | uint32(version)
}

// UnpackInstance reverses PackInstance.
func UnpackInstance(v uint32) (version, instance uint16) {
	return uint16(v & 0xFFFF), uint16(v >> 16)
}
