package wire

import (
	"encoding/binary"
	"fmt"
)

// LookupType identifies a legacy lookup-protocol packet's operation. This
// is the wire protocol spoken on the name-service port (53), distinct
// from the control-port protocol in wire.go.
type LookupType uint32

const (
	LookupReset   LookupType = 0
	LookupPublish LookupType = 1
	LookupQuery   LookupType = 3
	LookupNotice  LookupType = 4
	LookupBye     LookupType = 5
)

func (t LookupType) String() string {
	switch t {
	case LookupReset:
		return "reset"
	case LookupPublish:
		return "publish"
	case LookupQuery:
		return "query"
	case LookupNotice:
		return "notice"
	case LookupBye:
		return "bye"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(t))
	}
}

// LookupPacket is a decoded legacy lookup packet. As with CtrlPacket,
// only the fields valid for Type are meaningful.
type LookupPacket struct {
	Type LookupType

	// PUBLISH / BYE union
	Service  uint32
	Instance uint32

	// QUERY adds Ifilter to Service/Instance above
	Ifilter uint32

	// NOTICE union
	Seq  uint32
	Node uint32
	Port uint32
}

// EncodeLookup serializes a legacy lookup packet to its wire form: a
// 4-byte type header followed by the union for that type (none for
// RESET, 8 bytes for PUBLISH/BYE, 12 for QUERY, 20 for NOTICE).
func EncodeLookup(p LookupPacket) []byte {
	var body int
	switch p.Type {
	case LookupPublish, LookupBye:
		body = 8
	case LookupQuery:
		body = 12
	case LookupNotice:
		body = 20
	}

	buf := make([]byte, 4+body)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(p.Type))

	switch p.Type {
	case LookupPublish, LookupBye:
		binary.LittleEndian.PutUint32(buf[4:8], p.Service)
		binary.LittleEndian.PutUint32(buf[8:12], p.Instance)
	case LookupQuery:
		binary.LittleEndian.PutUint32(buf[4:8], p.Service)
		binary.LittleEndian.PutUint32(buf[8:12], p.Instance)
		binary.LittleEndian.PutUint32(buf[12:16], p.Ifilter)
	case LookupNotice:
		binary.LittleEndian.PutUint32(buf[4:8], p.Seq)
		binary.LittleEndian.PutUint32(buf[8:12], p.Service)
		binary.LittleEndian.PutUint32(buf[12:16], p.Instance)
		binary.LittleEndian.PutUint32(buf[16:20], p.Node)
		binary.LittleEndian.PutUint32(buf[20:24], p.Port)
	}
	return buf
}

// DecodeLookup parses a legacy lookup packet. Unknown tags are reported
// as a DecodeError. Packets shorter than the 4-byte type header are
// rejected; RESET carries no payload and is accepted as a bare 4 bytes.
func DecodeLookup(b []byte) (LookupPacket, error) {
	if len(b) < 4 {
		return LookupPacket{}, &DecodeError{Reason: "packet shorter than type header"}
	}
	typ := LookupType(binary.LittleEndian.Uint32(b[0:4]))

	switch typ {
	case LookupReset:
		return LookupPacket{Type: typ}, nil
	case LookupPublish, LookupBye:
		if len(b) < 12 {
			return LookupPacket{}, &DecodeError{Reason: "short publish/bye lookup packet"}
		}
		return LookupPacket{
			Type:     typ,
			Service:  binary.LittleEndian.Uint32(b[4:8]),
			Instance: binary.LittleEndian.Uint32(b[8:12]),
		}, nil
	case LookupQuery:
		if len(b) < 16 {
			return LookupPacket{}, &DecodeError{Reason: "short query lookup packet"}
		}
		return LookupPacket{
			Type:     typ,
			Service:  binary.LittleEndian.Uint32(b[4:8]),
			Instance: binary.LittleEndian.Uint32(b[8:12]),
			Ifilter:  binary.LittleEndian.Uint32(b[12:16]),
		}, nil
	case LookupNotice:
		if len(b) < 24 {
			return LookupPacket{}, &DecodeError{Reason: "short notice lookup packet"}
		}
		return LookupPacket{
			Type:     typ,
			Seq:      binary.LittleEndian.Uint32(b[4:8]),
			Service:  binary.LittleEndian.Uint32(b[8:12]),
			Instance: binary.LittleEndian.Uint32(b[12:16]),
			Node:     binary.LittleEndian.Uint32(b[16:20]),
			Port:     binary.LittleEndian.Uint32(b[20:24]),
		}, nil
	default:
		return LookupPacket{}, &DecodeError{Reason: fmt.Sprintf("unknown lookup type %d", uint32(typ))}
	}
}
