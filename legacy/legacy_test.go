package legacy

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/qrtr-project/qrtr-ns/ctrl"
	"github.com/qrtr-project/qrtr-ns/internal/metricsx"
	"github.com/qrtr-project/qrtr-ns/registry"
	"github.com/qrtr-project/qrtr-ns/wire"
)

const localNode uint32 = 1
const broadcastNode uint32 = 0xFFFFFFFF
const ctrlPort uint32 = 0xFFFFFFFE

type sent struct {
	dest registry.Addr
	pkt  wire.LookupPacket
}

type fakeSender struct {
	sent []sent
}

func (f *fakeSender) Send(dest registry.Addr, b []byte) error {
	p, err := wire.DecodeLookup(b)
	if err != nil {
		return err
	}
	f.sent = append(f.sent, sent{dest: dest, pkt: p})
	return nil
}

type ctrlSent struct {
	dest registry.Addr
	pkt  wire.CtrlPacket
}

type fakeCtrlSender struct {
	sent []ctrlSent
}

func (f *fakeCtrlSender) Send(dest registry.Addr, b []byte) error {
	p, err := wire.DecodeCtrl(b)
	if err != nil {
		return err
	}
	f.sent = append(f.sent, ctrlSent{dest: dest, pkt: p})
	return nil
}

func (f *fakeCtrlSender) BroadcastCtrl() registry.Addr {
	return registry.Addr{Node: broadcastNode, Port: ctrlPort}
}

func countCtrlCmd(fs *fakeCtrlSender, dest registry.Addr, cmd wire.Command) int {
	n := 0
	for _, s := range fs.sent {
		if s.dest == dest && s.pkt.Cmd == cmd {
			n++
		}
	}
	return n
}

// newTestHandler wires a legacy Handler to a real ctrl.Handler sharing
// the same registry, the way daemon_linux.go's New does, so PUBLISH/BYE
// can be observed broadcasting over the control port.
func newTestHandler() (*Handler, *registry.Registry, *fakeSender, *fakeCtrlSender) {
	reg := registry.New()
	subs := registry.NewSubscriptions()
	metrics := metricsx.New(reg, subs)
	cfs := &fakeCtrlSender{}
	cctx := &ctrl.Context{
		Registry:  reg,
		Subs:      subs,
		LocalNode: localNode,
		Transport: cfs,
		Log:       zerolog.Nop(),
		Metrics:   metrics,
	}
	ch := ctrl.New(cctx)

	fs := &fakeSender{}
	h := New(reg, fs, zerolog.Nop(), metrics, ch)
	return h, reg, fs, cfs
}

func TestPublishRegisters(t *testing.T) {
	h, reg, _, _ := newTestHandler()
	from := registry.Addr{Node: localNode, Port: 200}

	pkt := wire.EncodeLookup(wire.LookupPacket{Type: wire.LookupPublish, Service: 3, Instance: 1})
	if err := h.HandlePacket(from, pkt); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}

	matches := reg.Query(registry.Filter{Service: 3})
	if len(matches) != 1 || matches[0].Node != localNode || matches[0].Port != 200 {
		t.Fatalf("got %+v, want one server at (%d,200)", matches, localNode)
	}
}

// TestPublishBroadcastsNewServer covers spec §4.E: a legacy PUBLISH from
// a local address must broadcast NEW_SERVER over the control port,
// exactly as a native control-port NEW_SERVER would.
func TestPublishBroadcastsNewServer(t *testing.T) {
	h, _, _, cfs := newTestHandler()
	from := registry.Addr{Node: localNode, Port: 200}

	pkt := wire.EncodeLookup(wire.LookupPacket{Type: wire.LookupPublish, Service: 3, Instance: 1})
	if err := h.HandlePacket(from, pkt); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}

	bcast := registry.Addr{Node: broadcastNode, Port: ctrlPort}
	want := wire.CtrlPacket{Cmd: wire.CmdNewServer, Service: 3, Instance: 1, Node: localNode, Port: 200}
	found := false
	for _, s := range cfs.sent {
		if s.dest == bcast && s.pkt == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("legacy PUBLISH did not broadcast NEW_SERVER: %+v", cfs.sent)
	}
}

func TestPublishRejectsZeroService(t *testing.T) {
	h, reg, _, cfs := newTestHandler()
	from := registry.Addr{Node: localNode, Port: 200}

	pkt := wire.EncodeLookup(wire.LookupPacket{Type: wire.LookupPublish, Service: 0, Instance: 1})
	if err := h.HandlePacket(from, pkt); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if _, servers := reg.Stats(); servers != 0 {
		t.Fatalf("zero-service PUBLISH was registered")
	}
	if len(cfs.sent) != 0 {
		t.Fatalf("rejected PUBLISH produced control traffic: %+v", cfs.sent)
	}
}

func TestByeRemoves(t *testing.T) {
	h, reg, _, _ := newTestHandler()
	reg.Add(3, 1, localNode, 200)
	from := registry.Addr{Node: localNode, Port: 200}

	pkt := wire.EncodeLookup(wire.LookupPacket{Type: wire.LookupBye})
	if err := h.HandlePacket(from, pkt); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if _, servers := reg.Stats(); servers != 0 {
		t.Fatalf("server survived legacy BYE")
	}
}

// TestByeBroadcastsDelServer covers spec §4.E: a legacy BYE must
// broadcast DEL_SERVER for the server registered at the sender's
// address, exactly as a native control-port DEL_SERVER would.
func TestByeBroadcastsDelServer(t *testing.T) {
	h, reg, _, cfs := newTestHandler()
	reg.Add(3, 1, localNode, 200)
	from := registry.Addr{Node: localNode, Port: 200}

	pkt := wire.EncodeLookup(wire.LookupPacket{Type: wire.LookupBye})
	if err := h.HandlePacket(from, pkt); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}

	bcast := registry.Addr{Node: broadcastNode, Port: ctrlPort}
	if countCtrlCmd(cfs, bcast, wire.CmdDelServer) != 1 {
		t.Fatalf("expected exactly one broadcast DEL_SERVER, got %d: %+v", countCtrlCmd(cfs, bcast, wire.CmdDelServer), cfs.sent)
	}
}

// TestQueryEmitsDecreasingSeqThenTerminator grounds on ns.c's
// ns_pkt_query: seq starts at the match count and counts down, followed
// by an all-zero NOTICE.
func TestQueryEmitsDecreasingSeqThenTerminator(t *testing.T) {
	h, reg, fs, _ := newTestHandler()
	reg.Add(3, 1, 5, 200)
	reg.Add(3, 2, 5, 201)
	from := registry.Addr{Node: 9, Port: 53}

	pkt := wire.EncodeLookup(wire.LookupPacket{Type: wire.LookupQuery, Service: 3, Instance: 0, Ifilter: 0})
	if err := h.HandlePacket(from, pkt); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}

	if len(fs.sent) != 3 {
		t.Fatalf("got %d packets, want 3 (2 notices + terminator): %+v", len(fs.sent), fs.sent)
	}
	if fs.sent[0].pkt.Seq != 2 || fs.sent[1].pkt.Seq != 1 {
		t.Fatalf("seq sequence = %d, %d, want 2, 1", fs.sent[0].pkt.Seq, fs.sent[1].pkt.Seq)
	}
	term := fs.sent[2].pkt
	if term != (wire.LookupPacket{Type: wire.LookupNotice}) {
		t.Fatalf("terminator = %+v, want all-zero NOTICE", term)
	}
	for _, s := range fs.sent {
		if s.dest != from {
			t.Fatalf("reply addressed to %+v, want querier %+v", s.dest, from)
		}
	}
}

func TestQueryNoMatchesEmitsOnlyTerminator(t *testing.T) {
	h, _, fs, _ := newTestHandler()
	from := registry.Addr{Node: 9, Port: 53}

	pkt := wire.EncodeLookup(wire.LookupPacket{Type: wire.LookupQuery, Service: 99})
	if err := h.HandlePacket(from, pkt); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if len(fs.sent) != 1 {
		t.Fatalf("got %d packets, want 1 (terminator only): %+v", len(fs.sent), fs.sent)
	}
}
