package ctrl

import (
	"github.com/qrtr-project/qrtr-ns/registry"
	"github.com/qrtr-project/qrtr-ns/wire"
)

// Handler dispatches decoded control packets against a Context. It holds
// no state of its own beyond the Context it was built with.
type Handler struct {
	ctx *Context
}

// New builds a Handler bound to ctx.
func New(ctx *Context) *Handler {
	return &Handler{ctx: ctx}
}

// HandlePacket decodes raw and dispatches it. A decode failure is
// reported through Metrics/Log and returned, but never panics or leaves
// the registry in an inconsistent state: no mutation happens before a
// packet is fully decoded.
func (h *Handler) HandlePacket(from registry.Addr, raw []byte) error {
	p, err := wire.DecodeCtrl(raw)
	if err != nil {
		h.ctx.Metrics.DecodeError()
		h.ctx.Log.Warn().Uint32("node", from.Node).Uint32("port", from.Port).Err(err).Msg("dropping undecodable control packet")
		return err
	}
	h.ctx.Metrics.PacketIn(p.Cmd.String())

	switch p.Cmd {
	case wire.CmdHello:
		h.handleHello(from)
	case wire.CmdBye:
		h.handleBye(from)
	case wire.CmdDelClient:
		h.handleDelClient(registry.Addr{Node: p.ClientNode, Port: p.ClientPort})
	case wire.CmdNewServer:
		h.NewServer(p.Service, p.Instance, p.Node, p.Port)
	case wire.CmdDelServer:
		h.DelServer(p.Service, p.Instance, p.Node, p.Port)
	case wire.CmdNewLookup:
		h.handleNewLookup(from, p.Service, p.Instance)
	case wire.CmdDelLookup:
		h.ctx.Subs.RemoveMatching(from, p.Service, p.Instance)
	case wire.CmdExit, wire.CmdPing, wire.CmdResumeTx, wire.CmdLookupResult:
		// EXIT/PING/RESUME_TX carry no registry action; LOOKUP_RESULT is
		// a daemon-to-subscriber reply and is never expected inbound,
		// but decoding it cleanly rather than erroring matches the
		// closed-switch dispatch the reference daemon uses.
	}
	return nil
}

// handleHello echoes the HELLO back to the sender, then replays the
// local node's full service catalog to it as a sequence of NEW_SERVER
// packets (ns.c's ctrl_cmd_hello + annouce_servers).
func (h *Handler) handleHello(from registry.Addr) {
	h.sendCtrl(from, wire.CtrlPacket{Cmd: wire.CmdHello})

	for _, srv := range h.ctx.Registry.LocalServices(h.ctx.LocalNode) {
		h.sendCtrl(from, wire.CtrlPacket{
			Cmd:      wire.CmdNewServer,
			Service:  srv.Service,
			Instance: srv.Instance,
			Node:     srv.Node,
			Port:     srv.Port,
		})
	}
}

// handleBye purges every server whose node is from.Node and tells each
// local service a peer node has gone away. Unlike ns.c's ctrl_cmd_bye
// (a no-op there, since that daemon never implemented whole-node
// departure), the entire registry for the departing node is retired here,
// matching the documented scenario for BYE.
func (h *Handler) handleBye(from registry.Addr) {
	h.ctx.Registry.RemoveNode(from.Node)
	for _, local := range h.ctx.Registry.LocalServices(h.ctx.LocalNode) {
		h.sendCtrl(registry.Addr{Node: local.Node, Port: local.Port}, wire.CtrlPacket{Cmd: wire.CmdBye})
	}
}

// handleDelClient retires the client at addr, per spec §4.E's three
// unconditional steps: (1) if addr names a registered server, remove it
// and broadcast DEL_SERVER when it was local; (2) regardless of whether
// addr was itself a registered server, tell every remaining local
// service the client died, so each can release any state it holds for
// it; (3) cancel any subscription addr held (spec P6). Steps 1 and 2 are
// not mutually exclusive: scenario 4 (§8) requires both a DEL_SERVER
// broadcast for the removed server and a DEL_CLIENT forwarded to the
// remaining local service in the same call.
func (h *Handler) handleDelClient(addr registry.Addr) {
	if srv := h.ctx.Registry.Remove(addr.Node, addr.Port); srv != nil && srv.Node == h.ctx.LocalNode {
		h.broadcast(wire.CtrlPacket{
			Cmd: wire.CmdDelServer, Service: srv.Service, Instance: srv.Instance,
			Node: srv.Node, Port: srv.Port,
		})
	}

	for _, local := range h.ctx.Registry.LocalServices(h.ctx.LocalNode) {
		h.sendCtrl(registry.Addr{Node: local.Node, Port: local.Port}, wire.CtrlPacket{
			Cmd:        wire.CmdDelClient,
			ClientNode: addr.Node,
			ClientPort: addr.Port,
		})
	}

	h.ctx.Subs.RemoveBySubscriber(addr)
}

// NewServer inserts the record, broadcasts NEW_SERVER if it is local,
// and notifies every subscription that matches it (spec §4.E, step 4;
// P5, P7). Records rejected by the registry (service or port zero)
// produce no side effects. Exported so the legacy protocol's PUBLISH can
// drive the same announcement path (spec §4.E: "PUBLISH maps to
// NEW_SERVER").
func (h *Handler) NewServer(service, instance, node, port uint32) {
	srv, _, err := h.ctx.Registry.Add(service, instance, node, port)
	if err != nil {
		h.ctx.Log.Warn().Err(err).Msg("rejected NEW_SERVER")
		return
	}

	if srv.Node == h.ctx.LocalNode {
		h.broadcast(wire.CtrlPacket{
			Cmd: wire.CmdNewServer, Service: srv.Service, Instance: srv.Instance,
			Node: srv.Node, Port: srv.Port,
		})
	}

	for _, sub := range h.ctx.Subs.Match(srv) {
		h.sendCtrl(sub.Subscriber, wire.CtrlPacket{
			Cmd: wire.CmdLookupResult, Service: srv.Service, Instance: srv.Instance,
			Node: srv.Node, Port: srv.Port,
		})
	}
}

// DelServer removes the record named by (node, port). Like ns.c's
// server_del, it keys only on (node, port): service and instance are not
// checked against the stored record. Exported
// so the legacy protocol's BYE can drive the same withdrawal path (spec
// §4.E: "BYE maps to DEL_SERVER").
func (h *Handler) DelServer(service, instance, node, port uint32) {
	srv := h.ctx.Registry.Remove(node, port)
	if srv == nil {
		h.ctx.Log.Warn().Uint32("node", node).Uint32("port", port).Msg("DEL_SERVER for unknown record")
		return
	}

	if srv.Node == h.ctx.LocalNode {
		h.broadcast(wire.CtrlPacket{
			Cmd: wire.CmdDelServer, Service: srv.Service, Instance: srv.Instance,
			Node: srv.Node, Port: srv.Port,
		})
	}
}

// handleNewLookup records the subscription, then replies with a
// snapshot: one LOOKUP_RESULT per currently-matching server, followed by
// an all-zero terminator (spec §4.E, "NEW_LOOKUP"; P4). The snapshot
// never observes mutations the handler itself performs, since Query
// materializes its result before any reply is sent.
func (h *Handler) handleNewLookup(subscriber registry.Addr, service, instance uint32) {
	h.ctx.Subs.Add(subscriber, service, instance)

	matches := h.ctx.Registry.Query(registry.Filter{Service: service, Instance: instance})
	for _, srv := range matches {
		h.sendCtrl(subscriber, wire.CtrlPacket{
			Cmd: wire.CmdLookupResult, Service: srv.Service, Instance: srv.Instance,
			Node: srv.Node, Port: srv.Port,
		})
	}
	h.sendCtrl(subscriber, wire.CtrlPacket{Cmd: wire.CmdLookupResult})
}

func (h *Handler) sendCtrl(dest registry.Addr, p wire.CtrlPacket) {
	if err := h.ctx.Transport.Send(dest, wire.EncodeCtrl(p)); err != nil {
		h.ctx.sendErr(dest, err)
		return
	}
	h.ctx.Metrics.PacketOut(p.Cmd.String())
}

func (h *Handler) broadcast(p wire.CtrlPacket) {
	h.sendCtrl(h.ctx.Transport.BroadcastCtrl(), p)
}
