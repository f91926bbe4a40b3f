// Package legacy translates the name-service-port lookup protocol
// (wire.LookupPacket) into the same registry operations the control
// protocol drives, for peers still speaking the older fixed-port
// PUBLISH/BYE/QUERY dialect instead of NEW_SERVER/NEW_LOOKUP. It is
// grounded on ns.c's ns_pkt_publish/ns_pkt_bye/ns_pkt_query.
package legacy

import (
	"github.com/rs/zerolog"

	"github.com/qrtr-project/qrtr-ns/ctrl"
	"github.com/qrtr-project/qrtr-ns/internal/metricsx"
	"github.com/qrtr-project/qrtr-ns/registry"
	"github.com/qrtr-project/qrtr-ns/wire"
)

// Sender is the subset of transport.Endpoint the legacy handler needs to
// reply to the querying peer on the name-service port.
type Sender interface {
	Send(dest registry.Addr, b []byte) error
}

// Handler services the legacy name-service port. PUBLISH and BYE are
// routed through Ctrl so a legacy announcement broadcasts to the
// control port and notifies matching subscribers exactly the way a
// NEW_SERVER/DEL_SERVER arriving over the control port would (spec
// §4.E: "behaviour-equivalent to NEW_LOOKUP+snapshot but not live").
// QUERY stays a direct, read-only registry query with its own NOTICE
// burst reply, since it has no control-port analogue to drive.
type Handler struct {
	Registry  *registry.Registry
	Ctrl      *ctrl.Handler
	Transport Sender
	Log       zerolog.Logger
	Metrics   *metricsx.Metrics
}

// New builds a legacy Handler. ctrlHandler is the same control-port
// Handler the daemon binds to the control socket, so a legacy PUBLISH/
// BYE shares its broadcast and subscriber-notification behavior.
func New(reg *registry.Registry, transport Sender, log zerolog.Logger, metrics *metricsx.Metrics, ctrlHandler *ctrl.Handler) *Handler {
	return &Handler{Registry: reg, Ctrl: ctrlHandler, Transport: transport, Log: log, Metrics: metrics}
}

// HandlePacket decodes raw as a legacy lookup packet and dispatches it.
func (h *Handler) HandlePacket(from registry.Addr, raw []byte) error {
	p, err := wire.DecodeLookup(raw)
	if err != nil {
		h.Metrics.DecodeError()
		h.Log.Warn().Uint32("node", from.Node).Uint32("port", from.Port).Err(err).Msg("dropping undecodable legacy packet")
		return err
	}

	switch p.Type {
	case wire.LookupPublish:
		h.handlePublish(from, p.Service, p.Instance)
	case wire.LookupBye:
		h.handleBye(from)
	case wire.LookupQuery:
		h.handleQuery(from, p.Service, p.Instance, p.Ifilter)
	case wire.LookupReset, wire.LookupNotice:
		// RESET/NOTICE are never sent to the daemon; ns.c's ns_port_fn
		// silently ignores NOTICE for the same reason.
	}
	return nil
}

// handlePublish registers (node, port) = from as a server by driving
// ctrl.Handler.NewServer, so the resulting NEW_SERVER broadcasts to the
// control port and reaches matching subscribers exactly as a native
// control-port NEW_SERVER would (ns.c's ns_pkt_publish sends its
// resulting cmsg to QRTRADDR_ANY:QRTR_CTRL_PORT for the same reason).
func (h *Handler) handlePublish(from registry.Addr, service, instance uint32) {
	h.Ctrl.NewServer(service, instance, from.Node, from.Port)
}

// handleBye removes the server registered at the sender's address by
// driving ctrl.Handler.DelServer, broadcasting DEL_SERVER the same way
// ns.c's ns_pkt_bye does.
func (h *Handler) handleBye(from registry.Addr) {
	h.Ctrl.DelServer(0, 0, from.Node, from.Port)
}

// handleQuery replies with a burst of NOTICE packets carrying
// decreasing seq starting at the match count, then a terminating
// all-zero NOTICE (spec §4.E; ns.c's ns_pkt_query). This is a read-only
// snapshot with no broadcast or subscriber side effects.
func (h *Handler) handleQuery(from registry.Addr, service, instance, ifilter uint32) {
	matches := h.Registry.Query(registry.Filter{Service: service, Instance: instance, Ifilter: ifilter})

	seq := uint32(len(matches))
	for _, srv := range matches {
		h.send(from, wire.LookupPacket{
			Type: wire.LookupNotice, Seq: seq,
			Service: srv.Service, Instance: srv.Instance, Node: srv.Node, Port: srv.Port,
		})
		seq--
	}
	h.send(from, wire.LookupPacket{Type: wire.LookupNotice})
}

func (h *Handler) send(dest registry.Addr, p wire.LookupPacket) {
	if err := h.Transport.Send(dest, wire.EncodeLookup(p)); err != nil {
		h.Metrics.SendError()
		h.Log.Warn().Uint32("node", dest.Node).Uint32("port", dest.Port).Err(err).Msg("legacy send failed")
	}
}
