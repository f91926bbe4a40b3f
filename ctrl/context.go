// Package ctrl implements the control-port protocol: the handler that
// drives the registry and subscription table in response to decoded
// wire.CtrlPacket values, and emits the replies and broadcasts spec §4.E
// describes. It is grounded on ns.c's ctrl_cmd_* family, generalized to
// also service the lookup-subscription commands that implementation
// never reached (NEW_LOOKUP/DEL_LOOKUP/LOOKUP_RESULT).
package ctrl

import (
	"github.com/rs/zerolog"

	"github.com/qrtr-project/qrtr-ns/internal/metricsx"
	"github.com/qrtr-project/qrtr-ns/registry"
)

// Sender is the subset of transport.Endpoint the handler needs. Handler
// code depends on this interface, not the concrete transport package, so
// tests can drive it with an in-memory fake.
type Sender interface {
	Send(dest registry.Addr, b []byte) error
	BroadcastCtrl() registry.Addr
}

// Context bundles the state and collaborators a Handler needs. It holds
// no socket of its own; Transport is the only way it reaches the wire.
type Context struct {
	Registry  *registry.Registry
	Subs      *registry.Subscriptions
	LocalNode uint32
	Transport Sender
	Log       zerolog.Logger
	Metrics   *metricsx.Metrics
}

// sendErr logs a send failure without propagating it: per spec §7, a
// single unreachable peer must never stall the daemon or abort a
// multi-packet burst.
func (c *Context) sendErr(dest registry.Addr, err error) {
	c.Metrics.SendError()
	c.Log.Warn().
		Uint32("node", dest.Node).
		Uint32("port", dest.Port).
		Err(err).
		Msg("send failed")
}
