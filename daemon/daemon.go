// Package daemon wires transport, registry, ctrl and legacy together
// into the single-threaded event loop ns.c's main()/waiter_wait() run:
// no worker goroutines, no locks, one poll over both bound sockets.
package daemon

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/qrtr-project/qrtr-ns/internal/metricsx"
	"github.com/qrtr-project/qrtr-ns/registry"
	"github.com/qrtr-project/qrtr-ns/wire"
)

// endpoint is the subset of transport.Endpoint the event loop needs. The
// loop depends on this interface rather than the concrete type so it can
// run against a fake in tests, since a real AF_QIPCRTR socket is not
// available outside a kernel that has the qrtr driver loaded.
type endpoint interface {
	Fd() int
	Send(dest registry.Addr, b []byte) error
	Recv() (registry.Addr, []byte, error)
	BroadcastCtrl() registry.Addr
	Close() error
	String() string
}

// packetHandler is implemented by both ctrl.Handler and legacy.Handler.
type packetHandler interface {
	HandlePacket(from registry.Addr, raw []byte) error
}

// Daemon owns the two bound endpoints and the state they share.
type Daemon struct {
	ctrlEndpoint endpoint
	nsEndpoint   endpoint

	ctrlHandler packetHandler
	nsHandler   packetHandler

	reg     *registry.Registry
	log     zerolog.Logger
	metrics *metricsx.Metrics

	// poll is the blocking wait primitive: given the fds to watch, it
	// returns which indices are ready to read, or an error. Production
	// code supplies unix.Poll; tests supply a fake that drives the loop
	// deterministically.
	poll func(fds []int) (ready []bool, err error)
}

// sayHello announces the daemon's presence by broadcasting a bare HELLO
// on the control port (ns.c's say_hello).
func (d *Daemon) sayHello() error {
	dest := d.ctrlEndpoint.BroadcastCtrl()
	return d.ctrlEndpoint.Send(dest, wire.EncodeCtrl(wire.CtrlPacket{Cmd: wire.CmdHello}))
}

// Run sends the startup HELLO, then polls both endpoints until one of
// them reports a fatal error, dispatching each datagram as it arrives.
// It never spawns a goroutine per connection: the entire daemon runs on
// the calling goroutine, matching the reference implementation's single
// waiter loop.
func (d *Daemon) Run() error {
	if err := d.sayHello(); err != nil {
		return fmt.Errorf("say hello: %w", err)
	}

	fds := []int{d.ctrlEndpoint.Fd()}
	if d.nsEndpoint != nil {
		fds = append(fds, d.nsEndpoint.Fd())
	}

	for {
		ready, err := d.poll(fds)
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}

		if ready[0] {
			if err := d.dispatch(d.ctrlEndpoint, d.ctrlHandler); err != nil {
				return err
			}
		}
		if len(fds) > 1 && ready[1] {
			if err := d.dispatch(d.nsEndpoint, d.nsHandler); err != nil {
				return err
			}
		}
	}
}

// dispatch reads one datagram from ep and hands it to h. A decode or
// handler error is logged and the loop continues (spec §7: no single
// bad packet may take the daemon down); a receive failure on the
// socket itself is fatal, matching ctrl_port_fn's handling of a failed
// recvfrom by closing the socket and ending the loop.
func (d *Daemon) dispatch(ep endpoint, h packetHandler) error {
	from, raw, err := ep.Recv()
	if err != nil {
		ep.Close()
		return fmt.Errorf("recv on %s: %w", ep, err)
	}
	if err := h.HandlePacket(from, raw); err != nil {
		d.log.Warn().Err(err).Msg("packet handling failed")
	}
	return nil
}

// WritePrometheus writes the daemon's metrics in Prometheus exposition
// format, for an HTTP handler to serve.
func (d *Daemon) WritePrometheus(w io.Writer) {
	d.metrics.WritePrometheus(w)
}

// registryDumpEntry is the JSON shape WriteRegistryDump emits per server.
// Instance is the raw opaque 32-bit instance field; Version is its low 16
// bits, split out with wire.UnpackInstance (the packing wire.PackInstance
// uses). The instance number in the high 16 bits is not reported as a
// separate field.
type registryDumpEntry struct {
	Service  uint32 `json:"service"`
	Instance uint32 `json:"instance"`
	Version  uint16 `json:"version"`
	Node     uint32 `json:"node"`
	Port     uint32 `json:"port"`
}

// WriteRegistryDump writes the full registry contents as JSON, for the
// in-process diagnostics endpoint (/debug/registry in cmd/qrtr-nsd).
func (d *Daemon) WriteRegistryDump(w io.Writer) error {
	snapshot := d.reg.Dump()
	entries := make([]registryDumpEntry, len(snapshot))
	for i, srv := range snapshot {
		version, _ := wire.UnpackInstance(srv.Instance)
		entries[i] = registryDumpEntry{
			Service:  srv.Service,
			Instance: srv.Instance,
			Version:  version,
			Node:     srv.Node,
			Port:     srv.Port,
		}
	}
	return json.NewEncoder(w).Encode(entries)
}

// Close releases both endpoints.
func (d *Daemon) Close() error {
	err := d.ctrlEndpoint.Close()
	if d.nsEndpoint != nil {
		if nerr := d.nsEndpoint.Close(); err == nil {
			err = nerr
		}
	}
	return err
}
