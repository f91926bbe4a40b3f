// Package registry holds the name service daemon's authoritative
// in-memory state: the two-level node→service store and the lookup
// subscription table. Both are plain data structures with no socket or
// protocol awareness; the ctrl package drives them.
package registry

import "github.com/qrtr-project/qrtr-ns/qrtrerr"

// Server is a published (service, instance) binding at a (node, port)
// address. The uniqueness key within a node is Port; (Node, Port) is
// globally unique (invariant I2).
type Server struct {
	Service  uint32
	Instance uint32
	Node     uint32
	Port     uint32
}

// Node is a lazily created per-node service map, keyed by Port
// (invariant I1: Node.Services[port] always holds the server stored at
// that port).
type Node struct {
	ID       uint32
	Services map[uint32]*Server
}

// Registry is the two-level node→service store described in spec §4.C.
// It holds no socket or protocol state and is safe to use only from a
// single goroutine (the daemon's event loop never shares it).
type Registry struct {
	nodes map[uint32]*Node
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{nodes: make(map[uint32]*Node)}
}

// GetOrCreateNode returns the node record for id, creating it (with an
// empty service map) on first reference. Node records are never removed
// except at daemon shutdown, so an empty node is cheap to retain.
func (r *Registry) GetOrCreateNode(id uint32) *Node {
	n, ok := r.nodes[id]
	if ok {
		return n
	}
	n = &Node{ID: id, Services: make(map[uint32]*Server)}
	r.nodes[id] = n
	return n
}

// Add inserts a server record, rejecting service == 0 or port == 0 with
// InvalidArgument (invariant I3). If a record already exists at
// (node, port), it is replaced atomically and returned as replaced so
// the caller can tell a replacement from a fresh insert (spec §4.C: "the
// replace case is internally distinguishable so callers can avoid
// double-announcing").
func (r *Registry) Add(service, instance, node, port uint32) (srv, replaced *Server, err error) {
	if service == 0 || port == 0 {
		return nil, nil, &qrtrerr.InvalidArgument{Reason: "service and port must be non-zero"}
	}

	n := r.GetOrCreateNode(node)
	srv = &Server{Service: service, Instance: instance, Node: node, Port: port}
	replaced = n.Services[port]
	n.Services[port] = srv
	return srv, replaced, nil
}

// Remove deletes the server record at (node, port), if any, and returns
// it.
func (r *Registry) Remove(node, port uint32) *Server {
	n, ok := r.nodes[node]
	if !ok {
		return nil
	}
	srv, ok := n.Services[port]
	if !ok {
		return nil
	}
	delete(n.Services, port)
	return srv
}

// Filter selects servers for Query and for subscription matching (spec
// §4.E "Filter semantics").
type Filter struct {
	Service  uint32
	Instance uint32
	Ifilter  uint32
}

// Match reports whether srv satisfies f, per spec §4.E:
//  1. a non-zero Service must match exactly;
//  2. Ifilter of zero with a non-zero Instance is treated as an exact
//     instance match (mask = all-ones);
//  3. otherwise srv.Instance&mask must equal f.Instance.
func (f Filter) Match(srv *Server) bool {
	if f.Service != 0 && srv.Service != f.Service {
		return false
	}
	mask := f.Ifilter
	if mask == 0 && f.Instance != 0 {
		mask = 0xFFFFFFFF
	}
	return srv.Instance&mask == f.Instance
}

// Query enumerates every server across every node matching f. The
// result is a fully materialized snapshot: the registry does not
// support enumeration interleaved with mutation, so callers must collect
// before mutating (spec §4.C).
func (r *Registry) Query(f Filter) []*Server {
	var out []*Server
	for _, n := range r.nodes {
		for _, srv := range n.Services {
			if f.Match(srv) {
				out = append(out, srv)
			}
		}
	}
	return out
}

// LocalServices returns every server currently registered under node.
// This is used both for the HELLO handshake (announcing the local
// catalog) and for the BYE/DEL_CLIENT local fan-out.
func (r *Registry) LocalServices(node uint32) []*Server {
	n, ok := r.nodes[node]
	if !ok {
		return nil
	}
	out := make([]*Server, 0, len(n.Services))
	for _, srv := range n.Services {
		out = append(out, srv)
	}
	return out
}

// RemoveNode purges every server record belonging to node and returns
// them, used by BYE handling when a peer's whole node disappears.
func (r *Registry) RemoveNode(node uint32) []*Server {
	n, ok := r.nodes[node]
	if !ok {
		return nil
	}
	out := make([]*Server, 0, len(n.Services))
	for _, srv := range n.Services {
		out = append(out, srv)
	}
	n.Services = make(map[uint32]*Server)
	return out
}

// Stats reports the current registry size for metrics reporting.
func (r *Registry) Stats() (nodes, servers int) {
	nodes = len(r.nodes)
	for _, n := range r.nodes {
		servers += len(n.Services)
	}
	return nodes, servers
}

// Dump returns a flat snapshot of every server in the registry, for the
// in-process diagnostics hook (the printing CLI itself remains an
// external collaborator, out of scope per spec §1).
func (r *Registry) Dump() []Server {
	var out []Server
	for _, n := range r.nodes {
		for _, srv := range n.Services {
			out = append(out, *srv)
		}
	}
	return out
}
