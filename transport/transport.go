//go:build linux

// Package transport owns the bound QRTR datagram socket and the
// raw system calls needed to speak AF_QIPCRTR, an address family the
// standard library's net package has no notion of. Two endpoints exist
// at runtime: one on the control port, one (optional) on the legacy
// name-service port; both are instances of Endpoint.
package transport

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/qrtr-project/qrtr-ns/qrtrerr"
	"github.com/qrtr-project/qrtr-ns/registry"
)

// maxDatagram bounds a single receive; control and lookup packets are at
// most a few dozen bytes, so this leaves generous headroom without the
// repeated heap churn of reallocating per call.
const maxDatagram = 4096

// Endpoint owns one bound AF_QIPCRTR datagram socket.
type Endpoint struct {
	fd        int
	localNode uint32
	port      uint32
}

// BroadcastNode is the sentinel destination node meaning "every peer".
const BroadcastNode uint32 = nodeBcast

// CtrlPort is the well-known control port present on every node.
const CtrlPort uint32 = portCtrl

// NSPort is the fixed legacy name-service port.
const NSPort uint32 = nsPort

// Open creates an AF_QIPCRTR datagram socket, learns the local node-id
// from the kernel (via getsockname on the freshly created, unbound
// socket — the kernel fills in sq_node as soon as the socket exists),
// and binds it to (local_node, port).
func Open(port uint32) (*Endpoint, error) {
	fd, _, errno := unix.Syscall(unix.SYS_SOCKET, uintptr(afQIPCRTR), uintptr(unix.SOCK_DGRAM), 0)
	if errno != 0 {
		return nil, &qrtrerr.TransportError{Op: "socket", Err: errno}
	}

	var sa rawSockaddrQrtr
	sl := uint32(sockaddrQrtrLen)
	if _, _, errno := unix.Syscall(unix.SYS_GETSOCKNAME, fd, uintptr(sa.ptr()), uintptr(unsafe.Pointer(&sl))); errno != 0 {
		unix.Close(int(fd))
		return nil, &qrtrerr.TransportError{Op: "getsockname", Err: errno}
	}

	e := &Endpoint{fd: int(fd), localNode: sa.node, port: port}

	bindAddr := newRawSockaddr(e.localNode, port)
	if _, _, errno := unix.Syscall(unix.SYS_BIND, fd, uintptr(bindAddr.ptr()), uintptr(sockaddrQrtrLen)); errno != 0 {
		unix.Close(int(fd))
		return nil, &qrtrerr.TransportError{Op: "bind", Err: errno}
	}

	return e, nil
}

// LocalNode returns the node-id the daemon's control socket is bound on.
// It is fixed for the daemon's lifetime (spec §3 "Local node").
func (e *Endpoint) LocalNode() uint32 { return e.localNode }

// Fd exposes the underlying descriptor to the event loop's poll set.
func (e *Endpoint) Fd() int { return e.fd }

// BroadcastCtrl is the immutable address used to announce to every
// peer's control port at once.
func (e *Endpoint) BroadcastCtrl() registry.Addr {
	return registry.Addr{Node: BroadcastNode, Port: CtrlPort}
}

// Send transmits b to dest. Send failures are never fatal: the caller
// logs and continues so a single broken peer cannot stall the daemon.
func (e *Endpoint) Send(dest registry.Addr, b []byte) error {
	sa := newRawSockaddr(dest.Node, dest.Port)
	_, _, errno := unix.Syscall6(unix.SYS_SENDTO, uintptr(e.fd),
		uintptr(unsafe.Pointer(&b[0])), uintptr(len(b)), 0,
		uintptr(sa.ptr()), uintptr(sockaddrQrtrLen))
	if errno != 0 {
		return &qrtrerr.TransportError{Op: "sendto", Err: errno}
	}
	return nil
}

// Recv waits for one datagram and returns its source address and
// payload. A fatal error here is terminal: the event loop closes the
// endpoint and exits.
func (e *Endpoint) Recv() (registry.Addr, []byte, error) {
	buf := make([]byte, maxDatagram)
	var sa rawSockaddrQrtr
	sl := uint32(sockaddrQrtrLen)

	n, _, errno := unix.Syscall6(unix.SYS_RECVFROM, uintptr(e.fd),
		uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)), 0,
		uintptr(sa.ptr()), uintptr(unsafe.Pointer(&sl)))
	if errno != 0 {
		return registry.Addr{}, nil, &qrtrerr.TransportError{Op: "recvfrom", Err: errno}
	}

	return registry.Addr{Node: sa.node, Port: sa.port}, buf[:n], nil
}

// Close releases the underlying socket.
func (e *Endpoint) Close() error {
	if err := unix.Close(e.fd); err != nil {
		return &qrtrerr.TransportError{Op: "close", Err: err}
	}
	return nil
}

func (e *Endpoint) String() string {
	return fmt.Sprintf("qrtr(%d:%d)", e.localNode, e.port)
}
