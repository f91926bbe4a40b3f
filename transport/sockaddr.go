//go:build linux

package transport

import "unsafe"

// afQIPCRTR is the QRTR address family number. It predates allocation of
// a stable AF_* constant in upstream headers on many kernels, so unlike
// AF_INET/AF_UNIX it has no entry in golang.org/x/sys/unix; user-space
// code is expected to hardcode it (the original qrtr client library does
// exactly this, falling back to 42 "if not already defined").
const afQIPCRTR = 42

// nodeBcast is the broadcast node sentinel (spec §3): the destination
// node used to address every peer's control port at once.
const nodeBcast uint32 = 0xFFFFFFFF

// portCtrl is the well-known control port present on every node.
const portCtrl uint32 = 0xFFFFFFFE

// nsPort is the fixed legacy name-service port.
const nsPort uint32 = 53

// rawSockaddrQrtr mirrors the kernel's struct sockaddr_qrtr:
//
//	struct sockaddr_qrtr {
//	        unsigned short sq_family;
//	        uint32_t       sq_node;
//	        uint32_t       sq_port;
//	};
//
// The struct is not packed in the kernel header, so natural C alignment
// inserts two padding bytes between sq_family and sq_node on any LP64
// target; the explicit padding field reproduces that layout so the
// syscalls below can hand the kernel a pointer to this struct directly.
type rawSockaddrQrtr struct {
	family uint16
	_      uint16
	node   uint32
	port   uint32
}

func newRawSockaddr(node, port uint32) rawSockaddrQrtr {
	return rawSockaddrQrtr{family: afQIPCRTR, node: node, port: port}
}

func (r *rawSockaddrQrtr) ptr() unsafe.Pointer {
	return unsafe.Pointer(r)
}

const sockaddrQrtrLen = unsafe.Sizeof(rawSockaddrQrtr{})
