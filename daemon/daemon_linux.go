//go:build linux

package daemon

import (
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/qrtr-project/qrtr-ns/ctrl"
	"github.com/qrtr-project/qrtr-ns/internal/metricsx"
	"github.com/qrtr-project/qrtr-ns/legacy"
	"github.com/qrtr-project/qrtr-ns/registry"
	"github.com/qrtr-project/qrtr-ns/transport"
)

// Options configures New. WithLegacyPort controls whether the
// name-service port (53) is also bound; the reference daemon always
// binds it, but a deployment that never talks to legacy clients can
// disable it.
type Options struct {
	WithLegacyPort bool
	Log            zerolog.Logger
}

// New opens the control socket (and, unless disabled, the legacy
// name-service socket), builds the shared registry/subscription state,
// and returns a Daemon ready to Run. It does not yet send HELLO; Run
// does that once the poll loop is about to start, matching ns.c's
// say_hello() call placed just before waiter_wait().
func New(opts Options) (*Daemon, error) {
	ctrlEP, err := transport.Open(transport.CtrlPort)
	if err != nil {
		return nil, fmt.Errorf("open control socket: %w", err)
	}

	reg := registry.New()
	subs := registry.NewSubscriptions()
	metrics := metricsx.New(reg, subs)

	cctx := &ctrl.Context{
		Registry:  reg,
		Subs:      subs,
		LocalNode: ctrlEP.LocalNode(),
		Transport: ctrlEP,
		Log:       opts.Log,
		Metrics:   metrics,
	}

	ctrlHandler := ctrl.New(cctx)

	d := &Daemon{
		ctrlEndpoint: ctrlEP,
		ctrlHandler:  ctrlHandler,
		reg:          reg,
		log:          opts.Log,
		metrics:      metrics,
		poll:         pollFds,
	}

	if opts.WithLegacyPort {
		nsEP, err := transport.Open(transport.NSPort)
		if err != nil {
			ctrlEP.Close()
			return nil, fmt.Errorf("open legacy name-service socket: %w", err)
		}
		d.nsEndpoint = nsEP
		d.nsHandler = legacy.New(reg, nsEP, opts.Log, metrics, ctrlHandler)
	}

	return d, nil
}

// pollFds blocks on unix.Poll until one of fds is readable, retrying
// transparently on EINTR, and reports which indices are ready.
func pollFds(fds []int) ([]bool, error) {
	pollSet := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pollSet[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}

	for {
		n, err := unix.Poll(pollSet, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, err
		}
		if n == 0 {
			continue
		}
		ready := make([]bool, len(fds))
		for i, pfd := range pollSet {
			ready[i] = pfd.Revents&unix.POLLIN != 0
		}
		return ready, nil
	}
}
