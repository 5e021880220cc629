// Package network configures the container's isolated network
// namespace. Only the loopback interface is brought up; the container
// has no path to the host network or any bridge.
package network

import (
	"github.com/vishvananda/netlink"

	"github.com/aropet/bantubox/errdefs"
)

// linkOps is the subset of netlink used here, separated for tests.
type linkOps interface {
	LinkByName(name string) (netlink.Link, error)
	LinkSetUp(link netlink.Link) error
}

type netlinkOps struct{}

func (netlinkOps) LinkByName(name string) (netlink.Link, error) { return netlink.LinkByName(name) }
func (netlinkOps) LinkSetUp(link netlink.Link) error            { return netlink.LinkSetUp(link) }

// Setup brings interfaces up inside the calling process's network
// namespace. Must run inside the container's namespace, before exec.
type Setup struct {
	ops linkOps
}

// NewSetup returns a Setup backed by the host netlink socket.
func NewSetup() *Setup {
	return &Setup{ops: netlinkOps{}}
}

// Loopback brings the lo interface up so that basic networking tools
// work inside the container. The caller treats failure as a warning,
// not a startup failure.
func (s *Setup) Loopback() error {
	lo, err := s.ops.LinkByName("lo")
	if err != nil {
		return errdefs.Wrap(errdefs.ErrNetworkSetup, err, "network: failed to find loopback")
	}
	if err := s.ops.LinkSetUp(lo); err != nil {
		return errdefs.Wrap(errdefs.ErrNetworkSetup, err, "network: failed to bring loopback up")
	}
	return nil
}
