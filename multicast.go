// SPDX-License-Identifier: GPL-3.0-or-later

package sockstream

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

var errNotSyscallConn = errors.New("conn does not expose the underlying socket")

// NewMembership returns a new [*Membership].
//
// The cfg argument contains the common configuration.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewMembership(cfg *Config, logger SLogger) *Membership {
	return &Membership{
		ErrClassifier:    cfg.ErrClassifier,
		Interface:        nil,
		InterfaceByIndex: net.InterfaceByIndex,
		Logger:           logger,
		TimeNow:          cfg.TimeNow,
	}
}

// Membership prepares UDP sockets to exchange multicast and broadcast
// datagrams. It holds no per-socket state: each method classifies the
// target with [Classify] and applies the matching socket options.
//
// For multicast targets, listeners join the group; for the broadcast
// address they enable SO_BROADCAST. Listening sockets always enable
// address and port reuse, so that several independent listeners on the
// same host receive a copy of every datagram.
//
// Joining a group fails with [ErrRouteUnavailable] when no interface or
// route can serve the group. Callers are expected to log and skip such
// groups; see [*Membership.JoinAll].
//
// All fields are safe to modify after construction but before first use.
type Membership struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewMembership] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Interface is the interface used to join groups and send multicast.
	//
	// Set by [NewMembership] to nil, meaning the system default. A group
	// address with a numeric zone selects the interface with that index.
	Interface *net.Interface

	// InterfaceByIndex resolves scope ids to interfaces.
	//
	// Set by [NewMembership] to [net.InterfaceByIndex].
	InterfaceByIndex func(index int) (*net.Interface, error)

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewMembership] to the user-provided logger.
	Logger SLogger

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewMembership] from [Config.TimeNow].
	TimeNow func() time.Time
}

// ListenConfig returns a [*net.ListenConfig] enabling address and port
// reuse. When dualStack is true, IPv6 sockets also accept IPv4 traffic
// through IPv4-mapped addresses (IPV6_V6ONLY off), even for "udp6".
//
// Failing to enable SO_REUSEPORT is logged and tolerated, since
// SO_REUSEADDR alone suffices on some systems.
func (m *Membership) ListenConfig(dualStack bool) *net.ListenConfig {
	return &net.ListenConfig{Control: func(network, address string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			if opErr = setReuseAddr(fd); opErr != nil {
				return
			}
			if err := setReusePort(fd); err != nil {
				m.Logger.Warn(
					"reusePortUnavailable",
					slog.Any("err", err),
					slog.String("localAddr", address),
					slog.String("protocol", network),
					slog.Time("t", m.TimeNow()),
				)
			}
			if dualStack && network == "udp6" {
				opErr = setV6Only(fd, false)
			}
		})
		if err != nil {
			return err
		}
		return opErr
	}}
}

// ListenPacket binds a reusable UDP socket to the wildcard address of
// the target's family on the given port and calls [*Membership.Apply].
//
// IPv4 and IPv4-mapped targets bind 0.0.0.0; IPv6 targets bind a
// dual-stack [::]. On failure the socket is closed.
func (m *Membership) ListenPacket(ctx context.Context, target netip.Addr, port uint16) (net.PacketConn, error) {
	network, wildcard := "udp6", netip.IPv6Unspecified()
	if target.Unmap().Is4() {
		network, wildcard = "udp4", netip.IPv4Unspecified()
	}
	address := netip.AddrPortFrom(wildcard, port).String()
	conn, err := m.ListenConfig(network == "udp6").ListenPacket(ctx, network, address)
	if err != nil {
		return nil, classifyOpError("listen", err)
	}
	if err := m.Apply(conn, target); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Apply prepares a listening socket to receive datagrams sent to target:
// joins the group of a multicast target, enables broadcast for the
// broadcast address, and does nothing for other addresses.
func (m *Membership) Apply(conn net.PacketConn, target netip.Addr) error {
	switch Classify(target) {
	case ClassMulticast:
		return m.Join(conn, target)
	case ClassBroadcast:
		return m.EnableBroadcast(conn)
	default:
		return nil
	}
}

// Join joins the multicast group on conn.
//
// IPv4-mapped groups are joined as IPv4 groups. Any failure is
// reported as [ErrRouteUnavailable] wrapping the system error.
func (m *Membership) Join(conn net.PacketConn, group netip.Addr) error {
	return m.membership("joinGroup", conn, group, func(ifi *net.Interface, addr *net.UDPAddr) error {
		if addr.IP.To4() != nil {
			return ipv4.NewPacketConn(conn).JoinGroup(ifi, addr)
		}
		return ipv6.NewPacketConn(conn).JoinGroup(ifi, addr)
	})
}

// Leave leaves a multicast group previously joined with [*Membership.Join].
func (m *Membership) Leave(conn net.PacketConn, group netip.Addr) error {
	return m.membership("leaveGroup", conn, group, func(ifi *net.Interface, addr *net.UDPAddr) error {
		if addr.IP.To4() != nil {
			return ipv4.NewPacketConn(conn).LeaveGroup(ifi, addr)
		}
		return ipv6.NewPacketConn(conn).LeaveGroup(ifi, addr)
	})
}

// membership runs a join or leave operation with logging.
func (m *Membership) membership(event string, conn net.PacketConn, group netip.Addr,
	fx func(ifi *net.Interface, addr *net.UDPAddr) error) error {
	t0 := m.TimeNow()
	m.Logger.Info(
		event+"Start",
		slog.String("group", group.String()),
		slog.String("localAddr", packetLocalAddr(conn)),
		slog.Time("t", t0),
	)

	err := m.doMembership(event, group, fx)

	m.Logger.Info(
		event+"Done",
		slog.Any("err", err),
		slog.String("errClass", m.ErrClassifier.Classify(err)),
		slog.String("errKind", ClassifyError(err).String()),
		slog.String("group", group.String()),
		slog.String("localAddr", packetLocalAddr(conn)),
		slog.Time("t0", t0),
		slog.Time("t", m.TimeNow()),
	)
	return err
}

func (m *Membership) doMembership(event string, group netip.Addr,
	fx func(ifi *net.Interface, addr *net.UDPAddr) error) error {
	if Classify(group) != ClassMulticast {
		return newOpError(event, KindMalformedAddress, &net.AddrError{
			Err: "not a multicast address", Addr: group.String()})
	}
	ifi, err := m.interfaceFor(group)
	if err != nil {
		return newOpError(event, KindRouteUnavailable, err)
	}
	addr := &net.UDPAddr{IP: net.IP(group.Unmap().AsSlice())}
	if err := fx(ifi, addr); err != nil {
		return newOpError(event, KindRouteUnavailable, err)
	}
	return nil
}

// interfaceFor returns the interface selected by the group zone, if
// any, or the configured Interface.
func (m *Membership) interfaceFor(group netip.Addr) (*net.Interface, error) {
	zone := group.Zone()
	if zone == "" {
		return m.Interface, nil
	}
	index, err := strconv.Atoi(zone)
	if err != nil {
		return net.InterfaceByName(zone)
	}
	return m.InterfaceByIndex(index)
}

// JoinAll joins every multicast group in groups, skipping the groups
// failing with [ErrRouteUnavailable] after logging a warning.
//
// Returns the joined groups and the failures that were not tolerated.
func (m *Membership) JoinAll(conn net.PacketConn, groups []netip.Addr) ([]netip.Addr, error) {
	var (
		errs   []error
		joined []netip.Addr
	)
	for _, group := range groups {
		err := m.Join(conn, group)
		switch {
		case err == nil:
			joined = append(joined, group)
		case errors.Is(err, ErrRouteUnavailable):
			m.Logger.Warn(
				"joinGroupSkipped",
				slog.Any("err", err),
				slog.String("group", group.String()),
				slog.String("localAddr", packetLocalAddr(conn)),
				slog.Time("t", m.TimeNow()),
			)
		default:
			errs = append(errs, err)
		}
	}
	return joined, errors.Join(errs...)
}

// EnableBroadcast enables sending to the broadcast address on conn.
//
// The conn must implement [syscall.Conn], as [*net.UDPConn] does.
func (m *Membership) EnableBroadcast(conn net.PacketConn) error {
	err := controlSocket("enableBroadcast", conn, setBroadcast)
	m.Logger.Info(
		"enableBroadcast",
		slog.Any("err", err),
		slog.String("errClass", m.ErrClassifier.Classify(err)),
		slog.String("localAddr", packetLocalAddr(conn)),
		slog.Time("t", m.TimeNow()),
	)
	return err
}

// PrepareSender prepares a socket to send datagrams to target: for a
// multicast target it enables multicast loopback, so that listeners on
// this host receive the datagrams too, and selects the configured
// interface; for the broadcast address it enables broadcast.
func (m *Membership) PrepareSender(conn net.PacketConn, target netip.Addr) error {
	switch Classify(target) {
	case ClassMulticast:
		if target.Unmap().Is4() {
			pc := ipv4.NewPacketConn(conn)
			if m.Interface != nil {
				if err := pc.SetMulticastInterface(m.Interface); err != nil {
					return newOpError("prepareSender", KindRouteUnavailable, err)
				}
			}
			return classifyOpError("prepareSender", pc.SetMulticastLoopback(true))
		}
		pc := ipv6.NewPacketConn(conn)
		if m.Interface != nil {
			if err := pc.SetMulticastInterface(m.Interface); err != nil {
				return newOpError("prepareSender", KindRouteUnavailable, err)
			}
		}
		return classifyOpError("prepareSender", pc.SetMulticastLoopback(true))
	case ClassBroadcast:
		return m.EnableBroadcast(conn)
	default:
		return nil
	}
}

// packetLocalAddr returns the local address of conn for logging, or an
// empty string when conn or its address is nil.
func packetLocalAddr(conn net.PacketConn) string {
	if conn == nil {
		return ""
	}
	if addr := conn.LocalAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// controlSocket runs setopt on the socket underlying conn.
func controlSocket(op string, conn any, setopt func(fd uintptr) error) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return newOpError(op, KindProtocolMisuse, errNotSyscallConn)
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return classifyOpError(op, err)
	}
	var opErr error
	if err := rc.Control(func(fd uintptr) {
		opErr = setopt(fd)
	}); err != nil {
		return classifyOpError(op, err)
	}
	return classifyOpError(op, opErr)
}
