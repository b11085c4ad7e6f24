// SPDX-License-Identifier: GPL-3.0-or-later

package sockstream

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// addrOnlyPacketConn is a [net.PacketConn] that does not expose its socket.
type addrOnlyPacketConn struct {
	net.PacketConn
}

func (addrOnlyPacketConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 16571}
}

// listenLoopbackUDP4 returns a UDP socket bound to an ephemeral loopback port.
func listenLoopbackUDP4(t *testing.T) net.PacketConn {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// NewMembership populates all fields from Config and the provided logger.
func TestNewMembership(t *testing.T) {
	cfg := NewConfig()
	logger := DefaultSLogger()

	m := NewMembership(cfg, logger)

	require.NotNil(t, m)
	assert.NotNil(t, m.ErrClassifier)
	assert.Nil(t, m.Interface)
	assert.NotNil(t, m.InterfaceByIndex)
	assert.Equal(t, logger, m.Logger)
	assert.NotNil(t, m.TimeNow)
}

// Joining a unicast address is a malformed address, not a route failure.
func TestMembershipJoinNotMulticast(t *testing.T) {
	logger, records := newCapturingLogger()
	m := NewMembership(NewConfig(), logger)
	conn := listenLoopbackUDP4(t)

	err := m.Join(conn, netip.MustParseAddr("10.0.0.1"))

	require.ErrorIs(t, err, ErrMalformedAddress)
	assert.False(t, errors.Is(err, ErrRouteUnavailable))
	assert.Equal(t, []string{"joinGroupStart", "joinGroupDone"}, messages(*records))
}

// An unknown interface index makes the join fail as route-unavailable.
func TestMembershipJoinUnknownInterface(t *testing.T) {
	m := NewMembership(NewConfig(), DefaultSLogger())
	m.InterfaceByIndex = func(index int) (*net.Interface, error) {
		assert.Equal(t, 7, index)
		return nil, errors.New("no such interface")
	}
	conn := listenLoopbackUDP4(t)

	err := m.Join(conn, netip.MustParseAddr("ff02::fb%7"))
	require.ErrorIs(t, err, ErrRouteUnavailable)

	err = m.Leave(conn, netip.MustParseAddr("ff02::fb%7"))
	require.ErrorIs(t, err, ErrRouteUnavailable)
}

// JoinAll skips route failures with a warning and reports the others.
func TestMembershipJoinAll(t *testing.T) {
	logger, records := newCapturingLogger()
	m := NewMembership(NewConfig(), logger)
	m.InterfaceByIndex = func(index int) (*net.Interface, error) {
		return nil, errors.New("no such interface")
	}
	conn := listenLoopbackUDP4(t)

	joined, err := m.JoinAll(conn, []netip.Addr{
		netip.MustParseAddr("ff02::fb%3"),
		netip.MustParseAddr("192.168.1.1"),
	})

	assert.Empty(t, joined)
	require.ErrorIs(t, err, ErrMalformedAddress)
	assert.False(t, errors.Is(err, ErrRouteUnavailable))
	assert.Contains(t, messages(*records), "joinGroupSkipped")
}

// Apply does nothing for unicast and unspecified targets.
func TestMembershipApplyUnicast(t *testing.T) {
	logger, records := newCapturingLogger()
	m := NewMembership(NewConfig(), logger)
	conn := listenLoopbackUDP4(t)

	require.NoError(t, m.Apply(conn, netip.MustParseAddr("127.0.0.1")))
	require.NoError(t, m.Apply(conn, netip.IPv6Unspecified()))
	require.NoError(t, m.PrepareSender(conn, netip.MustParseAddr("127.0.0.1")))
	assert.Empty(t, *records)
}

// EnableBroadcast needs access to the underlying socket.
func TestMembershipEnableBroadcast(t *testing.T) {
	m := NewMembership(NewConfig(), DefaultSLogger())

	err := m.EnableBroadcast(addrOnlyPacketConn{})
	require.ErrorIs(t, err, ErrProtocolMisuse)

	conn := listenLoopbackUDP4(t)
	require.NoError(t, m.Apply(conn, IPv4Broadcast))
	require.NoError(t, m.PrepareSender(conn, IPv4Broadcast))
}

// Two listeners on the same port both receive a datagram sent to the
// target by a third socket on the same host. Targets other than the IPv4
// multicast group depend on the host network and skip when unavailable.
func TestMembershipReuseListeners(t *testing.T) {
	tests := []struct {
		// name describes the scenario.
		name string

		// target is the multicast group or broadcast address.
		target netip.Addr

		// mayfail is true when the host may not support the target.
		mayfail bool
	}{
		{name: "IPv4 multicast", target: netip.MustParseAddr("224.0.0.1")},
		{name: "IPv4 broadcast", target: IPv4Broadcast, mayfail: true},
		{name: "IPv6 multicast", target: netip.MustParseAddr("ff02::1"), mayfail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMembership(NewConfig(), DefaultSLogger())
			ctx := context.Background()

			first, err := m.ListenPacket(ctx, tt.target, 0)
			if errors.Is(err, ErrRouteUnavailable) || (err != nil && tt.mayfail) {
				t.Skip("cannot listen:", err)
			}
			require.NoError(t, err)
			defer first.Close()

			port := uint16(first.LocalAddr().(*net.UDPAddr).Port)
			second, err := m.ListenPacket(ctx, tt.target, port)
			require.NoError(t, err)
			defer second.Close()

			network, address := "udp6", "[::]:0"
			if tt.target.Is4() {
				network, address = "udp4", "0.0.0.0:0"
			}
			sender, err := net.ListenPacket(network, address)
			require.NoError(t, err)
			defer sender.Close()
			if err := m.PrepareSender(sender, tt.target); err != nil && tt.mayfail {
				t.Skip("cannot prepare sender:", err)
			}

			payload := []byte("discovery")
			_, err = sender.WriteTo(payload, net.UDPAddrFromAddrPort(netip.AddrPortFrom(tt.target, port)))
			if err != nil && tt.mayfail {
				t.Skip("cannot send:", err)
			}
			if errors.Is(err, errENETUNREACH) || errors.Is(err, errEHOSTUNREACH) {
				t.Skip("cannot send multicast:", err)
			}
			require.NoError(t, err)

			var g errgroup.Group
			for _, conn := range []net.PacketConn{first, second} {
				g.Go(func() error {
					if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
						return err
					}
					buf := make([]byte, 64)
					count, _, err := conn.ReadFrom(buf)
					if err != nil {
						return err
					}
					if string(buf[:count]) != string(payload) {
						return errors.New("unexpected payload")
					}
					return nil
				})
			}
			err = g.Wait()
			if errors.Is(err, os.ErrDeadlineExceeded) && tt.mayfail {
				t.Skip("datagram not looped back:", err)
			}
			require.NoError(t, err)

			if Classify(tt.target) == ClassMulticast {
				require.NoError(t, m.Leave(first, tt.target))
			}
		})
	}
}

// A dual-stack socket receives IPv4 traffic through mapped addresses,
// and the peer endpoint can be normalized back to plain IPv4.
func TestMembershipDualStackListener(t *testing.T) {
	m := NewMembership(NewConfig(), DefaultSLogger())
	conn, err := m.ListenConfig(true).ListenPacket(context.Background(), "udp6", "[::]:0")
	if err != nil {
		t.Skip("IPv6 unavailable:", err)
	}
	defer conn.Close()
	port := conn.LocalAddr().(*net.UDPAddr).Port

	sender4, err := net.Dial("udp4", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	defer sender4.Close()
	_, err = sender4.Write([]byte("v4"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	count, peer, err := conn.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "v4", string(buf[:count]))

	ep := endpointOf(t, peer)
	assert.True(t, IsMapped(ep.Addr))
	assert.True(t, ep.Unmapped().Equal(endpointOf(t, sender4.LocalAddr())))

	// The same socket serves as a stream receiving IPv6 datagrams.
	sender6, err := net.Dial("udp6", net.JoinHostPort("::1", strconv.Itoa(port)))
	if err != nil {
		t.Skip("IPv6 loopback unavailable:", err)
	}
	defer sender6.Close()

	stream := NewStreamFromConn(NewConfig(), conn.(*net.UDPConn), DefaultSLogger())
	assert.Equal(t, "udp", stream.Network)
	_, err = sender6.Write([]byte("v6"))
	require.NoError(t, err)

	got := make([]byte, 2)
	_, err = io.ReadFull(stream, got)
	require.NoError(t, err)
	assert.Equal(t, "v6", string(got))
}
