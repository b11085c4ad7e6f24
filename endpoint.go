// SPDX-License-Identifier: GPL-3.0-or-later

package sockstream

import (
	"net"
	"net/netip"
	"strconv"
)

// Endpoint is an (address, port) pair with an optional IPv6 scope id.
//
// Representation is part of identity: the endpoint for 192.168.1.1:80
// and the one for [::ffff:192.168.1.1]:80 are not [Endpoint.Equal], even
// though they name the same host. This mirrors dual-stack sockets, where
// the two forms select different socket families.
//
// Construct using [NewEndpoint], [EndpointFromAddrPort] or [ParseEndpoint].
type Endpoint struct {
	// Addr is the address, without zone.
	Addr netip.Addr

	// ScopeID is the IPv6 scope id, zero when unspecified.
	//
	// Ignored for IPv4 addresses.
	ScopeID uint32

	// Port is the port number.
	Port uint16
}

// NewEndpoint returns a new [Endpoint].
//
// Any zone carried by addr is dropped in favour of scopeID.
func NewEndpoint(addr netip.Addr, scopeID uint32, port uint16) Endpoint {
	if !addr.Is6() {
		scopeID = 0
	}
	return Endpoint{Addr: addr.WithZone(""), ScopeID: scopeID, Port: port}
}

// EndpointFromAddrPort converts a [netip.AddrPort] into an [Endpoint].
//
// A numeric zone becomes the scope id; an interface name is resolved
// using [DefaultInterfaceIndex].
func EndpointFromAddrPort(ap netip.AddrPort) (Endpoint, error) {
	addr := ap.Addr()
	if !addr.IsValid() {
		return Endpoint{}, newOpError("endpoint", KindMalformedAddress, &net.AddrError{
			Err: "invalid address", Addr: ap.String()})
	}
	var scopeID uint32
	if zone := addr.Zone(); zone != "" {
		v, err := parseScopeID(zone, DefaultInterfaceIndex)
		if err != nil {
			return Endpoint{}, newOpError("endpoint", KindMalformedAddress, err)
		}
		scopeID = v
	}
	return NewEndpoint(addr, scopeID, ap.Port()), nil
}

// EndpointFromNetAddr converts a [*net.TCPAddr] or [*net.UDPAddr]
// into an [Endpoint], keeping the address representation as is.
func EndpointFromNetAddr(addr net.Addr) (Endpoint, error) {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return EndpointFromAddrPort(a.AddrPort())
	case *net.UDPAddr:
		return EndpointFromAddrPort(a.AddrPort())
	default:
		return Endpoint{}, newOpError("endpoint", KindMalformedAddress, &net.AddrError{
			Err: "unsupported address type", Addr: safeString(addr)})
	}
}

func safeString(addr net.Addr) string {
	if addr == nil {
		return "<nil>"
	}
	return addr.String()
}

// ParseEndpoint parses "host:port" where host is an IPv4 literal or a
// bracketed IPv6 literal with optional %<scope> suffix.
//
// Hostnames are rejected: endpoints must be fully resolved.
func ParseEndpoint(text string) (Endpoint, error) {
	host, portText, err := net.SplitHostPort(text)
	if err != nil {
		return Endpoint{}, newOpError("parse", KindMalformedAddress, err)
	}
	port, err := strconv.ParseUint(portText, 10, 16)
	if err != nil {
		return Endpoint{}, newOpError("parse", KindMalformedAddress, err)
	}
	addr, scopeID, err := ParseScopedAddr(host)
	if err != nil {
		return Endpoint{}, err
	}
	return NewEndpoint(addr, scopeID, uint16(port)), nil
}

// Is4 reports whether the endpoint address is a plain IPv4 address.
func (e Endpoint) Is4() bool {
	return e.Addr.Is4()
}

// Is6 reports whether the endpoint address is IPv6, including IPv4-mapped.
func (e Endpoint) Is6() bool {
	return e.Addr.Is6()
}

// Equal reports whether the two endpoints have the same family, address
// bytes, port and, for IPv6, scope id.
func (e Endpoint) Equal(other Endpoint) bool {
	if e.Addr.WithZone("") != other.Addr.WithZone("") || e.Port != other.Port {
		return false
	}
	return !e.Addr.Is6() || e.ScopeID == other.ScopeID
}

// AddrPort returns the [netip.AddrPort] for dialing, carrying the scope
// id as a numeric zone.
func (e Endpoint) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(withScope(e.Addr, e.ScopeID), e.Port)
}

// Unmapped returns the endpoint with an IPv4-mapped address replaced
// by the plain IPv4 address, e.g., to normalize the peer address seen
// by a dual-stack socket. Other endpoints are returned unchanged.
func (e Endpoint) Unmapped() Endpoint {
	if !IsMapped(e.Addr) {
		return e
	}
	return NewEndpoint(e.Addr.Unmap(), 0, e.Port)
}

// Class returns the [AddrClass] of the endpoint address.
func (e Endpoint) Class() AddrClass {
	return Classify(e.Addr)
}

// String returns "addr:port" or "[addr%scope]:port".
func (e Endpoint) String() string {
	return e.AddrPort().String()
}
