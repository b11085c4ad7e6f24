// SPDX-License-Identifier: GPL-3.0-or-later

package sockstream

import (
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// AddrClass is the classification of an IP address.
type AddrClass int

const (
	// ClassUnspecified is 0.0.0.0, :: and the invalid [netip.Addr].
	ClassUnspecified AddrClass = iota

	// ClassUnicast is any address that is not one of the other classes.
	ClassUnicast

	// ClassMulticast is 224.0.0.0/4 or ff00::/8.
	ClassMulticast

	// ClassBroadcast is the IPv4 limited broadcast address 255.255.255.255.
	ClassBroadcast
)

// String implements [fmt.Stringer].
func (c AddrClass) String() string {
	switch c {
	case ClassUnicast:
		return "unicast"
	case ClassMulticast:
		return "multicast"
	case ClassBroadcast:
		return "broadcast"
	default:
		return "unspecified"
	}
}

// IPv4Broadcast is the limited broadcast address.
var IPv4Broadcast = netip.AddrFrom4([4]byte{255, 255, 255, 255})

// Classify returns the [AddrClass] of addr.
//
// IPv4-mapped IPv6 addresses are unmapped first: the mapping is a
// representation of an IPv4 address, so ::ffff:239.0.0.1 is multicast
// and ::ffff:255.255.255.255 is broadcast.
func Classify(addr netip.Addr) AddrClass {
	addr = addr.WithZone("")
	if IsMapped(addr) {
		addr = addr.Unmap()
	}
	switch {
	case !addr.IsValid() || addr.IsUnspecified():
		return ClassUnspecified
	case addr == IPv4Broadcast:
		return ClassBroadcast
	case addr.Is4() && addr.As4()[0]&0xf0 == 0xe0:
		return ClassMulticast
	case IsV6Multicast(addr):
		return ClassMulticast
	default:
		return ClassUnicast
	}
}

// IsV6Multicast reports whether addr is in the IPv6 multicast range ff00::/8.
//
// The check is applied to the 16-byte form as is. An IPv4-mapped
// multicast address like ::ffff:224.0.0.1 is NOT an IPv6 multicast
// address; use [Classify] to evaluate the address it represents.
// Note that [netip.Addr.IsMulticast] unmaps and would say otherwise.
func IsV6Multicast(addr netip.Addr) bool {
	return addr.Is6() && addr.As16()[0] == 0xff
}

// IsMapped reports whether addr is an IPv6 address in ::ffff:0:0/96.
func IsMapped(addr netip.Addr) bool {
	return addr.Is4In6()
}

// MapToV6 returns the IPv4-mapped IPv6 form of an IPv4 address.
//
// Returns an [ErrMalformedAddress] error when addr is not IPv4.
func MapToV6(addr netip.Addr) (netip.Addr, error) {
	if !addr.Is4() {
		return netip.Addr{}, newOpError("map", KindMalformedAddress, &net.AddrError{
			Err: "not an IPv4 address", Addr: addr.String()})
	}
	return netip.AddrFrom16(addr.As16()), nil
}

// UnmapFromV6 returns the IPv4 address embedded in an IPv4-mapped IPv6 address.
//
// Returns [ErrNotMapped] when addr is not in ::ffff:0:0/96.
func UnmapFromV6(addr netip.Addr) (netip.Addr, error) {
	if !IsMapped(addr) {
		return netip.Addr{}, ErrNotMapped
	}
	return addr.Unmap(), nil
}

// InterfaceIndexFunc resolves an interface name to its index.
type InterfaceIndexFunc func(name string) (uint32, error)

// DefaultInterfaceIndex resolves interface names using [net.InterfaceByName].
func DefaultInterfaceIndex(name string) (uint32, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return 0, err
	}
	return uint32(ifi.Index), nil
}

// ParseScopedAddr parses an IPv4 or IPv6 literal with an optional
// %<scope> suffix, returning the address without zone and the scope id.
//
// The scope is either a non-negative integer or an interface name,
// resolved using [DefaultInterfaceIndex]. Without suffix the scope id
// is zero. A suffix on an IPv4 literal is rejected.
func ParseScopedAddr(text string) (netip.Addr, uint32, error) {
	return parseScopedAddr(text, DefaultInterfaceIndex)
}

func parseScopedAddr(text string, lookup InterfaceIndexFunc) (netip.Addr, uint32, error) {
	literal, scope, hasScope := strings.Cut(text, "%")
	addr, err := netip.ParseAddr(literal)
	if err != nil {
		return netip.Addr{}, 0, newOpError("parse", KindMalformedAddress, err)
	}
	if !hasScope {
		return addr, 0, nil
	}
	if !addr.Is6() || scope == "" {
		return netip.Addr{}, 0, newOpError("parse", KindMalformedAddress, &net.AddrError{
			Err: "invalid scope", Addr: text})
	}
	scopeID, err := parseScopeID(scope, lookup)
	if err != nil {
		return netip.Addr{}, 0, newOpError("parse", KindMalformedAddress, err)
	}
	return addr, scopeID, nil
}

func parseScopeID(scope string, lookup InterfaceIndexFunc) (uint32, error) {
	if scope[0] >= '0' && scope[0] <= '9' {
		v, err := strconv.ParseUint(scope, 10, 32)
		if err != nil {
			return 0, err
		}
		return uint32(v), nil
	}
	return lookup(scope)
}

// FormatScopedAddr formats addr using the %<scope-id> suffix when
// scopeID is nonzero and addr is IPv6.
func FormatScopedAddr(addr netip.Addr, scopeID uint32) string {
	return withScope(addr, scopeID).String()
}

// withScope returns addr with its zone set to the numeric scope id.
func withScope(addr netip.Addr, scopeID uint32) netip.Addr {
	if !addr.Is6() || scopeID == 0 {
		return addr.WithZone("")
	}
	return addr.WithZone(strconv.FormatUint(uint64(scopeID), 10))
}
