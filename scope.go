// SPDX-License-Identifier: GPL-3.0-or-later

package sockstream

import (
	"fmt"
	"net/netip"

	"github.com/bassosimone/runtimex"
	"go4.org/netipx"
)

// MulticastScope is the reach of a discovery address, from the local
// machine up to the whole internet.
type MulticastScope int

const (
	// ScopeNone means the address is not a discovery address.
	ScopeNone MulticastScope = iota

	// ScopeMachine is the local host (loopback, interface-local multicast).
	ScopeMachine

	// ScopeLink is the local link (224.0.0.0/24, broadcast, ffx2::/16).
	ScopeLink

	// ScopeSite is the local site (239.255.0.0/16, ffx5::/16).
	ScopeSite

	// ScopeOrganization is the organization (239.192.0.0/14, ffx8::/16).
	ScopeOrganization

	// ScopeGlobal is any other multicast address.
	ScopeGlobal
)

// String implements [fmt.Stringer].
func (s MulticastScope) String() string {
	switch s {
	case ScopeMachine:
		return "machine"
	case ScopeLink:
		return "link"
	case ScopeSite:
		return "site"
	case ScopeOrganization:
		return "organization"
	case ScopeGlobal:
		return "global"
	default:
		return "none"
	}
}

// scopeSets maps each bounded scope to the addresses it covers.
var scopeSets = []struct {
	scope MulticastScope
	set   *netipx.IPSet
}{
	{ScopeMachine, mustBuildScopeSet([]string{"127.0.0.0/8", "::1/128"}, 0x1)},
	{ScopeLink, mustBuildScopeSet([]string{"224.0.0.0/24", "255.255.255.255/32"}, 0x2)},
	{ScopeSite, mustBuildScopeSet([]string{"239.255.0.0/16"}, 0x5)},
	{ScopeOrganization, mustBuildScopeSet([]string{"239.192.0.0/14"}, 0x8)},
}

// mustBuildScopeSet builds an [*netipx.IPSet] containing the given
// prefixes plus every IPv6 multicast prefix ff<flags><scope>::/16.
func mustBuildScopeSet(prefixes []string, v6scope byte) *netipx.IPSet {
	var b netipx.IPSetBuilder
	for _, p := range prefixes {
		b.AddPrefix(netip.MustParsePrefix(p))
	}
	for flags := range byte(16) {
		var a [16]byte
		a[0] = 0xff
		a[1] = flags<<4 | v6scope
		b.AddPrefix(netip.PrefixFrom(netip.AddrFrom16(a), 16))
	}
	set, err := b.IPSet()
	runtimex.Assert(err == nil)
	return set
}

// MulticastScopeOf returns the [MulticastScope] of addr.
//
// IPv4-mapped addresses are unmapped first. Unicast addresses other
// than loopback have [ScopeNone].
func MulticastScopeOf(addr netip.Addr) MulticastScope {
	addr = addr.WithZone("")
	if IsMapped(addr) {
		addr = addr.Unmap()
	}
	for _, entry := range scopeSets {
		if entry.set.Contains(addr) {
			return entry.scope
		}
	}
	if Classify(addr) == ClassMulticast {
		return ScopeGlobal
	}
	return ScopeNone
}

// ParseMulticastScope parses the output of [MulticastScope.String].
func ParseMulticastScope(text string) (MulticastScope, error) {
	for s := ScopeNone; s <= ScopeGlobal; s++ {
		if s.String() == text {
			return s, nil
		}
	}
	return ScopeNone, fmt.Errorf("sockstream: unknown multicast scope %q", text)
}
