// SPDX-License-Identifier: GPL-3.0-or-later

package sockstream

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulticastScopeOf(t *testing.T) {
	tests := []struct {
		// addr is the address to inspect.
		addr string

		// want is the expected scope.
		want MulticastScope
	}{
		{"127.0.0.1", ScopeMachine},
		{"::1", ScopeMachine},
		{"ff31:113d:6fdd:2c17:a643:ffe2:1bd1:3cd2", ScopeMachine},
		{"ff01::1", ScopeMachine},
		{"224.0.0.183", ScopeLink},
		{"224.0.0.1", ScopeLink},
		{"255.255.255.255", ScopeLink},
		{"ff02::1", ScopeLink},
		{"ff02:113d:6fdd:2c17:a643:ffe2:1bd1:3cd2", ScopeLink},
		{"239.255.172.215", ScopeSite},
		{"ff05:113d:6fdd:2c17:a643:ffe2:1bd1:3cd2", ScopeSite},
		{"239.192.172.215", ScopeOrganization},
		{"239.195.0.1", ScopeOrganization},
		{"ff08:113d:6fdd:2c17:a643:ffe2:1bd1:3cd2", ScopeOrganization},
		{"224.0.1.1", ScopeGlobal},
		{"ff0e::1", ScopeGlobal},
		{"::ffff:224.0.0.183", ScopeLink},
		{"::ffff:239.255.172.215", ScopeSite},
		{"192.168.1.1", ScopeNone},
		{"2001:db8::1", ScopeNone},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, MulticastScopeOf(netip.MustParseAddr(tt.addr)))
		})
	}
}

func TestParseMulticastScope(t *testing.T) {
	for s := ScopeNone; s <= ScopeGlobal; s++ {
		got, err := ParseMulticastScope(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseMulticastScope("galaxy")
	assert.Error(t, err)
}
