// SPDX-License-Identifier: GPL-3.0-or-later

package sockstream

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStreamID(t *testing.T) {
	id := NewStreamID()

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

// Each stream gets a distinct identifier.
func TestNewStreamIDUniqueness(t *testing.T) {
	const count = 100
	seen := make(map[string]struct{}, count)

	for range count {
		id := NewStreamID()
		_, duplicate := seen[id]
		require.False(t, duplicate, "duplicate stream ID generated: %s", id)
		seen[id] = struct{}{}
	}
}
