// SPDX-License-Identifier: GPL-3.0-or-later

package sockstream

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewStreamID returns a UUIDv7 identifying a [*Stream] in logs.
//
// Every event emitted on behalf of a stream carries this value in the
// streamID field, so the connect, receive, cancel and close events of a
// single stream can be correlated even when many streams share a logger.
// Being time-ordered, IDs also sort by stream creation time.
//
// This function panics if the system random number generator fails.
func NewStreamID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
