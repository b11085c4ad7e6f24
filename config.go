// SPDX-License-Identifier: GPL-3.0-or-later

package sockstream

import (
	"net"
	"time"
)

// DefaultBufferSize is the default size of the [*Stream] input buffer.
const DefaultBufferSize = 4096

// Config holds common configuration for streams and multicast membership.
//
// Pass this to constructor functions to pre-wire dependencies.
// All fields have sensible defaults set by [NewConfig].
type Config struct {
	// BufferSize is the size of the [*Stream] input buffer.
	//
	// Set by [NewConfig] to [DefaultBufferSize].
	BufferSize int

	// Dialer is used by the default [*GoReactor].
	//
	// Set by [NewConfig] to [*net.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// Reactor schedules the asynchronous operations of a [*Stream].
	//
	// Set by [NewConfig] to nil, meaning that [NewStream] creates a
	// [*GoReactor] using Dialer.
	Reactor Reactor

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		BufferSize:    DefaultBufferSize,
		Dialer:        &net.Dialer{},
		ErrClassifier: DefaultErrClassifier,
		Reactor:       nil,
		TimeNow:       time.Now,
	}
}

// reactor returns the configured [Reactor] or a [*GoReactor] over Dialer.
func (c *Config) reactor() Reactor {
	if c.Reactor != nil {
		return c.Reactor
	}
	return NewGoReactor(c.Dialer)
}
