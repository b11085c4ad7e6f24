// SPDX-License-Identifier: GPL-3.0-or-later

// Package sockstream provides buffered, cancellable byte streams over TCP
// and UDP sockets, plus the address helpers and multicast plumbing needed
// by service discovery code.
//
// # Core Abstraction
//
// A [*Stream] turns asynchronous socket operations into blocking calls:
//
//	stream := sockstream.NewStream(cfg, "tcp", logger)
//	err := stream.Connect(endpoint) // blocks
//	c, err := stream.ReadByte()     // blocks only when the buffer is empty
//
// Any other goroutine may call [*Stream.Cancel] to abort the blocking call
// in progress. The aborted call fails with [ErrOperationAborted], promptly,
// even when the peer never answers. Cancellation is sticky: every later
// blocking call on the same stream fails the same way, while bytes that
// were already buffered remain readable.
//
// # Available Primitives
//
// Streams and cancellation:
//   - [Stream]: buffered stream with cancellable connect and receive
//   - [CancellationToken]: sticky flag aborting the single live operation
//   - [Reactor]: schedules asynchronous connect and receive operations
//   - [GoReactor]: default [Reactor] running on the Go network poller
//   - [WatchContext]: cancels a [Canceler] when a context is done
//
// Addresses:
//   - [Endpoint]: address, port and IPv6 scope id, compared by representation
//   - [Classify]: unicast, multicast, broadcast or unspecified
//   - [MapToV6] and [UnmapFromV6]: IPv4-mapped IPv6 conversions
//   - [ParseScopedAddr] and [FormatScopedAddr]: "addr%scope" text forms
//   - [MulticastScopeOf]: administrative scope of a multicast group
//
// Multicast and broadcast:
//   - [Membership]: reusable listening sockets, group joins, broadcast
//
// # Errors
//
// Failures are reported as [*OpError] values carrying an [ErrorKind]. Use
// [errors.Is] with the kind sentinels ([ErrOperationAborted],
// [ErrConnectionRefused], ...) or [ClassifyError]. The underlying system
// error remains reachable through [errors.Is] and [errors.As]. Orderly
// peer shutdown is [io.EOF], not an error kind.
//
// # Observability
//
// Streams and memberships support structured logging via [SLogger]
// (compatible with [log/slog]). By default, logging is disabled.
//
// Operations emit *Start/*Done event pairs sharing the localAddr,
// remoteAddr, protocol, streamID and t fields. Completion events add t0,
// err, errClass and errKind. I/O-level events (read, write, deadline
// changes) are emitted at [slog.LevelDebug]; cancel and membership events
// use [slog.LevelInfo], and tolerated failures use [slog.LevelWarn].
//
// Each stream gets a time-ordered identifier from [NewStreamID], so the
// events of concurrent streams sharing a logger can be told apart.
package sockstream
