// SPDX-License-Identifier: GPL-3.0-or-later

package sockstream

import "context"

// WatchContext arranges for c to be cancelled when ctx is done
// (cancelled or deadline exceeded).
//
// This package has no built-in timeouts. Use WatchContext with
// [context.WithTimeout] to bound a blocking call, or with
// [signal.NotifyContext] for responsive ^C handling:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
//	defer cancel()
//	stop := sockstream.WatchContext(ctx, stream)
//	defer stop()
//	err := stream.Connect(endpoint)
//
// The returned stop function unregisters the watcher and reports whether
// it did so before the watcher fired. Call it once the blocking call
// returns so that a later expiry of ctx does not cancel the stream.
func WatchContext(ctx context.Context, c Canceler) (stop func() bool) {
	return context.AfterFunc(ctx, c.Cancel)
}
