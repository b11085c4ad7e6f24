// SPDX-License-Identifier: GPL-3.0-or-later

package sockstream_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/bassosimone/runtimex"
	"github.com/bassosimone/sockstream"
)

// This example shows how to read a greeting from a local server while
// bounding the whole exchange with a context deadline.
func Example_stream() {
	// Local server sending a greeting and closing the connection.
	listener := runtimex.PanicOnError1(net.Listen("tcp", "127.0.0.1:0"))
	defer listener.Close()
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("Hello World\x00"))
	}()

	// Caller controls the timeout externally; the watcher cancels the
	// stream when the context is done.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := sockstream.NewConfig()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	stream := sockstream.NewStream(cfg, "tcp", logger)
	defer stream.Close()

	stop := sockstream.WatchContext(ctx, stream)
	defer stop()

	endpoint := runtimex.PanicOnError1(sockstream.EndpointFromNetAddr(listener.Addr()))
	if err := stream.Connect(endpoint); err != nil {
		panic(err)
	}

	// Read the greeting up to the terminating NUL byte.
	var greeting []byte
	for {
		c, err := stream.ReadByte()
		if err == io.EOF {
			break
		}
		runtimex.Assert(err == nil)
		if c == 0 {
			break
		}
		greeting = append(greeting, c)
	}
	fmt.Println(string(greeting))

	// Output:
	// Hello World
}
