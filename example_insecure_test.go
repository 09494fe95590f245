// SPDX-License-Identifier: GPL-3.0-or-later

package grpc_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/bassosimone/runtimex"
	"github.com/peter20161119/grpc"
	"golang.org/x/net/http2"
)

// This example shows how to create an insecure channel to a local
// server speaking cleartext HTTP/2.
func Example_insecureChannel() {
	// Create context with overall timeout for the entire operation.
	// Caller controls timeout externally - the channel never modifies it.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Create a config and logger with a span ID for correlating log entries
	cfg := grpc.NewConfig()
	spanID := grpc.NewSpanID()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("spanID", spanID)

	// Serve cleartext HTTP/2 on a local listener
	ln := runtimex.PanicOnError1(net.Listen("tcp", "127.0.0.1:0"))
	defer ln.Close()
	go func() {
		conn := runtimex.PanicOnError1(ln.Accept())
		srv := &http2.Server{}
		srv.ServeConn(conn, &http2.ServeConnOpts{
			Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "plaintext backend")
			}),
		})
	}()

	// Create the channel; subchannels connect without any handshake
	target := "ipv4:" + ln.Addr().String()
	ch := runtimex.PanicOnError1(grpc.InsecureChannelCreate(cfg, target, nil, nil, logger))
	defer ch.Close()

	// Wait for the channel to become ready
	txp := runtimex.PanicOnError1(ch.Transport(ctx))

	// Perform the round trip and read the body
	req := runtimex.PanicOnError1(http.NewRequestWithContext(
		ctx, "GET", "http://"+ln.Addr().String()+"/", http.NoBody))
	resp := runtimex.PanicOnError1(txp.RoundTrip(req))
	defer resp.Body.Close()
	runtimex.Assert(resp.StatusCode < 400)
	body := runtimex.PanicOnError1(io.ReadAll(resp.Body))

	fmt.Printf("%s\n", string(body))

	// Output:
	// plaintext backend
}
