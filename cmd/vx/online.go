package main

import (
	"context"
	"net"
	"time"
)

// onlineProbeEndpoints are checked when deciding whether to fail fast on a
// bundle miss instead of attempting a download that will just time out
// (spec §4.7 "Offline routing": "a short-timeout (<= 1s) probe of at least
// two known endpoints; a negative result means offline").
var onlineProbeEndpoints = []string{
	"8.8.8.8:443",
	"1.1.1.1:443",
}

const onlineProbeTimeout = 1 * time.Second

// isOnline reports whether any probe endpoint is reachable within the
// timeout. A single successful dial is enough to call the network up.
func isOnline(ctx context.Context) bool {
	var d net.Dialer
	for _, addr := range onlineProbeEndpoints {
		dialCtx, cancel := context.WithTimeout(ctx, onlineProbeTimeout)
		conn, err := d.DialContext(dialCtx, "tcp", addr)
		cancel()
		if err == nil {
			conn.Close()
			return true
		}
	}
	return false
}
