package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsOnlineReachableEndpoint(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	original := onlineProbeEndpoints
	defer func() { onlineProbeEndpoints = original }()
	onlineProbeEndpoints = []string{ln.Addr().String()}

	assert.True(t, isOnline(context.Background()))
}

func TestIsOnlineAllEndpointsUnreachable(t *testing.T) {
	original := onlineProbeEndpoints
	defer func() { onlineProbeEndpoints = original }()
	// Port 1 on loopback with no listener; the dial fails immediately rather
	// than hanging, so this test doesn't pay the full probe timeout.
	onlineProbeEndpoints = []string{"127.0.0.1:1"}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.False(t, isOnline(ctx))
}
