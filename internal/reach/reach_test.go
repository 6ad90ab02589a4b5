package reach

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/mclookup/internal/protocol"
	"github.com/woozymasta/mclookup/internal/testutil"
)

func TestCheck_Open(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	addr := netip.MustParseAddrPort(ln.Addr().String())
	assert.NoError(t, Check(context.Background(), addr, time.Second))
}

func TestCheck_RefusedWithinTimeout(t *testing.T) {
	const timeout = 500 * time.Millisecond

	start := time.Now()
	err := Check(context.Background(), testutil.ClosedAddrPort(t), timeout)

	assert.ErrorIs(t, err, protocol.ErrConnection)
	assert.True(t, protocol.IsRefused(err))
	assert.LessOrEqual(t, time.Since(start), timeout+200*time.Millisecond)
}

func TestCheck_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Check(ctx, testutil.ClosedAddrPort(t), time.Second)
	assert.Error(t, err)
}
