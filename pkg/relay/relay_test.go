package relay

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/5dchess/5dcserver/pkg/config"
	"github.com/5dchess/5dcserver/pkg/state"
	"github.com/5dchess/5dcserver/pkg/wire"
)

func newTestServer(t *testing.T) (*Server, *state.Server) {
	cfg := config.Default()
	var tick int64
	s := state.New(cfg, zap.NewNop(), func() int64 {
		tick++
		return tick
	})
	return New(s, zap.NewNop()), s
}

// listenerAddrs polls r's bound listeners until count are present,
// since Start binds them before the accept loop goroutines exist.
func listenerAddrs(r *Server, count int) []string {
	for i := 0; i < 100; i++ {
		r.lnMu.Lock()
		n := len(r.lns)
		r.lnMu.Unlock()
		if n >= count {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	r.lnMu.Lock()
	defer r.lnMu.Unlock()
	addrs := make([]string, len(r.lns))
	for i, ln := range r.lns {
		addrs[i] = ln.Addr().String()
	}
	return addrs
}

func TestAcceptAndGreet(t *testing.T) {
	r, _ := newTestServer(t)

	started := make(chan error, 1)
	go func() { started <- r.Start([]string{"127.0.0.1"}, 0) }()

	addrs := listenerAddrs(r, 1)
	require.Len(t, addrs, 1)

	c, err := net.Dial("tcp", addrs[0])
	require.NoError(t, err)
	defer c.Close()

	body := make([]byte, 48)
	require.NoError(t, wire.WriteFrame(c, wire.TypeC2SGreet, body))

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, _, err := wire.ReadFrame(c, wire.DefaultMaxFrame)
	require.NoError(t, err)
	assert.Equal(t, wire.TypeS2CGreet, typ)

	r.Shutdown()
	select {
	case err := <-started:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}

func TestStartBindsEveryConfiguredAddress(t *testing.T) {
	r, _ := newTestServer(t)

	started := make(chan error, 1)
	go func() { started <- r.Start([]string{"127.0.0.1", "127.0.0.1"}, 0) }()

	addrs := listenerAddrs(r, 2)
	require.Len(t, addrs, 2)
	assert.NotEqual(t, addrs[0], addrs[1])

	for _, addr := range addrs {
		c, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		c.Close()
	}

	r.Shutdown()
	select {
	case err := <-started:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}

func TestShutdownUnblocksStart(t *testing.T) {
	r, _ := newTestServer(t)
	done := make(chan error, 1)
	go func() { done <- r.Start([]string{"127.0.0.1"}, 0) }()

	require.Len(t, listenerAddrs(r, 1), 1)

	r.Shutdown()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not unblock")
	}
}
