package conn

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

func newTestState(t *testing.T) *state.Server {
	cfg := config.Default()
	var tick int64
	return state.New(cfg, zap.NewNop(), func() int64 {
		tick++
		return tick
	})
}

func startConn(t *testing.T, s *state.Server) net.Conn {
	client, server := net.Pipe()
	c := New(server, s, zap.NewNop())
	go c.Run()
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func send(t *testing.T, client net.Conn, typ wire.Type, body []byte) {
	t.Helper()
	require.NoError(t, wire.WriteFrame(client, typ, body))
}

func recv(t *testing.T, client net.Conn) (wire.Type, []byte) {
	t.Helper()
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, body, err := wire.ReadFrame(client, wire.DefaultMaxFrame)
	require.NoError(t, err)
	return typ, body
}

func TestGreetRoundTrip(t *testing.T) {
	s := newTestState(t)
	client := startConn(t, s)

	send(t, client, wire.TypeC2SGreet, greetBody(1, 0))
	typ, body := recv(t, client)
	assert.Equal(t, wire.TypeS2CGreet, typ)
	assert.Len(t, body, 48)
}

func greetBody(v1, v2 int64) []byte {
	w := make([]byte, 0, 48)
	put := func(v int64) {
		var b [8]byte
		for i := 0; i < 8; i++ {
			b[i] = byte(v >> (8 * i))
		}
		w = append(w, b[:]...)
	}
	put(v1)
	put(v2)
	for i := 0; i < 4; i++ {
		put(0)
	}
	return w
}

func TestCreatePublicMatchAndJoin(t *testing.T) {
	s := newTestState(t)
	host := startConn(t, s)
	joiner := startConn(t, s)

	send(t, host, wire.TypeC2SMatchCreateOrJoin, wire.EncodeMatchCreateOrJoin(wire.MatchCreateOrJoin{
		Color: wire.ColorOptRandom, Clock: wire.ClockOptShort, Variant: 2, Visibility: wire.VisibilityPublic, Passcode: -1,
	}))
	typ, body := recv(t, host)
	require.Equal(t, wire.TypeS2CMatchCreateOrJoinResult, typ)
	res, err := wire.DecodeMatchCreateOrJoinResult(body)
	require.NoError(t, err)
	require.True(t, res.Ok)
	passcode := res.Settings.Passcode
	// the result frame carries no match id; a fresh state.Server hands
	// out match id 1 to its first created match.
	matchID := int64(1)
	assert.GreaterOrEqual(t, passcode, int64(0))
	assert.LessOrEqual(t, passcode, int64(wire.MaxPasscode))

	send(t, joiner, wire.TypeC2SMatchCreateOrJoin, wire.EncodeMatchCreateOrJoin(wire.MatchCreateOrJoin{Passcode: passcode}))

	typ, body = recv(t, joiner)
	require.Equal(t, wire.TypeS2CMatchCreateOrJoinResult, typ)
	joinRes, err := wire.DecodeMatchCreateOrJoinResult(body)
	require.NoError(t, err)
	require.True(t, joinRes.Ok)
	assert.Equal(t, passcode, joinRes.Settings.Passcode)

	typ, body = recv(t, joiner)
	require.Equal(t, wire.TypeS2CMatchStart, typ)
	joinerStart, err := wire.DecodeMatchStart(body)
	require.NoError(t, err)
	assert.Equal(t, matchID, joinerStart.MatchID)
	assert.Equal(t, wire.Variant(2), joinerStart.Variant)

	typ, body = recv(t, host)
	require.Equal(t, wire.TypeS2CMatchStart, typ)
	hostStart, err := wire.DecodeMatchStart(body)
	require.NoError(t, err)
	assert.Equal(t, matchID, hostStart.MatchID)
	assert.Equal(t, hostStart.Color.Opposite(), joinerStart.Color)
}

func TestJoinUnknownPasscodeFails(t *testing.T) {
	s := newTestState(t)
	client := startConn(t, s)

	send(t, client, wire.TypeC2SMatchCreateOrJoin, wire.EncodeMatchCreateOrJoin(wire.MatchCreateOrJoin{Passcode: 42424242}))
	typ, body := recv(t, client)
	require.Equal(t, wire.TypeS2CMatchCreateOrJoinResult, typ)
	res, err := wire.DecodeMatchCreateOrJoinResult(body)
	require.NoError(t, err)
	assert.False(t, res.Ok)

	// connection should still be in Idle: a Greet should still work.
	send(t, client, wire.TypeC2SGreet, greetBody(1, 0))
	typ, _ = recv(t, client)
	assert.Equal(t, wire.TypeS2CGreet, typ)
}

func TestCancelWhileWaiting(t *testing.T) {
	s := newTestState(t)
	host := startConn(t, s)

	send(t, host, wire.TypeC2SMatchCreateOrJoin, wire.EncodeMatchCreateOrJoin(wire.MatchCreateOrJoin{
		Color: wire.ColorOptWhite, Clock: wire.ClockOptShort, Variant: 1, Visibility: wire.VisibilityPublic, Passcode: -1,
	}))
	_, body := recv(t, host)
	res, err := wire.DecodeMatchCreateOrJoinResult(body)
	require.NoError(t, err)

	send(t, host, wire.TypeC2SMatchCancel, wire.EncodeEmptyWithPad())
	typ, cancelBody := recv(t, host)
	require.Equal(t, wire.TypeS2CMatchCancelResult, typ)
	cancelRes, err := wire.DecodeMatchCancelResult(cancelBody)
	require.NoError(t, err)
	assert.True(t, cancelRes.Ok)

	_, ok := s.TakeWaiting(res.Settings.Passcode)
	assert.False(t, ok)
}

func TestForfeitNotifiesOpponent(t *testing.T) {
	s := newTestState(t)
	host := startConn(t, s)
	joiner := startConn(t, s)

	send(t, host, wire.TypeC2SMatchCreateOrJoin, wire.EncodeMatchCreateOrJoin(wire.MatchCreateOrJoin{
		Color: wire.ColorOptWhite, Clock: wire.ClockOptShort, Variant: 1, Visibility: wire.VisibilityPublic, Passcode: -1,
	}))
	_, body := recv(t, host)
	res, _ := wire.DecodeMatchCreateOrJoinResult(body)

	send(t, joiner, wire.TypeC2SMatchCreateOrJoin, wire.EncodeMatchCreateOrJoin(wire.MatchCreateOrJoin{Passcode: res.Settings.Passcode}))
	recv(t, joiner) // create-or-join result
	recv(t, joiner) // match start
	recv(t, host)   // match start

	send(t, host, wire.TypeC2SForfeit, wire.EncodeEmptyWithPad())
	typ, _ := recv(t, joiner)
	assert.Equal(t, wire.TypeS2COpponentLeft, typ)
}

func TestActionRelayAndEcho(t *testing.T) {
	s := newTestState(t)
	host := startConn(t, s)
	joiner := startConn(t, s)

	send(t, host, wire.TypeC2SMatchCreateOrJoin, wire.EncodeMatchCreateOrJoin(wire.MatchCreateOrJoin{
		Color: wire.ColorOptWhite, Clock: wire.ClockOptShort, Variant: 1, Visibility: wire.VisibilityPrivate, Passcode: -1,
	}))
	_, body := recv(t, host)
	res, _ := wire.DecodeMatchCreateOrJoinResult(body)

	send(t, joiner, wire.TypeC2SMatchCreateOrJoin, wire.EncodeMatchCreateOrJoin(wire.MatchCreateOrJoin{Passcode: res.Settings.Passcode}))
	recv(t, joiner)
	recv(t, joiner)
	recv(t, host)

	action := wire.Action{ActionType: wire.ActionMove, Color: wire.ColorWhite, SrcY: 1, SrcX: 2, DstY: 3, DstX: 4}
	send(t, host, wire.TypeAction, wire.EncodeAction(action))

	typ, echoBody := recv(t, host)
	require.Equal(t, wire.TypeAction, typ)
	echoed, err := wire.DecodeAction(echoBody)
	require.NoError(t, err)
	assert.Equal(t, action.SrcY, echoed.SrcY)

	typ, relayedBody := recv(t, joiner)
	require.Equal(t, wire.TypeAction, typ)
	relayed, err := wire.DecodeAction(relayedBody)
	require.NoError(t, err)
	assert.Equal(t, echoed.MessageID, relayed.MessageID)
}

func TestResetPuzzleBanClosesConnection(t *testing.T) {
	s := newTestState(t)
	s.Config.BanResetPuzzle = true
	host := startConn(t, s)
	joiner := startConn(t, s)

	send(t, host, wire.TypeC2SMatchCreateOrJoin, wire.EncodeMatchCreateOrJoin(wire.MatchCreateOrJoin{
		Color: wire.ColorOptWhite, Clock: wire.ClockOptShort, Variant: 1, Visibility: wire.VisibilityPrivate, Passcode: -1,
	}))
	_, body := recv(t, host)
	res, _ := wire.DecodeMatchCreateOrJoinResult(body)

	send(t, joiner, wire.TypeC2SMatchCreateOrJoin, wire.EncodeMatchCreateOrJoin(wire.MatchCreateOrJoin{Passcode: res.Settings.Passcode}))
	recv(t, joiner)
	recv(t, joiner)
	recv(t, host)

	send(t, host, wire.TypeAction, wire.EncodeAction(wire.Action{ActionType: wire.ActionResetPuzzle, Color: wire.ColorWhite}))

	_ = host.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err := host.Read(buf)
	assert.Error(t, err) // connection closed, no reply sent
}

func TestPublicWaitingLimitClosesConnection(t *testing.T) {
	s := newTestState(t)
	s.Config.LimitPublicWaiting = 0
	client := startConn(t, s)

	send(t, client, wire.TypeC2SMatchCreateOrJoin, wire.EncodeMatchCreateOrJoin(wire.MatchCreateOrJoin{
		Color: wire.ColorOptWhite, Clock: wire.ClockOptShort, Variant: 1, Visibility: wire.VisibilityPublic, Passcode: -1,
	}))

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err := client.Read(buf)
	assert.Error(t, err)
}
