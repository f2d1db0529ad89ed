package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/5dchess/5dcserver/pkg/config"
	"github.com/5dchess/5dcserver/pkg/rendezvous"
	"github.com/5dchess/5dcserver/pkg/wire"
)

func newTestServer(t *testing.T) *Server {
	cfg := config.Default()
	var tick int64
	return New(cfg, zap.NewNop(), func() int64 {
		tick++
		return tick
	})
}

func TestCreateAndTakeWaiting(t *testing.T) {
	s := newTestServer(t)
	m, err := s.CreateWaiting(wire.ColorOptRandom, wire.ClockOptShort, 2, wire.VisibilityPublic, rendezvous.New())
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.MatchID)

	listed := s.PublicListing()
	require.Len(t, listed, 1)
	assert.Equal(t, m.Passcode, listed[0].Passcode)

	got, ok := s.TakeWaiting(m.Passcode)
	require.True(t, ok)
	assert.Equal(t, m.MatchID, got.MatchID)
	assert.Empty(t, s.PublicListing())

	_, ok = s.TakeWaiting(m.Passcode)
	assert.False(t, ok)
}

func TestCreateWaitingEnforcesConcurrentLimit(t *testing.T) {
	s := newTestServer(t)
	s.Config.LimitConcurrentMatch = 1
	_, err := s.CreateWaiting(wire.ColorOptRandom, wire.ClockOptShort, 1, wire.VisibilityPrivate, rendezvous.New())
	require.NoError(t, err)
	_, err = s.CreateWaiting(wire.ColorOptRandom, wire.ClockOptShort, 1, wire.VisibilityPrivate, rendezvous.New())
	assert.ErrorIs(t, err, ErrConcurrentMatchLimit)
}

func TestCreateWaitingEnforcesPublicLimit(t *testing.T) {
	s := newTestServer(t)
	s.Config.LimitPublicWaiting = 0
	_, err := s.CreateWaiting(wire.ColorOptRandom, wire.ClockOptShort, 1, wire.VisibilityPublic, rendezvous.New())
	assert.ErrorIs(t, err, ErrPublicWaitingLimit)
}

func TestPrivateMatchNotListed(t *testing.T) {
	s := newTestServer(t)
	_, err := s.CreateWaiting(wire.ColorOptRandom, wire.ClockOptShort, 1, wire.VisibilityPrivate, rendezvous.New())
	require.NoError(t, err)
	assert.Empty(t, s.PublicListing())
}

func TestHistoryCapAndOrder(t *testing.T) {
	s := newTestServer(t)
	for i := int64(1); i <= 15; i++ {
		s.RecordMatchStart(i, wire.ClockOptShort, wire.Variant(i), wire.VisibilityPublic)
	}
	h := s.HistoryListing()
	require.Len(t, h, wire.MaxListEntries)
	// newest first: the most recently started match (15) comes first,
	// and the oldest survivor (3, after 1 and 2 were evicted) comes last.
	assert.Equal(t, wire.HistoryInProgress, h[0].Status)
	assert.Equal(t, wire.Variant(15), h[0].Variant)
	assert.Equal(t, wire.Variant(3), h[len(h)-1].Variant)
}

func TestCompleteMatchUpdatesStatus(t *testing.T) {
	s := newTestServer(t)
	s.RecordMatchStart(1, wire.ClockOptShort, 1, wire.VisibilityPublic) // startElapsed = 1
	s.CompleteMatch(1)                                                  // duration = 2 - 1 = 1
	h := s.HistoryListing()
	require.Len(t, h, 1)
	assert.Equal(t, wire.HistoryCompleted, h[0].Status)
	assert.Equal(t, int64(1), h[0].SecondsPassed)

	// a completed entry's duration stays frozen on later listings.
	h = s.HistoryListing()
	assert.Equal(t, int64(1), h[0].SecondsPassed)
}

func TestInProgressSecondsPassedIsLive(t *testing.T) {
	s := newTestServer(t)
	s.RecordMatchStart(1, wire.ClockOptShort, 1, wire.VisibilityPublic) // startElapsed = 1

	h := s.HistoryListing() // elapsed() -> 2
	require.Len(t, h, 1)
	assert.Equal(t, int64(1), h[0].SecondsPassed)

	h = s.HistoryListing() // elapsed() -> 3
	assert.Equal(t, int64(2), h[0].SecondsPassed)
}

func TestMatchIDMonotonic(t *testing.T) {
	s := newTestServer(t)
	var ids []int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := s.NextMatchID()
			mu.Lock()
			ids = append(ids, id)
			mu.Unlock()
		}()
	}
	wg.Wait()
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate match id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, 50)
}

func TestShutdownIsIdempotentAndBroadcasts(t *testing.T) {
	s := newTestServer(t)
	s.Shutdown()
	s.Shutdown()
	select {
	case <-s.Quit():
	default:
		t.Fatal("quit channel was not closed")
	}
	assert.True(t, s.ShuttingDown())
}
