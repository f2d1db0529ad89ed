// Package state holds the registries shared by every connection task:
// matches waiting for a joiner, the subset of those that are publicly
// listed, and the capped history log.
package state

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/5dchess/5dcserver/pkg/config"
	"github.com/5dchess/5dcserver/pkg/rendezvous"
	"github.com/5dchess/5dcserver/pkg/wire"
)

// ErrConcurrentMatchLimit is returned by CreateWaiting when
// limit_concurrent_match has been reached.
var ErrConcurrentMatchLimit = errors.New("concurrent match limit reached")

// ErrPublicWaitingLimit is returned by CreateWaiting for a public match
// when limit_public_waiting has been reached.
var ErrPublicWaitingLimit = errors.New("public waiting limit reached")

// ErrPasscodeTaken is returned by CreateWaiting when every one of the
// rejection-sampling draws collided with a waiting passcode.
var ErrPasscodeTaken = errors.New("passcode already in use")

// WaitingMatch is a registry entry for a match that has been created
// but not yet joined.
type WaitingMatch struct {
	MatchID    int64
	Passcode   int64
	Color      wire.ColorOpt
	Clock      wire.ClockOpt
	Variant    wire.Variant
	Visibility wire.Visibility

	// HostJoin is handed to the joiner as its half of the rendezvous
	// pair; the host keeps the other half itself (see pkg/rendezvous).
	HostJoin *rendezvous.Pair
}

// HistoryRecord is one entry of the bounded history log.
type HistoryRecord struct {
	MatchID    int64
	Status     wire.HistoryStatus
	Clock      wire.ClockOpt
	Variant    wire.Variant
	Visibility wire.Visibility

	// StartElapsed is s.Elapsed() at RecordMatchStart time, used to
	// derive a live duration for InProgress entries on every listing.
	StartElapsed int64

	// SecondsPassed is the frozen match duration, set once by
	// CompleteMatch; meaningless while Status is InProgress.
	SecondsPassed int64
}

// Server is the shared, concurrency-safe state of the relay. Every
// field it mutates is guarded by a lock acquired in a fixed order:
// waitingMu before publicMu, matching the "waiting before public"
// order named throughout this package to avoid lock-ordering
// deadlocks between CreateWaiting and the listing builder.
type Server struct {
	Config *config.Config
	Log    *zap.Logger

	waitingMu sync.RWMutex
	waiting   map[int64]*WaitingMatch // passcode -> match

	publicMu sync.RWMutex
	public   []int64 // passcodes, insertion order, visibility == Public

	historyMu sync.Mutex
	history   []*HistoryRecord // oldest first, capped at wire.MaxListEntries

	nextMatchID *atomic.Int64
	shuttingDown *atomic.Bool
	quit        chan struct{}
	quitOnce    sync.Once

	startedAt func() int64 // injected for tests; elapsed-seconds clock
}

// New returns a freshly initialized Server.
func New(cfg *config.Config, log *zap.Logger, elapsed func() int64) *Server {
	return &Server{
		Config:       cfg,
		Log:          log,
		waiting:      make(map[int64]*WaitingMatch),
		nextMatchID:  atomic.NewInt64(0),
		shuttingDown: atomic.NewBool(false),
		quit:         make(chan struct{}),
		startedAt:    elapsed,
	}
}

// Elapsed returns the coarse logical clock used for message_id, per
// spec.md §3/§4.4 (elapsed seconds since server start, not a
// monotonic per-match sequence).
func (s *Server) Elapsed() int64 {
	return s.startedAt()
}

// Quit returns the channel closed exactly once when Shutdown is called.
func (s *Server) Quit() <-chan struct{} {
	return s.quit
}

// Shutdown broadcasts the shutdown signal to every connection task.
func (s *Server) Shutdown() {
	s.shuttingDown.Store(true)
	s.quitOnce.Do(func() { close(s.quit) })
}

// ShuttingDown reports whether Shutdown has been called.
func (s *Server) ShuttingDown() bool {
	return s.shuttingDown.Load()
}

// NextMatchID returns the next strictly monotonic match id, starting
// at 1.
func (s *Server) NextMatchID() int64 {
	return s.nextMatchID.Inc()
}

// CreateWaiting registers a new waiting match with a freshly generated
// unique passcode, enforcing limit_concurrent_match and, for public
// matches, limit_public_waiting. Lock order: waitingMu then publicMu.
func (s *Server) CreateWaiting(color wire.ColorOpt, clock wire.ClockOpt, variant wire.Variant, visibility wire.Visibility, pair *rendezvous.Pair) (*WaitingMatch, error) {
	s.waitingMu.Lock()
	defer s.waitingMu.Unlock()

	if len(s.waiting) >= s.Config.LimitConcurrentMatch {
		return nil, ErrConcurrentMatchLimit
	}

	if visibility == wire.VisibilityPublic {
		s.publicMu.RLock()
		n := len(s.public)
		s.publicMu.RUnlock()
		if n >= s.Config.LimitPublicWaiting {
			return nil, ErrPublicWaitingLimit
		}
	}

	passcode, err := s.generatePasscodeLocked()
	if err != nil {
		return nil, err
	}

	m := &WaitingMatch{
		MatchID:    s.NextMatchID(),
		Passcode:   passcode,
		Color:      color,
		Clock:      clock,
		Variant:    variant,
		Visibility: visibility,
		HostJoin:   pair,
	}
	s.waiting[passcode] = m

	if visibility == wire.VisibilityPublic {
		s.publicMu.Lock()
		s.public = append(s.public, passcode)
		s.publicMu.Unlock()
	}

	return m, nil
}

// generatePasscodeLocked draws a passcode by rejection sampling
// against the current waiting set. Caller must hold waitingMu.
func (s *Server) generatePasscodeLocked() (int64, error) {
	for i := 0; i < 64; i++ {
		n, err := randomInt63n(wire.MaxPasscode + 1)
		if err != nil {
			return 0, err
		}
		if _, taken := s.waiting[n]; !taken {
			return n, nil
		}
	}
	return 0, errors.Wrap(ErrPasscodeTaken, "failed to draw a free passcode after 64 attempts")
}

func randomInt63n(n int64) (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	v := int64(binary.LittleEndian.Uint64(buf[:]) &^ (1 << 63))
	return v % n, nil
}

// TakeWaiting removes and returns the waiting match for passcode, if
// any is registered. This is the single atomic operation that gives a
// joiner "everything or nothing": the passcode can be taken by at most
// one joiner. Lock order: waitingMu then publicMu.
func (s *Server) TakeWaiting(passcode int64) (*WaitingMatch, bool) {
	s.waitingMu.Lock()
	m, ok := s.waiting[passcode]
	if ok {
		delete(s.waiting, passcode)
	}
	s.waitingMu.Unlock()
	if !ok {
		return nil, false
	}
	if m.Visibility == wire.VisibilityPublic {
		s.removePublicLocked(passcode)
	}
	return m, true
}

// CancelWaiting removes a waiting match the host itself is cancelling.
// Returns false if the passcode is no longer registered (already
// joined or already cancelled).
func (s *Server) CancelWaiting(passcode int64) bool {
	_, ok := s.TakeWaiting(passcode)
	return ok
}

func (s *Server) removePublicLocked(passcode int64) {
	s.publicMu.Lock()
	defer s.publicMu.Unlock()
	for i, p := range s.public {
		if p == passcode {
			s.public = append(s.public[:i], s.public[i+1:]...)
			return
		}
	}
}

// PublicListing returns a snapshot of public waiting matches, in
// insertion order up to wire.MaxListEntries, matching the teacher's pattern of
// copying a registry under a read lock rather than holding it across
// response construction.
func (s *Server) PublicListing() []wire.PublicListingEntry {
	s.waitingMu.RLock()
	defer s.waitingMu.RUnlock()
	s.publicMu.RLock()
	defer s.publicMu.RUnlock()

	n := len(s.public)
	if n > wire.MaxListEntries {
		n = wire.MaxListEntries
	}
	out := make([]wire.PublicListingEntry, 0, n)
	for i := 0; i < len(s.public) && len(out) < wire.MaxListEntries; i++ {
		m, ok := s.waiting[s.public[i]]
		if !ok {
			continue
		}
		out = append(out, wire.PublicListingEntry{
			Color: m.Color, Clock: m.Clock, Variant: m.Variant, Passcode: m.Passcode,
		})
	}
	return out
}

// RecordMatchStart appends a new in-progress history entry, evicting
// the oldest entry first if the log is at capacity.
func (s *Server) RecordMatchStart(matchID int64, clock wire.ClockOpt, variant wire.Variant, visibility wire.Visibility) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	rec := &HistoryRecord{
		MatchID:      matchID,
		Status:       wire.HistoryInProgress,
		Clock:        clock,
		Variant:      variant,
		Visibility:   visibility,
		StartElapsed: s.Elapsed(),
	}
	s.history = append(s.history, rec)
	if len(s.history) > wire.MaxListEntries {
		s.history = s.history[len(s.history)-wire.MaxListEntries:]
	}
}

// CompleteMatch marks matchID's history entry Completed and freezes
// its duration at s.Elapsed() minus the start time recorded by
// RecordMatchStart. A no-op if the entry has already been evicted.
func (s *Server) CompleteMatch(matchID int64) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	for _, rec := range s.history {
		if rec.MatchID == matchID {
			rec.Status = wire.HistoryCompleted
			rec.SecondsPassed = s.Elapsed() - rec.StartElapsed
			return
		}
	}
}

// HistoryListing returns a snapshot of the history log, newest first.
// Per spec.md §4.5, seconds_passed for an InProgress entry is
// recomputed live on every call rather than read from a stored value.
func (s *Server) HistoryListing() []wire.HistoryEntry {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	out := make([]wire.HistoryEntry, 0, len(s.history))
	for i := len(s.history) - 1; i >= 0; i-- {
		r := s.history[i]
		secondsPassed := r.SecondsPassed
		if r.Status == wire.HistoryInProgress {
			secondsPassed = s.Elapsed() - r.StartElapsed
		}
		out = append(out, wire.HistoryEntry{
			Status: r.Status, Clock: r.Clock, Variant: r.Variant,
			Visibility: r.Visibility, SecondsPassed: secondsPassed,
		})
	}
	return out
}

// WaitingCount reports the number of currently waiting matches, used
// by pkg/metrics.
func (s *Server) WaitingCount() int {
	s.waitingMu.RLock()
	defer s.waitingMu.RUnlock()
	return len(s.waiting)
}

// PublicCount reports the number of currently public waiting matches.
func (s *Server) PublicCount() int {
	s.publicMu.RLock()
	defer s.publicMu.RUnlock()
	return len(s.public)
}
