// Package rendezvous couples a match's two connection tasks for the
// lifetime of one game via a bound pair of one-directional channels,
// per spec.md §4.3/§9: no shared mutable match object, no locks around
// per-match state. A task detects its peer going away by the channel
// it reads from being closed, never by touching the peer directly.
package rendezvous

import "github.com/5dchess/5dcserver/pkg/wire"

// Capacity is the buffer depth of each directional channel. Actions
// are relayed one at a time and acknowledged by the reader's own game
// loop pacing, so a small buffer is enough to decouple a burst of
// quick successive sends from the reader's scheduling without
// unbounded growth.
const Capacity = 8

// EventKind discriminates the payload carried by an Event.
type EventKind int

const (
	// EventJoin is sent exactly once, joiner -> host, the instant the
	// joiner wins TakeWaiting: it carries no payload. Receiving it is
	// what commits the host's Waiting -> Playing transition and
	// triggers its Random variant/color resolution.
	EventJoin EventKind = iota
	// EventMatchStart is sent exactly once, host -> joiner, immediately
	// after the host resolves the match settings: it carries the
	// resolved variant/color/match_id the joiner needs to reply to its
	// own client.
	EventMatchStart
	// EventAction relays one C2SOrS2CAction body verbatim.
	EventAction
	// EventForfeit is sent once, by whichever side's client forfeits,
	// immediately before that side closes its send half.
	EventForfeit
)

// MatchStartInfo is the EventMatchStart payload: the settings the
// receiving (joiner) side needs, already resolved by the host.
type MatchStartInfo struct {
	MatchID   int64
	Clock     wire.ClockOpt
	Variant   wire.Variant
	Color     wire.Color // the color assigned to the RECEIVER of this event
	MessageID uint64
}

// Event is one message passed between a match's two connection tasks.
type Event struct {
	Kind       EventKind
	MatchStart MatchStartInfo
	Action     wire.Action
}

// Pair is the bound channel pair allocated by the host at Create time
// and handed to the joiner as part of the waiting-match registry
// entry. HostToJoiner is written only by the host's task and closed by
// it on exit; JoinerToHost is written only by the joiner's task and
// closed by it on exit.
type Pair struct {
	hostToJoiner chan Event
	joinerToHost chan Event
}

// New allocates a fresh, unused Pair.
func New() *Pair {
	return &Pair{
		hostToJoiner: make(chan Event, Capacity),
		joinerToHost: make(chan Event, Capacity),
	}
}

// Endpoint is one side's view of a Pair: a channel to send on (owned
// by this side, closed by this side when done) and a channel to
// receive on (owned by the peer).
type Endpoint struct {
	tx     chan Event
	rx     chan Event
	closed bool
}

// HostSide returns the host's Endpoint.
func (p *Pair) HostSide() *Endpoint {
	return &Endpoint{tx: p.hostToJoiner, rx: p.joinerToHost}
}

// JoinerSide returns the joiner's Endpoint.
func (p *Pair) JoinerSide() *Endpoint {
	return &Endpoint{tx: p.joinerToHost, rx: p.hostToJoiner}
}

// Tx returns the channel this side sends events on. Callers select on
// it alongside their own quit/deadline cases rather than sending
// directly, so a stuck peer never blocks the caller forever:
//
//	select {
//	case ep.Tx() <- ev:
//	case <-quit:
//	}
func (e *Endpoint) Tx() chan<- Event {
	return e.tx
}

// Rx returns the channel to range/select over for incoming events. A
// receive that reports ok=false means the peer is gone: treat it as an
// implicit forfeit.
func (e *Endpoint) Rx() <-chan Event {
	return e.rx
}

// Close closes this side's send half, signalling the peer that no
// more events are coming. Idempotent.
func (e *Endpoint) Close() {
	if e.closed {
		return
	}
	e.closed = true
	close(e.tx)
}
