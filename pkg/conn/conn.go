// Package conn implements the per-connection state machine described
// in spec.md §4.4: each accepted socket runs as its own task, cycling
// through Idle, Waiting, and Playing, driven by a select loop over
// inbound client frames, rendezvous events, shutdown, and a deadline.
package conn

import (
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/5dchess/5dcserver/pkg/config"
	"github.com/5dchess/5dcserver/pkg/matchlist"
	"github.com/5dchess/5dcserver/pkg/metrics"
	"github.com/5dchess/5dcserver/pkg/rendezvous"
	"github.com/5dchess/5dcserver/pkg/state"
	"github.com/5dchess/5dcserver/pkg/wire"
)

// Phase is a connection's position in the Idle/Waiting/Playing graph.
type Phase int

// Legal phases, matching spec.md §8 invariant 6's transition graph.
const (
	PhaseIdle Phase = iota
	PhaseWaiting
	PhasePlaying
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWaiting:
		return "waiting"
	case PhasePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// match is the non-Idle half of PerConnectionState: populated the
// instant a Create or Join is accepted, cleared on return to Idle.
type match struct {
	matchID  int64
	passcode int64

	// colorChoice is the host's original (possibly Random/None)
	// request; resolved lazily at join commit, per spec.md §9.
	colorChoice wire.ColorOpt
	color       wire.Color // meaningful only once Playing

	clock      wire.ClockOpt
	variant    wire.Variant // possibly VariantRandom until join commit
	visibility wire.Visibility
	isHost     bool
	endpoint   *rendezvous.Endpoint
}

// frame is one decoded inbound client message.
type frame struct {
	typ  wire.Type
	body []byte
}

// Conn runs one client connection to completion. Construct with New
// and drive with Run; Run returns when the connection terminates for
// any reason (client close, protocol error, shutdown, deadline).
type Conn struct {
	nc    net.Conn
	log   *zap.Logger
	state *state.Server
	cfg   *config.Config

	phase Phase
	m     *match

	inbound chan frame
	readErr chan error
}

// New wraps an accepted socket. It does not start reading until Run
// is called.
func New(nc net.Conn, s *state.Server, log *zap.Logger) *Conn {
	return &Conn{
		nc:      nc,
		log:     log.With(zap.Stringer("addr", nc.RemoteAddr())),
		state:   s,
		cfg:     s.Config,
		phase:   PhaseIdle,
		inbound: make(chan frame),
		readErr: make(chan error, 1),
	}
}

// setPhase updates c.phase and the per-phase connection gauge,
// matching the teacher's updatePeersConnectedMetric call-site idiom of
// keeping a metric current at every registry/state mutation.
func (c *Conn) setPhase(p Phase) {
	metrics.ConnectionsByPhase.WithLabelValues(c.phase.String()).Dec()
	metrics.ConnectionsByPhase.WithLabelValues(p.String()).Inc()
	c.phase = p
}

// Run drives the connection's event loop until termination, then
// performs unconditional cleanup per spec.md §4.4's "Termination and
// cleanup" rule, and closes the socket.
func (c *Conn) Run() {
	c.log.Info("connected")
	defer c.log.Info("disconnected")
	metrics.ConnectionsByPhase.WithLabelValues(PhaseIdle.String()).Inc()
	defer c.cleanup()

	go c.readLoop()

	deadline := time.NewTimer(time.Duration(c.cfg.LimitConnectionDuration) * time.Second)
	defer deadline.Stop()

	for {
		var f frame
		var rv rendezvous.Event
		var gotFrame, gotRendezvous bool

		if c.phase == PhaseIdle {
			select {
			case got, ok := <-c.inbound:
				if !ok {
					return
				}
				f, gotFrame = got, true
			case err := <-c.readErr:
				c.logTransportError(err)
				return
			case <-c.state.Quit():
				return
			case <-deadline.C:
				return
			}
		} else {
			select {
			case got, ok := <-c.inbound:
				if !ok {
					return
				}
				f, gotFrame = got, true
			case err := <-c.readErr:
				c.logTransportError(err)
				return
			case got, ok := <-c.m.endpoint.Rx():
				if !ok {
					got = rendezvous.Event{Kind: rendezvous.EventForfeit}
				}
				rv, gotRendezvous = got, true
			case <-c.state.Quit():
				return
			case <-deadline.C:
				return
			}
		}

		var err error
		switch {
		case gotRendezvous:
			err = c.handleRendezvous(rv)
		case gotFrame:
			err = c.handleFrame(f)
		}
		if err != nil {
			c.log.Debug("closing connection", zap.Error(err), zap.Stringer("phase", c.phase))
			metrics.ConnectionsRejected.WithLabelValues("protocol_error").Inc()
			return
		}
	}
}

// readLoop decodes frames off the socket and forwards them to Run's
// select loop; it exits the moment the socket errors, including a
// clean EOF, and reports the error once via readErr.
func (c *Conn) readLoop() {
	defer close(c.inbound)
	for {
		typ, body, err := wire.ReadFrame(c.nc, c.cfg.LimitMessageLength)
		if err != nil {
			c.readErr <- err
			return
		}
		c.inbound <- frame{typ: typ, body: body}
	}
}

// logTransportError follows spec.md §7: a clean close is silent,
// anything else is logged at error level.
func (c *Conn) logTransportError(err error) {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return
	}
	c.log.Error("transport error", zap.Error(err))
}

// cleanup runs on every exit path: if Waiting or Playing, the match is
// torn down (registries released, peer notified via channel close)
// before the socket is closed, so the peer observes channel-closed
// before we stop reading.
func (c *Conn) cleanup() {
	if c.m != nil {
		switch c.phase {
		case PhaseWaiting:
			c.state.CancelWaiting(c.m.passcode)
		case PhasePlaying:
			c.state.CompleteMatch(c.m.matchID)
		}
		c.m.endpoint.Close()
		c.m = nil
	}
	metrics.ConnectionsByPhase.WithLabelValues(c.phase.String()).Dec()
	_ = c.nc.Close()
}

func (c *Conn) writeFrame(typ wire.Type, body []byte) error {
	return wire.WriteFrame(c.nc, typ, body)
}

// handleFrame dispatches one decoded client message for the current
// phase, per spec.md §4.4's per-state transition tables.
func (c *Conn) handleFrame(f frame) error {
	switch c.phase {
	case PhaseIdle:
		return c.handleIdle(f)
	case PhaseWaiting:
		return c.handleWaiting(f)
	case PhasePlaying:
		return c.handlePlaying(f)
	default:
		return errors.Errorf("unreachable phase %s", c.phase)
	}
}

func (c *Conn) handleIdle(f frame) error {
	switch f.typ {
	case wire.TypeC2SGreet:
		if _, err := wire.DecodeC2SGreet(f.body); err != nil {
			return err
		}
		return c.writeFrame(wire.TypeS2CGreet, wire.EncodeS2CGreet())

	case wire.TypeC2SMatchCreateOrJoin:
		m, err := wire.DecodeMatchCreateOrJoin(f.body)
		if err != nil {
			return err
		}
		if m.IsJoin() {
			return c.handleJoin(m.Passcode)
		}
		return c.handleCreate(m)

	case wire.TypeC2SMatchCancel:
		return c.writeFrame(wire.TypeS2CMatchCancelResult, wire.EncodeMatchCancelResult(false))

	case wire.TypeC2SForfeit:
		return nil // silently ignored per spec.md §4.4

	case wire.TypeC2SMatchListRequest:
		return c.replyMatchList(nil)

	default:
		return errors.Wrapf(wire.ErrInvalidData, "message type %s illegal in Idle", f.typ)
	}
}

func (c *Conn) handleCreate(m wire.MatchCreateOrJoin) error {
	if m.Variant != wire.VariantRandom && !c.cfg.AllowedVariants()[int64(m.Variant)] {
		return errors.Wrapf(wire.ErrInvalidData, "variant %d not in the allowed set", int64(m.Variant))
	}
	if m.Visibility == wire.VisibilityPublic && c.cfg.BanPublicMatch {
		return errors.Wrap(wire.ErrInvalidData, "public matches are banned")
	}
	if m.Visibility == wire.VisibilityPrivate && c.cfg.BanPrivateMatch {
		return errors.Wrap(wire.ErrInvalidData, "private matches are banned")
	}

	pair := rendezvous.New()
	wm, err := c.state.CreateWaiting(m.Color, m.Clock, m.Variant, m.Visibility, pair)
	if err != nil {
		metrics.ConnectionsRejected.WithLabelValues("match_limit").Inc()
		return errors.Wrap(wire.ErrInvalidData, err.Error())
	}

	c.m = &match{
		matchID:     wm.MatchID,
		passcode:    wm.Passcode,
		colorChoice: m.Color,
		clock:       m.Clock,
		variant:     m.Variant,
		visibility:  m.Visibility,
		isHost:      true,
		endpoint:    pair.HostSide(),
	}
	c.setPhase(PhaseWaiting)

	result := wire.MatchCreateOrJoinResult{
		Ok: true,
		Settings: wire.MatchSettings{
			Color: m.Color, Clock: m.Clock, Variant: m.Variant,
			Visibility: m.Visibility, Passcode: wm.Passcode, MatchID: wm.MatchID,
		},
	}
	return c.writeFrame(wire.TypeS2CMatchCreateOrJoinResult, wire.EncodeMatchCreateOrJoinResult(result))
}

func (c *Conn) handleJoin(passcode int64) error {
	wm, ok := c.state.TakeWaiting(passcode)
	if !ok {
		return c.writeFrame(wire.TypeS2CMatchCreateOrJoinResult, wire.EncodeMatchCreateOrJoinResult(wire.MatchCreateOrJoinResult{Ok: false}))
	}

	joinerEndpoint := wm.HostJoin.JoinerSide()
	select {
	case joinerEndpoint.Tx() <- rendezvous.Event{Kind: rendezvous.EventJoin}:
	case <-c.state.Quit():
		return errors.New("shutdown while joining")
	}

	ev, ok := <-joinerEndpoint.Rx()
	if !ok || ev.Kind != rendezvous.EventMatchStart {
		return errors.Wrap(wire.ErrInvalidData, "host disappeared before match start")
	}
	info := ev.MatchStart

	c.m = &match{
		matchID:    info.MatchID,
		passcode:   passcode,
		color:      info.Color,
		clock:      info.Clock,
		variant:    info.Variant,
		visibility: wm.Visibility,
		isHost:     false,
		endpoint:   joinerEndpoint,
	}
	c.setPhase(PhasePlaying)
	c.state.RecordMatchStart(info.MatchID, info.Clock, info.Variant, wm.Visibility)

	result := wire.MatchCreateOrJoinResult{
		Ok: true,
		Settings: wire.MatchSettings{
			Color: colorToOpt(info.Color), Clock: info.Clock, Variant: info.Variant,
			Visibility: wm.Visibility, Passcode: passcode, MatchID: info.MatchID,
		},
	}
	if err := c.writeFrame(wire.TypeS2CMatchCreateOrJoinResult, wire.EncodeMatchCreateOrJoinResult(result)); err != nil {
		return err
	}
	start := wire.MatchStart{Clock: info.Clock, Variant: info.Variant, MatchID: info.MatchID, Color: info.Color, MessageID: info.MessageID}
	return c.writeFrame(wire.TypeS2CMatchStart, wire.EncodeMatchStart(start))
}

func colorToOpt(c wire.Color) wire.ColorOpt {
	if c == wire.ColorWhite {
		return wire.ColorOptWhite
	}
	return wire.ColorOptBlack
}

func (c *Conn) handleWaiting(f frame) error {
	switch f.typ {
	case wire.TypeC2SMatchCancel:
		c.state.CancelWaiting(c.m.passcode)
		c.m.endpoint.Close()
		c.m = nil
		c.setPhase(PhaseIdle)
		return c.writeFrame(wire.TypeS2CMatchCancelResult, wire.EncodeMatchCancelResult(true))

	case wire.TypeC2SMatchListRequest:
		return c.replyMatchList(&matchlist.HostView{
			Color: c.m.colorChoice, Clock: c.m.clock, Variant: c.m.variant, Passcode: c.m.passcode,
		})

	default:
		return errors.Wrapf(wire.ErrInvalidData, "message type %s illegal in Waiting", f.typ)
	}
}

// handleRendezvous processes one internal event while Waiting or
// Playing.
func (c *Conn) handleRendezvous(ev rendezvous.Event) error {
	switch c.phase {
	case PhaseWaiting:
		return c.handleWaitingRendezvous(ev)
	case PhasePlaying:
		return c.handlePlayingRendezvous(ev)
	default:
		return errors.Errorf("unreachable: rendezvous event in phase %s", c.phase)
	}
}

func (c *Conn) handleWaitingRendezvous(ev rendezvous.Event) error {
	if ev.Kind != rendezvous.EventJoin {
		return errors.Wrap(wire.ErrInvalidData, "unexpected internal event while Waiting")
	}

	resolvedVariant := c.m.variant
	if resolvedVariant == wire.VariantRandom {
		resolvedVariant = pickVariant(c.cfg.AllowedVariants())
	}

	hostColor := wire.ColorWhite
	switch c.m.colorChoice {
	case wire.ColorOptWhite:
		hostColor = wire.ColorWhite
	case wire.ColorOptBlack:
		hostColor = wire.ColorBlack
	default: // None or Random: both resolve to a uniform coin flip
		hostColor = pickColor()
	}
	joinerColor := hostColor.Opposite()

	elapsed := uint64(c.state.Elapsed())
	c.m.color = hostColor
	c.m.variant = resolvedVariant
	c.setPhase(PhasePlaying)

	select {
	case c.m.endpoint.Tx() <- rendezvous.Event{Kind: rendezvous.EventMatchStart, MatchStart: rendezvous.MatchStartInfo{
		MatchID: c.m.matchID, Clock: c.m.clock, Variant: resolvedVariant, Color: joinerColor, MessageID: elapsed,
	}}:
	case <-c.state.Quit():
		return errors.New("shutdown while starting match")
	}

	start := wire.MatchStart{Clock: c.m.clock, Variant: resolvedVariant, MatchID: c.m.matchID, Color: hostColor, MessageID: elapsed}
	return c.writeFrame(wire.TypeS2CMatchStart, wire.EncodeMatchStart(start))
}

func (c *Conn) replyMatchList(host *matchlist.HostView) error {
	ml := matchlist.Build(c.state, host)
	return c.writeFrame(wire.TypeS2CMatchList, wire.EncodeMatchList(ml))
}

func (c *Conn) handlePlaying(f frame) error {
	switch f.typ {
	case wire.TypeC2SForfeit:
		select {
		case c.m.endpoint.Tx() <- rendezvous.Event{Kind: rendezvous.EventForfeit}:
		case <-c.state.Quit():
		}
		c.state.CompleteMatch(c.m.matchID)
		c.m.endpoint.Close()
		c.m = nil
		c.setPhase(PhaseIdle)
		return nil

	case wire.TypeAction:
		a, err := wire.DecodeAction(f.body)
		if err != nil {
			return err
		}
		if a.ActionType == wire.ActionResetPuzzle && c.cfg.BanResetPuzzle {
			return errors.Wrap(wire.ErrInvalidData, "reset-puzzle actions are banned")
		}
		a.MessageID = uint64(c.state.Elapsed())

		select {
		case c.m.endpoint.Tx() <- rendezvous.Event{Kind: rendezvous.EventAction, Action: a}:
		case <-c.state.Quit():
			return errors.New("shutdown while relaying action")
		}
		metrics.ActionsRelayed.Inc()
		return c.writeFrame(wire.TypeAction, wire.EncodeAction(a))

	case wire.TypeC2SMatchListRequest:
		return c.replyMatchList(nil)

	default:
		return errors.Wrapf(wire.ErrInvalidData, "message type %s illegal in Playing", f.typ)
	}
}

func (c *Conn) handlePlayingRendezvous(ev rendezvous.Event) error {
	switch ev.Kind {
	case rendezvous.EventAction:
		return c.writeFrame(wire.TypeAction, wire.EncodeAction(ev.Action))

	case rendezvous.EventForfeit:
		c.state.CompleteMatch(c.m.matchID)
		c.m.endpoint.Close()
		c.m = nil
		c.setPhase(PhaseIdle)
		return c.writeFrame(wire.TypeS2COpponentLeft, wire.EncodeEmptyWithPad())

	default:
		return errors.Wrap(wire.ErrInvalidData, "unexpected internal event while Playing")
	}
}
