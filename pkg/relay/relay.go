// Package relay runs the TCP accept loop that turns raw sockets into
// conn.Conn tasks, and the periodic registry-size sampler that keeps
// pkg/metrics current.
package relay

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/5dchess/5dcserver/pkg/conn"
	"github.com/5dchess/5dcserver/pkg/metrics"
	"github.com/5dchess/5dcserver/pkg/state"
)

// sampleInterval is how often the registry gauges are refreshed,
// following the teacher's ping-timer idiom of a fixed-interval
// background tick rather than a push on every mutation.
const sampleInterval = 2 * time.Second

// Server owns the listening sockets and the set of accepted
// connections' lifetime; it has no knowledge of the wire protocol
// itself, which lives entirely in pkg/conn.
type Server struct {
	state *state.Server
	log   *zap.Logger

	lnMu sync.Mutex
	lns  []net.Listener

	quit     chan struct{}
	quitOnce sync.Once
}

// New constructs a Server bound to no sockets yet; call Start to
// listen and begin accepting.
func New(s *state.Server, log *zap.Logger) *Server {
	return &Server{
		state: s,
		log:   log,
		quit:  make(chan struct{}),
	}
}

// Start binds one listener per address in addrs, all on port, and runs
// an accept loop for each until Shutdown is called or a listener
// errors. It blocks until every accept loop returns, matching the
// teacher's Server.Start/run blocking shape generalized to multiple
// configured bind addresses (spec.md §6's addr: list<string>).
func (r *Server) Start(addrs []string, port int) error {
	if len(addrs) == 0 {
		return errors.New("no bind addresses configured")
	}

	lns := make([]net.Listener, 0, len(addrs))
	for _, addr := range addrs {
		ln, err := net.Listen("tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
		if err != nil {
			for _, opened := range lns {
				_ = opened.Close()
			}
			return errors.Wrapf(err, "listen on %s", addr)
		}
		r.log.Info("relay listening", zap.String("addr", ln.Addr().String()))
		lns = append(lns, ln)
	}

	r.lnMu.Lock()
	r.lns = lns
	r.lnMu.Unlock()

	go r.sampleRegistries()
	go r.watchShutdown()

	var wg sync.WaitGroup
	errs := make([]error, len(lns))
	for i, ln := range lns {
		wg.Add(1)
		go func(i int, ln net.Listener) {
			defer wg.Done()
			errs[i] = r.run(ln)
		}(i, ln)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Server) run(ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-r.state.Quit():
				return nil
			default:
			}
			select {
			case <-r.quit:
				return nil
			default:
			}
			return errors.Wrap(err, "accept")
		}
		c := conn.New(nc, r.state, r.log)
		go c.Run()
	}
}

// watchShutdown closes every listener the moment the shared state
// signals shutdown, unblocking each Accept the same way the teacher
// closes its transport in Server.run's quit case.
func (r *Server) watchShutdown() {
	select {
	case <-r.state.Quit():
		r.closeListeners()
	case <-r.quit:
	}
}

// Shutdown stops every accept loop. It does not forcibly close already
// accepted connections; those drain on their own via state.Server's
// shutdown broadcast, which every conn.Conn already selects on.
func (r *Server) Shutdown() {
	r.log.Info("relay shutting down",
		zap.Int("waiting", r.state.WaitingCount()),
		zap.Int("public", r.state.PublicCount()))
	r.quitOnce.Do(func() { close(r.quit) })
	r.closeListeners()
}

func (r *Server) closeListeners() {
	r.lnMu.Lock()
	defer r.lnMu.Unlock()
	for _, ln := range r.lns {
		_ = ln.Close()
	}
}

// sampleRegistries periodically pushes registry sizes into the
// waiting/public gauges until shutdown.
func (r *Server) sampleRegistries() {
	t := time.NewTicker(sampleInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			metrics.WaitingMatches.Set(float64(r.state.WaitingCount()))
			metrics.PublicMatches.Set(float64(r.state.PublicCount()))
		case <-r.state.Quit():
			return
		case <-r.quit:
			return
		}
	}
}
