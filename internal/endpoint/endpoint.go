package endpoint

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/jsonwire/internal/observability"
	"github.com/danmuck/jsonwire/internal/wire"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired   = errors.New("endpoint: address required")
	ErrInvalidRole       = errors.New("endpoint: invalid role")
	ErrNotIdle           = errors.New("endpoint: already started")
	ErrNotRunning        = errors.New("endpoint: not running")
	ErrUnknownConnection = errors.New("endpoint: unknown connection")
	ErrStopTimeout       = errors.New("endpoint: worker join timed out")
)

const (
	stateIdle int32 = iota
	stateRunning
	stateStopped
)

// Delivery is one decoded inbound message with its connection of origin.
// Deliveries on the shared ingress queue preserve per-connection wire order;
// no ordering holds across distinct connections.
type Delivery struct {
	ConnID     string
	RemoteAddr string
	Message    wire.Message
}

// Closure reports one connection's termination. Err is nil when the peer
// closed cleanly or the endpoint shut the connection down.
type Closure struct {
	ConnID     string
	RemoteAddr string
	Err        error
}

// Endpoint is the bidirectional network actor. Server role binds, listens,
// and accepts; client role dials once. Both expose the same ingress/egress
// queues to the application.
type Endpoint struct {
	cfg   Config
	state atomic.Int32

	ln       net.Listener
	ingress  chan Delivery
	closures chan Closure
	done     chan struct{}

	mu    sync.Mutex
	conns map[string]*connWorker

	wg sync.WaitGroup
}

func New(cfg Config) (*Endpoint, error) {
	cfg = cfg.WithDefaults()
	if cfg.Address == "" {
		return nil, ErrAddressRequired
	}
	if cfg.Role != RoleServer && cfg.Role != RoleClient {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, cfg.Role)
	}
	return &Endpoint{
		cfg:      cfg,
		ingress:  make(chan Delivery, cfg.IngressCapacity),
		closures: make(chan Closure, cfg.ClosureCapacity),
		done:     make(chan struct{}),
		conns:    make(map[string]*connWorker),
	}, nil
}

// Run transitions Idle -> Running and returns once background work is
// spawned; it does not block on accepting or receiving.
func (e *Endpoint) Run() error {
	if !e.state.CompareAndSwap(stateIdle, stateRunning) {
		return ErrNotIdle
	}

	switch e.cfg.Role {
	case RoleServer:
		ln, err := net.Listen("tcp", e.cfg.Address)
		if err != nil {
			e.state.Store(stateStopped)
			return err
		}
		e.ln = ln
		log.Info().
			Str("endpoint", e.cfg.Name).
			Str("addr", ln.Addr().String()).
			Msg("endpoint listening")
		e.wg.Add(1)
		go e.acceptLoop(ln)
	case RoleClient:
		conn, err := net.DialTimeout("tcp", e.cfg.Address, e.cfg.ConnectTimeout)
		if err != nil {
			e.state.Store(stateStopped)
			return err
		}
		log.Info().
			Str("endpoint", e.cfg.Name).
			Str("addr", e.cfg.Address).
			Msg("endpoint connected")
		e.startWorker(conn)
	}
	return nil
}

// Addr reports the bound listener address, useful when configured with
// port 0. Nil for client endpoints.
func (e *Endpoint) Addr() net.Addr {
	if e.ln == nil {
		return nil
	}
	return e.ln.Addr()
}

// Recv exposes the shared ingress queue.
func (e *Endpoint) Recv() <-chan Delivery {
	return e.ingress
}

// Closures exposes connection termination signals. Signals are dropped when
// the channel is full rather than blocking connection teardown.
func (e *Endpoint) Closures() <-chan Closure {
	return e.closures
}

// Send serializes (data, blocks) and queues the frame on one connection's
// egress queue. Codec failures surface here, before anything is queued;
// ErrConnectionClosed reports a connection that is gone.
func (e *Endpoint) Send(connID string, data any, blocks []wire.Block) error {
	if e.state.Load() != stateRunning {
		return ErrNotRunning
	}
	e.mu.Lock()
	w, ok := e.conns[connID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}
	payload, err := wire.Serialize(data, blocks, e.cfg.Codec)
	if err != nil {
		return err
	}
	return w.enqueue(payload)
}

// Broadcast sends one message to every live connection. For a client
// endpoint this reaches its single connection.
func (e *Endpoint) Broadcast(data any, blocks []wire.Block) error {
	if e.state.Load() != stateRunning {
		return ErrNotRunning
	}
	payload, err := wire.Serialize(data, blocks, e.cfg.Codec)
	if err != nil {
		return err
	}
	e.mu.Lock()
	workers := make([]*connWorker, 0, len(e.conns))
	for _, w := range e.conns {
		workers = append(workers, w)
	}
	e.mu.Unlock()

	var errs []error
	for _, w := range workers {
		if err := w.enqueue(payload); err != nil {
			errs = append(errs, fmt.Errorf("conn %s: %w", w.id, err))
		}
	}
	return errors.Join(errs...)
}

// Connections lists live connection ids.
func (e *Endpoint) Connections() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.conns))
	for id := range e.conns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Stop transitions to Stopped: closes the listener and every connection,
// then joins all worker loops with a bounded wait. Items still queued are
// discarded.
func (e *Endpoint) Stop() error {
	if e.state.CompareAndSwap(stateIdle, stateStopped) {
		return nil
	}
	if !e.state.CompareAndSwap(stateRunning, stateStopped) {
		return nil
	}

	close(e.done)
	if e.ln != nil {
		_ = e.ln.Close()
	}
	e.mu.Lock()
	workers := make([]*connWorker, 0, len(e.conns))
	for _, w := range e.conns {
		workers = append(workers, w)
	}
	e.mu.Unlock()
	for _, w := range workers {
		w.close()
	}

	joined := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(joined)
	}()
	select {
	case <-joined:
		log.Info().Str("endpoint", e.cfg.Name).Msg("endpoint stopped")
		return nil
	case <-time.After(e.cfg.ShutdownTimeout):
		log.Warn().Str("endpoint", e.cfg.Name).Msg("endpoint stop timed out joining workers")
		return ErrStopTimeout
	}
}

func (e *Endpoint) acceptLoop(ln net.Listener) {
	defer e.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-e.done:
				return
			default:
			}
			log.Warn().Str("endpoint", e.cfg.Name).Err(err).Msg("accept failed")
			return
		}
		e.startWorker(conn)
	}
}

func (e *Endpoint) startWorker(conn net.Conn) {
	id := uuid.NewString()
	wlog := log.With().
		Str("endpoint", e.cfg.Name).
		Str("conn_id", id).
		Str("remote", conn.RemoteAddr().String()).
		Logger()
	w := newConnWorker(id, conn, e.cfg.Codec, e.cfg.EgressCapacity, wlog)

	// Registration and the running-state check share the mutex with Stop's
	// worker snapshot, so a connection accepted during shutdown is either
	// closed here or included in the snapshot Stop closes.
	e.mu.Lock()
	if e.state.Load() != stateRunning {
		e.mu.Unlock()
		wlog.Debug().Msg("connection refused: endpoint stopping")
		_ = conn.Close()
		return
	}
	e.conns[id] = w
	e.mu.Unlock()
	observability.ConnOpened(e.cfg.Name)
	wlog.Info().Msg("connection open")

	onClosed := func(err error) {
		e.mu.Lock()
		delete(e.conns, id)
		e.mu.Unlock()
		observability.ConnClosed(e.cfg.Name)
		if err != nil {
			wlog.Warn().Err(err).Msg("connection closed")
		} else {
			wlog.Info().Msg("connection closed")
		}
		select {
		case e.closures <- Closure{ConnID: id, RemoteAddr: w.remote, Err: err}:
		default:
			wlog.Debug().Msg("closure signal dropped: channel full")
		}
	}

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		w.readLoop(e.cfg.Name, e.ingress, onClosed)
	}()
	go func() {
		defer e.wg.Done()
		w.writeLoop(e.cfg.Name, onClosed)
	}()
}
