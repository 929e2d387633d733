package endpoint

import (
	"bufio"
	"errors"
	"net"
	"sync"

	"github.com/danmuck/jsonwire/internal/observability"
	"github.com/danmuck/jsonwire/internal/wire"
	"github.com/rs/zerolog"
)

// connWorker owns one live connection: one reader loop, one writer loop.
// The socket is touched by no other goroutine. Closure of either loop closes
// the socket, which unblocks the other.
type connWorker struct {
	id     string
	remote string
	conn   net.Conn
	opts   wire.Options

	egress chan []byte
	done   chan struct{}

	closeOnce  sync.Once
	reportOnce sync.Once
	log        zerolog.Logger
}

func newConnWorker(id string, conn net.Conn, opts wire.Options, egressCap int, log zerolog.Logger) *connWorker {
	return &connWorker{
		id:     id,
		remote: conn.RemoteAddr().String(),
		conn:   conn,
		opts:   opts,
		egress: make(chan []byte, egressCap),
		done:   make(chan struct{}),
		log:    log,
	}
}

func (w *connWorker) close() {
	w.closeOnce.Do(func() {
		close(w.done)
		_ = w.conn.Close()
	})
}

// report delivers the closure signal at most once, whichever loop fails
// first.
func (w *connWorker) report(cb func(error), err error) {
	w.reportOnce.Do(func() {
		cb(err)
	})
}

// enqueue queues one serialized frame for the writer loop, blocking while
// the egress queue is full.
func (w *connWorker) enqueue(payload []byte) error {
	select {
	case <-w.done:
		return wire.ErrConnectionClosed
	case w.egress <- payload:
		return nil
	}
}

// readLoop reassembles frames off the socket and pushes decoded messages
// onto the shared ingress queue. A malformed or undecodable frame is
// connection-fatal: frame boundaries cannot be trusted afterwards, so no
// resynchronization is attempted.
func (w *connWorker) readLoop(name string, ingress chan<- Delivery, onClosed func(error)) {
	defer w.close()
	defer w.report(onClosed, nil)

	br := bufio.NewReader(w.conn)
	for {
		raw, err := wire.ReadFrame(br, w.opts)
		if err != nil {
			// A torn frame is surfaced to the application; a close at a
			// frame boundary is the orderly case.
			if errors.Is(err, wire.ErrTruncated) {
				w.log.Warn().Err(err).Msg("connection lost mid-frame")
				w.report(onClosed, err)
				return
			}
			if errors.Is(err, wire.ErrConnectionClosed) {
				return
			}
			w.log.Warn().Err(err).Msg("inbound frame rejected")
			observability.RecordFrameRejected(name)
			w.report(onClosed, err)
			return
		}
		msg, err := wire.Parse(raw, w.opts)
		if err != nil {
			w.log.Warn().Err(err).Msg("inbound frame rejected")
			observability.RecordFrameRejected(name)
			w.report(onClosed, err)
			return
		}
		observability.RecordFrameReceived(name, len(raw))

		select {
		case ingress <- Delivery{ConnID: w.id, RemoteAddr: w.remote, Message: msg}:
		case <-w.done:
			return
		}
	}
}

// writeLoop drains the egress queue onto the socket.
func (w *connWorker) writeLoop(name string, onClosed func(error)) {
	defer w.close()
	defer w.report(onClosed, nil)

	for {
		select {
		case <-w.done:
			return
		case payload := <-w.egress:
			if _, err := w.conn.Write(payload); err != nil {
				w.log.Warn().Err(err).Msg("outbound frame write failed")
				w.report(onClosed, err)
				return
			}
			observability.RecordFrameSent(name, len(payload))
		}
	}
}
