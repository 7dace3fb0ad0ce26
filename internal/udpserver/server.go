// Package udpserver implements the bounded-concurrency UDP datagram
// pipeline. It binds one socket per listening address, spawns a handler
// goroutine per datagram, and gates concurrent handler execution behind a
// counting semaphore. PoolRuntime does its own locking (internal/pool),
// and the in-flight set here is a sync.WaitGroup plus an atomic counter,
// so no separate mutex is needed to serialize either.
//
// One zap.Logger (named per listen address) per server, graceful
// Close semantics. golang.org/x/sync/semaphore provides the
// bounded-concurrency gate, a sibling package of golang.org/x/sync/errgroup.
package udpserver

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/lion7/radiusd/internal/request"
)

// Backend is the subset of backend.Backend the server needs, expressed as
// an interface so the server package never imports the backend package
// directly and stays limited to the shared request types.
type Backend interface {
	HandleRequest(ctx context.Context, req request.Packet, host string, port int) request.BackendResult
}

// Decoder turns a raw datagram into a request.Packet. Decode errors are
// signaled by returning a non-nil error; the server treats them as a
// malformed datagram: logged at WARN, no reply sent.
type Decoder func(data []byte) (request.Packet, error)

// Encoder derives the reply authenticator/id from req and packs
// replyCode/replyAttrs into a wire payload.
type Encoder func(replyCode uint8, replyAttrs *request.OrderedMap, req request.Packet) ([]byte, error)

// Metrics is the subset of healthz.Metrics the listener records to. nil is
// valid: a Server with no Metrics simply records nothing.
type Metrics interface {
	ReceivedInc(code int)
	DiscardedInc(reason string)
	ReplySentInc(code uint8)
}

// Config is the listener configuration for one socket.
type Config struct {
	Host          string
	Port          int
	MaxConcurrent int
}

func (c Config) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Server is one bound UDP socket plus its bounded-concurrency gate and
// in-flight handler tracking.
type Server struct {
	conn     *net.UDPConn
	gate     *semaphore.Weighted
	wg       sync.WaitGroup
	inFlight atomic.Int64
	closed   atomic.Bool

	backend Backend
	decode  Decoder
	encode  Encoder
	metrics Metrics
	logger  *zap.Logger
}

// Start binds the configured address and begins the per-datagram read
// loop in a background goroutine. Bind failures propagate as fatal
// startup errors. metrics may be nil.
func Start(cfg Config, backend Backend, decode Decoder, encode Encoder, metrics Metrics, logger *zap.Logger) (*Server, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", cfg.addr())
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", cfg.addr(), err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", cfg.addr(), err)
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	s := &Server{
		conn:    conn,
		gate:    semaphore.NewWeighted(int64(maxConcurrent)),
		backend: backend,
		decode:  decode,
		encode:  encode,
		metrics: metrics,
		logger:  logger.Named(cfg.addr()),
	}

	s.wg.Add(1)
	go s.readLoop()

	s.logger.Info("udp listener started", zap.String("addr", cfg.addr()), zap.Int("max_concurrent", maxConcurrent))
	return s, nil
}

// readLoop receives datagrams and spawns a handler goroutine per
// datagram. It never drops an inbound datagram itself: backpressure is
// applied only at the handler's semaphore acquisition. The loop exits
// when the socket is closed.
func (s *Server) readLoop() {
	defer s.wg.Done()
	buf := make([]byte, 4096)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.logger.Warn("read error", zap.Error(err))
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])

		s.wg.Add(1)
		s.inFlight.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.inFlight.Add(-1)
			s.handle(payload, addr)
		}()
	}
}

func (s *Server) handle(payload []byte, addr *net.UDPAddr) {
	ctx := context.Background()

	if err := s.gate.Acquire(ctx, 1); err != nil {
		// Only happens if ctx is canceled, which context.Background()
		// never is; kept for correctness if this is later threaded
		// through a shutdown-aware context.
		return
	}
	defer s.gate.Release(1)

	req, err := s.decode(payload)
	if err != nil {
		s.logger.Warn("failed to decode datagram", zap.Stringer("from", addr), zap.Error(err))
		if s.metrics != nil {
			s.metrics.DiscardedInc("decode_error")
		}
		return
	}
	if s.metrics != nil {
		s.metrics.ReceivedInc(req.Code())
	}

	result := s.backend.HandleRequest(ctx, req, addr.IP.String(), addr.Port)
	if result.ReplyCode == nil || result.ReplyAttributes == nil {
		if s.metrics != nil {
			s.metrics.DiscardedInc("no_reply")
		}
		return
	}

	out, err := s.encode(*result.ReplyCode, result.ReplyAttributes, req)
	if err != nil {
		s.logger.Warn("failed to encode reply", zap.Stringer("to", addr), zap.Error(err))
		return
	}

	if _, err := s.conn.WriteToUDP(out, addr); err != nil {
		s.logger.Warn("failed to send reply", zap.Stringer("to", addr), zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.ReplySentInc(*result.ReplyCode)
	}
}

// InFlight reports the number of handlers spawned and not yet finished,
// including those still waiting for a semaphore permit (mostly for the
// health/metrics surface).
func (s *Server) InFlight() int64 {
	return s.inFlight.Load()
}

// Addr returns the bound local address, useful when Config.Port is 0 and
// the OS assigns an ephemeral port.
func (s *Server) Addr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Close closes the transport (no further datagrams delivered) and waits
// for all in-flight handlers to finish. Idempotent: a second Close is a
// no-op.
func (s *Server) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timed out waiting for in-flight handlers on %s", s.logger.Name())
	}
}
