// Package server runs the archive's TCP front end: it accepts connections,
// decodes one request per connection, hands processing to the worker pool,
// and writes the response. Shutdown is cooperative through a polled stop
// flag checked between connections.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jkatz326/ngram/internal/analytics"
	"github.com/jkatz326/ngram/internal/archive"
	"github.com/jkatz326/ngram/internal/archive/cache"
	"github.com/jkatz326/ngram/internal/pool"
	"github.com/jkatz326/ngram/internal/wire"
	"github.com/jkatz326/ngram/pkg/config"
	"github.com/jkatz326/ngram/pkg/metrics"
)

// State is the server lifecycle phase.
type State int32

const (
	StateCreated State = iota
	StateListening
	StateStopping
	StateStopped
)

const defaultPollInterval = 500 * time.Millisecond

// Options carries the server's optional collaborators. Any field may be nil.
type Options struct {
	Cache     *cache.SearchCache
	Collector *analytics.Collector
	Metrics   *metrics.Metrics
}

// Server owns the shared state every connection touches: the document
// store, the worker pool, and the stop flag. It is shared by reference
// between the accept goroutine and every worker task, never global.
type Server struct {
	cfg       config.ServerConfig
	store     *archive.Store
	workers   *pool.Pool
	cache     *cache.SearchCache
	collector *analytics.Collector
	metrics   *metrics.Metrics
	logger    *slog.Logger

	stopped atomic.Bool
	state   atomic.Int32

	mu sync.Mutex
	ln net.Listener
}

// New creates a Server over the given store and worker pool.
func New(cfg config.ServerConfig, store *archive.Store, workers *pool.Pool, opts Options) *Server {
	return &Server{
		cfg:       cfg,
		store:     store,
		workers:   workers,
		cache:     opts.Cache,
		collector: opts.Collector,
		metrics:   opts.Metrics,
		logger:    slog.Default().With("component", "server"),
	}
}

// Run binds the listener and serves until Stop is called. A bind failure is
// fatal and returned immediately; it is never retried. Run blocks the
// calling goroutine, polling the stop flag at the configured interval, so
// shutdown latency is bounded by that interval rather than instantaneous.
func (s *Server) Run() error {
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateListening)) {
		return fmt.Errorf("server already started")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		s.state.Store(int32(StateStopped))
		return fmt.Errorf("binding %s: %w", s.cfg.Addr(), err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info("server listening", "addr", ln.Addr().String())

	go s.acceptLoop(ln)

	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for !s.stopped.Load() {
		<-ticker.C
	}

	s.state.Store(int32(StateStopping))
	s.logger.Info("server stopping")
	ln.Close()
	// Already-submitted tasks still complete and respond.
	s.workers.Stop()
	s.state.Store(int32(StateStopped))
	s.logger.Info("server stopped")
	return nil
}

// Stop sets the stop flag. It is idempotent and safe to call from any
// goroutine, including a signal handler's, concurrently with itself.
func (s *Server) Stop() {
	s.stopped.Store(true)
}

// State returns the current lifecycle phase.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Addr returns the bound listener address, or nil before Run has bound it.
// With port 0 this is how tests learn the assigned port.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// acceptLoop blocks on accept and hands each connection to the pool. The
// stop flag is re-checked before every hand-off, so shutdown takes effect
// between connections, never in the middle of one.
func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if s.stopped.Load() {
			if err == nil {
				conn.Close()
			}
			return
		}
		if err != nil {
			s.logger.Error("accept failed", "error", err)
			continue
		}
		if s.metrics != nil {
			s.metrics.ConnectionsTotal.Inc()
		}
		if err := s.workers.Submit(func() { s.handleConn(conn) }); err != nil {
			conn.Close()
			return
		}
		if s.metrics != nil {
			s.metrics.PoolQueueDepth.Set(float64(s.workers.QueueLen()))
		}
	}
}

// handleConn performs one request/response exchange and closes the
// connection. Every error here is contained: logged, answered with Failure
// where possible, and never propagated to the accept loop.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	start := time.Now()

	if s.cfg.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	req, err := wire.DecodeRequest(conn)
	if err != nil {
		s.logger.Debug("request decode failed", "remote", conn.RemoteAddr().String(), "error", err)
		s.observe("invalid", "failure", start)
		s.track(analytics.RequestEvent{Type: analytics.EventInvalid, Status: "failure"}, start)
		s.writeResponse(conn, wire.Failure{})
		return
	}

	resp, kind, event := s.dispatch(req)
	status := "ok"
	if _, failed := resp.(wire.Failure); failed {
		status = "failure"
	}
	event.Status = status
	s.observe(kind, status, start)
	s.track(event, start)

	s.writeResponse(conn, resp)
}

// dispatch routes a decoded request to the document store.
func (s *Server) dispatch(req wire.Request) (wire.Response, string, analytics.RequestEvent) {
	ctx := context.Background()
	switch r := req.(type) {
	case wire.Publish:
		id := s.store.Publish(r.Text)
		terms := archive.Tokenize(r.Text)
		if s.cache != nil {
			s.cache.InvalidateTerms(ctx, terms)
		}
		if s.metrics != nil {
			s.metrics.DocsPublishedTotal.Inc()
			s.metrics.TermsIndexedTotal.Add(float64(len(terms)))
		}
		s.logger.Debug("document published", "id", id, "terms", len(terms))
		return wire.PublishSuccess{ID: id}, "publish",
			analytics.RequestEvent{Type: analytics.EventPublish, DocID: id}

	case wire.Search:
		word := archive.Normalize(r.Word)
		var ids []uint64
		if s.cache != nil {
			cached := false
			ids, cached = s.cache.GetOrCompute(ctx, word, func() []uint64 {
				return s.store.Search(word)
			})
			if s.metrics != nil {
				if cached {
					s.metrics.CacheHitsTotal.Inc()
				} else {
					s.metrics.CacheMissesTotal.Inc()
				}
			}
		} else {
			ids = s.store.Search(word)
		}
		if s.metrics != nil {
			s.metrics.SearchResultsCount.Observe(float64(len(ids)))
		}
		return wire.SearchSuccess{IDs: ids}, "search",
			analytics.RequestEvent{Type: analytics.EventSearch, Word: word, Results: len(ids)}

	case wire.Retrieve:
		event := analytics.RequestEvent{Type: analytics.EventRetrieve, DocID: r.ID}
		text, err := s.store.Retrieve(r.ID)
		if err != nil {
			// Not an error: a well-formed request whose answer is Failure.
			return wire.Failure{}, "retrieve", event
		}
		return wire.RetrieveSuccess{Text: text}, "retrieve", event

	default:
		return wire.Failure{}, "invalid",
			analytics.RequestEvent{Type: analytics.EventInvalid}
	}
}

func (s *Server) writeResponse(conn net.Conn, resp wire.Response) {
	if s.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if _, err := conn.Write(wire.EncodeResponse(resp)); err != nil {
		s.logger.Warn("response write failed", "remote", conn.RemoteAddr().String(), "error", err)
	}
}

func (s *Server) observe(kind, status string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RequestsTotal.WithLabelValues(kind, status).Inc()
	s.metrics.RequestDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func (s *Server) track(event analytics.RequestEvent, start time.Time) {
	if s.collector == nil {
		return
	}
	event.LatencyMs = time.Since(start).Milliseconds()
	event.Timestamp = time.Now().UTC()
	s.collector.Track(event)
}
