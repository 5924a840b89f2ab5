/*
 * Copyright 2024 caiflower Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caiflower/staticd/pkg/cache"
	"github.com/caiflower/staticd/pkg/crontab"
	"github.com/caiflower/staticd/pkg/limiter"
	golocalv1 "github.com/caiflower/staticd/pkg/golocal/v1"
	"github.com/caiflower/staticd/pkg/logger"
	"github.com/caiflower/staticd/pkg/pool"
	"github.com/caiflower/staticd/pkg/safego"
	"github.com/caiflower/staticd/pkg/tools"
	"github.com/caiflower/staticd/web/protocol"
	"github.com/caiflower/staticd/web/resource"
	"github.com/caiflower/staticd/web/server/config"
	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"
)

const (
	ServerName = "staticd"

	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

var ErrServerClosed = errors.New("server closed")

// Stats is a point-in-time snapshot, logged periodically by the stats job.
type Stats struct {
	Accepted     int64 `json:"accepted"`
	Served       int64 `json:"served"`
	Failed       int64 `json:"failed"`
	Rejected     int64 `json:"rejected"`
	Limited      int64 `json:"limited"`
	Active       int   `json:"active"`
	Queued       int   `json:"queued"`
	CacheEntries int   `json:"cacheEntries"`
	CacheHits    int64 `json:"cacheHits"`
	CacheMisses  int64 `json:"cacheMisses"`
}

// Server accepts TCP connections and hands each one to the worker pool. One
// worker owns a connection end to end: decode, route, respond, close.
type Server struct {
	options  *config.Options
	logger   logger.ILog
	resolver *resource.Resolver
	cache    *cache.FileCache
	router   *Router
	pool     *pool.WorkerPool
	limiter  limiter.Limiter
	metric   *HttpMetric
	metrics  *metricServer
	cron     *crontab.CronManger
	statsJob cron.EntryID

	lock       sync.Mutex
	ln         net.Listener
	started    bool
	closed     bool
	acceptDone chan struct{}
	// accepted connections no worker has picked up yet
	queued sync.Map

	accepted int64
	served   int64
	failed   int64
	rejected int64
	limited  int64
}

// NewServer validates the root directory and builds the worker pool. Options
// are used as given: defaults come from config.NewOptions or the yaml loader.
// A nil options means all defaults.
func NewServer(options *config.Options) (*Server, error) {
	if options == nil {
		options = config.NewOptions(nil)
	}

	s := &Server{
		options:    options,
		logger:     logger.DefaultLogger(),
		cron:       crontab.DefaultCronManger,
		acceptDone: make(chan struct{}),
	}

	resolverOpts := []resource.Option{resource.WithLogger(s.logger), resource.WithNotFoundPage(options.NotFoundPage)}
	if options.Cache.Enable {
		s.cache = cache.NewFileCache(options.Cache)
		resolverOpts = append(resolverOpts, resource.WithCache(s.cache))
	}
	resolver, err := resource.NewResolver(options.Root, resolverOpts...)
	if err != nil {
		return nil, fmt.Errorf("root %s: %w", options.Root, err)
	}
	s.resolver = resolver
	s.router = NewRouter(resolver)

	p, err := pool.New(options.Workers, pool.WithName(options.Name), pool.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.pool = p
	s.metric = NewHttpMetric(options.Name, p.Pending)
	s.limiter = limiter.New(options.Limiter)

	return s, nil
}

func (s *Server) Name() string {
	return fmt.Sprintf("STATIC_SERVER:%s", s.options.Name)
}

// Start binds host:port and returns once the listener is up. Connections are
// accepted in the background.
func (s *Server) Start() error {
	lc := s.options.ListenConfig
	if lc == nil {
		lc = &net.ListenConfig{}
	}
	ln, err := lc.Listen(context.Background(), "tcp", s.options.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.options.Addr(), err)
	}
	if err = s.Serve(ln); err != nil {
		_ = ln.Close()
		return err
	}
	return nil
}

// Serve accepts connections from ln in the background. It may be called once.
func (s *Server) Serve(ln net.Listener) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return ErrServerClosed
	}
	if s.started {
		return errors.New("server already started")
	}

	if s.options.MetricsAddr != "" {
		m := newMetricServer(s.options.MetricsAddr, s.metric.Handler(), s.logger)
		if err := m.Start(); err != nil {
			return fmt.Errorf("metrics listen %s: %w", s.options.MetricsAddr, err)
		}
		s.metrics = m
	}

	if s.cache != nil && s.options.Cache.Preload {
		n, err := s.resolver.Preload()
		if err != nil {
			s.logger.Warn("preload %s: %v", s.resolver.Root(), err)
		}
		s.logger.Info("preloaded %d files into the content cache", n)
	}

	if s.options.StatsCron != "" && s.cron != nil {
		id, err := s.cron.AddFunc(s.options.StatsCron, s.logStats)
		if err == nil {
			s.statsJob = id
		}
	}

	s.ln = ln
	s.started = true
	s.logger.Info(
		"\n***************************** static server startup ***********************************\n"+
			"************* [name:%s] [root:%s] [workers:%d] listening on http://%s *********\n"+
			"****************************************************************************************",
		s.options.Name, s.resolver.Root(), s.pool.Size(), ln.Addr())

	safego.Go(func() {
		s.acceptLoop(ln)
	})
	return nil
}

// Addr is the bound listener address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) Metric() *HttpMetric {
	return s.metric
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer close(s.acceptDone)

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = minAcceptDelay
	retry.MaxInterval = maxAcceptDelay
	retry.MaxElapsedTime = 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			delay := retry.NextBackOff()
			s.logger.Warn("accept error: %v; retrying in %v", err, delay)
			time.Sleep(delay)
			continue
		}
		retry.Reset()
		atomic.AddInt64(&s.accepted, 1)

		s.queued.Store(conn, struct{}{})
		c := conn
		if err = s.pool.Execute(func() { s.handleConnection(c) }); err != nil {
			s.queued.Delete(conn)
			atomic.AddInt64(&s.rejected, 1)
			s.logger.Warn("drop connection from %s: %v", conn.RemoteAddr(), err)
			_ = conn.Close()
		}
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	s.queued.Delete(conn)
	start := time.Now()

	golocalv1.PutTraceID(tools.UUID())
	golocalv1.Put(golocalv1.RemoteAddr, conn.RemoteAddr().String())
	defer golocalv1.Clean()
	defer conn.Close()

	s.metric.activeConnections.Inc()
	defer s.metric.activeConnections.Dec()

	if s.options.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(start.Add(s.options.ReadTimeout))
	}
	decoder := protocol.NewDecoder(conn,
		protocol.WithMaxHeaderBytes(s.options.MaxHeaderBytes),
		protocol.WithMaxBodySize(s.options.MaxRequestBodySize))
	req, err := decoder.Decode()
	if err != nil {
		if !protocol.IsMalformed(err) {
			if errors.Is(err, protocol.ErrEmptyRequest) {
				s.logger.Debug("%s closed without a request", conn.RemoteAddr())
			} else {
				s.logger.Warn("read request from %s: %v", conn.RemoteAddr(), err)
			}
			atomic.AddInt64(&s.failed, 1)
			s.metric.connectionError("read")
			return
		}
		s.logger.Warn("malformed request from %s: %v", conn.RemoteAddr(), err)
		req = nil
	}

	var (
		resp  *protocol.Response
		label string
	)
	if s.limiter != nil && !s.limiter.TakeTokenNonBlocking() {
		atomic.AddInt64(&s.limited, 1)
		resp, label = protocol.NewTextResponse(protocol.StatusServiceUnavailable, nil, ""), "limited"
	} else {
		resp, label = s.router.Handle(req)
	}
	if req != nil && s.options.Compress {
		acceptEncoding, _ := req.Header(protocol.HeaderAcceptEncoding)
		if _, err = compressResponse(resp, acceptEncoding, s.options.MinCompressSize); err != nil {
			s.logger.Warn("compress response: %v", err)
		}
	}
	resp.SetHeader(protocol.HeaderConnection, "close")
	resp.SetHeader(protocol.HeaderServer, ServerName)

	if s.options.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.options.WriteTimeout))
	}
	if _, err = resp.WriteTo(conn); err != nil {
		s.logger.Warn("write response to %s: %v", conn.RemoteAddr(), err)
		atomic.AddInt64(&s.failed, 1)
		s.metric.connectionError("write")
		return
	}
	atomic.AddInt64(&s.served, 1)

	method, target, version := protocol.MethodUninitialized.String(), "-", protocol.VersionUninitialized.String()
	if req != nil {
		method, target, version = req.Method.String(), req.Resource.String(), req.Version.String()
	}
	cost := time.Since(start)
	s.metric.saveMetric(resp.StatusCode, method, label, cost)
	s.logger.Info("%s %s %s -> %d %s %dB %v", method, target, version, resp.StatusCode, label, resp.ContentLength(), cost)
}

func (s *Server) isClosed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.closed
}

// Close stops accepting, lets running connections finish and closes the ones
// still waiting for a worker.
func (s *Server) Close() {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return
	}
	s.closed = true
	ln, started, statsJob := s.ln, s.started, s.statsJob
	s.lock.Unlock()

	s.logger.Info("      **** static server shutdown ****")
	if ln != nil {
		if err := ln.Close(); err != nil {
			s.logger.Warn("close listener: %v", err)
		}
	}
	if started {
		<-s.acceptDone
	}

	s.pool.Shutdown()
	s.queued.Range(func(key, _ interface{}) bool {
		_ = key.(net.Conn).Close()
		s.queued.Delete(key)
		return true
	})

	if s.metrics != nil {
		s.metrics.Close()
	}
	if statsJob != 0 {
		s.cron.RemoveCronJob(statsJob)
	}
	s.logStats()
	s.logger.Info(" **** static server gracefully shutdown ****")
}

func (s *Server) Stats() Stats {
	st := Stats{
		Accepted: atomic.LoadInt64(&s.accepted),
		Served:   atomic.LoadInt64(&s.served),
		Failed:   atomic.LoadInt64(&s.failed),
		Rejected: atomic.LoadInt64(&s.rejected),
		Limited:  atomic.LoadInt64(&s.limited),
		Active:   s.pool.Running(),
		Queued:   s.pool.Pending(),
	}
	if s.cache != nil {
		st.CacheEntries = s.cache.Len()
		st.CacheHits = s.cache.Hits()
		st.CacheMisses = s.cache.Misses()
	}
	return st
}

func (s *Server) logStats() {
	s.logger.Info("[stats] %s %s", s.options.Name, tools.ToJson(s.Stats()))
}
