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
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/caiflower/staticd/global/env"
	"github.com/caiflower/staticd/pkg/logger"
	"github.com/caiflower/staticd/pkg/safego"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HttpMetric lives in its own registry so several servers can coexist in one process.
type HttpMetric struct {
	registry *prometheus.Registry

	httpRequestTotal     *prometheus.CounterVec
	httpRequestTimeTotal *prometheus.CounterVec
	costHistogram        prometheus.Histogram
	connectionErrors     *prometheus.CounterVec
	activeConnections    prometheus.Gauge
	queuedConnections    prometheus.GaugeFunc
}

func NewHttpMetric(name string, pending func() int) *HttpMetric {
	constLabels := prometheus.Labels{"ip": env.GetLocalHostIP(), "web": name}

	buckets := []float64{1, 5, 20, 50, 100, 200, 500, 1000, 2000, 5000}
	metric := &HttpMetric{
		registry:             prometheus.NewRegistry(),
		httpRequestTimeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "http_request_time_total", Help: "http_request_time_total counter in ms", ConstLabels: constLabels}, []string{"code", "method", "kind"}),
		httpRequestTotal:     prometheus.NewCounterVec(prometheus.CounterOpts{Name: "http_request_total", Help: "http_request_total counter", ConstLabels: constLabels}, []string{"code", "method", "kind"}),
		costHistogram:        prometheus.NewHistogram(prometheus.HistogramOpts{Name: "http_request_histogram", Help: "http_request_histogram in ms", Buckets: buckets, ConstLabels: constLabels}),
		connectionErrors:     prometheus.NewCounterVec(prometheus.CounterOpts{Name: "http_connection_error_total", Help: "connections closed without a response", ConstLabels: constLabels}, []string{"stage"}),
		activeConnections:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "http_active_connections", Help: "connections being handled by a worker", ConstLabels: constLabels}),
		queuedConnections: prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: "http_queued_connections", Help: "accepted connections waiting for a worker", ConstLabels: constLabels}, func() float64 {
			return float64(pending())
		}),
	}

	metric.registry.MustRegister(
		metric.httpRequestTotal,
		metric.httpRequestTimeTotal,
		metric.costHistogram,
		metric.connectionErrors,
		metric.activeConnections,
		metric.queuedConnections,
	)

	return metric
}

func (m *HttpMetric) saveMetric(code int, method, kind string, cost time.Duration) {
	ms := float64(cost) / float64(time.Millisecond)
	c := strconv.Itoa(code)
	m.httpRequestTotal.WithLabelValues(c, method, kind).Inc()
	m.httpRequestTimeTotal.WithLabelValues(c, method, kind).Add(ms)
	m.costHistogram.Observe(ms)
}

func (m *HttpMetric) connectionError(stage string) {
	m.connectionErrors.WithLabelValues(stage).Inc()
}

func (m *HttpMetric) Registry() *prometheus.Registry {
	return m.registry
}

func (m *HttpMetric) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// metricServer exposes /metrics on a plain net/http listener next to the file server.
type metricServer struct {
	logger logger.ILog
	addr   string
	server *http.Server
	ln     net.Listener
}

func newMetricServer(addr string, handler http.Handler, log logger.ILog) *metricServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	return &metricServer{
		logger: log,
		addr:   addr,
		server: &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second},
	}
}

func (s *metricServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Info("metrics listening on http://%s/metrics", ln.Addr())

	safego.Go(func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped: %v", err)
		}
	})
	return nil
}

func (s *metricServer) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *metricServer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("metrics server shutdown error: %v", err)
	}
}
