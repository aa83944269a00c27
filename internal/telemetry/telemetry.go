// Package telemetry counts link activity and exposes it for Prometheus.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "telelink"

const readHeaderTimeout = 5 * time.Second

// SenderStats is updated by the transmitter.
type SenderStats struct {
	Sent       atomic.Uint64
	Failures   atomic.Uint64
	Reconnects atomic.Uint64
	Dropped    atomic.Uint64
	Connected  atomic.Bool
}

// ReceiverStats is updated by the receiver and the render loop.
type ReceiverStats struct {
	Accepted    atomic.Uint64
	Malformed   atomic.Uint64
	Connections atomic.Uint64
	// Freshness holds the last rendered display.Freshness value.
	Freshness atomic.Int64
}

// NewRegistry registers collectors for whichever stats are non-nil.
func NewRegistry(sender *SenderStats, receiver *ReceiverStats) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	var collectors []prometheus.Collector
	if sender != nil {
		collectors = append(collectors,
			counter("sender", "snapshots_sent_total", "Snapshots written to the receiver.", &sender.Sent),
			counter("sender", "send_failures_total", "Snapshot writes that failed.", &sender.Failures),
			counter("sender", "reconnects_total", "Connection attempts after the link went down.", &sender.Reconnects),
			counter("sender", "snapshots_dropped_total", "Snapshots discarded because the link was down.", &sender.Dropped),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sender",
				Name:      "connected",
				Help:      "1 while a connection to the receiver is open.",
			}, func() float64 {
				if sender.Connected.Load() {
					return 1
				}
				return 0
			}),
		)
	}
	if receiver != nil {
		collectors = append(collectors,
			counter("receiver", "records_accepted_total", "Records decoded and published to the display.", &receiver.Accepted),
			counter("receiver", "records_malformed_total", "Records discarded as malformed or invalid.", &receiver.Malformed),
			counter("receiver", "connections_total", "Sender connections accepted since start.", &receiver.Connections),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "receiver",
				Name:      "freshness_state",
				Help:      "Display freshness: 0 offline, 1 delayed, 2 fresh.",
			}, func() float64 {
				return float64(receiver.Freshness.Load())
			}),
		)
	}
	for _, c := range collectors {
		registry.MustRegister(c)
	}
	return registry
}

func counter(subsystem, name, help string, v *atomic.Uint64) prometheus.Collector {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, func() float64 {
		return float64(v.Load())
	})
}

// Server serves /metrics.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer returns a /metrics server for registry on addr.
func NewServer(addr string, registry *prometheus.Registry, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		logger: logger.With("component", "metrics"),
	}
}

// Listen binds the address so that failures surface before serving.
func (s *Server) Listen() (net.Listener, error) {
	return net.Listen("tcp", s.httpServer.Addr)
}

// Serve blocks until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("listening", "addr", ln.Addr().String())
	err := s.httpServer.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("listener stopped")
	return nil
}

// Shutdown attempts a graceful shutdown within the supplied context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
