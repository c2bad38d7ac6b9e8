package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Store metrics
	StoreUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwell_store_updates_total",
			Help: "Daily stat mutations applied, by field",
		},
		[]string{"field"},
	)

	PersistenceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwell_persistence_errors_total",
			Help: "Local storage failures, by operation",
		},
		[]string{"op"},
	)

	// Poller metrics
	DevicePolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwell_device_polls_total",
			Help: "Platform usage counter polls, by result",
		},
		[]string{"result"},
	)

	DeviceScreenSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kwell_device_screen_seconds",
			Help: "Device-wide active seconds today, as last reported",
		},
	)

	// Session metrics
	SessionsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwell_sessions_completed_total",
			Help: "Completed sessions, by kind",
		},
		[]string{"kind"},
	)

	SessionSeconds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwell_session_seconds_total",
			Help: "Seconds committed from completed sessions, by kind",
		},
		[]string{"kind"},
	)

	// Sync metrics
	SyncOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwell_sync_operations_total",
			Help: "Remote sync operations, by operation and result",
		},
		[]string{"op", "result"},
	)

	ActiveEngines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kwell_active_engines",
			Help: "Signed-in users with a running tracking engine",
		},
	)
)

func init() {
	prometheus.MustRegister(
		StoreUpdates,
		PersistenceErrors,
		DevicePolls,
		DeviceScreenSeconds,
		SessionsCompleted,
		SessionSeconds,
		SyncOperations,
		ActiveEngines,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
