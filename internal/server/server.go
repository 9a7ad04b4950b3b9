package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/omriShneor/babycare_bot/internal/database"
	"github.com/omriShneor/babycare_bot/internal/reminder"
)

// Reminders is the read side of the reminder store
type Reminders interface {
	Snapshot() *reminder.Table
	List(owner int64) []reminder.Reminder
	Len() int
}

// Deliveries reads the delivery log
type Deliveries interface {
	ListDeliveries(chatID int64, limit int) ([]database.Delivery, error)
}

// Transport reports the messaging connection state
type Transport interface {
	IsConnected() bool
}

type Server struct {
	reminders  Reminders
	db         *database.DB
	deliveries Deliveries
	transport  Transport
	gatherer   prometheus.Gatherer
	logger     *zap.Logger
	now        func() time.Time
	httpSrv    *http.Server
	mux        *http.ServeMux
	port       int
}

// ServerConfig holds the dependencies of the status API
type ServerConfig struct {
	Reminders  Reminders
	DB         *database.DB
	Deliveries Deliveries // defaults to DB
	Transport  Transport  // nil when running without Telegram
	Gatherer   prometheus.Gatherer
	Port       int
	Logger     *zap.Logger
	Now        func() time.Time
}

func New(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	deliveries := cfg.Deliveries
	if deliveries == nil && cfg.DB != nil {
		deliveries = cfg.DB
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		reminders:  cfg.Reminders,
		db:         cfg.DB,
		deliveries: deliveries,
		transport:  cfg.Transport,
		gatherer:   gatherer,
		logger:     logger.Named("server"),
		now:        now,
		port:       cfg.Port,
	}

	s.mux = http.NewServeMux()
	s.registerRoutes(s.mux)

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.corsMiddleware(s.mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// SetTransport sets the Telegram client once it has been created
func (s *Server) SetTransport(t Transport) {
	s.transport = t
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("GET /health", s.handleHealthCheck)

	// Prometheus
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// Reminders API
	mux.HandleFunc("GET /api/reminders", s.handleListReminders)
	mux.HandleFunc("GET /api/reminders/due", s.handleDueReminders)

	// Delivery log
	mux.HandleFunc("GET /api/deliveries", s.handleListDeliveries)
}

// HandleFunc registers an extra route. Used by the test server for its control endpoints.
func (s *Server) HandleFunc(pattern string, handler http.HandlerFunc) {
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", fmt.Sprintf("http://localhost:%d", s.port)))
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the server's HTTP handler for testing purposes
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// corsMiddleware adds CORS headers so a local dashboard can read the API
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
