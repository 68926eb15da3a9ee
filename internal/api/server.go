package api

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"signalist/internal/logger"
	"signalist/internal/market"
	"signalist/internal/metrics"
	"signalist/internal/models"
	"signalist/internal/notification"
	"signalist/internal/realtime"
	"signalist/internal/store"
)

// Deps are the collaborators a Server is built from. Notifier, Metrics and
// Gatherer are optional.
type Deps struct {
	Repo         *store.Repository
	Source       *market.Source
	Hub          *realtime.Hub
	Notifier     notification.Notifier
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	WatchSymbols []string
	CORSOrigins  []string
}

type Server struct {
	repo     *store.Repository
	source   *market.Source
	hub      *realtime.Hub
	notifier notification.Notifier
	metrics  *metrics.Metrics
	watch    []string
	handler  http.Handler
	upgrader websocket.Upgrader
	now      func() time.Time

	// tokens issues one increasing number per refresh; applied is the newest
	// token whose result reached the dashboard.
	tokens  atomic.Uint64
	applyMu sync.Mutex
	applied uint64

	mu        sync.RWMutex
	lastFetch market.Snapshot
	latest    models.DashboardSnapshot
}

func NewServer(d Deps) *Server {
	s := &Server{
		repo:     d.Repo,
		source:   d.Source,
		hub:      d.Hub,
		notifier: d.Notifier,
		metrics:  d.Metrics,
		watch:    market.Symbols(d.WatchSymbols),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		now: time.Now,
	}
	if s.hub == nil {
		s.hub = realtime.NewHub()
	}
	if s.notifier == nil {
		s.notifier = notification.NewLogNotifier()
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	// symbols such as BRK/B arrive percent-encoded in the path
	r := mux.NewRouter().UseEncodedPath()
	r.Use(loggingMiddleware)

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/holdings", s.handleListHoldings).Methods(http.MethodGet)
	r.HandleFunc("/api/holdings", s.handleAddHolding).Methods(http.MethodPost)
	r.HandleFunc("/api/holdings/{symbol}", s.handleUpdateShares).Methods(http.MethodPatch)
	r.HandleFunc("/api/holdings/{symbol}", s.handleRemoveHolding).Methods(http.MethodDelete)
	r.HandleFunc("/api/alerts", s.handleListAlerts).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts", s.handleCreateAlert).Methods(http.MethodPost)
	r.HandleFunc("/api/alerts/active", s.handleActiveAlerts).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts/triggered", s.handleTriggeredAlerts).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts/{id}/toggle", s.handleToggleAlert).Methods(http.MethodPost)
	r.HandleFunc("/api/alerts/{id}", s.handleRemoveAlert).Methods(http.MethodDelete)
	r.HandleFunc("/api/portfolio", s.handlePortfolio).Methods(http.MethodGet)
	r.HandleFunc("/api/quotes", s.handleQuotes).Methods(http.MethodGet)
	r.HandleFunc("/api/refresh", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/api/stocks/{symbol}", s.handleStockDetail).Methods(http.MethodGet)
	r.HandleFunc("/api/movers", s.handleMovers).Methods(http.MethodGet)
	r.HandleFunc("/api/settings", s.handleGetSettings).Methods(http.MethodGet)
	r.HandleFunc("/api/settings", s.handleUpdateSettings).Methods(http.MethodPut)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.handler = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(r)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// StartPolling refreshes immediately and then once per interval until ctx is
// done.
func (s *Server) StartPolling(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Server) poll(ctx context.Context) {
	if _, err := s.Refresh(ctx, triggerPoll); err != nil && ctx.Err() == nil {
		logger.Get().Warnw("polling refresh failed", "error", err)
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Get().Debugw("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
