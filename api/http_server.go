package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kutluhann/xordht/dht"
	"github.com/kutluhann/xordht/metrics"
)

// StatusSource is the node behind the status server.
type StatusSource interface {
	Status(ctx context.Context) (dht.Status, error)
}

// StatusResponse represents node status information
type StatusResponse struct {
	NodeID        string `json:"node_id"`
	Address       string `json:"address"`
	StoredKeys    int    `json:"stored_keys"`
	KnownPeers    int    `json:"known_peers"`
	ActiveLookups int    `json:"active_lookups"`
	Outstanding   int    `json:"outstanding_requests"`
}

// BucketResponse is one non-empty k-bucket.
type BucketResponse struct {
	Index    int               `json:"index"`
	Contacts []ContactResponse `json:"contacts"`
}

type ContactResponse struct {
	NodeID  string `json:"node_id"`
	Address string `json:"address"`
}

// HTTPServer exposes read-only node state over HTTP.
type HTTPServer struct {
	source  StatusSource
	metrics *metrics.Metrics
	logger  *zap.Logger
	router  *mux.Router
	server  *http.Server
}

func NewHTTPServer(addr string, source StatusSource, m *metrics.Metrics, logger *zap.Logger) *HTTPServer {
	s := &HTTPServer{
		source:  source,
		metrics: m,
		logger:  logger,
		router:  mux.NewRouter(),
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *HTTPServer) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/routing-table", s.handleRoutingTable).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
}

// ServeHTTP implements http.Handler
func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve accepts connections on l until Shutdown is called.
func (s *HTTPServer) Serve(l net.Listener) error {
	s.logger.Info("Status server listening", zap.Stringer("addr", l.Addr()))
	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) ListenAndServe() error {
	l, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *HTTPServer) status(w http.ResponseWriter, r *http.Request) (dht.Status, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	st, err := s.source.Status(ctx)
	if err != nil {
		s.logger.Warn("Status query failed", zap.Error(err))
		http.Error(w, "node unavailable", http.StatusServiceUnavailable)
		return dht.Status{}, false
	}
	return st, true
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := s.status(w, r)
	if !ok {
		return
	}
	writeJSON(w, StatusResponse{
		NodeID:        st.ID,
		Address:       st.Address,
		StoredKeys:    st.StoredKeys,
		KnownPeers:    st.Contacts,
		ActiveLookups: st.ActiveLookups,
		Outstanding:   st.Outstanding,
	})
}

func (s *HTTPServer) handleRoutingTable(w http.ResponseWriter, r *http.Request) {
	st, ok := s.status(w, r)
	if !ok {
		return
	}
	buckets := make([]BucketResponse, 0, len(st.Buckets))
	for _, b := range st.Buckets {
		br := BucketResponse{Index: b.Index, Contacts: make([]ContactResponse, 0, len(b.Contacts))}
		for _, c := range b.Contacts {
			br.Contacts = append(br.Contacts, ContactResponse{NodeID: c.ID.String(), Address: c.Address()})
		}
		buckets = append(buckets, br)
	}
	writeJSON(w, buckets)
}

// handleHealth is a simple health check endpoint
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.status(w, r); !ok {
		return
	}
	writeJSON(w, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
