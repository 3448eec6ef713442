// Package web serves a finished deduplication run for human review.
package web

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzip"

	"github.com/geo-dedupe/internal/audit"
	"github.com/geo-dedupe/internal/dedupe"
	"github.com/geo-dedupe/internal/store"
)

// Config represents the review server configuration.
type Config struct {
	Host        string
	Port        int
	DBPath      string
	ResultsPath string
	AuditPath   string
	APIKey      string
}

// Server exposes responses, record lookups, and a review endpoint that
// appends decisions to the audit trail.
type Server struct {
	config      Config
	store       *store.Store
	responses   []dedupe.Response
	byGUID      map[string]int
	dupeIdx     []int
	recordCount uint64
	tracker     *audit.Tracker
	router      *mux.Router
	httpServer  *http.Server
}

// NewServer loads the results file and opens the record store.
func NewServer(config Config) (*Server, error) {
	s := &Server{config: config, byGUID: make(map[string]int)}

	st, err := store.Open(config.DBPath)
	if err != nil {
		return nil, err
	}
	s.store = st

	if err := s.loadResponses(config.ResultsPath); err != nil {
		st.Close()
		return nil, err
	}
	count, err := st.Count()
	if err != nil {
		st.Close()
		return nil, err
	}
	s.recordCount = count

	if config.AuditPath != "" {
		tracker, err := audit.NewTracker(config.AuditPath)
		if err != nil {
			st.Close()
			return nil, err
		}
		s.tracker = tracker
	}

	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// loadResponses reads the JSON-lines results file, decompressing .gz
// output transparently, and indexes responses by every GUID they carry.
func (s *Server) loadResponses(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open results %s: %w", path, err)
	}
	defer f.Close()

	var src io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to open results %s: %w", path, err)
		}
		defer gz.Close()
		src = gz
	}

	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64<<10), 16<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var resp dedupe.Response
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			return fmt.Errorf("failed to decode results line %d: %w", len(s.responses)+1, err)
		}
		idx := len(s.responses)
		if resp.GUID != "" {
			s.byGUID[resp.GUID] = idx
		}
		for _, pd := range resp.PossibleDupes {
			if pd.GUID != "" {
				s.byGUID[pd.GUID] = idx
			}
		}
		if resp.IsDupe || len(resp.PossibleDupes) > 0 {
			s.dupeIdx = append(s.dupeIdx, idx)
		}
		s.responses = append(s.responses, resp)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read results %s: %w", path, err)
	}
	return nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/records/{id:[0-9]+}", s.handleRecord).Methods("GET")
	api.HandleFunc("/dupes", s.handleDupes).Methods("GET")
	api.HandleFunc("/search", s.handleSearch).Methods("GET")
	api.HandleFunc("/review/{guid}", s.handleReview).Methods("POST")

	s.router.Use(requestLogging())
	if s.config.APIKey != "" {
		api.Use(requireAPIKey(s.config.APIKey))
	}
}

// Start runs the server until SIGINT or SIGTERM, then shuts down
// gracefully.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		fmt.Printf("Starting review server on http://%s (%d responses loaded)\n", s.httpServer.Addr, len(s.responses))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Server error: %v\n", err)
		}
	}()

	<-stop
	fmt.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		fmt.Printf("Server shutdown error: %v\n", err)
	}
	if s.tracker != nil {
		if err := s.tracker.Close(); err != nil {
			fmt.Printf("Audit trail close error: %v\n", err)
		}
	}
	if err := s.store.Close(); err != nil {
		fmt.Printf("Store close error: %v\n", err)
	}

	fmt.Println("Server stopped")
	return nil
}

// requestLogging logs each request with its duration.
func requestLogging() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			fmt.Printf("%s %s (%v)\n", r.Method, r.URL.Path, time.Since(start))
		})
	}
}

// requireAPIKey rejects requests missing the configured X-API-Key header.
func requireAPIKey(key string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-Key") != key {
				writeError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
