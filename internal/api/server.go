package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/novascore/engine/internal/metrics"
)

// Server exposes the engine's operations over REST/JSON.
type Server struct {
	handlers *Handlers
	limiter  *RateLimiter
	http     *http.Server
}

// NewServer wires the router, middleware and listener.
func NewServer(port string, handlers *Handlers) *Server {
	s := &Server{
		handlers: handlers,
		limiter:  NewRateLimiter(RateLimitConfig{}),
	}

	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.Handle("/metrics", metrics.Handler()).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.limiter.Middleware)

	api.HandleFunc("/aadhaar/initiate", handlers.AadhaarInitiate).Methods("POST")
	api.HandleFunc("/aadhaar/verify", handlers.AadhaarVerify).Methods("POST")

	api.HandleFunc("/consents", handlers.ConsentListByUser).Methods("GET").Queries("user", "{uref}")
	api.HandleFunc("/consents", handlers.ConsentCreate).Methods("POST")
	api.HandleFunc("/consents/{id}", handlers.ConsentGet).Methods("GET")
	api.HandleFunc("/consents/{id}/revoke", handlers.ConsentRevoke).Methods("POST")

	api.HandleFunc("/fi/request", handlers.FIRequest).Methods("POST")
	api.HandleFunc("/fi/fetch", handlers.FIFetch).Methods("POST")

	api.HandleFunc("/upi/analyse", handlers.UPIAnalyse).Methods("POST")
	api.HandleFunc("/gst/report", handlers.GSTFetch).Methods("POST")
	api.HandleFunc("/utility/report", handlers.UtilityFetch).Methods("POST")

	api.HandleFunc("/behaviour/questions", handlers.BehaviourQuestions).Methods("GET")
	api.HandleFunc("/behaviour/submit", handlers.BehaviourSubmit).Methods("POST")

	api.HandleFunc("/social/connect", handlers.SocialConnect).Methods("POST")

	api.HandleFunc("/score", handlers.ScoreAggregate).Methods("POST")

	router.Use(corsMiddleware)
	router.Use(loggingMiddleware)

	s.http = &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	log.Printf("🚀 Credit intelligence engine listening on %s", s.http.Addr)
	log.Printf("📊 Health check: http://localhost%s/health", s.http.Addr)

	err := s.http.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the configured router, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "novascore-engine",
	})
}
