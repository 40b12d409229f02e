package invoice

import (
	"log/slog"
	"net/http"
)

// ImageReader serves stored images by storage id
type ImageReader interface {
	Get(name string) ([]byte, error)
}

// ServerConfig holds the optional collaborators of a Server
type ServerConfig struct {
	// Submissions enables the /api/submissions routes
	Submissions SubmissionReader
	// Images enables the /images/ route for locally stored uploads
	Images ImageReader
	// Metrics is served at /metrics when set
	Metrics http.Handler
	// MaxUploadBytes bounds multipart request bodies
	MaxUploadBytes int64
}

// Server handles HTTP requests for invoice scans
type Server struct {
	pipeline *Pipeline
	config   ServerConfig
	mux      *http.ServeMux
}

// NewServer creates a new Server with default mux
func NewServer(pipeline *Pipeline, config ServerConfig) *Server {
	return NewServerWithMux(pipeline, config, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(pipeline *Pipeline, config ServerConfig, mux *http.ServeMux) *Server {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = MaxImageBytes + 1<<20
	}
	s := &Server{
		pipeline: pipeline,
		config:   config,
		mux:      mux,
	}
	s.registerRoutes()
	return s
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/invoices/local", s.handleScanLocal)
	s.mux.HandleFunc("POST /api/invoices", s.handleScan)

	if s.config.Submissions != nil {
		s.mux.HandleFunc("GET /api/submissions/{id}", s.handleGetSubmission)
		s.mux.HandleFunc("GET /api/submissions", s.handleListSubmissions)
	}
	if s.config.Images != nil {
		s.mux.HandleFunc("GET /images/{path...}", s.handleGetImage)
	}
	if s.config.Metrics != nil {
		s.mux.Handle("GET /metrics", s.config.Metrics)
	}
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s.corsMiddleware(s.mux))
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.corsMiddleware(s.mux).ServeHTTP(w, r)
}
