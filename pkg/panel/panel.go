package panel

import (
	"context"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/ossuary-pi/ossuary/pkg/configstore"
	"github.com/ossuary-pi/ossuary/pkg/errors"
	"github.com/ossuary-pi/ossuary/pkg/logging"
	"github.com/ossuary-pi/ossuary/pkg/processfile"
)

// DefaultAddress is the panel's default listen address.
const DefaultAddress = ":8080"

const shutdownTimeout = 10 * time.Second

// Options configures the administrative panel server.
type Options struct {
	Address  string
	Store    *configstore.Store
	PIDFiles *processfile.Manager
	LogPath  string
	StaticFS fs.FS
}

// Server is the administrative HTTP panel. It edits the shared configuration
// record that the supervisor polls; it never talks to the supervisor process
// directly, so either side can restart without the other noticing.
type Server struct {
	options Options
	logger  logging.Logger
	router  *mux.Router
	server  *http.Server
}

// NewServer creates the panel server. Store is required.
func NewServer(options Options, logger logging.Logger) (*Server, error) {
	if options.Store == nil {
		return nil, errors.NewValidationError("config store is required", nil)
	}
	if options.Address == "" {
		options.Address = DefaultAddress
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	s := &Server{
		options: options,
		logger:  logging.NewLogger("panel", logger),
	}
	s.router = s.buildRouter()
	s.server = &http.Server{
		Addr:         options.Address,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/startup", s.handleGetStartup).Methods(http.MethodGet)
	api.HandleFunc("/startup", s.handleSetStartup).Methods(http.MethodPost)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/logs", s.handleLogs).Methods(http.MethodGet)

	if s.options.StaticFS != nil {
		r.PathPrefix("/").Handler(http.FileServer(http.FS(s.options.StaticFS)))
	}

	r.Use(s.recoveryMiddleware)
	r.Use(s.loggingMiddleware)
	return r
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		s.logger.Infof("Panel listening, address: %s", s.options.Address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.NewNetworkError("panel server failed", err).WithContext("address", s.options.Address)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Infof("Panel shutting down")
		return s.server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
