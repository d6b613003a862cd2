package server

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/ehr-auth-broker/auth"
	"github.com/jrsteele09/ehr-auth-broker/authflow"
	"github.com/jrsteele09/ehr-auth-broker/internal/config"
	"github.com/jrsteele09/ehr-auth-broker/internal/metrics"
	"github.com/jrsteele09/ehr-auth-broker/upstream"
)

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	handler  http.Handler
	routes   []string
	config   config.Config
	auth     *auth.AuthorizationService
	repos    auth.Repos
	launcher *upstream.Launcher
	metrics  *metrics.Metrics
	nowTime  func() time.Time

	errorPage *template.Template
}

// Option configures optional Server collaborators.
type Option func(*Server)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithNowTime sets the clock shared by the authorization service and the flow cookie.
func WithNowTime(nowTime func() time.Time) Option {
	return func(s *Server) {
		s.nowTime = nowTime
	}
}

func New(config config.Config, repos auth.Repos, launcher *upstream.Launcher, options ...Option) (*Server, error) {
	if launcher == nil {
		return nil, errors.New("[Server New] upstream launcher is required")
	}

	s := &Server{
		mux:      http.NewServeMux(),
		config:   config,
		repos:    repos,
		launcher: launcher,
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	s.env = config.GetEnv()

	authService, err := auth.NewAuthorizationService(repos, config,
		auth.WithNowTime(s.nowTime),
		auth.WithMetrics(s.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create authorization service: %w", err)
	}
	s.auth = authService
	s.errorPage = mustParseTemplate("error.html")

	s.initRoutes()
	s.handler = chi.Chain(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		s.metrics.Middleware,
	).Handler(s.mux)
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Sweepables are the expiring stores behind this server.
func (s *Server) Sweepables() []authflow.Sweepable {
	return s.auth.Sweepables()
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", colourMethod(method), path)
}

func logError(method, path, error string) {
	log.Error().Msgf("[%-19s] %s %s", colourMethod(method), path, Red+error+ResetColor)
}

func colourMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}
