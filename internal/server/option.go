package server

import "KoordeDHT/internal/logger"

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger attaches a structured logger to the server.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.lgr = l }
}
