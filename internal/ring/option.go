package ring

import "KoordeDHT/internal/logger"

// Option configures a State at construction time.
type Option func(*State)

// WithLogger attaches a structured logger to the routing state.
func WithLogger(l logger.Logger) Option {
	return func(s *State) { s.logger = l }
}
