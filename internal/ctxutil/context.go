// Package ctxutil holds request-scoped context helpers: a trace ID for
// log/span correlation and a hop counter used to enforce the forwarding-loop
// bound from SPEC_FULL.md §9: since forwarding has no natural termination
// proof beyond eventual finger-table convergence, a hop count capped at 2*M
// guards against a stale or cyclic routing table looping forever. The hop
// counter travels between nodes in the X-Koorde-Hops header; the trace ID
// stays in the local context and is not sent to other nodes.
package ctxutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrTooManyHops is returned once a forwarded request's hop count exceeds
// the cap; the HTTP layer maps this to 508 Loop Detected.
var ErrTooManyHops = errors.New("forwarding hop limit exceeded")

// HopHeader is the HTTP header carrying the hop counter between nodes.
const HopHeader = "X-Koorde-Hops"

type traceKey struct{}
type hopsKey struct{}

// ContextOption configures NewContext.
type ContextOption func(*ctxConfig)

type ctxConfig struct {
	withTrace bool
	withHops  bool
	startHops int
	timeout   time.Duration
}

// WithTrace attaches a fresh trace ID to the created context.
func WithTrace() ContextOption {
	return func(cfg *ctxConfig) { cfg.withTrace = true }
}

// WithTimeout bounds the created context with d. The caller must defer the
// returned cancel function.
func WithTimeout(d time.Duration) ContextOption {
	return func(cfg *ctxConfig) { cfg.timeout = d }
}

// WithHops initializes the hop counter at start.
func WithHops(start int) ContextOption {
	return func(cfg *ctxConfig) { cfg.withHops = true; cfg.startHops = start }
}

// NewContext builds a context.Background() derivative configured by opts.
func NewContext(opts ...ContextOption) (context.Context, context.CancelFunc) {
	cfg := &ctxConfig{}
	for _, o := range opts {
		o(cfg)
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if cfg.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), cfg.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	if cfg.withTrace {
		ctx = context.WithValue(ctx, traceKey{}, uuid.NewString())
	}
	if cfg.withHops {
		ctx = context.WithValue(ctx, hopsKey{}, cfg.startHops)
	}
	return ctx, cancel
}

// TraceIDFromContext returns the trace ID carried by ctx, or "".
func TraceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}

// EnsureTraceID returns ctx with a trace ID attached, generating one if
// ctx does not already carry one.
func EnsureTraceID(ctx context.Context) context.Context {
	if TraceIDFromContext(ctx) != "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, uuid.NewString())
}

// HopsFromContext returns the current hop count, or -1 if not set.
func HopsFromContext(ctx context.Context) int {
	if hops, ok := ctx.Value(hopsKey{}).(int); ok {
		return hops
	}
	return -1
}

// IncHops returns a context with the hop counter incremented by one. If no
// counter is set, ctx is returned unchanged.
func IncHops(ctx context.Context) context.Context {
	hops, ok := ctx.Value(hopsKey{}).(int)
	if !ok {
		return ctx
	}
	return context.WithValue(ctx, hopsKey{}, hops+1)
}

// SetHops attaches an explicit hop count to ctx, overriding any prior
// value. Used at the HTTP boundary to seed the counter from an inbound
// X-Koorde-Hops header.
func SetHops(ctx context.Context, hops int) context.Context {
	return context.WithValue(ctx, hopsKey{}, hops)
}

// MaxHops returns the forwarding hop cap for an M-bit identifier space:
// 2*M, the bound on worst-case routing loops from SPEC_FULL.md §9.
func MaxHops(bits int) int {
	return 2 * bits
}

// CheckHops returns ErrTooManyHops once hops exceeds the cap for an M-bit
// space.
func CheckHops(hops, bits int) error {
	if hops > MaxHops(bits) {
		return fmt.Errorf("%w: %d hops (cap %d)", ErrTooManyHops, hops, MaxHops(bits))
	}
	return nil
}

// CheckContext reports a descriptive error if ctx has already been
// canceled or its deadline exceeded; nil otherwise. Call at the start of a
// handler to fail fast before doing any work.
func CheckContext(ctx context.Context) error {
	switch err := ctx.Err(); {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("request canceled by client")
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("request deadline exceeded")
	default:
		return nil
	}
}
