// Package server is the inbound HTTP surface described in SPEC_FULL.md §6.
// It replaces the teacher's gRPC+protobuf server (internal/server in
// flavio-simonelli-KoordeDHT) with a stdlib net/http.ServeMux server,
// following the pattern used elsewhere in the example pack for HTTP-based
// node transports: one *http.Server with bounded Read/Write/Idle timeouts,
// one handler per route, and a graceful Shutdown(ctx) on exit.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"KoordeDHT/internal/ctxutil"
	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
	"KoordeDHT/internal/node"
)

// Server is the HTTP front end for a single ring node.
type Server struct {
	httpServer *http.Server
	lgr        logger.Logger
}

// New builds a Server bound to addr, dispatching to n per the endpoint
// table in §6. It does not start listening until Start is called.
func New(addr string, n *node.Node, opts ...Option) *Server {
	s := &Server{lgr: &logger.NopLogger{}}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	h := &handlers{node: n, lgr: s.lgr}

	mux.Handle("/helloworld", otelhttp.NewHandler(http.HandlerFunc(h.helloworld), "helloworld"))
	mux.Handle("/storage/", otelhttp.NewHandler(http.HandlerFunc(h.storage), "storage"))
	mux.Handle("/network", otelhttp.NewHandler(http.HandlerFunc(h.network), "network"))
	mux.Handle("/node", otelhttp.NewHandler(http.HandlerFunc(h.nodeInfoFull), "node"))
	mux.Handle("/node-info", otelhttp.NewHandler(http.HandlerFunc(h.nodeInfo), "node-info"))
	mux.Handle("/join", otelhttp.NewHandler(http.HandlerFunc(h.join), "join"))
	mux.Handle("/API/join", otelhttp.NewHandler(http.HandlerFunc(h.acceptJoin), "api-join"))
	mux.Handle("/leave", otelhttp.NewHandler(http.HandlerFunc(h.leave), "leave"))
	mux.Handle("/sim-crash", otelhttp.NewHandler(http.HandlerFunc(h.simCrash), "sim-crash"))
	mux.Handle("/sim-recover", otelhttp.NewHandler(http.HandlerFunc(h.simRecover), "sim-recover"))

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      crashGate(n, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until Shutdown is called. It returns
// http.ErrServerClosed on a clean shutdown, never nil.
func (s *Server) Start() error {
	s.lgr.Info("http server starting", logger.F("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return err
}

// Shutdown gracefully stops the server, waiting up to the context's
// deadline for in-flight requests to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// crashGate implements §4.9/§6: while the node is crashed, every endpoint
// except /sim-recover returns 500, with the message SPEC_FULL.md §6
// mandates per verb: "Node has crashed" for GET, "Node is crashed" for PUT.
func crashGate(n *node.Node, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if n.Crashed() && r.URL.Path != "/sim-recover" {
			msg := "Node has crashed"
			if r.Method == http.MethodPut {
				msg = "Node is crashed"
			}
			http.Error(w, msg, http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type handlers struct {
	node *node.Node
	lgr  logger.Logger
}

func (h *handlers) helloworld(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, h.node.Self().Addr)
}

func (h *handlers) storage(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/storage/")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}

	hops := 0
	if raw := r.Header.Get(ctxutil.HopHeader); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			hops = parsed
		}
	}
	if err := ctxutil.CheckHops(hops, h.node.Space().Bits); err != nil {
		http.Error(w, err.Error(), http.StatusLoopDetected)
		return
	}
	ctx := ctxutil.SetHops(r.Context(), hops)

	w.Header().Set("Content-Type", "text/plain")

	switch r.Method {
	case http.MethodGet:
		val, err := h.node.Get(ctx, key)
		if err != nil {
			writeDataPathError(w, err)
			return
		}
		fmt.Fprint(w, val)

	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		if err := h.node.Put(ctx, key, string(body)); err != nil {
			writeDataPathError(w, err)
			return
		}
		fmt.Fprint(w, "Stored")

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeDataPathError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrResourceNotFound) {
		http.Error(w, "Key not found", http.StatusNotFound)
		return
	}
	if errors.Is(err, node.ErrCrashed) {
		http.Error(w, "Node is crashed", http.StatusInternalServerError)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (h *handlers) network(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.node.Ring().Snapshot())
}

func (h *handlers) nodeInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.node.Ring().NodeInfo())
}

// nodeInfoFull backs GET /node: the full node state including the KV store,
// for introspection and the test harness.
func (h *handlers) nodeInfoFull(w http.ResponseWriter, r *http.Request) {
	type fullView struct {
		Self          domain.Node       `json:"self"`
		Network       interface{}       `json:"network"`
		KeyValueStore []domain.Resource `json:"key_value_store"`
		Crashed       bool              `json:"crashed"`
	}
	writeJSON(w, fullView{
		Self:          h.node.Self(),
		Network:       h.node.Ring().Snapshot(),
		KeyValueStore: h.node.Store().All(),
		Crashed:       h.node.Crashed(),
	})
}

func (h *handlers) join(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	nprime := r.URL.Query().Get("nprime")
	if nprime == "" {
		http.Error(w, "missing nprime query parameter", http.StatusBadRequest)
		return
	}
	if err := h.node.Join(r.Context(), nprime); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, "Joined")
}

// acceptJoin backs the internal PUT /API/join RPC described in §4.5: the
// body is "loner,nprime" text; the response is a comma-separated
// membership address list.
func (h *handlers) acceptJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	parts := strings.Split(strings.TrimSpace(string(body)), ",")
	if len(parts) != 2 {
		http.Error(w, "expected body \"loner,nprime\"", http.StatusBadRequest)
		return
	}
	space := h.node.Space()
	loner := domain.Node{Addr: parts[0], ID: space.NewIdFromString(parts[0])}
	nprime := domain.Node{Addr: parts[1], ID: space.NewIdFromString(parts[1])}

	members := h.node.Accept(r.Context(), loner, nprime)
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, strings.Join(members, ","))
}

func (h *handlers) leave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.node.Leave()
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, "Left")
}

func (h *handlers) simCrash(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.node.SimCrash()
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, "Crashed")
}

func (h *handlers) simRecover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.node.SimRecover(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, "Recovered")
}
