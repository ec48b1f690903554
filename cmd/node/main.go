package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"KoordeDHT/internal/config"
	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
	zapfactory "KoordeDHT/internal/logger/zap"
	"KoordeDHT/internal/node"
	"KoordeDHT/internal/peer"
	"KoordeDHT/internal/ring"
	"KoordeDHT/internal/server"
	"KoordeDHT/internal/storage"
	"KoordeDHT/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to an optional ambient tuning config (§6.1); unset runs with documented defaults")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-config path] <host> <port> [comma-separated-initial-membership]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		flag.Usage()
		os.Exit(2)
	}
	host, port := args[0], args[1]
	var membership []string
	if len(args) >= 3 {
		membership = splitNonEmpty(args[2])
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var lgr logger.Logger
	if cfg.Logger.Active {
		zapLog, err := zapfactory.New(cfg.Logger)
		if err != nil {
			log.Fatalf("failed to initialize logger: %v", err)
		}
		defer func() { _ = zapLog.Sync() }()
		lgr = zapfactory.NewZapAdapter(zapLog)
	} else {
		lgr = &logger.NopLogger{}
	}
	cfg.Log(lgr)

	addr := fmt.Sprintf("%s:%s", host, port)

	space, err := domain.NewSpace(cfg.DHT.IDBits)
	if err != nil {
		lgr.Error("failed to initialize identifier space", logger.F("err", err.Error()))
		os.Exit(1)
	}
	self := domain.Node{ID: space.NewIdFromString(addr), Addr: addr}
	lgr = lgr.Named("node").With(logger.FNode("self", self))
	lgr.Info("node starting", logger.F("id_bits", space.Bits))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Tracing, "koorde-node", self.ID)
	if err != nil {
		lgr.Error("failed to initialize tracing", logger.F("err", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	rt := ring.New(self, space, ring.WithLogger(lgr.Named("ring")))
	pc := peer.New(cfg.DHT.RPCTimeout)
	store := storage.NewMemoryStorage(lgr.Named("storage"))
	n := node.New(self, space, rt, store, pc, node.WithLogger(lgr))

	if len(membership) == 0 {
		n.CreateNewDHT()
	} else {
		joined := false
		var lastErr error
		for _, seed := range membership {
			joinCtx, cancel := context.WithTimeout(ctx, cfg.DHT.RPCTimeout)
			err := n.Join(joinCtx, seed)
			cancel()
			if err == nil {
				joined = true
				lgr.Info("joined ring", logger.F("seed", seed))
				break
			}
			lastErr = err
			lgr.Warn("join attempt failed", logger.F("seed", seed), logger.F("err", err.Error()))
		}
		if !joined {
			lgr.Error("failed to join via any seed in initial membership", logger.F("err", lastErr.Error()))
			os.Exit(1)
		}
	}

	srv := server.New(addr, n, server.WithLogger(lgr.Named("server")))
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	n.StartStabilizers(ctx, cfg.DHT.StabilizationInterval, cfg.DHT.LoopPreventionClearInterval)
	n.StartResourceRepair(ctx, cfg.DHT.StabilizationInterval)

	select {
	case <-ctx.Done():
		lgr.Info("shutdown signal received, stopping gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			lgr.Warn("graceful shutdown timed out", logger.F("err", err.Error()))
		}
	case err := <-serveErr:
		lgr.Error("http server terminated unexpectedly", logger.F("err", err.Error()))
		os.Exit(1)
	}
}

func splitNonEmpty(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
