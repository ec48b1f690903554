// client-worker is a continuous random-lookup load generator: it discovers
// ring membership from a bootstrap node's /network view, then issues GET
// requests for random keys against randomly chosen members at a fixed
// rate, logging latency and outcome. Adapted from the teacher's gRPC
// client-worker (cmd/client-worker/main.go), which drove the same load
// pattern against a ClientAPI.Lookup RPC; this version drives it against
// the HTTP data path (GET /storage/{key}) since this transport has no
// standalone lookup-only RPC.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"log"
	"math/big"
	"time"

	"KoordeDHT/internal/peer"
)

func randomHexBits(bits int) string {
	nbytes := (bits + 7) / 8
	b := make([]byte, nbytes)
	_, _ = rand.Read(b)
	if rem := bits % 8; rem != 0 {
		mask := byte((1<<rem - 1) << (8 - rem))
		b[0] &= mask
	}
	return hex.EncodeToString(b)
}

func pickRandom(nodes []string) string {
	n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(nodes))))
	return nodes[n.Int64()]
}

func discoverMembers(ctx context.Context, api *peer.Client, bootstrap string) ([]string, error) {
	view, err := api.Network(ctx, bootstrap)
	if err != nil {
		return nil, err
	}
	nodes := []string{bootstrap}
	if view.Predecessor != nil {
		nodes = append(nodes, view.Predecessor.Addr)
	}
	if view.Successor != nil {
		nodes = append(nodes, view.Successor.Addr)
	}
	for _, f := range view.FingerTable {
		if f != nil {
			nodes = append(nodes, f.Addr)
		}
	}
	return nodes, nil
}

func main() {
	bootstrap := flag.String("bootstrap", "127.0.0.1:5000", "bootstrap node address")
	bits := flag.Int("bits", 160, "key length in bits, to match the ring's idBits")
	rate := flag.Float64("rate", 1.0, "lookup requests per second")
	timeout := flag.Duration("timeout", 2*time.Second, "per-request timeout")
	refresh := flag.Duration("refresh", 30*time.Second, "member list refresh interval")
	flag.Parse()

	api := peer.New(*timeout)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	nodes, err := discoverMembers(ctx, api, *bootstrap)
	cancel()
	if err != nil || len(nodes) == 0 {
		log.Fatalf("failed to discover members from bootstrap %s: %v", *bootstrap, err)
	}
	log.Printf("bootstrap succeeded, discovered %d nodes", len(nodes))

	interval := time.Duration(float64(time.Second) / *rate)
	ticker := time.NewTicker(*refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n := pickRandom(nodes)
			refreshCtx, cancel := context.WithTimeout(context.Background(), *timeout)
			newNodes, err := discoverMembers(refreshCtx, api, n)
			cancel()
			if err == nil && len(newNodes) > 0 {
				nodes = newNodes
				log.Printf("refreshed member list, now have %d nodes", len(nodes))
			}
		default:
			key := randomHexBits(*bits)
			n := pickRandom(nodes)

			lookupCtx, cancel := context.WithTimeout(context.Background(), *timeout)
			start := time.Now()
			_, err := api.Get(lookupCtx, n, key)
			cancel()
			if err != nil && err != peer.ErrNotFound {
				log.Printf("[lookup] key=%s via %s ERROR: %v latency=%s", key, n, err, time.Since(start))
			} else {
				log.Printf("[lookup] key=%s via %s OK latency=%s", key, n, time.Since(start))
			}

			time.Sleep(interval)
		}
	}
}
