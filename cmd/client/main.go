package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/peterh/liner"

	"KoordeDHT/internal/peer"
)

func main() {
	addr := flag.String("addr", "localhost:4000", "address of the Koorde node to connect to")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	api := peer.New(*timeout)
	currentAddr := *addr

	fmt.Printf("Koorde interactive client. Connected to %s\n", currentAddr)
	fmt.Println("Available commands: put/get/network/node-info/use/exit")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt(fmt.Sprintf("koorde[%s]> ", currentAddr))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println("Aborted")
				continue
			}
			break
		}
		line.AppendHistory(input)

		args := strings.Fields(strings.TrimSpace(input))
		if len(args) == 0 {
			continue
		}
		cmd := args[0]

		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		start := time.Now()

		switch cmd {

		case "put":
			if len(args) < 3 {
				fmt.Println("Usage: put <key> <value>")
				break
			}
			key, value := args[1], args[2]
			err := api.Put(ctx, currentAddr, key, value)
			if err != nil {
				fmt.Printf("Put failed (%v) | latency=%s\n", err, time.Since(start))
			} else {
				fmt.Printf("Put succeeded (key=%s, value=%s) | latency=%s\n", key, value, time.Since(start))
			}

		case "get":
			if len(args) < 2 {
				fmt.Println("Usage: get <key>")
				break
			}
			key := args[1]
			val, err := api.Get(ctx, currentAddr, key)
			switch {
			case err == nil:
				fmt.Printf("Get succeeded (key=%s, value=%s) | latency=%s\n", key, val, time.Since(start))
			case errors.Is(err, peer.ErrNotFound):
				fmt.Printf("Key not found: %s | latency=%s\n", key, time.Since(start))
			default:
				fmt.Printf("Get failed: %v | latency=%s\n", err, time.Since(start))
			}

		case "network":
			view, err := api.Network(ctx, currentAddr)
			if err != nil {
				fmt.Printf("network failed: %v | latency=%s\n", err, time.Since(start))
				break
			}
			if view.Predecessor != nil {
				fmt.Printf("  Predecessor: %s (%s)\n", view.Predecessor.ID, view.Predecessor.Addr)
			}
			if view.Successor != nil {
				fmt.Printf("  Successor: %s (%s)\n", view.Successor.ID, view.Successor.Addr)
			}
			fmt.Println("  Finger table:")
			for i, f := range view.FingerTable {
				if f == nil {
					continue
				}
				fmt.Printf("    [%d] %s (%s)\n", i, f.ID, f.Addr)
			}
			fmt.Printf("Latency: %s\n", time.Since(start))

		case "node-info":
			info, err := api.NodeInfo(ctx, currentAddr)
			if err != nil {
				fmt.Printf("node-info failed: %v | latency=%s\n", err, time.Since(start))
				break
			}
			fmt.Printf("  Node: %s\n", info.NodeHash)
			if info.Successor != nil {
				fmt.Printf("  Successor: %s (%s)\n", info.Successor.ID, info.Successor.Addr)
			}
			fmt.Printf("  Known peers: %d\n", len(info.Others))
			fmt.Printf("Latency: %s\n", time.Since(start))

		case "use":
			if len(args) < 2 {
				fmt.Println("Usage: use <addr>")
				break
			}
			currentAddr = args[1]
			fmt.Printf("Switched connection to %s\n", currentAddr)

		case "exit", "quit":
			fmt.Println("Bye!")
			cancel()
			return

		default:
			fmt.Printf("Unknown command: %s\n", cmd)
		}

		cancel()
	}
}
