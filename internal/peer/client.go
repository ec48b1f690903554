// Package peer is the outbound half of the HTTP transport: a small client
// for the RPCs a node issues to other nodes (forwarding, Accept fan-out,
// stabilization probes). It plays the role the teacher's gRPC connection
// pool (internal/client) played, adapted to HTTP: connection reuse across
// addresses is handled by http.Transport's own keep-alive pool, so no
// hand-rolled per-address ClientConn map is needed here.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"KoordeDHT/internal/ctxutil"
	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/ring"
)

// ErrNotFound mirrors the 404 returned by GET /storage/{key} on a missing key.
var ErrNotFound = errors.New("key not found")

// Client issues RPCs against peer nodes over HTTP.
type Client struct {
	hc      *http.Client
	timeout time.Duration
}

// New builds a peer Client. timeout bounds every individual RPC; the
// underlying transport is instrumented with otelhttp so outbound calls
// join the caller's trace.
func New(timeout time.Duration) *Client {
	return &Client{
		hc: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		timeout: timeout,
	}
}

// do issues an HTTP request bounded by c.timeout. The returned cancel func
// must be deferred by the caller *after* it has finished reading the
// response body: canceling the request context while the body is still
// being read aborts the read with "context canceled", since the
// transport ties body reads to the request's context for its whole
// lifetime, not just until headers arrive.
func (c *Client) do(ctx context.Context, method, url string, body io.Reader) (*http.Response, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	// Propagate the hop counter (§9/§R): a forward always counts one more
	// hop than the request that triggered it.
	if hops := ctxutil.HopsFromContext(ctx); hops >= 0 {
		req.Header.Set(ctxutil.HopHeader, strconv.Itoa(hops+1))
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return resp, cancel, nil
}

// Get fetches a key from the peer at addr.
func (c *Client) Get(ctx context.Context, addr, key string) (string, error) {
	resp, cancel, err := c.do(ctx, http.MethodGet, "http://"+addr+"/storage/"+key, nil)
	if err != nil {
		return "", fmt.Errorf("get %s from %s: %w", key, addr, err)
	}
	defer cancel()
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get %s from %s: status %d: %s", key, addr, resp.StatusCode, string(b))
	}
	return string(b), nil
}

// Put stores a key/value pair at the peer addr.
func (c *Client) Put(ctx context.Context, addr, key, value string) error {
	resp, cancel, err := c.do(ctx, http.MethodPut, "http://"+addr+"/storage/"+key, bytes.NewBufferString(value))
	if err != nil {
		return fmt.Errorf("put %s to %s: %w", key, addr, err)
	}
	defer cancel()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("put %s to %s: status %d: %s", key, addr, resp.StatusCode, string(b))
	}
	return nil
}

// NodeInfo probes the peer's /node-info, the endpoint stabilization uses
// to detect dead or partitioned peers (§4.8).
func (c *Client) NodeInfo(ctx context.Context, addr string) (ring.NodeInfoView, error) {
	var out ring.NodeInfoView
	resp, cancel, err := c.do(ctx, http.MethodGet, "http://"+addr+"/node-info", nil)
	if err != nil {
		return out, fmt.Errorf("node-info %s: %w", addr, err)
	}
	defer cancel()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("node-info %s: status %d", addr, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode node-info from %s: %w", addr, err)
	}
	return out, nil
}

// Network fetches the peer's full routing view via GET /network, used by
// predecessor re-election (§4.8).
func (c *Client) Network(ctx context.Context, addr string) (ring.NetworkView, error) {
	var out ring.NetworkView
	resp, cancel, err := c.do(ctx, http.MethodGet, "http://"+addr+"/network", nil)
	if err != nil {
		return out, fmt.Errorf("network %s: %w", addr, err)
	}
	defer cancel()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("network %s: status %d", addr, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode network from %s: %w", addr, err)
	}
	return out, nil
}

// Accept issues the internal Accept RPC (PUT /API/join) against addr,
// carrying the joining loner's address and the original seed ("nprime")
// as "loner,nprime" text, matching §6's wire contract. Both ends derive
// identifiers from addresses via the shared hash, so addresses alone
// suffice. The response is the comma-separated membership address list
// described in §4.5.
func (c *Client) Accept(ctx context.Context, addr string, loner, nprime domain.Node) ([]string, error) {
	body := fmt.Sprintf("%s,%s", loner.Addr, nprime.Addr)
	resp, cancel, err := c.do(ctx, http.MethodPut, "http://"+addr+"/API/join", bytes.NewBufferString(body))
	if err != nil {
		return nil, fmt.Errorf("accept via %s: %w", addr, err)
	}
	defer cancel()
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("accept via %s: status %d: %s", addr, resp.StatusCode, string(b))
	}
	text := string(b)
	if text == "" {
		return nil, nil
	}
	return splitCSV(text), nil
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
