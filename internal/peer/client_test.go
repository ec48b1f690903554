package peer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"KoordeDHT/internal/ctxutil"
	"KoordeDHT/internal/domain"
)

func TestGetAndPutAgainstRealHTTPServer(t *testing.T) {
	store := map[string]string{}
	mux := http.NewServeMux()
	mux.HandleFunc("/storage/", func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path[len("/storage/"):]
		switch r.Method {
		case http.MethodGet:
			v, ok := store[key]
			if !ok {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			w.Write([]byte(v))
		case http.MethodPut:
			buf := make([]byte, r.ContentLength)
			r.Body.Read(buf)
			store[key] = string(buf)
			w.Write([]byte("Stored"))
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	addr := srv.Listener.Addr().String()

	c := New(time.Second)
	if err := c.Put(context.Background(), addr, "hello", "world"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	val, err := c.Get(context.Background(), addr, "hello")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != "world" {
		t.Errorf("Get = %q, want %q", val, "world")
	}
}

func TestGetMissingKeyReturnsErrNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/storage/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(time.Second)
	_, err := c.Get(context.Background(), srv.Listener.Addr().String(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}
}

func TestDoPropagatesHopHeader(t *testing.T) {
	var gotHeader string
	mux := http.NewServeMux()
	mux.HandleFunc("/storage/", func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get(ctxutil.HopHeader)
		w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(time.Second)
	ctx, cancel := ctxutil.NewContext(ctxutil.WithHops(3))
	defer cancel()
	if _, err := c.Get(ctx, srv.Listener.Addr().String(), "k"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotHeader != "4" {
		t.Errorf("hop header forwarded = %q, want %q (incremented by one)", gotHeader, "4")
	}
}

func TestAcceptParsesCommaSeparatedMembership(t *testing.T) {
	var gotBody string
	mux := http.NewServeMux()
	mux.HandleFunc("/API/join", func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.Write([]byte("a:1,b:2,c:3"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(time.Second)
	loner := domain.Node{Addr: "loner:0"}
	nprime := domain.Node{Addr: "nprime:0"}
	members, err := c.Accept(context.Background(), srv.Listener.Addr().String(), loner, nprime)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if gotBody != "loner:0,nprime:0" {
		t.Errorf("request body = %q, want %q", gotBody, "loner:0,nprime:0")
	}
	want := []string{"a:1", "b:2", "c:3"}
	if len(members) != len(want) {
		t.Fatalf("members = %v, want %v", members, want)
	}
	for i := range want {
		if members[i] != want[i] {
			t.Errorf("members[%d] = %q, want %q", i, members[i], want[i])
		}
	}
}
