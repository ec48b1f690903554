package storage

import (
	"errors"
	"testing"

	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
)

func idHex(t *testing.T, sp domain.Space, hex string) domain.ID {
	t.Helper()
	id, err := sp.FromHexString(hex)
	if err != nil {
		t.Fatalf("FromHexString(%q): %v", hex, err)
	}
	return id
}

func TestPutGetRoundTrip(t *testing.T) {
	sp, _ := domain.NewSpace(8)
	s := NewMemoryStorage(&logger.NopLogger{})
	key := idHex(t, sp, "0x05")

	if _, err := s.Get(key); !errors.Is(err, domain.ErrResourceNotFound) {
		t.Fatalf("Get on empty store = %v, want ErrResourceNotFound", err)
	}

	s.Put(domain.Resource{Key: key, RawKey: "hello", Value: "world"})
	res, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get after Put: %v", err)
	}
	if res.Value != "world" {
		t.Errorf("Value = %q, want %q", res.Value, "world")
	}
}

func TestPutOverwrites(t *testing.T) {
	sp, _ := domain.NewSpace(8)
	s := NewMemoryStorage(&logger.NopLogger{})
	key := idHex(t, sp, "0x05")

	s.Put(domain.Resource{Key: key, RawKey: "hello", Value: "v1"})
	s.Put(domain.Resource{Key: key, RawKey: "hello", Value: "v2"})

	res, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if res.Value != "v2" {
		t.Errorf("Value = %q, want %q (overwrite)", res.Value, "v2")
	}
}

func TestDeleteMissingReturnsNotFound(t *testing.T) {
	sp, _ := domain.NewSpace(8)
	s := NewMemoryStorage(&logger.NopLogger{})
	key := idHex(t, sp, "0x05")

	if err := s.Delete(key); !errors.Is(err, domain.ErrResourceNotFound) {
		t.Fatalf("Delete on missing key = %v, want ErrResourceNotFound", err)
	}

	s.Put(domain.Resource{Key: key, RawKey: "hello", Value: "world"})
	if err := s.Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(key); !errors.Is(err, domain.ErrResourceNotFound) {
		t.Fatalf("Get after Delete = %v, want ErrResourceNotFound", err)
	}
}

func TestBetweenFiltersByArc(t *testing.T) {
	sp, _ := domain.NewSpace(8)
	s := NewMemoryStorage(&logger.NopLogger{})

	inArc := idHex(t, sp, "0x05")
	outArc := idHex(t, sp, "0x50")
	s.Put(domain.Resource{Key: inArc, RawKey: "in", Value: "1"})
	s.Put(domain.Resource{Key: outArc, RawKey: "out", Value: "2"})

	from := idHex(t, sp, "0x01")
	to := idHex(t, sp, "0x0a")
	results, err := s.Between(from, to)
	if err != nil {
		t.Fatalf("Between: %v", err)
	}
	if len(results) != 1 || results[0].RawKey != "in" {
		t.Fatalf("Between(0x01, 0x0a) = %+v, want only %q", results, "in")
	}
}

func TestAllReturnsIndependentSnapshot(t *testing.T) {
	sp, _ := domain.NewSpace(8)
	s := NewMemoryStorage(&logger.NopLogger{})
	s.Put(domain.Resource{Key: idHex(t, sp, "0x01"), RawKey: "a", Value: "1"})
	s.Put(domain.Resource{Key: idHex(t, sp, "0x02"), RawKey: "b", Value: "2"})

	snapshot := s.All()
	if len(snapshot) != 2 {
		t.Fatalf("All() returned %d resources, want 2", len(snapshot))
	}
	snapshot[0].Value = "mutated"
	fresh := s.All()
	for _, r := range fresh {
		if r.Value == "mutated" {
			t.Fatal("mutating a returned snapshot affected the store")
		}
	}
}
