package cache

import (
	"context"
	"reflect"
	"testing"
	"time"
)

// TestParseAddrs verifies comma-separated server lists are split and trimmed.
func TestParseAddrs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"localhost:11211", []string{"localhost:11211"}},
		{" a:1 , b:2 ,", []string{"a:1", "b:2"}},
		{"", nil},
		{" , ", nil},
	}
	for _, tt := range tests {
		if got := parseAddrs(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseAddrs(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// TestExpirationSeconds verifies TTLs map into memcached's relative range and long TTLs are
// capped instead of shortened.
func TestExpirationSeconds(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int32
	}{
		{2 * time.Hour, 7200},
		{0, int32((2 * DefaultWindow).Seconds())},
		{-time.Minute, int32((2 * DefaultWindow).Seconds())},
		{500 * time.Millisecond, 1},
		{30 * 24 * time.Hour, maxRelativeExp},
		{40 * 24 * time.Hour, maxRelativeExp},
		{100 * 365 * 24 * time.Hour, maxRelativeExp},
	}
	for _, tt := range tests {
		if got := expirationSeconds(tt.ttl); got != tt.want {
			t.Errorf("expirationSeconds(%v) = %d, want %d", tt.ttl, got, tt.want)
		}
	}
}

// TestMemcachedStore_CanceledContext verifies operations short-circuit on a done context
// without contacting the server.
func TestMemcachedStore_CanceledContext(t *testing.T) {
	s := NewMemcachedStore("127.0.0.1:1", 50*time.Millisecond, 0)
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := s.Get(ctx, "k"); err != context.Canceled {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
	if err := s.Set(ctx, "k", Entry{}, time.Minute); err != context.Canceled {
		t.Errorf("Set() error = %v, want context.Canceled", err)
	}
	if err := s.Delete(ctx, "k"); err != context.Canceled {
		t.Errorf("Delete() error = %v, want context.Canceled", err)
	}
}
