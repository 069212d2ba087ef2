package api

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterBurstPerKey(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	for i := 0; i < 2; i++ {
		if !rl.Allow("device:a") {
			t.Fatalf("request %d refused inside burst", i)
		}
	}
	if rl.Allow("device:a") {
		t.Error("request past burst allowed")
	}
	if !rl.Allow("device:b") {
		t.Error("other key shares the bucket")
	}
}

func TestRateLimiterSweepsIdleKeys(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	start := time.Now()
	rl.limiter("device:old", start)

	later := start.Add(rl.ttl + time.Second)
	for i := 0; i < sweepEvery; i++ {
		rl.limiter("device:new", later)
	}
	if got := rl.size(); got != 1 {
		t.Errorf("size = %d, want 1 after sweep", got)
	}
}

func TestRateKey(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/mutations", nil)
	r.RemoteAddr = "10.0.0.5:5123"
	if got := rateKey(r); got != "ip:10.0.0.5" {
		t.Errorf("rateKey = %q, want ip:10.0.0.5", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := rateKey(r); got != "ip:203.0.113.9" {
		t.Errorf("rateKey = %q, want forwarded client", got)
	}

	r.Header.Set("X-Device-ID", "till-01")
	if got := rateKey(r); got != "device:till-01" {
		t.Errorf("rateKey = %q, want device:till-01", got)
	}
}
