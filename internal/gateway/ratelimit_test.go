package gateway

import "testing"

func TestRateLimiterDisabled(t *testing.T) {
	r := NewRateLimiter(0, 5)
	if r.Enabled() {
		t.Error("rpm 0 should disable limiting")
	}
	for i := 0; i < 100; i++ {
		if !r.Allow("c1") {
			t.Fatal("disabled limiter rejected a request")
		}
	}
}

func TestRateLimiterBurstThenBlock(t *testing.T) {
	r := NewRateLimiter(60, 2)
	if !r.Allow("c1") || !r.Allow("c1") {
		t.Fatal("burst requests rejected")
	}
	if r.Allow("c1") {
		t.Error("third immediate request should be limited")
	}
	// Separate connections have separate budgets.
	if !r.Allow("c2") {
		t.Error("other connection should be unaffected")
	}
}

func TestRateLimiterForget(t *testing.T) {
	r := NewRateLimiter(60, 1)
	r.Allow("c1")
	r.Forget("c1")
	if !r.Allow("c1") {
		t.Error("forgotten connection should start fresh")
	}
}
