package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func TestLimiterWindow(t *testing.T) {
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(60, WithClock(c.Now))

	for i := 0; i < 60; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("request %d rejected", i+1)
		}
	}
	if l.Allow("1.2.3.4") {
		t.Error("61st request should be rejected")
	}
	if !l.Allow("5.6.7.8") {
		t.Error("other identities have their own bucket")
	}

	c.t = c.t.Add(time.Minute)
	if !l.Allow("1.2.3.4") {
		t.Error("request after window should be allowed")
	}
}

func TestLimiterRefillsGradually(t *testing.T) {
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(60, WithClock(c.Now))
	for i := 0; i < 60; i++ {
		l.Allow("a")
	}
	c.t = c.t.Add(1100 * time.Millisecond)
	if !l.Allow("a") {
		t.Error("one token should refill per second")
	}
	if l.Allow("a") {
		t.Error("only one token should have refilled")
	}
}

func TestLimiterDisabled(t *testing.T) {
	l := New(0)
	for i := 0; i < 1000; i++ {
		if !l.Allow("x") {
			t.Fatal("disabled limiter rejected a request")
		}
	}
}

func TestLimiterPrunesIdle(t *testing.T) {
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(10, WithClock(c.Now))
	l.Allow("a")
	l.Allow("b")
	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", l.Len())
	}
	c.t = c.t.Add(idleAfter + time.Minute)
	l.Allow("c")
	if l.Len() != 1 {
		t.Errorf("Len() = %d after idle prune, want 1", l.Len())
	}
}

func TestIdentity(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "9.9.9.9, 10.0.0.1"}, "9.9.9.9"},
		{"forwarded single", map[string]string{"X-Forwarded-For": " 9.9.9.9 "}, "9.9.9.9"},
		{"real ip", map[string]string{"X-Real-IP": "8.8.8.8"}, "8.8.8.8"},
		{"forwarded wins", map[string]string{"X-Forwarded-For": "1.1.1.1", "X-Real-IP": "8.8.8.8"}, "1.1.1.1"},
		{"empty forwarded", map[string]string{"X-Forwarded-For": ", 2.2.2.2", "X-Real-IP": "8.8.8.8"}, "8.8.8.8"},
		{"none", nil, FallbackIdentity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := Identity(r); got != tt.want {
				t.Errorf("Identity() = %q, want %q", got, tt.want)
			}
		})
	}
}
