package upstream

import (
	"context"
	"errors"
	"testing"

	"dnsrouter/internal/dnsmsg"
)

func TestQueryUnknownTag(t *testing.T) {
	r := NewRegistry()
	_, err := r.Query(context.Background(), "nope", dnsmsg.Packet{})
	if !errors.Is(err, ErrUnknownUpstream) {
		t.Fatalf("expected ErrUnknownUpstream, got %v", err)
	}
}

func TestQueryMarksFailureAndEntersCooldown(t *testing.T) {
	r := NewRegistry()
	mt := &MockTransport{Err: errors.New("timeout")}
	r.Register("a", mt)

	_, err := r.Query(context.Background(), "a", dnsmsg.Packet{})
	if err == nil {
		t.Fatal("expected the transport error to propagate")
	}

	_, err = r.Query(context.Background(), "a", dnsmsg.Packet{})
	if !errors.Is(err, ErrInCooldown) {
		t.Fatalf("expected ErrInCooldown on second attempt, got %v", err)
	}
	if mt.Calls != 1 {
		t.Fatalf("expected the transport not to be retried during cooldown, calls=%d", mt.Calls)
	}
}

func TestQuerySuccessClearsCooldown(t *testing.T) {
	r := NewRegistry()
	mt := &MockTransport{}
	r.Register("a", mt)

	r.markFailed("a")
	if r.canTry("a") {
		t.Fatal("expected upstream to be in cooldown before a success clears it")
	}

	r.markHealthy("a")
	if !r.canTry("a") {
		t.Fatal("expected markHealthy to clear cooldown")
	}
}

func TestRoundRobinCyclesTransports(t *testing.T) {
	r := NewRegistry()
	a := &MockTransport{}
	b := &MockTransport{}
	r.Register("rr", a, b)

	for range 4 {
		if _, err := r.Query(context.Background(), "rr", dnsmsg.Packet{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if a.Calls != 2 || b.Calls != 2 {
		t.Fatalf("expected round-robin to alternate evenly, got a=%d b=%d", a.Calls, b.Calls)
	}
}

func TestHedgeReturnsFirstSuccessAndIgnoresSlowFailure(t *testing.T) {
	r := NewRegistry()
	fast := &MockTransport{}
	slowFail := &MockTransport{Err: errors.New("boom")}
	r.RegisterMode("hedged", Hedge, fast, slowFail)

	resp, err := r.Query(context.Background(), "hedged", dnsmsg.Packet{})
	if err != nil {
		t.Fatalf("expected hedge to succeed when one transport succeeds, got %v", err)
	}
	_ = resp
	if !r.canTry("hedged") {
		t.Fatal("a hedge success must not leave the upstream in cooldown")
	}
}

func TestHedgeFailsOnlyWhenAllTransportsFail(t *testing.T) {
	r := NewRegistry()
	a := &MockTransport{Err: errors.New("a failed")}
	b := &MockTransport{Err: errors.New("b failed")}
	r.RegisterMode("hedged", Hedge, a, b)

	if _, err := r.Query(context.Background(), "hedged", dnsmsg.Packet{}); err == nil {
		t.Fatal("expected an error when every hedged transport fails")
	}
}
