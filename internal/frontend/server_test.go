// Package frontend_test provides black-box behavior tests for the
// frontend package.
package frontend_test

import (
	"context"
	"errors"
	"net/netip"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dnsrouter/internal/dnsmsg"
	"dnsrouter/internal/frontend"
	"dnsrouter/internal/matcher"
	"dnsrouter/internal/routeengine"
	"dnsrouter/internal/ruletable"
)

// ============================================================================
// RateLimiter Tests
// ============================================================================

func setRateLimitEnv(t *testing.T, globalQPS, globalBurst, prefixQPS, prefixBurst, ipQPS, ipBurst float64) {
	t.Helper()
	env := map[string]string{
		"DNSROUTER_RL_GLOBAL_QPS":   ftoa(globalQPS),
		"DNSROUTER_RL_GLOBAL_BURST": ftoa(globalBurst),
		"DNSROUTER_RL_PREFIX_QPS":   ftoa(prefixQPS),
		"DNSROUTER_RL_PREFIX_BURST": ftoa(prefixBurst),
		"DNSROUTER_RL_IP_QPS":       ftoa(ipQPS),
		"DNSROUTER_RL_IP_BURST":     ftoa(ipBurst),
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	setRateLimitEnv(t, 1000, 100, 100, 10, 10, 5)
	limiter := frontend.NewRateLimiterFromEnv()

	for i := range 5 {
		assert.True(t, limiter.Allow("192.168.1.1"), "Request %d should be allowed", i)
	}
}

func TestRateLimiter_BlocksExceedingLimit(t *testing.T) {
	setRateLimitEnv(t, 1000, 100, 100, 10, 10, 2)
	limiter := frontend.NewRateLimiterFromEnv()

	limiter.Allow("192.168.1.1")
	limiter.Allow("192.168.1.1")

	assert.False(t, limiter.Allow("192.168.1.1"), "Should be rate limited after exceeding burst")
}

func TestRateLimiter_NilLimiter(t *testing.T) {
	var limiter *frontend.RateLimiter
	assert.True(t, limiter.Allow("192.168.1.1"))
}

func TestRateLimiter_AllowAddr(t *testing.T) {
	setRateLimitEnv(t, 1000, 100, 100, 10, 10, 5)
	limiter := frontend.NewRateLimiterFromEnv()

	ip := netip.MustParseAddr("192.168.1.1")
	for i := range 5 {
		assert.True(t, limiter.AllowAddr(ip), "Request %d should be allowed", i)
	}
}

func TestRateLimiter_IPv6(t *testing.T) {
	setRateLimitEnv(t, 1000, 100, 100, 10, 10, 5)
	limiter := frontend.NewRateLimiterFromEnv()

	ip := netip.MustParseAddr("2001:db8::1")
	for i := range 5 {
		assert.True(t, limiter.AllowAddr(ip), "IPv6 request %d should be allowed", i)
	}
}

func TestRateLimiter_GlobalLimit(t *testing.T) {
	setRateLimitEnv(t, 10, 2, 1000, 100, 1000, 100)
	limiter := frontend.NewRateLimiterFromEnv()

	limiter.Allow("192.168.1.1")
	limiter.Allow("10.0.0.1")

	assert.False(t, limiter.Allow("172.16.0.1"), "Should be globally limited")
}

// ============================================================================
// TokenBucketRateLimiter Tests
// ============================================================================

func TestTokenBucket_AllowConsumesToken(t *testing.T) {
	tb := frontend.NewTokenBucketRateLimiter(frontend.TokenBucketConfig{
		Rate:       1.0,
		Burst:      5,
		MaxEntries: 100,
	})

	for i := range 5 {
		assert.True(t, tb.Allow("key1"), "Request %d should be allowed", i)
	}
	assert.False(t, tb.Allow("key1"), "Should be rate limited after burst")
}

func TestTokenBucket_DifferentKeys(t *testing.T) {
	tb := frontend.NewTokenBucketRateLimiter(frontend.TokenBucketConfig{
		Rate:       1.0,
		Burst:      2,
		MaxEntries: 100,
	})

	tb.Allow("key1")
	tb.Allow("key1")

	assert.True(t, tb.Allow("key2"), "Different key should have separate bucket")
}

func TestTokenBucket_TokenReplenishment(t *testing.T) {
	tb := frontend.NewTokenBucketRateLimiter(frontend.TokenBucketConfig{
		Rate:       1000.0,
		Burst:      1,
		MaxEntries: 100,
	})

	assert.True(t, tb.Allow("key1"))
	assert.False(t, tb.Allow("key1"))

	time.Sleep(5 * time.Millisecond)

	assert.True(t, tb.Allow("key1"), "Should have replenished tokens")
}

// ============================================================================
// RateLimitsStartupLog Tests
// ============================================================================

func TestRateLimitsStartupLog(t *testing.T) {
	setRateLimitEnv(t, 1000, 100, 100, 10, 10, 5)
	result := frontend.RateLimitsStartupLog()

	assert.Contains(t, result, "global=1000qps/100")
	assert.Contains(t, result, "prefix=100qps/10")
	assert.Contains(t, result, "ip=10qps/5")
}

func TestRateLimitsStartupLog_Disabled(t *testing.T) {
	setRateLimitEnv(t, 0, 0, 0, 0, 0, 0)
	result := frontend.RateLimitsStartupLog()

	assert.Contains(t, result, "global=disabled")
	assert.Contains(t, result, "prefix=disabled")
	assert.Contains(t, result, "ip=disabled")
}

// ============================================================================
// QueryHandler black-box tests
// ============================================================================

type dispatchFunc func(ctx context.Context, tag string, q dnsmsg.Packet) (dnsmsg.Packet, error)

func (f dispatchFunc) Query(ctx context.Context, tag string, q dnsmsg.Packet) (dnsmsg.Packet, error) {
	return f(ctx, tag, q)
}

func passthroughEngine(d dispatchFunc) *routeengine.Engine {
	table := &ruletable.Table{
		Start: "route",
		Rules: map[string]ruletable.Rule{
			"route": ruletable.SeqBlock{
				{
					Cond:    matcher.Any{},
					Actions: []ruletable.Action{{Kind: ruletable.ActionQuery, UpstreamTag: "up", CacheMode: ruletable.Disabled}},
					NextTag: ruletable.EndTag,
				},
			},
		},
	}
	return routeengine.NewEngine(table, d, nil)
}

func createValidDNSRequest(t *testing.T) []byte {
	t.Helper()
	h := dnsmsg.Header{ID: 0x1234}
	h.SetRD(true)
	pkt := dnsmsg.Packet{
		Header:    h,
		Questions: []dnsmsg.Question{{Name: "example.com", Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN)}},
	}
	data, err := pkt.Marshal()
	require.NoError(t, err)
	return data
}

var testAddr = netip.MustParseAddr("127.0.0.1")

func TestQueryHandler_SuccessfulResolve(t *testing.T) {
	h := dnsmsg.Header{ID: 0x1234, QDCount: 1}
	h.SetQR(true)
	response := dnsmsg.Packet{Header: h, Questions: []dnsmsg.Question{{Name: "example.com", Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN)}}}

	handler := &frontend.QueryHandler{
		Engine: passthroughEngine(func(_ context.Context, _ string, _ dnsmsg.Packet) (dnsmsg.Packet, error) {
			return response, nil
		}),
		Timeout: 5 * time.Second,
	}

	result := handler.Handle(context.Background(), "udp", testAddr, createValidDNSRequest(t))

	assert.True(t, result.ParsedOK, "Should successfully parse request")
	assert.Equal(t, "resolved", result.Source)
	assert.NotEmpty(t, result.ResponseBytes)
}

func TestQueryHandler_ResolverError(t *testing.T) {
	handler := &frontend.QueryHandler{
		Engine: passthroughEngine(func(_ context.Context, _ string, _ dnsmsg.Packet) (dnsmsg.Packet, error) {
			return dnsmsg.Packet{}, errors.New("resolver failed")
		}),
		Timeout: 5 * time.Second,
	}

	result := handler.Handle(context.Background(), "udp", testAddr, createValidDNSRequest(t))

	assert.True(t, result.ParsedOK)
	assert.Equal(t, "resolved", result.Source)
	assert.NotNil(t, result.ResponseBytes, "engine should synthesize a SERVFAIL response")
}

func TestQueryHandler_Timeout(t *testing.T) {
	handler := &frontend.QueryHandler{
		Engine: passthroughEngine(func(ctx context.Context, _ string, _ dnsmsg.Packet) (dnsmsg.Packet, error) {
			time.Sleep(500 * time.Millisecond)
			return dnsmsg.Packet{}, nil
		}),
		Timeout: 10 * time.Millisecond,
	}

	result := handler.Handle(context.Background(), "udp", testAddr, createValidDNSRequest(t))

	assert.True(t, result.ParsedOK)
	assert.Equal(t, "timeout", result.Source)
}

func TestQueryHandler_InvalidRequest(t *testing.T) {
	handler := &frontend.QueryHandler{
		Engine:  passthroughEngine(func(_ context.Context, _ string, _ dnsmsg.Packet) (dnsmsg.Packet, error) { return dnsmsg.Packet{}, nil }),
		Timeout: 5 * time.Second,
	}

	result := handler.Handle(context.Background(), "udp", testAddr, []byte{0x00})

	assert.False(t, result.ParsedOK)
	assert.Contains(t, []string{"parse-error", "formerr"}, result.Source)
}

func TestQueryHandler_SequentialRequests(t *testing.T) {
	callCount := 0
	h := dnsmsg.Header{ID: 0x1234}
	h.SetQR(true)
	response := dnsmsg.Packet{Header: h}

	handler := &frontend.QueryHandler{
		Engine: passthroughEngine(func(_ context.Context, _ string, _ dnsmsg.Packet) (dnsmsg.Packet, error) {
			callCount++
			return response, nil
		}),
		Timeout: 5 * time.Second,
	}

	for range 5 {
		result := handler.Handle(context.Background(), "udp", testAddr, createValidDNSRequest(t))
		assert.True(t, result.ParsedOK)
		assert.Equal(t, "resolved", result.Source)
	}

	assert.Equal(t, 5, callCount)
}

// ============================================================================
// HandleResult Tests
// ============================================================================

func TestHandleResult_Fields(t *testing.T) {
	result := frontend.HandleResult{
		ResponseBytes: []byte{0x12, 0x34},
		Source:        "test",
		ParsedOK:      true,
	}

	assert.Equal(t, []byte{0x12, 0x34}, result.ResponseBytes)
	assert.Equal(t, "test", result.Source)
	assert.True(t, result.ParsedOK)
}

// ============================================================================
// Integration-style concurrency tests
// ============================================================================

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	setRateLimitEnv(t, 10000, 1000, 1000, 100, 100, 10)
	limiter := frontend.NewRateLimiterFromEnv()

	done := make(chan bool)
	for range 10 {
		go func() {
			for range 100 {
				limiter.Allow("192.168.1.1")
			}
			done <- true
		}()
	}

	for range 10 {
		<-done
	}
}

func TestTokenBucket_ConcurrentAccess(t *testing.T) {
	tb := frontend.NewTokenBucketRateLimiter(frontend.TokenBucketConfig{
		Rate:       1000,
		Burst:      100,
		MaxEntries: 1000,
	})

	done := make(chan bool)
	for i := range 10 {
		go func(id int) {
			key := string(rune('a' + id))
			for range 50 {
				tb.Allow(key)
			}
			done <- true
		}(i)
	}

	for range 10 {
		<-done
	}
}
