// Package respcache implements the response cache the routing engine
// consults before dispatching a query upstream: a bounded, TTL-aware
// LRU keyed by the pair of upstream tag and question set.
package respcache

import (
	"container/list"
	"fmt"
	"strings"
	"sync"
	"time"

	"dnsrouter/internal/dnsmsg"
)

// Status reports whether a cache hit is still within its TTL.
type Status int

const (
	// Miss means no entry exists for the key.
	Miss Status = iota
	// Alive means the entry exists and its TTL has not elapsed.
	Alive
	// Expired means the entry exists but its TTL has elapsed. Unlike a
	// conventional LRU, an expired entry is not evicted on read —
	// Persist-mode callers use it to serve a stale answer when the
	// upstream is unreachable. Capacity pressure, not expiry, is what
	// removes an entry.
	Expired
)

// MaxTTL is the fallback TTL substituted for a response that carries no
// answer records to derive a minimum TTL from (e.g. a bare NXDOMAIN
// with no SOA inspected). It is a substitute value, not a ceiling: a
// response with a real, longer answer TTL is cached for exactly that
// long.
const MaxTTL = 24 * time.Hour

type entry struct {
	key       string
	packet    dnsmsg.Packet
	cachedAt  time.Time
	expiresAt time.Time
	elem      *list.Element
}

// Cache is a thread-safe, capacity-bounded response cache. Entries are
// keyed by an upstream tag and the packet's question set, so the same
// question routed through two different upstreams never collides.
type Cache struct {
	mu sync.Mutex

	maxEntries int
	lru        *list.List
	data       map[string]*entry
}

// New creates a Cache holding at most maxEntries responses.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Cache{
		maxEntries: maxEntries,
		lru:        list.New(),
		data:       make(map[string]*entry),
	}
}

// Key builds the composite lookup key for a tag and question set. Go
// map keys must be comparable, and a []dnsmsg.Question is not, so the
// pair is flattened into a single string rather than kept as a
// reference into the live packet.
func Key(tag string, questions []dnsmsg.Question) string {
	var b strings.Builder
	b.WriteString(tag)
	for _, q := range questions {
		b.WriteByte('|')
		b.WriteString(q.Name)
		b.WriteByte(':')
		fmt.Fprintf(&b, "%d:%d", q.Type, q.Class)
	}
	return b.String()
}

// Get looks up a previously cached response for key. The returned
// packet is a shallow value copy: like dnsmsg.Packet.Clone, it shares
// its record slices with the cached entry, so callers replace those
// slices rather than mutate them in place.
func (c *Cache) Get(key string) (dnsmsg.Packet, Status) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.data[key]
	if e == nil {
		return dnsmsg.Packet{}, Miss
	}
	c.lru.MoveToBack(e.elem)

	if now.After(e.expiresAt) {
		return e.packet, Expired
	}
	return e.packet, Alive
}

// Put stores resp under key, deriving the entry's TTL from the
// response's minimum answer TTL, or MaxTTL when it has no answer
// records at all. A response carrying an error rcode (anything other
// than NOERROR) is never cached — the engine re-dispatches those every
// time rather than pinning a transient failure.
func (c *Cache) Put(key string, resp dnsmsg.Packet) {
	if resp.RCode() != dnsmsg.RCodeNoError {
		return
	}

	ttl := MaxTTL
	if min, ok := resp.MinAnswerTTL(); ok {
		ttl = time.Duration(min) * time.Second
	}
	if ttl <= 0 {
		return
	}

	now := time.Now()
	expires := now.Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing := c.data[key]; existing != nil {
		existing.packet = resp.Clone()
		existing.cachedAt = now
		existing.expiresAt = expires
		c.lru.MoveToBack(existing.elem)
		return
	}

	e := &entry{key: key, packet: resp.Clone(), cachedAt: now, expiresAt: expires}
	e.elem = c.lru.PushBack(e)
	c.data[key] = e

	c.evictOldest()
}

// evictOldest removes least-recently-touched entries until the cache
// is back under capacity, regardless of whether they've expired.
func (c *Cache) evictOldest() {
	for len(c.data) > c.maxEntries {
		front := c.lru.Front()
		if front == nil {
			break
		}
		e := front.Value.(*entry)
		c.lru.Remove(front)
		delete(c.data, e.key)
	}
}

// Len returns the number of entries currently held, including expired
// ones not yet evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
