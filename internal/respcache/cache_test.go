package respcache

import (
	"testing"
	"time"

	"dnsrouter/internal/dnsmsg"
)

func answerPacket(ttl uint32, rc dnsmsg.RCode) dnsmsg.Packet {
	p := dnsmsg.Packet{
		Questions: []dnsmsg.Question{{Name: "apple.com", Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN)}},
	}
	if rc == dnsmsg.RCodeNoError {
		p.Answers = []dnsmsg.Record{
			dnsmsg.NewIPRecord(dnsmsg.RRHeader{Name: "apple.com", Class: uint16(dnsmsg.ClassIN), TTL: ttl}, nil),
		}
	}
	p.HeaderMut().SetRCode(rc)
	return p
}

func TestCachePutGetAliveThenExpired(t *testing.T) {
	c := New(10)
	key := Key("upstream-a", answerPacket(1, dnsmsg.RCodeNoError).Questions)

	c.Put(key, answerPacket(1, dnsmsg.RCodeNoError))

	_, status := c.Get(key)
	if status != Alive {
		t.Fatalf("expected Alive immediately after Put, got %v", status)
	}

	time.Sleep(1100 * time.Millisecond)

	packet, status := c.Get(key)
	if status != Expired {
		t.Fatalf("expected Expired after TTL elapses, got %v", status)
	}
	if len(packet.Questions) != 1 {
		t.Fatal("expired entry should still return its last cached value")
	}
}

func TestCacheKeyDistinguishesUpstreamTag(t *testing.T) {
	questions := answerPacket(60, dnsmsg.RCodeNoError).Questions
	keyA := Key("upstream-a", questions)
	keyB := Key("upstream-b", questions)

	if keyA == keyB {
		t.Fatal("keys for different upstream tags must differ")
	}
}

func TestCacheDoesNotStoreErrorRcode(t *testing.T) {
	c := New(10)
	key := Key("upstream-a", answerPacket(60, dnsmsg.RCodeServFail).Questions)
	c.Put(key, answerPacket(60, dnsmsg.RCodeServFail))

	_, status := c.Get(key)
	if status != Miss {
		t.Fatalf("expected Miss for a SERVFAIL response, got %v", status)
	}
}

func TestCacheEvictsOldestOverCapacity(t *testing.T) {
	c := New(2)
	q1 := []dnsmsg.Question{{Name: "a.com", Type: 1, Class: 1}}
	q2 := []dnsmsg.Question{{Name: "b.com", Type: 1, Class: 1}}
	q3 := []dnsmsg.Question{{Name: "c.com", Type: 1, Class: 1}}

	resp := func(qs []dnsmsg.Question) dnsmsg.Packet {
		p := dnsmsg.Packet{Questions: qs}
		p.Answers = []dnsmsg.Record{
			dnsmsg.NewIPRecord(dnsmsg.RRHeader{Name: qs[0].Name, TTL: 60}, nil),
		}
		return p
	}

	c.Put(Key("u", q1), resp(q1))
	c.Put(Key("u", q2), resp(q2))
	c.Put(Key("u", q3), resp(q3))

	if c.Len() != 2 {
		t.Fatalf("expected cache capped at 2 entries, got %d", c.Len())
	}
	if _, status := c.Get(Key("u", q1)); status != Miss {
		t.Fatal("expected the oldest entry to have been evicted")
	}
}
