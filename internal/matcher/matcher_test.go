package matcher

import (
	"net/netip"
	"testing"
)

type fakeContext struct {
	qname string
	qtype uint16
	src   netip.Addr
	flags uint16
}

func (f fakeContext) QName() string        { return f.qname }
func (f fakeContext) QType() uint16        { return f.qtype }
func (f fakeContext) SrcIP() netip.Addr    { return f.src }
func (f fakeContext) ReqFlags() uint16     { return f.flags }

func TestAnyAlwaysMatches(t *testing.T) {
	if !(Any{}).Match(fakeContext{}) {
		t.Fatal("Any should always match")
	}
}

func TestDomainMatcher(t *testing.T) {
	trie := NewDomainTrie()
	trie.Insert("apple.com")
	m := Domain{Trie: trie}

	if !m.Match(fakeContext{qname: "store.apple.com"}) {
		t.Fatal("expected match under apple.com")
	}
	if m.Match(fakeContext{qname: "baidu.com"}) {
		t.Fatal("expected no match for unrelated domain")
	}
}

func TestQTypeMatcher(t *testing.T) {
	m := NewQType(1, 28) // A, AAAA
	if !m.Match(fakeContext{qtype: 1}) {
		t.Fatal("expected A to match")
	}
	if m.Match(fakeContext{qtype: 16}) {
		t.Fatal("expected TXT not to match")
	}
}

func TestIPCIDRMatcher(t *testing.T) {
	prefix := netip.MustParsePrefix("10.0.0.0/8")
	m := IPCIDR{Prefixes: []netip.Prefix{prefix}}

	if !m.Match(fakeContext{src: netip.MustParseAddr("10.1.2.3")}) {
		t.Fatal("expected address inside prefix to match")
	}
	if m.Match(fakeContext{src: netip.MustParseAddr("192.168.1.1")}) {
		t.Fatal("expected address outside prefix not to match")
	}
}

func TestHeaderMatcher(t *testing.T) {
	m := Header{Flag: FlagRD, Want: true}
	if !m.Match(fakeContext{flags: FlagRD}) {
		t.Fatal("expected RD-set query to match Want:true")
	}
	if m.Match(fakeContext{flags: 0}) {
		t.Fatal("expected RD-clear query not to match Want:true")
	}
}

func TestCombinators(t *testing.T) {
	trie := NewDomainTrie()
	trie.Insert("apple.com")
	domainM := Domain{Trie: trie}
	qtypeM := NewQType(1)

	and := And{domainM, qtypeM}
	if !and.Match(fakeContext{qname: "store.apple.com", qtype: 1}) {
		t.Fatal("And should match when both match")
	}
	if and.Match(fakeContext{qname: "store.apple.com", qtype: 16}) {
		t.Fatal("And should fail when one matcher fails")
	}

	or := Or{domainM, qtypeM}
	if !or.Match(fakeContext{qname: "baidu.com", qtype: 1}) {
		t.Fatal("Or should match when any matcher matches")
	}

	not := Not{Matcher: domainM}
	if !not.Match(fakeContext{qname: "baidu.com"}) {
		t.Fatal("Not should invert the wrapped matcher")
	}
}
