package matcher

import "net/netip"

// Context is the narrow view of an in-flight query a Matcher needs to
// evaluate itself. The rule engine's per-query state satisfies this
// interface; the matcher package never depends on the engine package,
// keeping the dependency direction one-way.
type Context interface {
	// QName returns the first question's name, lowercased.
	QName() string
	// QType returns the first question's RR type.
	QType() uint16
	// SrcIP returns the address the query arrived from.
	SrcIP() netip.Addr
	// ReqFlags returns the raw header flags of the original query.
	ReqFlags() uint16
}

// Header condition bits, checked against Context.ReqFlags.
const (
	FlagRD = 0x0100
	FlagAD = 0x0020
	FlagCD = 0x0010
)

// Matcher decides whether a branch applies to the current query.
type Matcher interface {
	Match(ctx Context) bool
}

// Any always matches; it is the default branch condition.
type Any struct{}

func (Any) Match(Context) bool { return true }

// Domain matches when the query name falls under the wrapped trie.
type Domain struct {
	Trie *DomainTrie
}

func (d Domain) Match(ctx Context) bool {
	if d.Trie == nil {
		return false
	}
	return d.Trie.Matches(ctx.QName())
}

// QType matches when the query's RR type is one of a fixed set.
type QType struct {
	Types map[uint16]struct{}
}

// NewQType builds a QType matcher from a list of RR types.
func NewQType(types ...uint16) QType {
	set := make(map[uint16]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return QType{Types: set}
}

func (q QType) Match(ctx Context) bool {
	_, ok := q.Types[ctx.QType()]
	return ok
}

// IPCIDR matches when the query's source address falls inside one of a
// fixed set of prefixes.
type IPCIDR struct {
	Prefixes []netip.Prefix
}

func (c IPCIDR) Match(ctx Context) bool {
	src := ctx.SrcIP()
	for _, p := range c.Prefixes {
		if p.Contains(src) {
			return true
		}
	}
	return false
}

// Header matches a single header flag bit against a wanted value, e.g.
// "recursion desired is set".
type Header struct {
	Flag uint16
	Want bool
}

func (h Header) Match(ctx Context) bool {
	set := ctx.ReqFlags()&h.Flag != 0
	return set == h.Want
}

// And matches only when every wrapped matcher matches.
type And []Matcher

func (a And) Match(ctx Context) bool {
	for _, m := range a {
		if !m.Match(ctx) {
			return false
		}
	}
	return true
}

// Or matches when any wrapped matcher matches.
type Or []Matcher

func (o Or) Match(ctx Context) bool {
	for _, m := range o {
		if m.Match(ctx) {
			return true
		}
	}
	return false
}

// Not inverts the wrapped matcher.
type Not struct {
	Matcher Matcher
}

func (n Not) Match(ctx Context) bool {
	return !n.Matcher.Match(ctx)
}
