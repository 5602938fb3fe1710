package routeengine

import (
	"net/netip"

	"dnsrouter/internal/dnsmsg"
)

// QueryContext carries the per-connection facts a matcher might need
// that aren't present in the DNS message itself.
type QueryContext struct {
	SrcIP netip.Addr
}

// State is the per-query working set the engine thread through the
// rule graph: the original query, the response under construction, and
// the context it arrived with. It implements matcher.Context directly,
// so branch conditions evaluate against it with no adaptor layer.
type State struct {
	query dnsmsg.Packet
	resp  dnsmsg.Packet
	qctx  QueryContext
}

func newState(query dnsmsg.Packet, qctx QueryContext) *State {
	resp := query.Clone()
	resp.HeaderMut().SetQR(true)
	resp.Answers = nil
	resp.Authorities = nil
	resp.Additionals = nil
	return &State{query: query, resp: resp, qctx: qctx}
}

// QName implements matcher.Context.
func (s *State) QName() string {
	if len(s.query.Questions) == 0 {
		return ""
	}
	return s.query.Questions[0].Name
}

// QType implements matcher.Context.
func (s *State) QType() uint16 {
	if len(s.query.Questions) == 0 {
		return 0
	}
	return s.query.Questions[0].Type
}

// SrcIP implements matcher.Context.
func (s *State) SrcIP() netip.Addr { return s.qctx.SrcIP }

// ReqFlags implements matcher.Context.
func (s *State) ReqFlags() uint16 { return s.query.Header.Flags }
