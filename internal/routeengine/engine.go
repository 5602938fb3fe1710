// Package routeengine drives a single query through a rule table: at
// each tag it evaluates the rule's branches in order, runs the first
// matching branch's actions, and follows its next_tag until it reaches
// the graph's end.
package routeengine

import (
	"context"
	"fmt"

	"dnsrouter/internal/dnsmsg"
	"dnsrouter/internal/respcache"
	"dnsrouter/internal/ruletable"
)

// Dispatcher sends a query to the upstream named by tag and returns its
// response. Engine depends only on this interface, not on any concrete
// upstream implementation, so the upstream package never has to import
// routeengine.
type Dispatcher interface {
	Query(ctx context.Context, tag string, q dnsmsg.Packet) (dnsmsg.Packet, error)
}

// Engine resolves queries against a validated rule table.
type Engine struct {
	Table    *ruletable.Table
	Dispatch Dispatcher
	Cache    *respcache.Cache
	maxHops  int
}

// NewEngine builds an Engine. table must already have passed
// Validate(); Engine does not re-check it, so a cycle in an unvalidated
// table would only be caught by the hop guard below, not reported as a
// structural error.
func NewEngine(table *ruletable.Table, dispatch Dispatcher, cache *respcache.Cache) *Engine {
	return &Engine{Table: table, Dispatch: dispatch, Cache: cache, maxHops: 1024}
}

// Resolve routes query through the rule graph and returns the finished
// response. A query with no questions, or one that fails to parse
// upstream of this call, never reaches here — the frontend synthesizes
// SERVFAIL for those before calling Resolve.
func (e *Engine) Resolve(ctx context.Context, query dnsmsg.Packet, qctx QueryContext) dnsmsg.Packet {
	if len(query.Questions) == 0 {
		return servfail(query)
	}

	st := newState(query, qctx)
	tag := e.Table.Start

	for hops := 0; tag != ruletable.EndTag; hops++ {
		if hops >= e.maxHops {
			return servfail(query)
		}

		rule, ok := e.Table.Rules[tag]
		if !ok {
			return servfail(query)
		}

		branch, ok := firstMatch(rule, st)
		if !ok {
			return servfail(query)
		}

		if err := e.runActions(ctx, st, branch.Actions); err != nil {
			return servfail(query)
		}
		tag = branch.NextTag
	}

	finalizeHeader(&st.resp, query)
	return st.resp
}

func firstMatch(rule ruletable.Rule, st *State) (ruletable.Branch, bool) {
	for _, b := range rule.Branches() {
		if b.Cond.Match(st) {
			return b, true
		}
	}
	return ruletable.Branch{}, false
}

func (e *Engine) runActions(ctx context.Context, st *State, actions []ruletable.Action) error {
	for _, a := range actions {
		switch a.Kind {
		case ruletable.ActionQuery:
			resp, err := e.query(ctx, st, a)
			if err != nil {
				return err
			}
			st.resp = resp
		case ruletable.ActionDisable:
			st.resp.HeaderMut().SetRCode(dnsmsg.RCode(a.RCode))
			st.resp.Answers = nil
		case ruletable.ActionSkip:
			// Intentionally nothing: routes via NextTag alone.
		case ruletable.ActionSetRCode:
			st.resp.HeaderMut().SetRCode(dnsmsg.RCode(a.RCode))
		default:
			return fmt.Errorf("routeengine: unknown action kind %d", a.Kind)
		}
	}
	return nil
}

// query executes an ActionQuery, consulting and populating the
// response cache according to the action's CacheMode.
func (e *Engine) query(ctx context.Context, st *State, a ruletable.Action) (dnsmsg.Packet, error) {
	if a.CacheMode == ruletable.Disabled || e.Cache == nil {
		return e.Dispatch.Query(ctx, a.UpstreamTag, st.query)
	}

	key := respcache.Key(a.UpstreamTag, st.query.Questions)
	cached, status := e.Cache.Get(key)
	if status == respcache.Alive {
		return withQuestions(cached, st.query), nil
	}

	resp, err := e.Dispatch.Query(ctx, a.UpstreamTag, st.query)
	if err != nil {
		if a.CacheMode == ruletable.Persist && status == respcache.Expired {
			return withQuestions(cached, st.query), nil
		}
		return dnsmsg.Packet{}, err
	}

	e.Cache.Put(key, resp)
	return resp, nil
}

// withQuestions restamps a cached response with the live query's
// header framing fields so a reused transaction ID never leaks a stale
// one to the client.
func withQuestions(cached, query dnsmsg.Packet) dnsmsg.Packet {
	out := cached.Clone()
	out.Questions = query.Questions
	finalizeHeader(&out, query)
	return out
}

// finalizeHeader stamps the response header's framing fields from the
// original query: id, opcode, and rd are echoed back; qr is set; rcode
// is left as whatever the response already carries.
func finalizeHeader(resp *dnsmsg.Packet, query dnsmsg.Packet) {
	h := resp.HeaderMut()
	h.SetID(query.Header.ID)
	h.SetOpcode(query.Header.Opcode())
	h.SetRD(query.Header.RD())
	h.SetQR(true)
}

func servfail(query dnsmsg.Packet) dnsmsg.Packet {
	resp := dnsmsg.Packet{Header: query.Header, Questions: query.Questions}
	finalizeHeader(&resp, query)
	resp.HeaderMut().SetRCode(dnsmsg.RCodeServFail)
	return resp
}
