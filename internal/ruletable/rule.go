// Package ruletable models the directed rule graph a query is routed
// through: a set of named rules, each a sequence of condition-guarded
// branches, wired together by the tag each branch names as its
// successor.
package ruletable

import "dnsrouter/internal/matcher"

// EndTag is the reserved successor naming graph termination: a branch
// whose NextTag is EndTag returns the current response to the client
// instead of continuing to another rule.
const EndTag = "end"

// ActionKind identifies what a Branch's actions do to the in-flight
// query or response.
type ActionKind int

const (
	// ActionQuery dispatches the query to the upstream named by
	// Action.UpstreamTag and stores the result as the response.
	ActionQuery ActionKind = iota
	// ActionDisable marks the query as blocked; the engine synthesizes
	// a response (REFUSED by default) without dispatching upstream.
	ActionDisable
	// ActionSkip is a no-op placeholder action used to document a
	// branch that exists purely to route — e.g. to run a later branch's
	// match against a different next_tag — without touching the
	// query or response itself.
	ActionSkip
	// ActionSetRCode overwrites the response's rcode in place, used to
	// synthesize outcomes like a filtered NXDOMAIN.
	ActionSetRCode
)

// CacheMode controls how an ActionQuery interacts with the response
// cache.
type CacheMode int

const (
	// Standard serves a cached response while it's Alive and otherwise
	// dispatches upstream; a dispatch failure is returned as an error.
	Standard CacheMode = iota
	// Persist additionally serves an Expired cache entry if the
	// upstream dispatch fails, trading staleness for availability.
	Persist
	// Disabled never reads or writes the response cache for this
	// action.
	Disabled
)

// Action is one step of a branch's effect list, executed in order when
// the branch's condition matches.
type Action struct {
	Kind        ActionKind
	UpstreamTag string    // ActionQuery
	CacheMode   CacheMode // ActionQuery
	RCode       uint16    // ActionSetRCode; holds a dnsmsg.RCode value
}

// Branch is one guarded arm of a rule: when Cond matches the current
// query, Actions run in order and control passes to NextTag.
type Branch struct {
	Cond    matcher.Matcher
	Actions []Action
	NextTag string
}

// Rule is a named node of the routing graph. Both rule shapes reduce to
// an ordered list of branches, evaluated first-match-wins — this lets
// validation and engine traversal share one code path regardless of
// which shape produced the rule.
type Rule interface {
	Branches() []Branch
}

// SeqBlock is a rule that evaluates an ordered list of independently
// guarded branches, taking the first whose condition matches.
type SeqBlock []Branch

func (s SeqBlock) Branches() []Branch { return s }

// IfBlock is a two-armed rule: Cond selects Then, anything else falls
// through to Else.
type IfBlock struct {
	Cond matcher.Matcher
	Then Branch
	Else Branch
}

func (i IfBlock) Branches() []Branch {
	then := i.Then
	then.Cond = i.Cond
	els := i.Else
	els.Cond = matcher.Any{}
	return []Branch{then, els}
}
