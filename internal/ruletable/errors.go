package ruletable

import "fmt"

// UndefinedTagError reports a branch whose next_tag names a rule that
// does not exist in the table (and is not the reserved "end" sentinel).
type UndefinedTagError struct {
	Tag string
}

func (e *UndefinedTagError) Error() string {
	return fmt.Sprintf("ruletable: branch targets undefined tag %q", e.Tag)
}

// RuleRecursionError reports a tag reached a second time while still on
// the current traversal path — a true cycle, as opposed to a rule
// shared by two independent paths (a DAG diamond), which is allowed.
type RuleRecursionError struct {
	Tag string
}

func (e *RuleRecursionError) Error() string {
	return fmt.Sprintf("ruletable: cycle detected through rule %q", e.Tag)
}

// UnusedRulesError reports rule tags defined in the table but never
// reachable by following branches from the start tag.
type UnusedRulesError struct {
	Tags []string
}

func (e *UnusedRulesError) Error() string {
	return fmt.Sprintf("ruletable: unreachable rules: %v", e.Tags)
}

// UnknownUpstreamsError reports upstream tags named by a reachable
// Query action that aren't present in the registered upstream set.
// Unlike UndefinedTagError, this isn't discovered by Validate itself
// (Table has no view of the registered upstreams) — a caller compares
// UsedUpstreams against its own registry and constructs this error.
type UnknownUpstreamsError struct {
	Tags []string
}

func (e *UnknownUpstreamsError) Error() string {
	return fmt.Sprintf("ruletable: rules reference undeclared upstream tags: %v", e.Tags)
}
