package ruletable

import "sort"

// Table is the full routing graph: a set of named rules plus the tag
// where every query's traversal begins.
type Table struct {
	Start string
	Rules map[string]Rule

	usedUpstreams map[string]struct{}
}

// traversal color, standard white/gray/black DFS cycle detection: gray
// means "on the current path" (a revisit is a true cycle), black means
// "fully explored" (a revisit is just a shared sub-DAG, not a cycle).
type color int

const (
	white color = iota
	gray
	black
)

// Validate checks the table for structural errors: a branch naming a
// tag that doesn't exist, a true cycle through the rule graph, or a
// rule that no path from Start ever reaches. It returns only the first
// problem found, so the caller always gets one actionable error rather
// than an unstructured list: the walk from Start reports whichever
// undefined tag or cycle it meets first, and unreachable rules are
// reported only when the walk completes without either.
//
// On success it also records the set of upstream tags named by every
// reachable ActionQuery, retrievable afterward via UsedUpstreams, so a
// caller can check it against the registered upstream set before
// serving traffic instead of discovering a typo'd tag only when a
// query happens to hit that branch.
func (t *Table) Validate() error {
	if t.Start != EndTag {
		if _, ok := t.Rules[t.Start]; !ok {
			return &UndefinedTagError{Tag: t.Start}
		}
	}

	colors := make(map[string]color, len(t.Rules))
	reached := make(map[string]struct{}, len(t.Rules))
	used := make(map[string]struct{})

	var walk func(tag string) error
	walk = func(tag string) error {
		if tag == EndTag {
			return nil
		}
		reached[tag] = struct{}{}

		switch colors[tag] {
		case gray:
			return &RuleRecursionError{Tag: tag}
		case black:
			return nil
		}

		rule, ok := t.Rules[tag]
		if !ok {
			return &UndefinedTagError{Tag: tag}
		}

		colors[tag] = gray
		for _, b := range rule.Branches() {
			for _, a := range b.Actions {
				if a.Kind == ActionQuery {
					used[a.UpstreamTag] = struct{}{}
				}
			}
			if err := walk(b.NextTag); err != nil {
				return err
			}
		}
		colors[tag] = black
		return nil
	}

	if err := walk(t.Start); err != nil {
		return err
	}

	var unused []string
	for tag := range t.Rules {
		if _, ok := reached[tag]; !ok {
			unused = append(unused, tag)
		}
	}
	if len(unused) > 0 {
		sort.Strings(unused)
		return &UnusedRulesError{Tags: unused}
	}

	t.usedUpstreams = used
	return nil
}

// UsedUpstreams returns the sorted set of upstream tags named by a
// Query action reachable from Start, as collected by the most recent
// successful Validate call. It returns nil if Validate hasn't been
// called, or returned an error.
func (t *Table) UsedUpstreams() []string {
	if len(t.usedUpstreams) == 0 {
		return nil
	}
	out := make([]string, 0, len(t.usedUpstreams))
	for tag := range t.usedUpstreams {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
