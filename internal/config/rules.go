package config

import (
	"fmt"
	"net/netip"
	"os"

	"gopkg.in/yaml.v3"

	"dnsrouter/internal/dnsmsg"
	"dnsrouter/internal/matcher"
	"dnsrouter/internal/ruletable"
)

// ruleFile is the on-disk YAML shape of a rule table.
type ruleFile struct {
	Start string              `yaml:"start"`
	Rules map[string]ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	Type     string       `yaml:"type"` // "seq" or "if"
	Branches []branchSpec `yaml:"branches,omitempty"`
	Cond     *matchSpec   `yaml:"cond,omitempty"`
	Then     *branchSpec  `yaml:"then,omitempty"`
	Else     *branchSpec  `yaml:"else,omitempty"`
}

type branchSpec struct {
	Match   *matchSpec   `yaml:"match,omitempty"`
	Actions []actionSpec `yaml:"actions,omitempty"`
	Next    string       `yaml:"next"`
}

type matchSpec struct {
	Any        bool        `yaml:"any,omitempty"`
	Domains    []string    `yaml:"domains,omitempty"`
	DomainFile string      `yaml:"domain_file,omitempty"`
	QTypes     []string    `yaml:"qtypes,omitempty"`
	CIDRs      []string    `yaml:"cidrs,omitempty"`
	HeaderFlag string      `yaml:"header_flag,omitempty"`
	HeaderWant bool        `yaml:"header_want,omitempty"`
	And        []matchSpec `yaml:"and,omitempty"`
	Or         []matchSpec `yaml:"or,omitempty"`
	Not        *matchSpec  `yaml:"not,omitempty"`
}

type actionSpec struct {
	Kind      string `yaml:"kind"` // query, disable, skip, set_rcode
	Upstream  string `yaml:"upstream,omitempty"`
	CacheMode string `yaml:"cache_mode,omitempty"` // standard, persist, disabled
	RCode     string `yaml:"rcode,omitempty"`
}

// LoadRuleTable reads and parses a rule file into a validated
// ruletable.Table.
func LoadRuleTable(path string) (*ruletable.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read rule file %s: %w", path, err)
	}

	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("config: parse rule file %s: %w", path, err)
	}

	table := &ruletable.Table{Start: rf.Start, Rules: make(map[string]ruletable.Rule, len(rf.Rules))}
	for tag, spec := range rf.Rules {
		rule, err := buildRule(spec)
		if err != nil {
			return nil, fmt.Errorf("config: rule %q: %w", tag, err)
		}
		table.Rules[tag] = rule
	}

	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid rule table: %w", err)
	}
	return table, nil
}

func buildRule(spec ruleSpec) (ruletable.Rule, error) {
	switch spec.Type {
	case "seq", "":
		branches := make(ruletable.SeqBlock, 0, len(spec.Branches))
		for _, b := range spec.Branches {
			branch, err := buildBranch(b)
			if err != nil {
				return nil, err
			}
			branches = append(branches, branch)
		}
		return branches, nil
	case "if":
		if spec.Cond == nil || spec.Then == nil || spec.Else == nil {
			return nil, fmt.Errorf("if rule requires cond, then, and else")
		}
		cond, err := buildMatcher(*spec.Cond)
		if err != nil {
			return nil, err
		}
		then, err := buildBranch(*spec.Then)
		if err != nil {
			return nil, err
		}
		els, err := buildBranch(*spec.Else)
		if err != nil {
			return nil, err
		}
		return ruletable.IfBlock{Cond: cond, Then: then, Else: els}, nil
	default:
		return nil, fmt.Errorf("unknown rule type %q", spec.Type)
	}
}

func buildBranch(b branchSpec) (ruletable.Branch, error) {
	cond := matcher.Matcher(matcher.Any{})
	if b.Match != nil {
		m, err := buildMatcher(*b.Match)
		if err != nil {
			return ruletable.Branch{}, err
		}
		cond = m
	}
	actions := make([]ruletable.Action, 0, len(b.Actions))
	for _, a := range b.Actions {
		action, err := buildAction(a)
		if err != nil {
			return ruletable.Branch{}, err
		}
		actions = append(actions, action)
	}
	if b.Next == "" {
		return ruletable.Branch{}, fmt.Errorf("branch missing next tag")
	}
	return ruletable.Branch{Cond: cond, Actions: actions, NextTag: b.Next}, nil
}

func buildMatcher(spec matchSpec) (matcher.Matcher, error) {
	switch {
	case spec.Any:
		return matcher.Any{}, nil
	case len(spec.Domains) > 0 || spec.DomainFile != "":
		trie := matcher.NewDomainTrie()
		for _, d := range spec.Domains {
			trie.Insert(d)
		}
		if spec.DomainFile != "" {
			data, err := os.ReadFile(spec.DomainFile)
			if err != nil {
				return nil, fmt.Errorf("read domain file %s: %w", spec.DomainFile, err)
			}
			trie.InsertMulti(string(data))
		}
		return matcher.Domain{Trie: trie}, nil
	case len(spec.QTypes) > 0:
		types := make([]uint16, 0, len(spec.QTypes))
		for _, name := range spec.QTypes {
			t, err := qtypeFromName(name)
			if err != nil {
				return nil, err
			}
			types = append(types, t)
		}
		return matcher.NewQType(types...), nil
	case len(spec.CIDRs) > 0:
		prefixes := make([]netip.Prefix, 0, len(spec.CIDRs))
		for _, c := range spec.CIDRs {
			p, err := netip.ParsePrefix(c)
			if err != nil {
				return nil, fmt.Errorf("parse cidr %s: %w", c, err)
			}
			prefixes = append(prefixes, p)
		}
		return matcher.IPCIDR{Prefixes: prefixes}, nil
	case spec.HeaderFlag != "":
		flag, err := headerFlagFromName(spec.HeaderFlag)
		if err != nil {
			return nil, err
		}
		return matcher.Header{Flag: flag, Want: spec.HeaderWant}, nil
	case len(spec.And) > 0:
		sub, err := buildMatchers(spec.And)
		if err != nil {
			return nil, err
		}
		return matcher.And(sub), nil
	case len(spec.Or) > 0:
		sub, err := buildMatchers(spec.Or)
		if err != nil {
			return nil, err
		}
		return matcher.Or(sub), nil
	case spec.Not != nil:
		inner, err := buildMatcher(*spec.Not)
		if err != nil {
			return nil, err
		}
		return matcher.Not{Matcher: inner}, nil
	default:
		return nil, fmt.Errorf("empty match spec")
	}
}

func buildMatchers(specs []matchSpec) ([]matcher.Matcher, error) {
	out := make([]matcher.Matcher, 0, len(specs))
	for _, s := range specs {
		m, err := buildMatcher(s)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func buildAction(a actionSpec) (ruletable.Action, error) {
	switch a.Kind {
	case "query":
		if a.Upstream == "" {
			return ruletable.Action{}, fmt.Errorf("query action requires upstream")
		}
		mode, err := cacheModeFromName(a.CacheMode)
		if err != nil {
			return ruletable.Action{}, err
		}
		return ruletable.Action{Kind: ruletable.ActionQuery, UpstreamTag: a.Upstream, CacheMode: mode}, nil
	case "disable":
		rc, err := rcodeFromName(a.RCode, dnsmsg.RCodeRefused)
		if err != nil {
			return ruletable.Action{}, err
		}
		return ruletable.Action{Kind: ruletable.ActionDisable, RCode: uint16(rc)}, nil
	case "skip":
		return ruletable.Action{Kind: ruletable.ActionSkip}, nil
	case "set_rcode":
		rc, err := rcodeFromName(a.RCode, dnsmsg.RCodeNoError)
		if err != nil {
			return ruletable.Action{}, err
		}
		return ruletable.Action{Kind: ruletable.ActionSetRCode, RCode: uint16(rc)}, nil
	default:
		return ruletable.Action{}, fmt.Errorf("unknown action kind %q", a.Kind)
	}
}

func cacheModeFromName(name string) (ruletable.CacheMode, error) {
	switch name {
	case "", "standard":
		return ruletable.Standard, nil
	case "persist":
		return ruletable.Persist, nil
	case "disabled":
		return ruletable.Disabled, nil
	default:
		return 0, fmt.Errorf("unknown cache mode %q", name)
	}
}

func rcodeFromName(name string, fallback dnsmsg.RCode) (dnsmsg.RCode, error) {
	switch name {
	case "":
		return fallback, nil
	case "NOERROR":
		return dnsmsg.RCodeNoError, nil
	case "FORMERR":
		return dnsmsg.RCodeFormErr, nil
	case "SERVFAIL":
		return dnsmsg.RCodeServFail, nil
	case "NXDOMAIN":
		return dnsmsg.RCodeNXDomain, nil
	case "NOTIMP":
		return dnsmsg.RCodeNotImp, nil
	case "REFUSED":
		return dnsmsg.RCodeRefused, nil
	default:
		return 0, fmt.Errorf("unknown rcode %q", name)
	}
}

func qtypeFromName(name string) (uint16, error) {
	switch name {
	case "A":
		return uint16(dnsmsg.TypeA), nil
	case "NS":
		return uint16(dnsmsg.TypeNS), nil
	case "CNAME":
		return uint16(dnsmsg.TypeCNAME), nil
	case "SOA":
		return uint16(dnsmsg.TypeSOA), nil
	case "PTR":
		return uint16(dnsmsg.TypePTR), nil
	case "MX":
		return uint16(dnsmsg.TypeMX), nil
	case "TXT":
		return uint16(dnsmsg.TypeTXT), nil
	case "AAAA":
		return uint16(dnsmsg.TypeAAAA), nil
	case "OPT":
		return uint16(dnsmsg.TypeOPT), nil
	default:
		return 0, fmt.Errorf("unknown qtype %q", name)
	}
}

func headerFlagFromName(name string) (uint16, error) {
	switch name {
	case "RD":
		return matcher.FlagRD, nil
	case "AD":
		return matcher.FlagAD, nil
	case "CD":
		return matcher.FlagCD, nil
	default:
		return 0, fmt.Errorf("unknown header flag %q", name)
	}
}
