// Package filter decides which log lines are visible.
//
// An Engine holds include and exclude rules. A line is visible when it
// contains at least one enabled include (or no include is enabled) and none
// of the enabled excludes. Matching is ASCII case-insensitive and every
// pattern is valid, including the empty one, which matches every line.
package filter

import (
	"fmt"
	"slices"

	"comoview/internal/match"
)

// Polarity says whether a rule keeps or hides the lines it matches.
type Polarity int

const (
	Include Polarity = iota
	Exclude
)

func (p Polarity) String() string {
	switch p {
	case Include:
		return "include"
	case Exclude:
		return "exclude"
	}
	return fmt.Sprintf("Polarity(%d)", int(p))
}

// RuleID identifies a rule for the lifetime of its Engine. IDs are never
// reused, so a stale ID simply finds nothing.
type RuleID uint64

// Rule is a snapshot of one rule.
type Rule struct {
	ID       RuleID
	Text     string
	Polarity Polarity
	Enabled  bool
}

type rule struct {
	Rule
	m *match.Matcher
}

func newRule(id RuleID, p Polarity, text string) *rule {
	return &rule{
		Rule: Rule{ID: id, Text: text, Polarity: p, Enabled: true},
		m:    match.NewString(text, true),
	}
}

// Engine evaluates include and exclude rules against raw line bytes. It
// keeps a scratch buffer and must not be used from several goroutines at once.
type Engine struct {
	includes []*rule
	excludes []*rule
	nextID   RuleID
	scratch  []byte
}

// New returns an Engine without rules; it matches every line.
func New() *Engine {
	return &Engine{}
}

// AddInclude adds an include rule and returns its ID.
func (e *Engine) AddInclude(text string) RuleID {
	return e.Add(Include, text)
}

// AddExclude adds an exclude rule and returns its ID.
func (e *Engine) AddExclude(text string) RuleID {
	return e.Add(Exclude, text)
}

// Add appends a rule with the given polarity.
func (e *Engine) Add(p Polarity, text string) RuleID {
	e.nextID++
	r := newRule(e.nextID, p, text)
	if p == Exclude {
		e.excludes = append(e.excludes, r)
	} else {
		e.includes = append(e.includes, r)
	}
	return r.ID
}

func (e *Engine) find(id RuleID) (*[]*rule, int) {
	for _, list := range []*[]*rule{&e.includes, &e.excludes} {
		if i := slices.IndexFunc(*list, func(r *rule) bool { return r.ID == id }); i >= 0 {
			return list, i
		}
	}
	return nil, -1
}

// Remove deletes a rule. It reports whether the rule existed.
func (e *Engine) Remove(id RuleID) bool {
	list, i := e.find(id)
	if list == nil {
		return false
	}
	*list = slices.Delete(*list, i, i+1)
	return true
}

// Update replaces the text of a rule, rebuilding only that rule's matcher.
func (e *Engine) Update(id RuleID, text string) bool {
	list, i := e.find(id)
	if list == nil {
		return false
	}
	old := (*list)[i]
	r := newRule(id, old.Polarity, text)
	r.Enabled = old.Enabled
	(*list)[i] = r
	return true
}

// SetEnabled switches a rule on or off. Disabled rules are ignored.
func (e *Engine) SetEnabled(id RuleID, enabled bool) bool {
	list, i := e.find(id)
	if list == nil {
		return false
	}
	(*list)[i].Enabled = enabled
	return true
}

// Toggle flips a rule's enabled state.
func (e *Engine) Toggle(id RuleID) bool {
	list, i := e.find(id)
	if list == nil {
		return false
	}
	(*list)[i].Enabled = !(*list)[i].Enabled
	return true
}

// Clear removes every rule.
func (e *Engine) Clear() {
	e.includes = nil
	e.excludes = nil
}

// Rules lists includes then excludes, each in the order they were added.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, 0, len(e.includes)+len(e.excludes))
	for _, r := range e.includes {
		out = append(out, r.Rule)
	}
	for _, r := range e.excludes {
		out = append(out, r.Rule)
	}
	return out
}

// Len returns the number of rules.
func (e *Engine) Len() int {
	return len(e.includes) + len(e.excludes)
}

// Active reports whether any enabled rule could hide a line.
func (e *Engine) Active() bool {
	return hasEnabled(e.includes) || hasEnabled(e.excludes)
}

func hasEnabled(rules []*rule) bool {
	for _, r := range rules {
		if r.Enabled {
			return true
		}
	}
	return false
}

// Matches reports whether line is visible under the current rules.
func (e *Engine) Matches(line []byte) bool {
	if !e.Active() {
		return true
	}
	e.scratch = match.FoldInto(e.scratch, line)
	h := e.scratch

	for _, r := range e.excludes {
		if r.Enabled && r.m.IndexPrepared(h) >= 0 {
			return false
		}
	}

	anyInclude := false
	for _, r := range e.includes {
		if !r.Enabled {
			continue
		}
		if r.m.IndexPrepared(h) >= 0 {
			return true
		}
		anyInclude = true
	}
	return !anyInclude
}
