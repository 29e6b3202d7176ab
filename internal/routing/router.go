// Package routing selects the agent persona that should handle an incoming
// natural-language query. Selection is a pure function over a
// priority-ordered keyword table: first matching rule wins, no match falls
// back to the supervisor.
package routing

import (
	"strings"
	"sync"
)

// Persona identifies a specialized agent.
type Persona string

const (
	PersonaSupervisor Persona = "supervisor"
	PersonaRAG        Persona = "rag"
	PersonaMarket     Persona = "market"
	PersonaProperty   Persona = "property"
)

// Rule maps a set of trigger keywords to a persona. Rules are evaluated in
// order; the first rule with any keyword contained in the question wins.
type Rule struct {
	Persona  Persona  `yaml:"persona"`
	Keywords []string `yaml:"keywords"`
}

// DefaultRules mirror the production routing table. Order is priority.
func DefaultRules() []Rule {
	return []Rule{
		{Persona: PersonaProperty, Keywords: []string{"zoning", "permit", "property", "address", "development", "setback"}},
		{Persona: PersonaMarket, Keywords: []string{"market", "trend", "price", "inventory", "demand"}},
		{Persona: PersonaRAG, Keywords: []string{"regulation", "code", "requirement", "document"}},
	}
}

// Router holds an ordered rule table. The table can be swapped at runtime
// when the rules file changes.
type Router struct {
	mu       sync.RWMutex
	rules    []Rule
	fallback Persona
}

// NewRouter builds a router from the given rules; nil or empty rules use the
// defaults.
func NewRouter(rules []Rule) *Router {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Router{rules: rules, fallback: PersonaSupervisor}
}

// Reload replaces the rule table. Empty rules restore the defaults.
func (r *Router) Reload(rules []Rule) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	r.mu.Lock()
	r.rules = rules
	r.mu.Unlock()
}

// Select returns the persona for a question. Deterministic, no I/O; a
// question matching no rule always goes to the supervisor.
func (r *Router) Select(question string) Persona {
	r.mu.RLock()
	rules := r.rules
	r.mu.RUnlock()

	q := strings.ToLower(question)
	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(q, kw) {
				return rule.Persona
			}
		}
	}
	return r.fallback
}
