// Package authz implements RBAC authorization over a reloadable rule table.
package authz

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/reqpipe/reqpipe/internal/auth"
	"github.com/reqpipe/reqpipe/internal/observability"
)

// Rule is one (role, resource pattern, action) permission. A matching
// rule allows the request. There are no deny rules; absence of a match
// is a denial.
type Rule struct {
	// Role is the role the rule applies to.
	Role string

	// Resource is an exact resource identifier or a prefix pattern
	// ending with *.
	Resource string

	// Action is the action the rule allows, or * for all actions.
	Action string
}

// matches reports whether the rule covers (resource, action).
func (r Rule) matches(resource, action string) bool {
	if !matchResource(r.Resource, resource) {
		return false
	}
	return r.Action == "*" || strings.EqualFold(r.Action, action)
}

// matchResource supports exact match and prefix patterns ending with *.
func matchResource(pattern, resource string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(resource, pattern[:len(pattern)-1])
	}
	return resource == pattern
}

// table is an immutable snapshot of the rule set, indexed by role so a
// decision only scans rules for roles the principal actually holds.
// Index buckets preserve table order.
type table struct {
	rules  []Rule
	byRole map[string][]Rule
}

func newTable(rules []Rule) *table {
	t := &table{
		rules:  rules,
		byRole: make(map[string][]Rule),
	}
	for _, rule := range rules {
		t.byRole[rule.Role] = append(t.byRole[rule.Role], rule)
	}
	return t
}

// Engine evaluates RBAC decisions. The rule table is replaced as an
// atomic swap on reload; in-flight decisions keep the snapshot they
// started with.
type Engine struct {
	current atomic.Pointer[table]
	logger  observability.Logger
}

// EngineOption is a functional option for the engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the logger.
func WithEngineLogger(logger observability.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an engine over the initial rule table.
func NewEngine(rules []Rule, opts ...EngineOption) *Engine {
	e := &Engine{
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.current.Store(newTable(rules))
	return e
}

// Authorize evaluates the principal's roles against the rule table.
//
// Evaluation order is principal role-list order, then table order; the
// first matching rule allows. This first-match semantic is a
// deliberate design choice favoring predictability over
// most-specific-match resolution. Absence of any match is a denial.
func (e *Engine) Authorize(_ context.Context, principal *auth.Principal, resource, action string) error {
	start := time.Now()
	t := e.current.Load()

	for _, role := range principal.Roles {
		for _, rule := range t.byRole[role] {
			if rule.matches(resource, action) {
				recordDecision("allowed", time.Since(start))
				e.logger.Debug("authorization allowed",
					observability.String(observability.FieldSubject, principal.Subject),
					observability.String("rule_role", role),
					observability.String(observability.FieldResource, resource),
					observability.String(observability.FieldAction, action),
				)
				return nil
			}
		}
	}

	recordDecision("denied", time.Since(start))
	denial := &DeniedError{
		Roles:    principal.Roles,
		Resource: resource,
		Action:   action,
	}

	e.logger.Warn("authorization denied",
		observability.String(observability.FieldSubject, principal.Subject),
		observability.Strings(observability.FieldRoles, principal.Roles),
		observability.String(observability.FieldResource, resource),
		observability.String(observability.FieldAction, action),
	)

	return denial
}

// Reload atomically replaces the rule table.
func (e *Engine) Reload(rules []Rule) {
	e.current.Store(newTable(rules))
	recordReload()
	e.logger.Info("authorization rules reloaded",
		observability.Int("rules", len(rules)),
	)
}

// Rules returns the current rule snapshot.
func (e *Engine) Rules() []Rule {
	return e.current.Load().rules
}
