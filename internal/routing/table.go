// Package routing holds the live dispatch table.
//
// The table is a sequence of immutable generations. Writers serialize on
// one mutex, build the next generation from a copy of the current one and
// publish it with a single atomic pointer swap, so a request always
// resolves against one consistent generation.
package routing

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotFound          = errors.New("routing: not found")
	ErrMethodNotAllowed  = errors.New("routing: method not allowed")
	ErrRuleConflict      = errors.New("routing: rule conflicts with an installed rule")
	ErrDuplicateEndpoint = errors.New("routing: endpoint already registered")
)

// Kind tells who owns a rule.
type Kind int

const (
	KindBuiltin  Kind = iota // registered by the application at startup
	KindOverride             // installed by the rewrite engine
	KindPlugin               // installed by a plugin
)

func (k Kind) String() string {
	switch k {
	case KindBuiltin:
		return "builtin"
	case KindOverride:
		return "override"
	case KindPlugin:
		return "plugin"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Rule maps a path template to a handler. Installed rules are immutable.
type Rule struct {
	Pattern     string
	Endpoint    string
	Handler     gin.HandlerFunc
	Methods     []string
	Defaults    map[string]string
	StrictSlash bool
	Kind        Kind
	// Owner is the plugin id for plugin rules and "route:<id>" for
	// overrides. Empty for built-ins.
	Owner string
	// Pinned built-ins resolve paths themselves and cannot be overridden.
	Pinned bool

	tpl *template
}

func (r *Rule) allows(method string) bool {
	if method == "HEAD" && slices.Contains(r.Methods, "GET") {
		return true
	}
	return slices.Contains(r.Methods, method)
}

func (r *Rule) overlaps(o *Rule) bool {
	if r.tpl.key() != o.tpl.key() {
		return false
	}
	for _, m := range r.Methods {
		if slices.Contains(o.Methods, m) {
			return true
		}
	}
	return false
}

// URL builds a path for the rule from variable values. Defaults fill in
// missing values.
func (r *Rule) URL(values map[string]string) (string, error) {
	merged := make(map[string]string, len(r.Defaults)+len(values))
	maps.Copy(merged, r.Defaults)
	maps.Copy(merged, values)
	return r.tpl.url(merged)
}

// Variables lists the template's variable names in order.
func (r *Rule) Variables() []string {
	return slices.Clone(r.tpl.vars)
}

func normalizeMethods(methods []string) []string {
	if len(methods) == 0 {
		return []string{"GET"}
	}
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m != "" && !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	slices.Sort(out)
	return out
}

// prepare validates r and returns an installable copy.
func prepare(r Rule) (*Rule, error) {
	if r.Handler == nil {
		return nil, fmt.Errorf("routing: rule %q has no handler", r.Pattern)
	}
	if r.Endpoint == "" {
		return nil, fmt.Errorf("routing: rule %q has no endpoint", r.Pattern)
	}
	tpl, err := parseTemplate(r.Pattern, r.StrictSlash)
	if err != nil {
		return nil, err
	}
	r.tpl = tpl
	r.Methods = normalizeMethods(r.Methods)
	r.Defaults = maps.Clone(r.Defaults)
	return &r, nil
}

// generation is one published version of the table.
type generation struct {
	number    uint64
	overrides []*Rule
	plugins   []*Rule
	builtins  []*Rule

	endpoints  map[string]*Rule // non-override rules by endpoint
	overridden map[string]*Rule // endpoint -> active override rule
	owners     map[string][]*Rule
}

func emptyGeneration() *generation {
	return &generation{
		endpoints:  map[string]*Rule{},
		overridden: map[string]*Rule{},
		owners:     map[string][]*Rule{},
	}
}

func (g *generation) clone() *generation {
	owners := make(map[string][]*Rule, len(g.owners))
	for k, v := range g.owners {
		owners[k] = slices.Clone(v)
	}
	return &generation{
		number:     g.number + 1,
		overrides:  slices.Clone(g.overrides),
		plugins:    slices.Clone(g.plugins),
		builtins:   slices.Clone(g.builtins),
		endpoints:  maps.Clone(g.endpoints),
		overridden: maps.Clone(g.overridden),
		owners:     owners,
	}
}

// ordered returns the rules in match order.
func (g *generation) ordered() []*Rule {
	out := make([]*Rule, 0, len(g.overrides)+len(g.plugins)+len(g.builtins))
	out = append(out, g.overrides...)
	out = append(out, g.plugins...)
	return append(out, g.builtins...)
}

func (g *generation) slot(k Kind) *[]*Rule {
	switch k {
	case KindOverride:
		return &g.overrides
	case KindPlugin:
		return &g.plugins
	default:
		return &g.builtins
	}
}

// Tx is a pending generation. It is only valid inside Table.Update.
type Tx struct {
	next *generation
}

// Install adds a rule. It fails with ErrRuleConflict when an installed
// rule has the same template and shares a method, and with
// ErrDuplicateEndpoint when a non-override rule already has the endpoint.
func (tx *Tx) Install(r Rule) (*Rule, error) {
	rule, err := prepare(r)
	if err != nil {
		return nil, err
	}
	g := tx.next
	for _, existing := range g.ordered() {
		if existing.overlaps(rule) {
			return nil, fmt.Errorf("%w: %s %s (endpoint %s)", ErrRuleConflict, rule.Pattern, strings.Join(rule.Methods, ","), existing.Endpoint)
		}
	}
	if rule.Kind != KindOverride {
		if _, dup := g.endpoints[rule.Endpoint]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEndpoint, rule.Endpoint)
		}
		g.endpoints[rule.Endpoint] = rule
	} else {
		g.overridden[rule.Endpoint] = rule
	}

	s := g.slot(rule.Kind)
	*s = append(*s, rule)
	if rule.Owner != "" {
		g.owners[rule.Owner] = append(g.owners[rule.Owner], rule)
	}
	return rule, nil
}

// Remove deletes an installed rule and reports whether it was present.
func (tx *Tx) Remove(r *Rule) bool {
	g := tx.next
	s := g.slot(r.Kind)
	i := slices.Index(*s, r)
	if i < 0 {
		return false
	}
	*s = slices.Delete(*s, i, i+1)

	if r.Kind == KindOverride {
		if g.overridden[r.Endpoint] == r {
			delete(g.overridden, r.Endpoint)
		}
	} else if g.endpoints[r.Endpoint] == r {
		delete(g.endpoints, r.Endpoint)
	}
	if r.Owner != "" {
		owned := slices.DeleteFunc(g.owners[r.Owner], func(o *Rule) bool { return o == r })
		if len(owned) == 0 {
			delete(g.owners, r.Owner)
		} else {
			g.owners[r.Owner] = owned
		}
	}
	return true
}

// RemoveOwner deletes every rule owned by owner.
func (tx *Tx) RemoveOwner(owner string) int {
	owned := slices.Clone(tx.next.owners[owner])
	for _, r := range owned {
		tx.Remove(r)
	}
	return len(owned)
}

// Rules returns the pending rules in match order.
func (tx *Tx) Rules() []*Rule {
	return tx.next.ordered()
}

// RulesOfKind returns the pending rules of one kind.
func (tx *Tx) RulesOfKind(k Kind) []*Rule {
	return slices.Clone(*tx.next.slot(k))
}

// FindByEndpoint returns the non-override rule for endpoint.
func (tx *Tx) FindByEndpoint(endpoint string) (*Rule, bool) {
	r, ok := tx.next.endpoints[endpoint]
	return r, ok
}

// Table is the process-wide dispatch table.
type Table struct {
	mu      sync.Mutex
	current atomic.Pointer[generation]
	log     *logrus.Entry
}

// NewTable creates an empty table.
func NewTable(log *logrus.Entry) *Table {
	t := &Table{log: log}
	t.current.Store(emptyGeneration())
	return t
}

// Update runs fn against a copy of the current generation and publishes
// the copy if fn returns nil. Readers never see the intermediate state.
func (t *Table) Update(fn func(tx *Tx) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx := &Tx{next: t.current.Load().clone()}
	if err := fn(tx); err != nil {
		return err
	}
	t.current.Store(tx.next)
	return nil
}

func (t *Table) snapshot() *generation {
	return t.current.Load()
}

// Handle registers a built-in rule.
func (t *Table) Handle(endpoint, pattern string, h gin.HandlerFunc, methods ...string) error {
	_, err := t.Install(Rule{
		Pattern:  pattern,
		Endpoint: endpoint,
		Handler:  h,
		Methods:  methods,
		Kind:     KindBuiltin,
	})
	return err
}

// Install adds one rule in its own generation.
func (t *Table) Install(r Rule) (*Rule, error) {
	var installed *Rule
	err := t.Update(func(tx *Tx) error {
		var err error
		installed, err = tx.Install(r)
		return err
	})
	return installed, err
}

// Remove deletes one rule in its own generation.
func (t *Table) Remove(r *Rule) bool {
	var removed bool
	_ = t.Update(func(tx *Tx) error {
		removed = tx.Remove(r)
		return nil
	})
	return removed
}

// Rules returns the current rules in match order.
func (t *Table) Rules() []*Rule {
	return t.snapshot().ordered()
}

// FindByEndpoint returns the current non-override rule for endpoint.
func (t *Table) FindByEndpoint(endpoint string) (*Rule, bool) {
	r, ok := t.snapshot().endpoints[endpoint]
	return r, ok
}

// OverrideFor returns the active override rule for endpoint.
func (t *Table) OverrideFor(endpoint string) (*Rule, bool) {
	r, ok := t.snapshot().overridden[endpoint]
	return r, ok
}

// Owned returns the current rules owned by owner.
func (t *Table) Owned(owner string) []*Rule {
	return slices.Clone(t.snapshot().owners[owner])
}

// Generation is the number of the published generation.
func (t *Table) Generation() uint64 {
	return t.snapshot().number
}

// Conflicts reports whether a rule with pattern and methods would collide
// with a current rule of a kind other than skip.
func (t *Table) Conflicts(pattern string, methods []string, skip Kind) (bool, error) {
	candidate, err := prepare(Rule{Pattern: pattern, Endpoint: "candidate", Handler: func(*gin.Context) {}, Methods: methods})
	if err != nil {
		return false, err
	}
	for _, r := range t.snapshot().ordered() {
		if r.Kind != skip && r.overlaps(candidate) {
			return true, nil
		}
	}
	return false, nil
}
