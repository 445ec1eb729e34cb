// Package rewrite reconciles persisted route overrides with the live
// dispatch table.
package rewrite

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"open-blog/internal/cache"
	"open-blog/internal/database"
	"open-blog/internal/routing"
)

// Cache keys.
const (
	KeyLastRefresh    = "routes_last_refresh"
	RouteStatusPrefix = "route_status:"
)

// DefaultDebounce is the minimum interval between two reconciliations.
const DefaultDebounce = time.Second

// State of the engine.
type State int32

const (
	StateClean State = iota
	StateRewriting
)

func (s State) String() string {
	if s == StateRewriting {
		return "rewriting"
	}
	return "clean"
}

// RouteSource lists the overrides that should be live.
type RouteSource interface {
	FindActiveRoutes() ([]database.Route, error)
}

// Engine installs active Route records as override rules.
type Engine struct {
	table  *routing.Table
	routes RouteSource
	cache  *cache.Manager
	log    *logrus.Entry

	now      func() time.Time
	window   time.Duration
	trailing bool

	state atomic.Int32

	pendingMu sync.Mutex
	pending   *time.Timer
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDebounce sets the coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) { e.window = d }
}

// WithTrailingRefresh makes a debounced Refresh schedule one more run at
// the end of the window, so the last edit of a burst is always applied.
func WithTrailingRefresh() Option {
	return func(e *Engine) { e.trailing = true }
}

// New creates an Engine.
func New(table *routing.Table, routes RouteSource, c *cache.Manager, log *logrus.Entry, opts ...Option) *Engine {
	e := &Engine{
		table:  table,
		routes: routes,
		cache:  c,
		log:    log,
		now:    time.Now,
		window: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State reports whether a reconciliation is in progress.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Refresh reconciles the table with the active routes unless the previous
// reconciliation finished less than the debounce window ago, in which case
// it reports success without doing work. It returns false when the
// reconciliation failed; the table then still holds the last published
// generation.
func (e *Engine) Refresh() bool {
	if e.debounced() {
		e.log.Debug("route refresh debounced")
		e.scheduleTrailing()
		return true
	}
	return e.run()
}

// Force reconciles immediately, ignoring the debounce window.
func (e *Engine) Force() bool {
	return e.run()
}

// Close cancels a scheduled trailing refresh.
func (e *Engine) Close() {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}
}

func (e *Engine) debounced() bool {
	v, ok := e.cache.Peek(KeyLastRefresh)
	if !ok {
		return false
	}
	last, ok := v.(time.Time)
	return ok && e.now().Sub(last) < e.window
}

func (e *Engine) scheduleTrailing() {
	if !e.trailing {
		return
	}
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	if e.pending != nil {
		return
	}
	e.pending = time.AfterFunc(e.window, func() {
		e.pendingMu.Lock()
		e.pending = nil
		e.pendingMu.Unlock()
		e.run()
	})
}

func (e *Engine) run() bool {
	start := time.Now()
	var installed, skipped int

	// Update holds the table's writer lock; cache calls below nest inside
	// it and never the other way round.
	err := e.table.Update(func(tx *routing.Tx) error {
		e.state.Store(int32(StateRewriting))
		defer e.state.Store(int32(StateClean))

		e.cache.Delete(RouteStatusPrefix + cache.Wildcard)

		for _, r := range tx.RulesOfKind(routing.KindOverride) {
			tx.Remove(r)
		}

		rows, err := e.routes.FindActiveRoutes()
		if err != nil {
			return fmt.Errorf("load active routes: %w", err)
		}
		for _, row := range rows {
			if err := e.install(tx, row); err != nil {
				skipped++
				e.log.WithError(err).WithFields(logrus.Fields{
					"route_id": row.ID,
					"endpoint": row.OriginalEndpoint,
					"path":     row.Path,
				}).Warn("override skipped")
				continue
			}
			installed++
		}
		return nil
	})
	if err != nil {
		e.log.WithError(err).Error("route refresh failed")
		return false
	}

	e.cache.Set(KeyLastRefresh, e.now())
	e.log.WithFields(logrus.Fields{
		"generation": e.table.Generation(),
		"installed":  installed,
		"skipped":    skipped,
		"duration":   time.Since(start),
	}).Info("routes refreshed")
	return true
}

// install adds the override for one row. Rows arrive oldest update first,
// so a later row for the same endpoint replaces an earlier one.
func (e *Engine) install(tx *routing.Tx, row database.Route) error {
	orig, ok := tx.FindByEndpoint(row.OriginalEndpoint)
	if !ok || orig.Kind != routing.KindBuiltin || orig.Pinned {
		return fmt.Errorf("%w: %s", ErrUnknownEndpoint, row.OriginalEndpoint)
	}
	vars, err := routing.TemplateVariables(row.Path)
	if err != nil {
		return err
	}
	if !routing.SameVariables(vars, orig.Variables()) {
		return fmt.Errorf("override %s does not carry the variables %v of %s", row.Path, orig.Variables(), orig.Pattern)
	}

	var replaced *routing.Rule
	for _, r := range tx.RulesOfKind(routing.KindOverride) {
		if r.Endpoint == row.OriginalEndpoint {
			replaced = r
			tx.Remove(r)
		}
	}

	_, err = tx.Install(routing.Rule{
		Pattern:     row.Path,
		Endpoint:    orig.Endpoint,
		Handler:     orig.Handler,
		Methods:     orig.Methods,
		Defaults:    orig.Defaults,
		StrictSlash: orig.StrictSlash,
		Kind:        routing.KindOverride,
		Owner:       OwnerOf(row.ID),
	})
	if err != nil {
		if replaced != nil {
			// keep the earlier override rather than none
			if _, rerr := tx.Install(*replaced); rerr != nil {
				return errors.Join(err, rerr)
			}
		}
		return err
	}
	if replaced != nil {
		e.log.WithFields(logrus.Fields{
			"endpoint": row.OriginalEndpoint,
			"kept":     row.Path,
			"dropped":  replaced.Pattern,
		}).Warn("several active overrides for one endpoint, most recent wins")
	}
	return nil
}

// OwnerOf is the rule owner recorded for a Route record.
func OwnerOf(routeID uint) string {
	return fmt.Sprintf("route:%d", routeID)
}

type routeStatus struct {
	generation uint64
	path       string
	active     bool
}

// OverridePath reports the active override path for endpoint. Answers are
// cached under route_status:<endpoint> until the next refresh.
func (e *Engine) OverridePath(endpoint string) (string, bool) {
	gen := e.table.Generation()
	key := RouteStatusPrefix + endpoint
	if v, ok := e.cache.Peek(key); ok {
		if st, ok := v.(routeStatus); ok && st.generation == gen {
			return st.path, st.active
		}
	}

	st := routeStatus{generation: gen}
	if r, ok := e.table.OverrideFor(endpoint); ok {
		st.path, st.active = r.Pattern, true
	}
	e.cache.Set(key, st)
	return st.path, st.active
}

// URLFor builds the public path of endpoint: through its override while
// one is active, otherwise through the original rule.
func (e *Engine) URLFor(endpoint string, values map[string]string) (string, error) {
	if _, active := e.OverridePath(endpoint); active {
		if r, ok := e.table.OverrideFor(endpoint); ok {
			return r.URL(values)
		}
	}
	orig, ok := e.table.FindByEndpoint(endpoint)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownEndpoint, endpoint)
	}
	return orig.URL(values)
}
