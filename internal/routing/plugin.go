package routing

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Registrar installs and removes plugin-owned rules on a Table. It shares
// the table's writer lock with the rewrite engine.
type Registrar struct {
	table *Table
	log   *logrus.Entry
}

// NewRegistrar creates a Registrar for t.
func NewRegistrar(t *Table, log *logrus.Entry) *Registrar {
	return &Registrar{table: t, log: log}
}

// For returns the route API handed to the plugin identified by owner.
func (r *Registrar) For(owner string) *PluginRoutes {
	return &PluginRoutes{owner: owner, reg: r}
}

// Register installs a plugin rule. The endpoint is derived from owner and
// pattern; when it already exists the first registrant keeps it and
// Register returns false. A template collision with any other rule is
// also refused.
func (r *Registrar) Register(owner, pattern string, h gin.HandlerFunc, methods ...string) bool {
	endpoint := owner + "." + pattern
	_, err := r.table.Install(Rule{
		Pattern:  pattern,
		Endpoint: endpoint,
		Handler:  h,
		Methods:  methods,
		Kind:     KindPlugin,
		Owner:    owner,
	})
	switch {
	case err == nil:
		r.log.WithFields(logrus.Fields{"owner": owner, "pattern": pattern}).Debug("plugin route registered")
		return true
	case errors.Is(err, ErrDuplicateEndpoint):
		r.log.WithFields(logrus.Fields{"owner": owner, "endpoint": endpoint}).Debug("plugin endpoint exists, keeping first")
		return false
	default:
		r.log.WithError(err).WithField("owner", owner).Warn("plugin route refused")
		return false
	}
}

// UnregisterAll removes every rule owned by owner in one generation.
func (r *Registrar) UnregisterAll(owner string) int {
	var n int
	_ = r.table.Update(func(tx *Tx) error {
		n = tx.RemoveOwner(owner)
		return nil
	})
	if n > 0 {
		r.log.WithFields(logrus.Fields{"owner": owner, "removed": n}).Debug("plugin routes removed")
	}
	return n
}

// Owned returns the rules currently owned by owner.
func (r *Registrar) Owned(owner string) []*Rule {
	return r.table.Owned(owner)
}

// PluginRoutes is the route API of one plugin.
type PluginRoutes struct {
	owner string
	reg   *Registrar
}

// Owner is the plugin id.
func (p *PluginRoutes) Owner() string { return p.owner }

// Route registers handler for pattern. Methods default to GET.
func (p *PluginRoutes) Route(pattern string, handler gin.HandlerFunc, methods ...string) bool {
	return p.reg.Register(p.owner, pattern, handler, methods...)
}

// UnregisterRoutes removes every route this plugin registered.
func (p *PluginRoutes) UnregisterRoutes() int {
	return p.reg.UnregisterAll(p.owner)
}
