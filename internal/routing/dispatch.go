package routing

import (
	"errors"
	"maps"
	"net/http"

	"github.com/gin-gonic/gin"

	"open-blog/internal/logging"
)

// EndpointKey is the gin context key holding the endpoint that served the
// request.
const EndpointKey = logging.EndpointKey

// Match is the result of resolving a request path.
type Match struct {
	Rule       *Rule
	Vars       map[string]string
	Generation uint64
}

// Lookup resolves method and path against the current generation.
//
// Rules are tried overrides first, then plugin rules, then built-ins. A
// built-in whose endpoint has an active override still claims its path
// but resolves to ErrNotFound, so the endpoint is reachable only through
// the override while it is active.
func (t *Table) Lookup(method, path string) (*Match, error) {
	return t.lookupIn(t.snapshot(), method, path)
}

func (t *Table) lookupIn(g *generation, method, path string) (*Match, error) {
	methodMismatch := false

	for _, r := range g.ordered() {
		vars, ok := r.tpl.match(path)
		if !ok {
			continue
		}
		if !r.allows(method) {
			methodMismatch = true
			continue
		}
		if r.Kind != KindOverride {
			if _, hidden := g.overridden[r.Endpoint]; hidden {
				return nil, ErrNotFound
			}
		}

		merged := make(map[string]string, len(r.Defaults)+len(vars))
		maps.Copy(merged, r.Defaults)
		maps.Copy(merged, vars)
		return &Match{Rule: r, Vars: merged, Generation: g.number}, nil
	}

	if methodMismatch {
		return nil, ErrMethodNotAllowed
	}
	return nil, ErrNotFound
}

// ServeGin dispatches a gin request through the table. Mount it with
// engine.NoRoute so static gin routes keep priority.
func (t *Table) ServeGin(c *gin.Context) {
	m, err := t.Lookup(c.Request.Method, c.Request.URL.Path)
	if err != nil {
		if errors.Is(err, ErrMethodNotAllowed) {
			c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{
				"code":    "METHOD_NOT_ALLOWED",
				"message": "method not allowed",
			})
			return
		}
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "route not found",
		})
		return
	}

	for k, v := range m.Vars {
		c.Params = append(c.Params, gin.Param{Key: k, Value: v})
	}
	c.Set(EndpointKey, m.Rule.Endpoint)
	m.Rule.Handler(c)
}
