package plugins_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"open-blog/internal/cache"
	"open-blog/internal/database"
	"open-blog/internal/logging"
	"open-blog/internal/obfuscate"
	"open-blog/internal/permalink"
	"open-blog/internal/plugins"
	"open-blog/internal/routing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

type fakePlugin struct {
	id          string
	patterns    []string
	fail        bool
	deactivated int
}

func (p *fakePlugin) ID() string          { return p.id }
func (p *fakePlugin) Description() string { return "fake " + p.id }

func (p *fakePlugin) Activate(routes *routing.PluginRoutes) error {
	for _, pattern := range p.patterns {
		routes.Route(pattern, func(c *gin.Context) { c.String(http.StatusOK, p.id) })
	}
	if p.fail {
		return errors.New("boom")
	}
	return nil
}

func (p *fakePlugin) Deactivate() { p.deactivated++ }

type fixture struct {
	repo    *database.Repository
	table   *routing.Table
	manager *plugins.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := database.NewRepository(database.New(":memory:"))
	table := routing.NewTable(logging.Discard())
	require.NoError(t, table.Handle("home", "/", func(c *gin.Context) {}))
	reg := routing.NewRegistrar(table, logging.Discard())
	return &fixture{repo: repo, table: table, manager: plugins.NewManager(reg, repo, logging.Discard())}
}

func patterns(rules []*routing.Rule) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.Endpoint+" "+r.Pattern)
	}
	return out
}

func TestEnableDisable_Inverse(t *testing.T) {
	f := newFixture(t)
	p := &fakePlugin{id: "gallery", patterns: []string{"/gallery", "/gallery/{n:[0-9]+}"}}
	require.NoError(t, f.manager.Register(p))

	before := patterns(f.table.Rules())

	require.NoError(t, f.manager.Enable("gallery"))
	assert.Len(t, f.table.Owned("gallery"), 2)
	m, err := f.table.Lookup(http.MethodGet, "/gallery/3")
	require.NoError(t, err)
	assert.Equal(t, "gallery./gallery/{n:[0-9]+}", m.Rule.Endpoint)
	assert.Equal(t, []string{"gallery"}, f.manager.Enabled())

	// enabling twice is a no-op
	require.NoError(t, f.manager.Enable("gallery"))
	assert.Len(t, f.table.Owned("gallery"), 2)

	require.NoError(t, f.manager.Disable("gallery"))
	assert.Equal(t, before, patterns(f.table.Rules()))
	assert.Empty(t, f.manager.Enabled())
	assert.Equal(t, 1, p.deactivated)

	_, err = f.table.Lookup(http.MethodGet, "/gallery")
	assert.ErrorIs(t, err, routing.ErrNotFound)
}

func TestReload(t *testing.T) {
	f := newFixture(t)
	p := &fakePlugin{id: "gallery", patterns: []string{"/gallery"}}
	require.NoError(t, f.manager.Register(p))
	require.NoError(t, f.manager.Enable("gallery"))

	p.patterns = []string{"/photos"}
	require.NoError(t, f.manager.Reload("gallery"))

	owned := f.table.Owned("gallery")
	require.Len(t, owned, 1)
	assert.Equal(t, "/photos", owned[0].Pattern)
	assert.Equal(t, []string{"gallery"}, f.manager.Enabled())
}

func TestEnable_FailureRollsBack(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.Register(&fakePlugin{id: "broken", patterns: []string{"/broken"}, fail: true}))

	assert.Error(t, f.manager.Enable("broken"))
	assert.Empty(t, f.table.Owned("broken"))
	assert.Empty(t, f.manager.Enabled())
}

func TestUnknownAndDuplicate(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.manager.Enable("nope"), plugins.ErrUnknownPlugin)
	assert.ErrorIs(t, f.manager.Disable("nope"), plugins.ErrUnknownPlugin)

	require.NoError(t, f.manager.Register(&fakePlugin{id: "a"}))
	assert.ErrorIs(t, f.manager.Register(&fakePlugin{id: "a"}), plugins.ErrAlreadyRegistered)
}

func TestCollidingPluginsFirstWins(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.Register(&fakePlugin{id: "a", patterns: []string{"/shared"}}))
	require.NoError(t, f.manager.Register(&fakePlugin{id: "b", patterns: []string{"/shared", "/only-b"}}))

	require.NoError(t, f.manager.Enable("a"))
	require.NoError(t, f.manager.Enable("b"))

	m, err := f.table.Lookup(http.MethodGet, "/shared")
	require.NoError(t, err)
	assert.Equal(t, "a", m.Rule.Owner)
	assert.Len(t, f.table.Owned("b"), 1)

	// disabling b leaves a's rule in place
	require.NoError(t, f.manager.Disable("b"))
	m, err = f.table.Lookup(http.MethodGet, "/shared")
	require.NoError(t, err)
	assert.Equal(t, "a", m.Rule.Owner)
}

func TestPersistAndRestore(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.Register(&fakePlugin{id: "a", patterns: []string{"/a"}}))
	require.NoError(t, f.manager.Register(&fakePlugin{id: "b", patterns: []string{"/b"}}))
	require.NoError(t, f.manager.Enable("b"))
	require.NoError(t, f.manager.Enable("a"))

	raw, ok, err := f.repo.GetSetting(database.SettingActivePlugins)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a,b", raw)

	// a fresh process restores the same set
	table := routing.NewTable(logging.Discard())
	restored := plugins.NewManager(routing.NewRegistrar(table, logging.Discard()), f.repo, logging.Discard())
	require.NoError(t, restored.Register(&fakePlugin{id: "a", patterns: []string{"/a"}}))
	require.NoError(t, restored.Register(&fakePlugin{id: "b", patterns: []string{"/b"}}))
	require.NoError(t, restored.Restore())

	assert.Equal(t, []string{"a", "b"}, restored.Enabled())
	_, err = table.Lookup(http.MethodGet, "/a")
	assert.NoError(t, err)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.Register(&fakePlugin{id: "a", patterns: []string{"/a"}}))
	require.NoError(t, f.manager.Register(&fakePlugin{id: "b"}))
	require.NoError(t, f.manager.Enable("a"))

	list := f.manager.List()
	require.Len(t, list, 2)
	assert.Equal(t, plugins.Info{ID: "a", Description: "fake a", Enabled: true, Routes: []string{"/a"}}, list[0])
	assert.False(t, list[1].Enabled)
	assert.Empty(t, list[1].Routes)
}

func TestSitemap(t *testing.T) {
	f := newFixture(t)
	c := cache.New(64)
	codec := permalink.New(f.repo, obfuscate.New("salt", 6, c), c, logging.Discard())
	require.NoError(t, codec.SetPattern("{year}/{id}"))

	created := time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.repo.CreateArticle(&database.Article{Title: "one", CreatedAt: created}))
	require.NoError(t, f.repo.CreateArticle(&database.Article{Title: "two", CreatedAt: created.Add(time.Hour)}))

	require.NoError(t, f.manager.Register(plugins.NewSitemap(f.repo, codec)))
	require.NoError(t, f.manager.Enable("sitemap"))

	r := gin.New()
	r.NoRoute(f.table.ServeGin)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sitemap.txt", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/2023/2\n/2023/1\n", w.Body.String())

	require.NoError(t, f.manager.Disable("sitemap"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sitemap.txt", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSitemap_PathTakenRollsBack(t *testing.T) {
	f := newFixture(t)
	c := cache.New(16)
	codec := permalink.New(f.repo, obfuscate.New("salt", 6, c), c, logging.Discard())
	require.NoError(t, codec.SetPattern("article/{id}"))

	require.NoError(t, f.manager.Register(&fakePlugin{id: "seo", patterns: []string{"/sitemap.txt"}}))
	require.NoError(t, f.manager.Enable("seo"))
	require.NoError(t, f.manager.Register(plugins.NewSitemap(f.repo, codec)))

	assert.Error(t, f.manager.Enable("sitemap"))
	assert.Equal(t, []string{"seo"}, f.manager.Enabled())
	assert.Empty(t, f.table.Owned("sitemap"))

	m, err := f.table.Lookup(http.MethodGet, "/sitemap.txt")
	require.NoError(t, err)
	assert.Equal(t, "seo", m.Rule.Owner)
}
