package permalink

import (
	"fmt"
	"testing"
	"time"

	"open-blog/internal/cache"
	"open-blog/internal/database"
	"open-blog/internal/logging"
	"open-blog/internal/obfuscate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repo  *database.Repository
	cache *cache.Manager
	codec *Codec
}

func newFixture(t *testing.T, pattern string) *fixture {
	t.Helper()
	repo := database.NewRepository(database.New(":memory:"))
	c := cache.New(256)
	codec := New(repo, obfuscate.New("test-salt", 6, c), c, logging.Discard())
	require.NoError(t, codec.SetPattern(pattern))
	return &fixture{repo: repo, cache: c, codec: codec}
}

func (f *fixture) category(t *testing.T, id uint, slug string, useSlug bool) *database.Category {
	t.Helper()
	cat := &database.Category{ID: id, Name: slug, Slug: slug, UseSlug: useSlug}
	require.NoError(t, f.repo.CreateCategory(cat))
	return cat
}

func (f *fixture) article(t *testing.T, id uint, cat *database.Category, created time.Time) *database.Article {
	t.Helper()
	a := &database.Article{ID: id, Title: fmt.Sprintf("article %d", id), CreatedAt: created}
	if cat != nil {
		a.CategoryID = &cat.ID
	}
	require.NoError(t, f.repo.CreateArticle(a))
	got, err := f.repo.FindArticle(id)
	require.NoError(t, err)
	return got
}

var day = time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)

func TestParsePattern(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		tokens []string
		ok     bool
	}{
		{"article/{id}", "article/{id}", []string{"id"}, true},
		{"/{year}/{month}/{category}/{encodeid}/", "{year}/{month}/{category}/{encodeid}", []string{"year", "month", "category", "encodeid"}, true},
		{"post-{id}.html", "post-{id}.html", []string{"id"}, true},
		{"about", "", nil, false},             // no id token
		{"{category}/{year}", "", nil, false}, // no id token
		{"article/{slug}", "", nil, false},    // unknown token
		{"{id}/{id}", "", nil, false},         // duplicate
		{"article/{id", "", nil, false},       // unbalanced
		{"   ", "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, tokens, err := ParsePattern(tt.in)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrInvalidPattern)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.tokens, tokens)
		})
	}
}

func TestScenario_PlainID(t *testing.T) {
	f := newFixture(t, "article/{id}")
	a := f.article(t, 42, nil, day)

	path := f.codec.Generate(a)
	assert.Equal(t, "/article/42", path)

	id, err := f.codec.Parse(path)
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
}

func TestScenario_DateAndEncodedID(t *testing.T) {
	f := newFixture(t, "{year}/{month}/{day}/{encodeid}")
	a := f.article(t, 9, nil, day)

	path := f.codec.Generate(a)
	assert.Regexp(t, `^/2024/03/05/[A-Za-z0-9_-]{6}$`, path)

	id, err := f.codec.Parse(path)
	require.NoError(t, err)
	assert.Equal(t, uint(9), id)
}

func TestRoundTrip_AllStyles(t *testing.T) {
	patterns := []string{
		"article/{id}",
		"p/{encodeid}",
		"{category}/{id}",
		"{year}/{month}/{category}/{encodeid}",
		"{year}/{month}/{day}/{id}.html",
	}
	for _, pattern := range patterns {
		t.Run(pattern, func(t *testing.T) {
			f := newFixture(t, pattern)
			tech := f.category(t, 1, "tech", true)
			life := f.category(t, 7, "life", false)

			var articles []*database.Article
			for i := uint(1); i <= 20; i++ {
				cat := tech
				if i%2 == 0 {
					cat = life
				}
				articles = append(articles, f.article(t, i, cat, day.AddDate(0, int(i), int(i))))
			}

			for _, a := range articles {
				path := f.codec.Generate(a)
				require.NotEqual(t, FallbackPath(a.ID), path, "pattern should apply")
				id, err := f.codec.Parse(path)
				require.NoError(t, err, path)
				assert.Equal(t, a.ID, id, path)
			}
		})
	}
}

func TestCategoryDisambiguation(t *testing.T) {
	f := newFixture(t, "{category}/{id}")
	tech := f.category(t, 1, "tech", true)
	seven := f.category(t, 7, "misc", false)
	// slug "7" is not a reference while UseSlug is off; this category is "8"
	decoy := f.category(t, 8, "7", false)

	a := f.article(t, 100, tech, day)
	b := f.article(t, 101, seven, day)
	c := f.article(t, 102, decoy, day)

	assert.Equal(t, "/tech/100", f.codec.Generate(a))
	assert.Equal(t, "/7/101", f.codec.Generate(b))
	assert.Equal(t, "/8/102", f.codec.Generate(c))

	tests := []struct {
		path string
		want uint
	}{
		{"/tech/100", 100},
		{"/7/101", 101},
		{"/8/102", 102},
		{"/1/100", 0},    // slug category reached by id
		{"/misc/101", 0}, // id category reached by slug
		{"/tech/101", 0}, // wrong category
		{"/7/100", 0},
		{"/7/102", 0}, // decoy's slug is not its reference
		{"/tech/999", 0},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			id, err := f.codec.Parse(tt.path)
			if tt.want == 0 {
				assert.ErrorIs(t, err, ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestCategoryFlagFlip(t *testing.T) {
	f := newFixture(t, "{category}/{id}")
	cat := f.category(t, 3, "go", true)
	f.article(t, 1, cat, day)

	_, err := f.codec.Parse("/go/1")
	require.NoError(t, err)

	cat.UseSlug = false
	require.NoError(t, f.repo.SaveCategory(cat))

	_, err = f.codec.Parse("/go/1")
	assert.ErrorIs(t, err, ErrNotFound)
	id, err := f.codec.Parse("/3/1")
	require.NoError(t, err)
	assert.Equal(t, uint(1), id)
}

func TestNewCategoryRecompilesMatcher(t *testing.T) {
	f := newFixture(t, "{category}/{id}")
	old := f.category(t, 1, "old", true)
	f.article(t, 1, old, day)

	_, err := f.codec.Parse("/old/1")
	require.NoError(t, err)

	// no explicit reset: the categories version alone must invalidate
	fresh := f.category(t, 2, "fresh", true)
	f.article(t, 2, fresh, day)

	id, err := f.codec.Parse("/fresh/2")
	require.NoError(t, err)
	assert.Equal(t, uint(2), id)
}

func TestCategoryPattern_NoCategories(t *testing.T) {
	f := newFixture(t, "{category}/{id}")
	a := f.article(t, 5, nil, day)

	assert.Equal(t, "/id/5", f.codec.Generate(a), "missing category falls back")
	_, err := f.codec.Parse("/anything/5")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGenerate_Fallbacks(t *testing.T) {
	f := newFixture(t, "{year}/{id}")
	a := &database.Article{ID: 3}
	assert.Equal(t, "/id/3", f.codec.Generate(a), "zero date falls back")

	f = newFixture(t, "{category}/{id}")
	cat := f.category(t, 4, "news", true)
	// category resolved from the id when not preloaded
	assert.Equal(t, "/news/6", f.codec.Generate(&database.Article{ID: 6, CategoryID: &cat.ID}))
	missing := uint(99)
	assert.Equal(t, "/id/6", f.codec.Generate(&database.Article{ID: 6, CategoryID: &missing}))
}

func TestParse_DateMustAgree(t *testing.T) {
	f := newFixture(t, "{year}/{month}/{id}")
	f.article(t, 1, nil, day)

	_, err := f.codec.Parse("/2024/03/1")
	require.NoError(t, err)
	_, err = f.codec.Parse("/2023/03/1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParse_NotFound(t *testing.T) {
	f := newFixture(t, "p/{encodeid}")
	f.article(t, 1, nil, day)

	for _, p := range []string{"/p/", "/p/!!!!!!", "/q/AAAAAA", "/p/AAAAAAA"} {
		_, err := f.codec.Parse(p)
		assert.ErrorIs(t, err, ErrNotFound, p)
	}

	// a valid token for an id with no article
	tok, err := f.codec.obf.Encode(555)
	require.NoError(t, err)
	_, err = f.codec.Parse("/p/" + tok)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetPattern_SwapsMatcher(t *testing.T) {
	f := newFixture(t, "article/{id}")
	f.article(t, 1, nil, day)

	_, err := f.codec.Parse("/article/1")
	require.NoError(t, err)

	require.NoError(t, f.codec.SetPattern("post/{id}"))
	_, err = f.codec.Parse("/article/1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.codec.Parse("/post/1")
	assert.NoError(t, err)

	assert.ErrorIs(t, f.codec.SetPattern("nothing"), ErrInvalidPattern)
	assert.Equal(t, "post/{id}", f.codec.Pattern(), "rejected pattern leaves the old one")
}

func TestCacheClearDropsMemo(t *testing.T) {
	f := newFixture(t, "article/{id}")
	f.article(t, 1, nil, day)

	_, err := f.codec.Parse("/article/1")
	require.NoError(t, err)
	require.NotNil(t, f.codec.memo.Load())

	f.cache.Delete("permalink:*")
	assert.Nil(t, f.codec.memo.Load())

	_, err = f.codec.Parse("/article/1")
	require.NoError(t, err)
	require.NotNil(t, f.codec.memo.Load())

	f.cache.Delete("route_status:*")
	assert.NotNil(t, f.codec.memo.Load(), "unrelated deletes keep the memo")

	f.cache.Clear()
	assert.Nil(t, f.codec.memo.Load())
}
