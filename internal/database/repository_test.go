package database_test

import (
	"testing"
	"time"

	"open-blog/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *database.Repository {
	t.Helper()
	return database.NewRepository(database.New(":memory:"))
}

func TestRoutes_CRUD(t *testing.T) {
	repo := newTestRepo(t)

	rt := &database.Route{Path: "/blog", OriginalEndpoint: "home", IsActive: true}
	require.NoError(t, repo.CreateRoute(rt))
	assert.NotZero(t, rt.ID)

	got, err := repo.FindRoute(rt.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "/blog", got.Path)

	byPath, err := repo.FindRouteByPath("/blog")
	require.NoError(t, err)
	require.NotNil(t, byPath)
	assert.Equal(t, rt.ID, byPath.ID)

	// unique path
	assert.Error(t, repo.CreateRoute(&database.Route{Path: "/blog", OriginalEndpoint: "other"}))

	got.IsActive = false
	require.NoError(t, repo.SaveRoute(got))
	active, err := repo.FindActiveRoutes()
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, repo.DeleteRoute(rt.ID))
	missing, err := repo.FindRoute(rt.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindActiveRouteForEndpoint(t *testing.T) {
	repo := newTestRepo(t)

	a := &database.Route{Path: "/a", OriginalEndpoint: "home", IsActive: true}
	require.NoError(t, repo.CreateRoute(a))
	require.NoError(t, repo.CreateRoute(&database.Route{Path: "/b", OriginalEndpoint: "home", IsActive: false}))

	got, err := repo.FindActiveRouteForEndpoint("home", 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, a.ID, got.ID)

	got, err = repo.FindActiveRouteForEndpoint("home", a.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCategoriesVersion(t *testing.T) {
	repo := newTestRepo(t)
	v0 := repo.CategoriesVersion()

	c := &database.Category{Name: "Tech", Slug: "tech", UseSlug: true}
	require.NoError(t, repo.CreateCategory(c))
	assert.Greater(t, repo.CategoriesVersion(), v0)

	v1 := repo.CategoriesVersion()
	c.UseSlug = false
	require.NoError(t, repo.SaveCategory(c))
	assert.Greater(t, repo.CategoriesVersion(), v1)

	byKey, err := repo.FindCategoryByKey("tech")
	require.NoError(t, err)
	require.NotNil(t, byKey)
	byID, err := repo.FindCategoryByKey("1")
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, byKey.ID, byID.ID)

	v2 := repo.CategoriesVersion()
	require.NoError(t, repo.DeleteCategory(c.ID))
	assert.Greater(t, repo.CategoriesVersion(), v2)
}

func TestArticles_PreloadCategory(t *testing.T) {
	repo := newTestRepo(t)

	c := &database.Category{Name: "Tech", Slug: "tech"}
	require.NoError(t, repo.CreateCategory(c))

	a := &database.Article{Title: "hello", CategoryID: &c.ID, CreatedAt: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)}
	require.NoError(t, repo.CreateArticle(a))

	got, err := repo.FindArticle(a.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.Category)
	assert.Equal(t, "tech", got.Category.Slug)

	list, err := repo.FindArticlesByCategory(c.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// deleting the category detaches the article
	require.NoError(t, repo.DeleteCategory(c.ID))
	got, err = repo.FindArticle(a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CategoryID)
}

func TestSettings(t *testing.T) {
	repo := newTestRepo(t)

	_, ok, err := repo.GetSetting(database.SettingArticleURLPattern)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.PutSetting(database.SettingArticleURLPattern, "article/{id}"))
	require.NoError(t, repo.PutSetting(database.SettingArticleURLPattern, "{encodeid}"))

	v, ok, err := repo.GetSetting(database.SettingArticleURLPattern)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "{encodeid}", v)
}
