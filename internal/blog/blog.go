// Package blog serves the site's built-in public endpoints.
package blog

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"open-blog/internal/database"
	"open-blog/internal/logging"
	"open-blog/internal/permalink"
	"open-blog/internal/routing"
)

// Built-in endpoint names.
const (
	EndpointHome        = "home"
	EndpointArticleByID = "article_by_id"
	EndpointCategory    = "category"
	EndpointArticle     = "article"
)

// Store is the content the public endpoints read.
type Store interface {
	FindArticle(id uint) (*database.Article, error)
	FindArticles() ([]database.Article, error)
	FindArticlesByCategory(categoryID uint) ([]database.Article, error)
	FindCategoryByKey(key string) (*database.Category, error)
}

// Linker builds public paths for endpoints, following active overrides.
type Linker interface {
	URLFor(endpoint string, values map[string]string) (string, error)
}

// Handler holds dependencies for the public endpoints.
type Handler struct {
	store  Store
	codec  *permalink.Codec
	linker Linker
	log    *logrus.Entry
}

// New creates a Handler. The linker may be set later with SetLinker, since
// the rewrite engine is built on top of the table these handlers live in.
func New(store Store, codec *permalink.Codec, log *logrus.Entry) *Handler {
	return &Handler{store: store, codec: codec, log: log}
}

// SetLinker sets the link builder used for category and home links.
func (h *Handler) SetLinker(l Linker) { h.linker = l }

// Register installs the built-in endpoints into t. The catch-all article
// endpoint is registered last so every other built-in matches first. It
// is pinned: its paths come from the permalink pattern, not from a route.
func (h *Handler) Register(t *routing.Table) error {
	for _, b := range []struct {
		endpoint, pattern string
		handler           gin.HandlerFunc
		pinned            bool
	}{
		{EndpointHome, "/", h.home, false},
		{EndpointArticleByID, "/id/{id:[0-9]+}", h.articleByID, false},
		{EndpointCategory, "/category/{key}", h.category, false},
		{EndpointArticle, "/{path:.+}", h.article, true},
	} {
		_, err := t.Install(routing.Rule{
			Pattern:  b.pattern,
			Endpoint: b.endpoint,
			Handler:  b.handler,
			Methods:  []string{http.MethodGet},
			Kind:     routing.KindBuiltin,
			Pinned:   b.pinned,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// articleView is the public JSON form of an article.
type articleView struct {
	ID        uint          `json:"id"`
	Title     string        `json:"title"`
	Link      string        `json:"link"`
	Category  *categoryView `json:"category,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

type categoryView struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
	Link string `json:"link,omitempty"`
}

func (h *Handler) articleView(a *database.Article) articleView {
	v := articleView{ID: a.ID, Title: a.Title, Link: h.codec.Generate(a), CreatedAt: a.CreatedAt}
	if a.Category != nil {
		cv := h.categoryView(a.Category)
		v.Category = &cv
	}
	return v
}

func (h *Handler) categoryView(cat *database.Category) categoryView {
	key := strconv.FormatUint(uint64(cat.ID), 10)
	if cat.UseSlug && cat.Slug != "" {
		key = cat.Slug
	}
	v := categoryView{ID: cat.ID, Name: cat.Name, Slug: cat.Slug}
	if h.linker != nil {
		if link, err := h.linker.URLFor(EndpointCategory, map[string]string{"key": key}); err == nil {
			v.Link = link
		}
	}
	return v
}

func (h *Handler) articleViews(articles []database.Article) []articleView {
	views := make([]articleView, 0, len(articles))
	for i := range articles {
		views = append(views, h.articleView(&articles[i]))
	}
	return views
}

// home handles the site root.
func (h *Handler) home(c *gin.Context) {
	articles, err := h.store.FindArticles()
	if err != nil {
		h.fail(c, err)
		return
	}
	self := "/"
	if h.linker != nil {
		if u, err := h.linker.URLFor(EndpointHome, nil); err == nil {
			self = u
		}
	}
	c.JSON(http.StatusOK, gin.H{"link": self, "articles": h.articleViews(articles)})
}

// articleByID handles /id/{id}, the fallback address of every article.
func (h *Handler) articleByID(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil {
		notFound(c)
		return
	}
	h.render(c, uint(id))
}

// article resolves a request path through the permalink pattern.
func (h *Handler) article(c *gin.Context) {
	id, err := h.codec.Parse(c.Request.URL.Path)
	if err != nil {
		if errors.Is(err, permalink.ErrNotFound) {
			notFound(c)
			return
		}
		h.fail(c, err)
		return
	}
	h.render(c, id)
}

func (h *Handler) render(c *gin.Context, id uint) {
	a, err := h.store.FindArticle(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if a == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, h.articleView(a))
}

// category handles /category/{key}; key is a slug or a numeric id.
func (h *Handler) category(c *gin.Context) {
	cat, err := h.store.FindCategoryByKey(c.Param("key"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if cat == nil {
		notFound(c)
		return
	}
	articles, err := h.store.FindArticlesByCategory(cat.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": h.categoryView(cat), "articles": h.articleViews(articles)})
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "page not found"})
}

func (h *Handler) fail(c *gin.Context, err error) {
	logging.FromContext(h.log, c).WithError(err).Error("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "message": "internal error"})
}
