package plugins

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"open-blog/internal/database"
	"open-blog/internal/routing"
)

const sitemapPath = "/sitemap.txt"

// Linker generates an article's canonical path.
type Linker interface {
	Generate(a *database.Article) string
}

// ArticleLister lists every article.
type ArticleLister interface {
	FindArticles() ([]database.Article, error)
}

// Sitemap serves /sitemap.txt, one canonical article path per line.
type Sitemap struct {
	articles ArticleLister
	links    Linker
}

// NewSitemap creates the sitemap plugin.
func NewSitemap(articles ArticleLister, links Linker) *Sitemap {
	return &Sitemap{articles: articles, links: links}
}

func (s *Sitemap) ID() string { return "sitemap" }

func (s *Sitemap) Description() string { return "plain-text sitemap of article permalinks" }

func (s *Sitemap) Activate(routes *routing.PluginRoutes) error {
	if !routes.Route(sitemapPath, s.serve) {
		return fmt.Errorf("%s is already served", sitemapPath)
	}
	return nil
}

func (s *Sitemap) serve(c *gin.Context) {
	articles, err := s.articles.FindArticles()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "message": err.Error()})
		return
	}
	var b strings.Builder
	for i := range articles {
		b.WriteString(s.links.Generate(&articles[i]))
		b.WriteByte('\n')
	}
	c.String(http.StatusOK, b.String())
}
