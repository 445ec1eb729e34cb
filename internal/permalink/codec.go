// Package permalink generates article paths from the site's permalink
// pattern and parses request paths back into article ids.
package permalink

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"open-blog/internal/cache"
	"open-blog/internal/database"
	"open-blog/internal/obfuscate"
)

// Pattern tokens.
const (
	TokenID       = "id"
	TokenEncodeID = "encodeid"
	TokenCategory = "category"
	TokenYear     = "year"
	TokenMonth    = "month"
	TokenDay      = "day"
)

const cachePrefix = "permalink:"

var (
	ErrNotFound       = errors.New("permalink: no article for path")
	ErrInvalidPattern = errors.New("permalink: invalid pattern")
)

var tokenRe = regexp.MustCompile(`\{([^{}]*)\}`)

var tokenExpr = map[string]string{
	TokenID:       `(\d+)`,
	TokenEncodeID: `([A-Za-z0-9_-]+)`,
	TokenYear:     `(\d{4})`,
	TokenMonth:    `(\d{2})`,
	TokenDay:      `(\d{2})`,
}

// Store is what the codec reads from persistence.
type Store interface {
	CategoriesVersion() uint64
	FindCategories() ([]database.Category, error)
	FindArticle(id uint) (*database.Article, error)
}

// Codec converts between articles and paths.
type Codec struct {
	store Store
	obf   *obfuscate.Obfuscator
	cache *cache.Manager
	log   *logrus.Entry

	mu      sync.RWMutex
	pattern string
	tokens  []string

	// memo short-circuits the cache lookup for the current matcher. It is
	// dropped whenever a permalink cache key is invalidated.
	memo atomic.Pointer[matcher]
}

// matcher is a compiled pattern. version is the categories version its
// category alternation was built from.
type matcher struct {
	pattern string
	version uint64
	re      *regexp.Regexp // nil when nothing can match
	groups  map[string]int
}

// New creates a Codec. SetPattern must be called before use.
func New(store Store, obf *obfuscate.Obfuscator, c *cache.Manager, log *logrus.Entry) *Codec {
	codec := &Codec{store: store, obf: obf, cache: c, log: log}
	c.OnInvalidate(func(key string) {
		if strings.HasPrefix(key, cachePrefix) || cache.Matches(key, cachePrefix) {
			codec.memo.Store(nil)
		}
	})
	return codec
}

// ParsePattern normalizes and validates a pattern, returning it with its
// tokens in order. Patterns must reference the article by {id} or
// {encodeid}, and every token must be known and used once.
func ParsePattern(p string) (string, []string, error) {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return "", nil, fmt.Errorf("%w: empty", ErrInvalidPattern)
	}
	if strings.ContainsAny(tokenRe.ReplaceAllString(p, ""), "{}") {
		return "", nil, fmt.Errorf("%w: unbalanced braces in %q", ErrInvalidPattern, p)
	}

	var tokens []string
	for _, m := range tokenRe.FindAllStringSubmatch(p, -1) {
		tok := m[1]
		switch tok {
		case TokenID, TokenEncodeID, TokenCategory, TokenYear, TokenMonth, TokenDay:
		default:
			return "", nil, fmt.Errorf("%w: unknown token {%s}", ErrInvalidPattern, tok)
		}
		if slices.Contains(tokens, tok) {
			return "", nil, fmt.Errorf("%w: token {%s} used twice", ErrInvalidPattern, tok)
		}
		tokens = append(tokens, tok)
	}
	if !slices.Contains(tokens, TokenID) && !slices.Contains(tokens, TokenEncodeID) {
		return "", nil, fmt.Errorf("%w: %q has neither {id} nor {encodeid}", ErrInvalidPattern, p)
	}
	return p, tokens, nil
}

// SetPattern replaces the permalink pattern and drops compiled matchers.
func (c *Codec) SetPattern(p string) error {
	norm, tokens, err := ParsePattern(p)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.pattern = norm
	c.tokens = tokens
	c.mu.Unlock()

	c.Reset()
	return nil
}

// Pattern returns the current normalized pattern.
func (c *Codec) Pattern() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pattern
}

// Reset drops every compiled matcher so the next Parse recompiles.
func (c *Codec) Reset() {
	c.cache.Delete(cachePrefix + cache.Wildcard)
}

// Generate returns the path for a. Any substitution failure falls back to
// /id/{id}.
func (c *Codec) Generate(a *database.Article) string {
	p, err := c.generate(a)
	if err != nil {
		c.log.WithError(err).WithField("article_id", a.ID).Debug("permalink fallback")
		return FallbackPath(a.ID)
	}
	return p
}

// FallbackPath is the canonical path used when a pattern cannot be applied.
func FallbackPath(id uint) string {
	return "/id/" + strconv.FormatUint(uint64(id), 10)
}

func (c *Codec) generate(a *database.Article) (string, error) {
	c.mu.RLock()
	pattern, tokens := c.pattern, c.tokens
	c.mu.RUnlock()
	if pattern == "" {
		return "", errors.New("no pattern configured")
	}

	values := make(map[string]string, len(tokens))
	for _, tok := range tokens {
		switch tok {
		case TokenID:
			values[tok] = strconv.FormatUint(uint64(a.ID), 10)
		case TokenEncodeID:
			enc, err := c.obf.Encode(uint64(a.ID))
			if err != nil {
				return "", err
			}
			values[tok] = enc
		case TokenCategory:
			cat, err := c.categoryOf(a)
			if err != nil {
				return "", err
			}
			if cat == nil {
				return "", errors.New("article has no category")
			}
			values[tok] = categoryRef(cat)
		case TokenYear, TokenMonth, TokenDay:
			if a.CreatedAt.IsZero() {
				return "", errors.New("article has no creation date")
			}
			values[tok] = datePart(a, tok)
		}
	}

	path := tokenRe.ReplaceAllStringFunc(pattern, func(m string) string {
		return values[m[1:len(m)-1]]
	})
	return "/" + path, nil
}

// Parse resolves a request path to an article id.
func (c *Codec) Parse(path string) (uint, error) {
	m, err := c.matcher()
	if err != nil {
		return 0, err
	}
	if m.re == nil {
		return 0, ErrNotFound
	}
	sub := m.re.FindStringSubmatch(path)
	if sub == nil {
		return 0, ErrNotFound
	}
	capture := func(tok string) (string, bool) {
		i, ok := m.groups[tok]
		if !ok {
			return "", false
		}
		return sub[i], true
	}

	var id uint64
	if raw, ok := capture(TokenID); ok {
		id, err = strconv.ParseUint(raw, 10, 0)
		if err != nil {
			return 0, ErrNotFound
		}
	}
	if tok, ok := capture(TokenEncodeID); ok {
		decoded, err := c.obf.Decode(tok)
		if err != nil {
			return 0, ErrNotFound
		}
		if _, both := m.groups[TokenID]; both && decoded != id {
			return 0, ErrNotFound
		}
		id = decoded
	}

	a, err := c.store.FindArticle(uint(id))
	if err != nil {
		return 0, fmt.Errorf("permalink: load article %d: %w", id, err)
	}
	if a == nil {
		return 0, ErrNotFound
	}

	if ref, ok := capture(TokenCategory); ok {
		cat, err := c.categoryOf(a)
		if err != nil {
			return 0, err
		}
		// The captured reference must use the form the category currently
		// declares: a slug category is never reachable by id and vice versa.
		if cat == nil || categoryRef(cat) != ref {
			return 0, ErrNotFound
		}
	}
	for _, tok := range []string{TokenYear, TokenMonth, TokenDay} {
		if v, ok := capture(tok); ok && (a.CreatedAt.IsZero() || datePart(a, tok) != v) {
			return 0, ErrNotFound
		}
	}
	return a.ID, nil
}

// matcher returns the compiled matcher for the current pattern and
// categories version, compiling it on first use.
func (c *Codec) matcher() (*matcher, error) {
	pattern := c.Pattern()
	if pattern == "" {
		return nil, errors.New("permalink: no pattern configured")
	}
	version := c.store.CategoriesVersion()
	if m := c.memo.Load(); m != nil && m.pattern == pattern && m.version == version {
		return m, nil
	}

	key := fmt.Sprintf("%smatcher:%d:%s", cachePrefix, version, pattern)
	m, err := cache.Fetch(c.cache, key, func() (*matcher, error) {
		return c.compile(pattern, version)
	})
	if err != nil {
		return nil, err
	}
	c.memo.Store(m)
	return m, nil
}

func (c *Codec) compile(pattern string, version uint64) (*matcher, error) {
	m := &matcher{pattern: pattern, version: version, groups: map[string]int{}}

	var b strings.Builder
	b.WriteString("^/")
	end, group := 0, 0
	for _, loc := range tokenRe.FindAllStringSubmatchIndex(pattern, -1) {
		b.WriteString(regexp.QuoteMeta(pattern[end:loc[0]]))
		end = loc[1]
		tok := pattern[loc[2]:loc[3]]

		expr, ok := tokenExpr[tok]
		if tok == TokenCategory {
			alt, err := c.categoryAlternation()
			if err != nil {
				return nil, err
			}
			if alt == "" {
				c.log.WithField("pattern", pattern).Debug("no categories, pattern cannot match")
				return m, nil
			}
			expr, ok = "("+alt+")", true
		}
		if !ok {
			return nil, fmt.Errorf("%w: unknown token {%s}", ErrInvalidPattern, tok)
		}
		b.WriteString(expr)
		group++
		m.groups[tok] = group
	}
	b.WriteString(regexp.QuoteMeta(pattern[end:]))
	b.WriteString("/?$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	m.re = re
	c.log.WithFields(logrus.Fields{"pattern": pattern, "categories_version": version}).Debug("permalink matcher compiled")
	return m, nil
}

// categoryAlternation lists every category reference, longest first so
// that a reference never loses to one of its own prefixes.
func (c *Codec) categoryAlternation() (string, error) {
	cats, err := c.categories()
	if err != nil {
		return "", err
	}
	refs := make([]string, 0, len(cats))
	for i := range cats {
		refs = append(refs, regexp.QuoteMeta(categoryRef(&cats[i])))
	}
	slices.SortFunc(refs, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})
	return strings.Join(refs, "|"), nil
}

func (c *Codec) categories() ([]database.Category, error) {
	key := fmt.Sprintf("%scategories:%d", cachePrefix, c.store.CategoriesVersion())
	return cache.Fetch(c.cache, key, c.store.FindCategories)
}

func (c *Codec) categoryOf(a *database.Article) (*database.Category, error) {
	if a.Category != nil {
		return a.Category, nil
	}
	if a.CategoryID == nil {
		return nil, nil
	}
	cats, err := c.categories()
	if err != nil {
		return nil, err
	}
	for i := range cats {
		if cats[i].ID == *a.CategoryID {
			return &cats[i], nil
		}
	}
	return nil, nil
}

// categoryRef is how a category appears in a path: its slug when UseSlug
// is set, otherwise its numeric id.
func categoryRef(cat *database.Category) string {
	if cat.UseSlug {
		return cat.Slug
	}
	return strconv.FormatUint(uint64(cat.ID), 10)
}

func datePart(a *database.Article, tok string) string {
	t := a.CreatedAt.UTC()
	switch tok {
	case TokenYear:
		return fmt.Sprintf("%04d", t.Year())
	case TokenMonth:
		return fmt.Sprintf("%02d", int(t.Month()))
	default:
		return fmt.Sprintf("%02d", t.Day())
	}
}
