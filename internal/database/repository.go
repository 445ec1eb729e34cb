package database

import (
	"errors"
	"sync/atomic"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides CRUD operations for persisted routes, categories,
// articles and settings.
type Repository struct {
	db *gorm.DB

	// categoriesVersion increases on every category mutation so compiled
	// matchers that embed the category set can detect staleness.
	categoriesVersion atomic.Uint64
}

// NewRepository creates a Repository backed by the given database.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// --- routes ---

// CreateRoute inserts a new route record.
func (r *Repository) CreateRoute(rt *Route) error {
	return r.db.Create(rt).Error
}

// FindRoute returns a route by id, or nil if not found.
func (r *Repository) FindRoute(id uint) (*Route, error) {
	var rt Route
	if err := r.db.First(&rt, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rt, nil
}

// FindRouteByPath returns the route holding path, or nil.
func (r *Repository) FindRouteByPath(path string) (*Route, error) {
	var rt Route
	if err := r.db.First(&rt, "path = ?", path).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rt, nil
}

// FindRoutes returns all routes ordered by id.
func (r *Repository) FindRoutes() ([]Route, error) {
	var routes []Route
	if err := r.db.Order("id").Find(&routes).Error; err != nil {
		return nil, err
	}
	return routes, nil
}

// FindActiveRoutes returns active routes, oldest update first, so that
// applying them in order leaves the most recent writer in place.
func (r *Repository) FindActiveRoutes() ([]Route, error) {
	var routes []Route
	if err := r.db.Where("is_active = ?", true).Order("updated_at, id").Find(&routes).Error; err != nil {
		return nil, err
	}
	return routes, nil
}

// FindActiveRouteForEndpoint returns the active route targeting endpoint,
// ignoring the route with id exclude (0 = none).
func (r *Repository) FindActiveRouteForEndpoint(endpoint string, exclude uint) (*Route, error) {
	var rt Route
	q := r.db.Where("original_endpoint = ? AND is_active = ?", endpoint, true)
	if exclude != 0 {
		q = q.Where("id <> ?", exclude)
	}
	if err := q.First(&rt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rt, nil
}

// SaveRoute updates every column of an existing route.
func (r *Repository) SaveRoute(rt *Route) error {
	return r.db.Save(rt).Error
}

// DeleteRoute removes a route record by id.
func (r *Repository) DeleteRoute(id uint) error {
	return r.db.Delete(&Route{}, id).Error
}

// --- categories ---

// CategoriesVersion reports the current category-set version.
func (r *Repository) CategoriesVersion() uint64 {
	return r.categoriesVersion.Load()
}

// CreateCategory inserts a category.
func (r *Repository) CreateCategory(c *Category) error {
	if err := r.db.Create(c).Error; err != nil {
		return err
	}
	r.categoriesVersion.Add(1)
	return nil
}

// SaveCategory updates a category.
func (r *Repository) SaveCategory(c *Category) error {
	if err := r.db.Save(c).Error; err != nil {
		return err
	}
	r.categoriesVersion.Add(1)
	return nil
}

// DeleteCategory removes a category and detaches its articles.
func (r *Repository) DeleteCategory(id uint) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Article{}).Where("category_id = ?", id).Update("category_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&Category{}, id).Error
	})
	if err != nil {
		return err
	}
	r.categoriesVersion.Add(1)
	return nil
}

// FindCategories returns all categories ordered by id.
func (r *Repository) FindCategories() ([]Category, error) {
	var cats []Category
	if err := r.db.Order("id").Find(&cats).Error; err != nil {
		return nil, err
	}
	return cats, nil
}

// FindCategoryByKey returns a category by slug or numeric id, or nil.
func (r *Repository) FindCategoryByKey(key string) (*Category, error) {
	var c Category
	if err := r.db.Where("slug = ? OR CAST(id AS TEXT) = ?", key, key).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// --- articles ---

// CreateArticle inserts an article.
func (r *Repository) CreateArticle(a *Article) error {
	return r.db.Omit(clause.Associations).Create(a).Error
}

// FindArticle returns an article with its category, or nil if not found.
func (r *Repository) FindArticle(id uint) (*Article, error) {
	var a Article
	if err := r.db.Preload("Category").First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// FindArticles returns all articles with categories, newest first.
func (r *Repository) FindArticles() ([]Article, error) {
	var articles []Article
	if err := r.db.Preload("Category").Order("created_at DESC, id DESC").Find(&articles).Error; err != nil {
		return nil, err
	}
	return articles, nil
}

// FindArticlesByCategory returns the articles of one category.
func (r *Repository) FindArticlesByCategory(categoryID uint) ([]Article, error) {
	var articles []Article
	if err := r.db.Preload("Category").Where("category_id = ?", categoryID).Order("created_at DESC, id DESC").Find(&articles).Error; err != nil {
		return nil, err
	}
	return articles, nil
}

// --- settings ---

// GetSetting returns a setting value and whether it exists.
func (r *Repository) GetSetting(key string) (string, bool, error) {
	var s Setting
	if err := r.db.Where(&Setting{Key: key}).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return s.Value, true, nil
}

// PutSetting creates or replaces a setting.
func (r *Repository) PutSetting(key, value string) error {
	return r.db.Save(&Setting{Key: key, Value: value}).Error
}
