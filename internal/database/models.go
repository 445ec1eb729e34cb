package database

import "time"

// Route is an administrator-defined override path for a built-in endpoint.
type Route struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Path             string    `gorm:"uniqueIndex;not null" json:"path"`
	OriginalEndpoint string    `gorm:"index;not null" json:"original_endpoint"`
	Description      string    `json:"description"`
	IsActive         bool      `gorm:"index;not null" json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Category groups articles. UseSlug selects whether permalinks reference
// the category by slug or by numeric id.
type Category struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Name    string `gorm:"not null" json:"name"`
	Slug    string `gorm:"uniqueIndex;not null" json:"slug"`
	UseSlug bool   `gorm:"not null" json:"use_slug"`
}

// Article is the projection of a blog post the dispatcher needs.
type Article struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Title      string    `json:"title"`
	CategoryID *uint     `gorm:"index" json:"category_id,omitempty"`
	Category   *Category `json:"category,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Setting is a site-wide key/value configuration entry.
type Setting struct {
	Key   string `gorm:"primaryKey"`
	Value string `gorm:"not null"`
}

// SettingArticleURLPattern stores the permalink pattern.
const SettingArticleURLPattern = "article_url_pattern"

// SettingActivePlugins stores the comma-separated ids of enabled plugins.
const SettingActivePlugins = "active_plugins"
