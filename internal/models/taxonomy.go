package models

// TaxonomyKind distinguishes the two flat taxonomy stores.
type TaxonomyKind string

const (
	KindTag      TaxonomyKind = "tag"
	KindCategory TaxonomyKind = "category"
)

// Tag is persisted as tags/<slug>.json.
type Tag struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Category is persisted as categories/<slug>.json.
type Category struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
}
