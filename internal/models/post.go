package models

import "time"

// PostStatus is the publication state of a post.
type PostStatus string

const (
	StatusDraft     PostStatus = "draft"
	StatusScheduled PostStatus = "scheduled"
	StatusPublished PostStatus = "published"
)

// Valid reports whether s is one of the known publication states.
func (s PostStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusPublished:
		return true
	}
	return false
}

// PostMeta is the persisted metadata record, stored as meta.json inside a
// post's storage folder. Field names match the on-disk schema; decoding is
// tolerant of case differences because encoding/json matches field names
// case-insensitively.
type PostMeta struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Slug        string     `json:"slug"`
	Published   time.Time  `json:"published"`
	Modified    time.Time  `json:"modified"`
	Status      PostStatus `json:"status"`
	Tags        []string   `json:"tags"`
	Categories  []string   `json:"categories"`
	CreatedBy   string     `json:"createdBy"`
	ModifiedBy  string     `json:"modifiedBy"`
}

// Post is a fully assembled document: the metadata record, the raw markdown
// body, and the derived fields computed at read time. HTML and Assets are
// never persisted.
type Post struct {
	PostMeta

	// Folder is the storage folder name under posts/. It is assigned at
	// creation time and may diverge from Slug afterwards; the route index
	// is the only authority for the slug→folder mapping.
	Folder string `json:"folder"`

	// Text is the raw markdown body from content.md.
	Text string `json:"text"`

	// HTML is the rendered and sanitized body, a pure function of Text.
	HTML string `json:"html"`

	// Assets lists the public media URLs of the files in the post's assets
	// directory, recomputed from disk on every read.
	Assets []string `json:"assets"`
}
