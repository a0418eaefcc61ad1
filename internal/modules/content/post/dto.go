package post

// CreatePostDTO carries the validated fields for a new post. The actor
// identity arrives separately, already authenticated by the outer layer.
type CreatePostDTO struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Text        string   `json:"text"`
	Slug        string   `json:"slug"` // optional; derived from Title when empty
	Tags        []string `json:"tags"`
	Categories  []string `json:"categories"`
}

// UpdatePostDTO patches a post. Nil fields are left untouched.
type UpdatePostDTO struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Text        *string   `json:"text"`
	Tags        *[]string `json:"tags"`
	Categories  *[]string `json:"categories"`
}
