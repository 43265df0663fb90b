package v1

import "time"

// ProcessResult summarizes one indexing run.
type ProcessResult struct {
	Files     int           `json:"files"`
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Skipped   []SkippedFile `json:"skipped,omitempty"`
	Status    string        `json:"status"`
}

type SkippedFile struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Answer is a reply with the document excerpts it was based on.
type Answer struct {
	Text    string   `json:"text"`
	Model   string   `json:"model"`
	Sources []Source `json:"sources"`
}

// Source is a preview of a retrieved chunk.
type Source struct {
	File    string  `json:"file"`
	Label   string  `json:"label"`
	Content string  `json:"content"`
	Score   float32 `json:"score"`
}

// SearchResult represents a similarity search hit.
type SearchResult struct {
	File    string  `json:"file"`
	Content string  `json:"content"`
	Score   float32 `json:"score"`
}

// Exchange is one answered question.
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Session is a saved conversation.
type Session struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
