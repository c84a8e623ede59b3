package content

import "time"

// Kind describes how an item is handed to the channel.
type Kind string

const (
	KindVideo Kind = "video" // link delivered inside the daily digest
	KindFile  Kind = "file"  // delivered as a separate document
	KindText  Kind = "text"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindVideo, KindFile, KindText:
		return true
	}
	return false
}

// Source is a named, ordered playlist of items (e.g. "english", "history").
// Corresponds to the 'content_sources' table.
type Source struct {
	ID        int64
	Name      string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName returns the title, or the name when no title was given.
func (s *Source) DisplayName() string {
	if s.Title != "" {
		return s.Title
	}
	return s.Name
}

// Item is a single deliverable reference inside a Source.
type Item struct {
	ID        int64
	SourceID  int64
	Position  int
	Kind      Kind
	Ref       string // URL, Telegram file_id or local path
	Title     string
	CreatedAt time.Time
}
