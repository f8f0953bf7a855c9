package store

import "time"

type User struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
}

// Website is the authoritative record for an indexed page, keyed by the
// content hash of its canonical URL. The key never changes; metadata fields
// may be refreshed by later index calls.
type Website struct {
	ContentHash string
	IndexedBy   string
	URL         string
	Title       string
	Description string
	Keywords    string
	Image       string
	Favicon     string
	IndexedAt   time.Time
}

type Comment struct {
	ContentHash string
	ID          string
	AuthorID    string
	Domain      string
	URL         string
	Body        string
	ReplyCount  int
	CreatedAt   time.Time
}

// FlatComment is the per-user read-optimized shadow of a Comment, created and
// deleted in lockstep with it.
type FlatComment struct {
	UserID      string
	CommentID   string
	ContentHash string
	URL         string
	Domain      string
	CreatedAt   time.Time
}
