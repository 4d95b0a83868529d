package source

import (
	"context"
	"fmt"
	"time"
)

// Kind describes what sort of item a post is on its network.
type Kind string

const (
	KindPost    Kind = "post"
	KindReply   Kind = "reply"
	KindRepost  Kind = "repost"
	KindComment Kind = "comment"
)

// Post represents a single item in the authenticated account's history.
type Post struct {
	ID        string    // network-specific identifier, opaque to callers
	CreatedAt time.Time // creation timestamp
	Text      string    // display text
	Kind      Kind
}

// Cursor is an opaque continuation token. The zero value has no meaning
// on its own; pass it only to NextPage.
type Cursor string

// Page is one batch of posts, newest first, plus the cursor that selects
// the batch immediately older than it.
type Page struct {
	Posts []Post
	Next  Cursor
}

// Empty reports whether the page signals the end of the history.
func (p Page) Empty() bool {
	return len(p.Posts) == 0
}

// Session is the verified identity a source acts as.
type Session struct {
	AccountID string
	Handle    string
}

func (s Session) String() string {
	if s.Handle == "" {
		return s.AccountID
	}
	return fmt.Sprintf("%s (%s)", s.Handle, s.AccountID)
}

// Query shapes a timeline listing.
type Query struct {
	PageSize       int
	IncludeReplies bool
	IncludeReposts bool
}

// Source lists and deletes the authenticated account's own posts.
type Source interface {
	// Name returns the source identifier (e.g. "twitter").
	Name() string

	// MaxPageSize returns the largest page the remote protocol allows.
	MaxPageSize() int

	// Authenticate verifies credentials and resolves the owning account.
	Authenticate(ctx context.Context) (Session, error)

	// FirstPage returns the newest page of the account's posts.
	FirstPage(ctx context.Context, s Session, q Query) (Page, error)

	// NextPage returns the page immediately older than the one that
	// produced cursor.
	NextPage(ctx context.Context, s Session, q Query, cursor Cursor) (Page, error)

	// Delete removes exactly one post.
	Delete(ctx context.Context, s Session, p Post) error
}

// ClampPageSize bounds n to (0, limit]. Zero or negative requests the limit.
func ClampPageSize(n, limit int) int {
	if n <= 0 || n > limit {
		return limit
	}
	return n
}
