package sweep

import (
	"fmt"

	"github.com/ppiankov/postsweep/internal/source"
)

// AuthError means the source rejected the credentials or could not be
// reached while verifying them. Nothing was fetched.
type AuthError struct {
	Source string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authenticate: %v", e.Source, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError means a page request failed and the sweep stopped.
type FetchError struct {
	Source string
	Cursor source.Cursor
	Err    error
}

func (e *FetchError) Error() string {
	if e.Cursor == "" {
		return fmt.Sprintf("%s: fetch first page: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("%s: fetch page %s: %v", e.Source, e.Cursor, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DeleteError means a delete call failed and the sweep stopped.
type DeleteError struct {
	Source string
	PostID string
	Err    error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("%s: delete %s: %v", e.Source, e.PostID, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }
