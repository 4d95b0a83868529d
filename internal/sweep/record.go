package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/postsweep/internal/source"
)

// Record describes one deleted, or in dry-run mode would-be-deleted, post.
type Record struct {
	Post   source.Post
	Age    time.Duration
	DryRun bool
}

// String renders the record as "{timestamp}/{id}: {text}".
func (r Record) String() string {
	return fmt.Sprintf("%s/%s: %s", r.Post.CreatedAt.UTC().Format(time.RFC3339), r.Post.ID, r.Post.Text)
}

// Recorder receives every record the sweep produces, after the delete
// call (if any) has succeeded.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// Logger is the subset of a structured logger the sweep writes to.
type Logger interface {
	Debug(msg interface{}, keyvals ...interface{})
	Info(msg interface{}, keyvals ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(interface{}, ...interface{}) {}
func (nopLogger) Info(interface{}, ...interface{})  {}
