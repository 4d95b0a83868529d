// Package sweep walks an account's post history and deletes posts older
// than a retention window.
package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/postsweep/internal/classify"
	"github.com/ppiankov/postsweep/internal/source"
)

// Options control a single sweep. The Include flags are false in the zero
// value; config.GeneralConfig defaults both to true and the run command
// copies them in.
type Options struct {
	// MaxAgeDays is the retention window. Posts strictly older are deleted.
	MaxAgeDays int
	// DryRun logs what would be deleted and issues no delete calls.
	DryRun bool
	// IncludeReplies lists replies (Reddit comments) alongside top-level posts.
	IncludeReplies bool
	// IncludeReposts lists retweets. Sources without reposts ignore it.
	IncludeReposts bool

	// PageSize is clamped to the source's maximum. Zero requests the maximum.
	PageSize int
}

// Result summarizes a completed sweep.
type Result struct {
	Session source.Session
	Deleted int // real deletions, or simulated ones in dry-run mode
	Scanned int
	Pages   int // page fetches issued, including the final empty one
	DryRun  bool
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLogger sets where per-post output goes.
func WithLogger(l Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder adds a sink for deletion records.
func WithRecorder(r Recorder) Option {
	return func(s *Sweeper) { s.recorder = r }
}

// WithClock replaces time.Now. The clock is read once per Run.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// Sweeper runs sweeps against one source.
type Sweeper struct {
	src      source.Source
	opts     Options
	logger   Logger
	recorder Recorder
	now      func() time.Time
	progress Result
}

// Progress reports how far the last Run got, including a Run that failed.
// Deleted counts deletions the source confirmed, or simulated ones in
// dry-run mode. It is meant for audit trails; Run's own result stays zero on
// failure.
func (s *Sweeper) Progress() Result {
	return s.progress
}

// New returns a Sweeper for src.
func New(src source.Source, opts Options, options ...Option) *Sweeper {
	s := &Sweeper{
		src:    src,
		opts:   opts,
		logger: nopLogger{},
		now:    time.Now,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// listing is the paging state of a sweep. fetch never mutates its
// receiver; it returns the state for the following page alongside the page.
type listing struct {
	src     source.Source
	session source.Session
	query   source.Query
	cursor  source.Cursor
	started bool
}

func (l listing) fetch(ctx context.Context) (listing, source.Page, error) {
	var (
		page source.Page
		err  error
	)
	if !l.started {
		page, err = l.src.FirstPage(ctx, l.session, l.query)
	} else {
		page, err = l.src.NextPage(ctx, l.session, l.query, l.cursor)
	}
	if err != nil {
		return l, source.Page{}, &FetchError{Source: l.src.Name(), Cursor: l.cursor, Err: err}
	}
	next := l
	next.started = true
	next.cursor = page.Next
	return next, page, nil
}

// Run authenticates, then pages through the account's history until an
// empty page comes back. Any failure stops the sweep and no partial result
// is returned.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	name := s.src.Name()
	now := s.now()
	s.progress = Result{DryRun: s.opts.DryRun}

	session, err := s.src.Authenticate(ctx)
	if err != nil {
		return Result{}, &AuthError{Source: name, Err: err}
	}
	s.progress.Session = session
	s.logger.Info("authenticated", "source", name, "account", session.String())

	l := listing{
		src:     s.src,
		session: session,
		query: source.Query{
			PageSize:       source.ClampPageSize(s.opts.PageSize, s.src.MaxPageSize()),
			IncludeReplies: s.opts.IncludeReplies,
			IncludeReposts: s.opts.IncludeReposts,
		},
	}

	res := Result{Session: session, DryRun: s.opts.DryRun}
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("sweep cancelled: %w", err)
		}

		var page source.Page
		l, page, err = l.fetch(ctx)
		if err != nil {
			return Result{}, err
		}
		res.Pages++
		s.progress.Pages = res.Pages

		if page.Empty() {
			break
		}
		s.logger.Debug("page", "number", res.Pages, "posts", len(page.Posts))

		for _, post := range page.Posts {
			if err := ctx.Err(); err != nil {
				return Result{}, fmt.Errorf("sweep cancelled: %w", err)
			}
			res.Scanned++
			s.progress.Scanned = res.Scanned

			deleted, err := s.act(ctx, session, post, now)
			if err != nil {
				return Result{}, err
			}
			if deleted {
				res.Deleted++
			}
		}
	}

	return res, nil
}

// act classifies one post and carries out the resulting action. It
// reports whether the post counts as deleted.
func (s *Sweeper) act(ctx context.Context, session source.Session, post source.Post, now time.Time) (bool, error) {
	age := classify.Age(post.CreatedAt, now)
	if classify.Classify(post.CreatedAt, now, s.opts.MaxAgeDays) == classify.Keep {
		s.logger.Debug("keep", "id", post.ID, "age_days", classify.Days(age))
		return false, nil
	}

	rec := Record{Post: post, Age: age, DryRun: s.opts.DryRun}
	if s.opts.DryRun {
		s.logger.Info("would have deleted: " + rec.String())
	} else {
		if err := s.src.Delete(ctx, session, post); err != nil {
			return false, &DeleteError{Source: s.src.Name(), PostID: post.ID, Err: err}
		}
		s.logger.Info(rec.String())
	}
	s.progress.Deleted++

	if s.recorder != nil {
		if err := s.recorder.Record(ctx, rec); err != nil {
			return false, fmt.Errorf("record %s: %w", post.ID, err)
		}
	}
	return true, nil
}
