package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/loganintech/go-reddit/v2/reddit"
	"golang.org/x/time/rate"
)

const (
	redditSourceName = "reddit"
	redditUserAgent  = "postsweep/1.0"

	// RedditMaxPageSize is the listing limit Reddit honours.
	RedditMaxPageSize = 100

	// OAuth clients get 100 requests per minute; stay under it.
	redditRateLimit = 700 * time.Millisecond

	redditCommentPrefix = "t1_"
	redditPostPrefix    = "t3_"
)

// RedditCredentials identifies a script-type Reddit app and its owner.
type RedditCredentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
}

func (c RedditCredentials) validate() error {
	switch {
	case c.ClientID == "":
		return errors.New("reddit: client id is required")
	case c.ClientSecret == "":
		return errors.New("reddit: client secret is required")
	case c.Username == "":
		return errors.New("reddit: username is required")
	case c.Password == "":
		return errors.New("reddit: password is required")
	}
	return nil
}

// RedditSource walks and deletes the authenticated user's submissions and
// comments.
//
// Reddit pages by "after" fullname, and a deleted fullname no longer
// anchors anything. The source remembers what it deleted and the items of
// the last page it served so NextPage can move the anchor to a survivor.
type RedditSource struct {
	client     *reddit.Client
	limiter    *rate.Limiter
	newBackOff func() backoff.BackOff
	maxRetries uint64

	mu       sync.Mutex
	deleted  map[string]bool
	lastNext Cursor
	lastIDs  []string // newest first
}

// NewReddit creates a Reddit source for a script app.
func NewReddit(creds RedditCredentials, opts ...reddit.Opt) (*RedditSource, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}
	userAgent := creds.UserAgent
	if strings.TrimSpace(userAgent) == "" {
		userAgent = redditUserAgent
	}

	client, err := reddit.NewClient(reddit.Credentials{
		ID:       creds.ClientID,
		Secret:   creds.ClientSecret,
		Username: creds.Username,
		Password: creds.Password,
	}, append([]reddit.Opt{reddit.WithUserAgent(userAgent)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("reddit: create client: %w", err)
	}

	return &RedditSource{
		client:     client,
		limiter:    rate.NewLimiter(rate.Every(redditRateLimit), 1),
		newBackOff: newBackOff,
		maxRetries: defaultMaxRetries,
		deleted:    make(map[string]bool),
	}, nil
}

func (rs *RedditSource) Name() string {
	return redditSourceName
}

func (rs *RedditSource) MaxPageSize() int {
	return RedditMaxPageSize
}

func (rs *RedditSource) Authenticate(ctx context.Context) (Session, error) {
	if err := rs.limiter.Wait(ctx); err != nil {
		return Session{}, err
	}
	user, resp, err := rs.client.Account.Info(ctx)
	if err := checkReddit("account info", resp, err); err != nil {
		return Session{}, err
	}
	if user == nil || user.ID == "" {
		return Session{}, errors.New("account info: empty account")
	}
	return Session{AccountID: "t2_" + user.ID, Handle: "u/" + user.Name}, nil
}

func (rs *RedditSource) FirstPage(ctx context.Context, _ Session, q Query) (Page, error) {
	return rs.fetch(ctx, q, "")
}

func (rs *RedditSource) NextPage(ctx context.Context, _ Session, q Query, cursor Cursor) (Page, error) {
	// Reddit signals the end of a listing with an empty "after".
	if cursor == "" {
		return Page{}, nil
	}
	return rs.fetch(ctx, q, rs.anchor(cursor))
}

// anchor returns the fullname to list after for cursor. When the cursor's
// item was deleted it falls back to the oldest survivor of the page that
// produced it, and to the top of the listing when none survived. Deleted
// items drop out of the listing, so restarting still terminates.
func (rs *RedditSource) anchor(cursor Cursor) string {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.deleted[string(cursor)] {
		return string(cursor)
	}
	if cursor == rs.lastNext {
		for i := len(rs.lastIDs) - 1; i >= 0; i-- {
			if !rs.deleted[rs.lastIDs[i]] {
				return rs.lastIDs[i]
			}
		}
	}
	return ""
}

func (rs *RedditSource) remember(page Page) {
	ids := make([]string, len(page.Posts))
	for i, p := range page.Posts {
		ids[i] = p.ID
	}

	rs.mu.Lock()
	rs.lastNext = page.Next
	rs.lastIDs = ids
	rs.mu.Unlock()
}

func (rs *RedditSource) fetch(ctx context.Context, q Query, after string) (Page, error) {
	opts := &reddit.ListUserOverviewOptions{
		ListOptions: reddit.ListOptions{
			Limit: ClampPageSize(q.PageSize, RedditMaxPageSize),
			After: after,
		},
		Sort: "new",
	}

	var page Page
	err := retryFetch(ctx, rs.newBackOff(), rs.maxRetries, func() error {
		if err := rs.limiter.Wait(ctx); err != nil {
			return err
		}

		var (
			posts    []*reddit.Post
			comments []*reddit.Comment
			resp     *reddit.Response
			err      error
		)
		if q.IncludeReplies {
			posts, comments, resp, err = rs.client.User.Overview(ctx, opts)
		} else {
			posts, resp, err = rs.client.User.Posts(ctx, opts)
		}
		if err := checkReddit("user listing", resp, err); err != nil {
			return err
		}

		page, err = pageFromListing(posts, comments)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !page.Empty() && resp != nil {
			page.Next = Cursor(resp.After)
		}
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	rs.remember(page)
	return page, nil
}

func (rs *RedditSource) Delete(ctx context.Context, _ Session, p Post) error {
	if err := rs.limiter.Wait(ctx); err != nil {
		return err
	}

	var (
		resp *reddit.Response
		err  error
	)
	switch {
	case strings.HasPrefix(p.ID, redditCommentPrefix):
		resp, err = rs.client.Comment.Delete(ctx, p.ID)
	case strings.HasPrefix(p.ID, redditPostPrefix):
		resp, err = rs.client.Post.Delete(ctx, p.ID)
	default:
		return fmt.Errorf("reddit: unsupported id %q", p.ID)
	}
	if err := checkReddit("delete "+p.ID, resp, err); err != nil {
		return err
	}

	rs.mu.Lock()
	rs.deleted[p.ID] = true
	rs.mu.Unlock()
	return nil
}

// pageFromListing merges an overview's submissions and comments back into
// a single newest-first sequence.
func pageFromListing(posts []*reddit.Post, comments []*reddit.Comment) (Page, error) {
	items := make([]Post, 0, len(posts)+len(comments))
	for _, p := range posts {
		if p == nil {
			continue
		}
		if p.Created == nil {
			return Page{}, fmt.Errorf("submission %s has no created time", p.FullID)
		}
		text := p.Title
		if strings.TrimSpace(p.Body) != "" {
			text = p.Title + "\n\n" + p.Body
		}
		items = append(items, Post{
			ID:        p.FullID,
			CreatedAt: redditTime(p.Created),
			Text:      text,
			Kind:      KindPost,
		})
	}
	for _, c := range comments {
		if c == nil {
			continue
		}
		if c.Created == nil {
			return Page{}, fmt.Errorf("comment %s has no created time", c.FullID)
		}
		items = append(items, Post{
			ID:        c.FullID,
			CreatedAt: redditTime(c.Created),
			Text:      c.Body,
			Kind:      KindComment,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	if len(items) == 0 {
		return Page{}, nil
	}
	return Page{Posts: items}, nil
}

func redditTime(ts *reddit.Timestamp) time.Time {
	return ts.Time.UTC()
}

func checkReddit(op string, resp *reddit.Response, err error) error {
	if resp != nil && resp.Response != nil {
		if code := resp.StatusCode; code < 200 || code > 299 {
			return &StatusError{Op: op, Status: code, Err: err}
		}
	}
	if err != nil {
		var rateErr *reddit.RateLimitError
		if errors.As(err, &rateErr) {
			return &StatusError{Op: op, Status: http.StatusTooManyRequests, Err: err}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
