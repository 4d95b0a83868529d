package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dghubble/go-twitter/twitter"
	"github.com/dghubble/oauth1"
	"golang.org/x/time/rate"
)

const (
	twitterSourceName = "twitter"
	twitterTimeout    = 30 * time.Second
	twitterTweetMode  = "extended"

	// TwitterMaxPageSize is the most statuses user_timeline returns per call.
	TwitterMaxPageSize = 200

	// user_timeline allows 900 requests per 15 minutes per user.
	twitterRateLimit = time.Second
)

// TwitterCredentials is the OAuth1 key material for one account.
type TwitterCredentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

func (c TwitterCredentials) validate() error {
	switch {
	case c.ConsumerKey == "":
		return errors.New("twitter: consumer key is required")
	case c.ConsumerSecret == "":
		return errors.New("twitter: consumer secret is required")
	case c.AccessToken == "":
		return errors.New("twitter: access token is required")
	case c.AccessTokenSecret == "":
		return errors.New("twitter: access token secret is required")
	}
	return nil
}

// TwitterSource walks and deletes the authenticated user's own tweets.
type TwitterSource struct {
	client     *twitter.Client
	limiter    *rate.Limiter
	newBackOff func() backoff.BackOff
	maxRetries uint64
}

// NewTwitter creates a Twitter source signed with the given credentials.
func NewTwitter(creds TwitterCredentials) (*TwitterSource, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}
	config := oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret)

	httpClient := config.Client(context.Background(), token)
	httpClient.Timeout = twitterTimeout
	return newTwitter(httpClient), nil
}

func newTwitter(httpClient *http.Client) *TwitterSource {
	return &TwitterSource{
		client:     twitter.NewClient(httpClient),
		limiter:    rate.NewLimiter(rate.Every(twitterRateLimit), 1),
		newBackOff: newBackOff,
		maxRetries: defaultMaxRetries,
	}
}

func (ts *TwitterSource) Name() string {
	return twitterSourceName
}

func (ts *TwitterSource) MaxPageSize() int {
	return TwitterMaxPageSize
}

func (ts *TwitterSource) Authenticate(ctx context.Context) (Session, error) {
	if err := ts.limiter.Wait(ctx); err != nil {
		return Session{}, err
	}

	user, resp, err := ts.client.Accounts.VerifyCredentials(&twitter.AccountVerifyParams{
		SkipStatus: twitter.Bool(true),
	})
	if err := checkTwitter("verify credentials", resp, err); err != nil {
		return Session{}, err
	}
	if user == nil || user.ID == 0 {
		return Session{}, errors.New("verify credentials: empty account")
	}

	return Session{
		AccountID: strconv.FormatInt(user.ID, 10),
		Handle:    "@" + user.ScreenName,
	}, nil
}

func (ts *TwitterSource) FirstPage(ctx context.Context, s Session, q Query) (Page, error) {
	return ts.fetch(ctx, s, q, 0)
}

func (ts *TwitterSource) NextPage(ctx context.Context, s Session, q Query, cursor Cursor) (Page, error) {
	maxID, err := strconv.ParseInt(string(cursor), 10, 64)
	if err != nil {
		return Page{}, fmt.Errorf("twitter: invalid cursor %q", cursor)
	}
	if maxID <= 0 {
		// Nothing can be older than the first tweet ID.
		return Page{}, nil
	}
	return ts.fetch(ctx, s, q, maxID)
}

func (ts *TwitterSource) fetch(ctx context.Context, s Session, q Query, maxID int64) (Page, error) {
	userID, err := strconv.ParseInt(s.AccountID, 10, 64)
	if err != nil {
		return Page{}, fmt.Errorf("twitter: invalid account id %q", s.AccountID)
	}

	params := &twitter.UserTimelineParams{
		UserID:          userID,
		Count:           ClampPageSize(q.PageSize, TwitterMaxPageSize),
		MaxID:           maxID,
		ExcludeReplies:  twitter.Bool(!q.IncludeReplies),
		IncludeRetweets: twitter.Bool(q.IncludeReposts),
		TweetMode:       twitterTweetMode,
	}

	var tweets []twitter.Tweet
	err = retryFetch(ctx, ts.newBackOff(), ts.maxRetries, func() error {
		if err := ts.limiter.Wait(ctx); err != nil {
			return err
		}
		var resp *http.Response
		var err error
		tweets, resp, err = ts.client.Timelines.UserTimeline(params)
		return checkTwitter("user timeline", resp, err)
	})
	if err != nil {
		return Page{}, err
	}

	return pageFromTweets(tweets)
}

func (ts *TwitterSource) Delete(ctx context.Context, _ Session, p Post) error {
	id, err := strconv.ParseInt(p.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("twitter: invalid tweet id %q", p.ID)
	}
	if err := ts.limiter.Wait(ctx); err != nil {
		return err
	}
	_, resp, err := ts.client.Statuses.Destroy(id, &twitter.StatusDestroyParams{
		TrimUser: twitter.Bool(true),
	})
	return checkTwitter("destroy "+p.ID, resp, err)
}

// pageFromTweets converts a user_timeline response into a page. The next
// cursor is one below the lowest ID seen, which is how max_id paging walks
// backwards without repeating the boundary tweet.
func pageFromTweets(tweets []twitter.Tweet) (Page, error) {
	if len(tweets) == 0 {
		return Page{}, nil
	}

	posts := make([]Post, 0, len(tweets))
	var minID int64
	for i, tw := range tweets {
		createdAt, err := tw.CreatedAtTime()
		if err != nil {
			return Page{}, fmt.Errorf("parse created_at for %d: %w", tw.ID, err)
		}
		if i == 0 || tw.ID < minID {
			minID = tw.ID
		}
		posts = append(posts, Post{
			ID:        strconv.FormatInt(tw.ID, 10),
			CreatedAt: createdAt.UTC(),
			Text:      tweetText(tw),
			Kind:      tweetKind(tw),
		})
	}

	return Page{Posts: posts, Next: Cursor(strconv.FormatInt(minID-1, 10))}, nil
}

func tweetText(tw twitter.Tweet) string {
	if tw.FullText != "" {
		return tw.FullText
	}
	return tw.Text
}

func tweetKind(tw twitter.Tweet) Kind {
	switch {
	case tw.RetweetedStatus != nil:
		return KindRepost
	case tw.InReplyToStatusID != 0:
		return KindReply
	default:
		return KindPost
	}
}

// checkTwitter normalizes go-twitter's (response, error) pair. The client
// can return a nil error for a non-2xx response whose body carries no
// error details, so the status is checked as well.
func checkTwitter(op string, resp *http.Response, err error) error {
	if resp != nil && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return &StatusError{Op: op, Status: resp.StatusCode, Err: err}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
