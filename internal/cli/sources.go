package cli

import (
	"fmt"

	"github.com/ppiankov/postsweep/internal/config"
	"github.com/ppiankov/postsweep/internal/source"
)

// newSource builds the adapter named by cfg.Source. Tests replace it.
var newSource = func(cfg *config.Config) (source.Source, error) {
	switch cfg.Source {
	case config.SourceTwitter:
		ts, err := source.NewTwitter(source.TwitterCredentials{
			ConsumerKey:       cfg.Twitter.ConsumerKey,
			ConsumerSecret:    cfg.Twitter.ConsumerSecret,
			AccessToken:       cfg.Twitter.AccessToken,
			AccessTokenSecret: cfg.Twitter.AccessTokenSecret,
		})
		if err != nil {
			return nil, err
		}
		return ts, nil
	case config.SourceReddit:
		rs, err := source.NewReddit(source.RedditCredentials{
			ClientID:     cfg.Reddit.ClientID,
			ClientSecret: cfg.Reddit.ClientSecret,
			Username:     cfg.Reddit.Username,
			Password:     cfg.Reddit.Password,
			UserAgent:    cfg.Reddit.UserAgent,
		})
		if err != nil {
			return nil, err
		}
		return rs, nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}
