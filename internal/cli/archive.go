package cli

import (
	"context"
	"time"

	"github.com/ppiankov/postsweep/internal/classify"
	"github.com/ppiankov/postsweep/internal/config"
	"github.com/ppiankov/postsweep/internal/privacy"
	"github.com/ppiankov/postsweep/internal/store"
	"github.com/ppiankov/postsweep/internal/sweep"
)

// archiveRecorder writes each sweep record to the deletion archive.
type archiveRecorder struct {
	db       *store.Store
	runID    string
	redactor *privacy.Redactor
	fullText bool
	now      func() time.Time
}

func newArchiveRecorder(db *store.Store, cfg config.ArchiveConfig) (*archiveRecorder, error) {
	redactor, err := privacy.New(cfg.Redact)
	if err != nil {
		return nil, err
	}
	return &archiveRecorder{
		db:       db,
		redactor: redactor,
		fullText: cfg.StoreFullText,
		now:      time.Now,
	}, nil
}

func (a *archiveRecorder) Record(ctx context.Context, rec sweep.Record) error {
	text := a.redactor.Apply(rec.Post.Text)
	if !a.fullText {
		text = privacy.Excerpt(text, privacy.ExcerptRunes)
	}

	return a.db.RecordDeletion(ctx, store.Deletion{
		RunID:     a.runID,
		PostID:    rec.Post.ID,
		Kind:      string(rec.Post.Kind),
		PostedAt:  rec.Post.CreatedAt,
		DeletedAt: a.now(),
		AgeDays:   classify.Days(rec.Age),
		Text:      text,
		DryRun:    rec.DryRun,
	})
}
