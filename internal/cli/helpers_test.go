package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/postsweep/internal/config"
	"github.com/ppiankov/postsweep/internal/source"
	"github.com/spf13/cobra"
)

const twitterTestConfig = `
source: twitter
twitter:
  consumer_key: ck
  consumer_secret: cs
  access_token: at
  access_token_secret: as
`

// useTestConfig writes config.yaml into a temp dir and points --config at it.
func useTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	oldConfigPath := configPath
	oldLogLevel := logLevel
	t.Cleanup(func() {
		configPath = oldConfigPath
		logLevel = oldLogLevel
	})
	configPath = path
	logLevel = ""
	return dir
}

// stubSource serves one page of posts and remembers what it deleted.
type stubSource struct {
	posts     []source.Post
	authErr   error
	deleteErr error
	failID    string // when set, only this post fails with deleteErr
	deleted   []string
	query     source.Query
}

func (s *stubSource) Name() string     { return "twitter" }
func (s *stubSource) MaxPageSize() int { return 200 }

func (s *stubSource) Authenticate(context.Context) (source.Session, error) {
	if s.authErr != nil {
		return source.Session{}, s.authErr
	}
	return source.Session{AccountID: "42", Handle: "@tester"}, nil
}

func (s *stubSource) FirstPage(_ context.Context, _ source.Session, q source.Query) (source.Page, error) {
	s.query = q
	if len(s.posts) == 0 {
		return source.Page{}, nil
	}
	return source.Page{Posts: s.posts, Next: "next"}, nil
}

func (s *stubSource) NextPage(context.Context, source.Session, source.Query, source.Cursor) (source.Page, error) {
	return source.Page{}, nil
}

func (s *stubSource) Delete(_ context.Context, _ source.Session, p source.Post) error {
	if s.deleteErr != nil && (s.failID == "" || s.failID == p.ID) {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, p.ID)
	return nil
}

func useStubSource(t *testing.T, stub *stubSource) {
	t.Helper()
	old := newSource
	t.Cleanup(func() { newSource = old })
	newSource = func(*config.Config) (source.Source, error) { return stub, nil }
}

func postDaysOld(id string, days int, text string) source.Post {
	return source.Post{
		ID:        id,
		CreatedAt: time.Now().Add(-time.Duration(days) * 24 * time.Hour),
		Text:      text,
		Kind:      source.KindPost,
	}
}

func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

// newTestRunCmd builds a run command bound to the package flag vars and
// parses args into it.
func newTestRunCmd(t *testing.T, args ...string) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	oldDryRun, oldMaxAge, oldSource := runDryRun, runMaxAge, runSource
	t.Cleanup(func() {
		runDryRun, runMaxAge, runSource = oldDryRun, oldMaxAge, oldSource
	})

	cmd := &cobra.Command{}
	cmd.Flags().BoolVar(&runDryRun, "dry-run", false, "")
	cmd.Flags().IntVar(&runMaxAge, "max-age", config.DefaultMaxPostAge, "")
	cmd.Flags().StringVar(&runSource, "source", "", "")
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	var stderr bytes.Buffer
	cmd.SetErr(&stderr)
	cmd.SetContext(context.Background())
	return cmd, &stderr
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("open stdout pipe: %v", err)
	}

	os.Stdout = writer
	runErr := fn()
	_ = writer.Close()
	os.Stdout = oldStdout

	out, readErr := io.ReadAll(reader)
	_ = reader.Close()
	if readErr != nil {
		t.Fatalf("read stdout pipe: %v", readErr)
	}
	return string(out), runErr
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()

	if !strings.Contains(got, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, got)
	}
}
