package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"hrchat/internal/filestore"
	"hrchat/internal/models"
)

// stubSearcher records calls and serves canned documents.
type stubSearcher struct {
	t       *testing.T
	enabled bool
	docs    []models.SearchDocument
	err     error
	pingErr error
	calls   int
	forbid  bool
}

func (s *stubSearcher) Search(_ context.Context, _ string, _ int) ([]models.SearchDocument, error) {
	s.calls++
	if s.forbid {
		s.t.Fatalf("search must not be called when the session has files")
	}
	return s.docs, s.err
}

func (s *stubSearcher) Enabled() bool { return s.enabled }

func (s *stubSearcher) Ping(_ context.Context) error { return s.pingErr }

func newTestStore(t *testing.T) *filestore.Store {
	t.Helper()
	return filestore.NewStore(10<<20, 0, nil)
}

func TestSelectPrefersFilesAndSkipsSearch(t *testing.T) {
	files := newTestStore(t)
	if _, err := files.Store("s1", "report.pdf", 1024, "quarterly results"); err != nil {
		t.Fatalf("store: %v", err)
	}
	searcher := &stubSearcher{t: t, enabled: true, forbid: true}
	sel := NewSelector(files, searcher, 2000, 15, 3)

	ctx, err := sel.Select(context.Background(), "s1", "what were the results?")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if ctx.Source != SourceFiles {
		t.Fatalf("source = %q, want %q", ctx.Source, SourceFiles)
	}
	if ctx.DocCount != 1 {
		t.Fatalf("doc count = %d, want 1", ctx.DocCount)
	}
	if !strings.Contains(ctx.Text, "quarterly results") {
		t.Fatalf("context missing file content: %q", ctx.Text)
	}
	if !strings.Contains(ctx.Text, "report.pdf") {
		t.Fatalf("context missing document header: %q", ctx.Text)
	}
}

func TestSelectFallsBackToSearch(t *testing.T) {
	files := newTestStore(t)
	searcher := &stubSearcher{t: t, enabled: true, docs: []models.SearchDocument{
		{Title: "Handbook", Content: "vacation policy text", Score: 2.1},
		{Title: "Benefits", Content: "benefits overview", Score: 1.4},
	}}
	sel := NewSelector(files, searcher, 2000, 15, 3)

	ctx, err := sel.Select(context.Background(), "no-files", "vacation days?")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if searcher.calls != 1 {
		t.Fatalf("search calls = %d, want 1", searcher.calls)
	}
	if ctx.Source != SourceSearch {
		t.Fatalf("source = %q, want %q", ctx.Source, SourceSearch)
	}
	if ctx.DocCount != 2 {
		t.Fatalf("doc count = %d, want 2", ctx.DocCount)
	}
	if !strings.Contains(ctx.Text, "vacation policy text") {
		t.Fatalf("context missing snippet: %q", ctx.Text)
	}
}

func TestSelectSearchCapsSnippets(t *testing.T) {
	files := newTestStore(t)
	docs := make([]models.SearchDocument, 7)
	for i := range docs {
		docs[i] = models.SearchDocument{Content: "snippet", Score: float64(10 - i)}
	}
	searcher := &stubSearcher{t: t, enabled: true, docs: docs}
	sel := NewSelector(files, searcher, 2000, 15, 3)

	ctx, err := sel.Select(context.Background(), "s", "q")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if ctx.DocCount != 3 {
		t.Fatalf("doc count = %d, want 3", ctx.DocCount)
	}
}

func TestSelectSearchDisabled(t *testing.T) {
	files := newTestStore(t)
	searcher := &stubSearcher{t: t, enabled: false}
	sel := NewSelector(files, searcher, 2000, 15, 3)

	ctx, err := sel.Select(context.Background(), "s", "q")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if searcher.calls != 0 {
		t.Fatalf("disabled searcher was called %d times", searcher.calls)
	}
	if ctx.Source != SourceNone || ctx.Text != "" || ctx.DocCount != 0 {
		t.Fatalf("unexpected context for disabled search: %+v", ctx)
	}
}

func TestSelectSearchErrorPropagates(t *testing.T) {
	files := newTestStore(t)
	searcher := &stubSearcher{t: t, enabled: true, err: errors.New("boom")}
	sel := NewSelector(files, searcher, 2000, 15, 3)

	if _, err := sel.Select(context.Background(), "s", "q"); err == nil {
		t.Fatalf("expected search error to propagate")
	}
}

func TestSelectFilesRespectTokenBudget(t *testing.T) {
	files := newTestStore(t)
	long := strings.Repeat("alpha beta gamma delta ", 500)
	if _, err := files.Store("s1", "big.pdf", 1024, long); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := files.Store("s1", "tail.pdf", 1024, "tail content"); err != nil {
		t.Fatalf("store: %v", err)
	}
	sel := NewSelector(files, &stubSearcher{t: t, forbid: true}, 100, 15, 3)

	ctx, err := sel.Select(context.Background(), "s1", "q")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got := countTokens(ctx.Text); got > 150 {
		t.Fatalf("context tokens = %d, exceeds budget too far", got)
	}
	if strings.Contains(ctx.Text, "tail content") {
		t.Fatalf("second file should not fit after the budget is spent")
	}
}

func TestTruncateTokens(t *testing.T) {
	text := strings.Repeat("word ", 100)
	cut := truncateTokens(text, 10)
	if countTokens(cut) > 10 {
		t.Fatalf("truncated text still %d tokens", countTokens(cut))
	}
	if truncateTokens("short", 100) != "short" {
		t.Fatalf("text under budget must pass through unchanged")
	}
	if truncateTokens("anything", 0) != "" {
		t.Fatalf("zero budget must yield empty text")
	}
}
