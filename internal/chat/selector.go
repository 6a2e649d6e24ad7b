package chat

import (
	"context"
	"fmt"
	"strings"

	"hrchat/internal/filestore"
	"hrchat/internal/models"
)

// Grounding context sources. A reply is grounded by at most one of them;
// SourceNone means the model answered without grounding.
const (
	SourceFiles  = "files"
	SourceSearch = "search"
	SourceNone   = "none"
)

// Searcher is the external retrieval collaborator.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]models.SearchDocument, error)
	Enabled() bool
	Ping(ctx context.Context) error
}

// Context is the grounding text selected for one chat turn.
type Context struct {
	Text     string
	Source   string
	DocCount int
}

// Selector decides where a turn's grounding context comes from. Sessions that
// own uploaded files are answered from those files only; everything else goes
// through the external search service. The two sources never blend.
type Selector struct {
	files       *filestore.Store
	searcher    Searcher
	tokenBudget int
	topK        int
	maxSnippets int
}

// NewSelector wires a selector over the file store and search collaborator.
func NewSelector(files *filestore.Store, searcher Searcher, tokenBudget, topK, maxSnippets int) *Selector {
	if tokenBudget <= 0 {
		tokenBudget = 2000
	}
	if topK <= 0 {
		topK = 15
	}
	if maxSnippets <= 0 {
		maxSnippets = 3
	}
	return &Selector{
		files:       files,
		searcher:    searcher,
		tokenBudget: tokenBudget,
		topK:        topK,
		maxSnippets: maxSnippets,
	}
}

// Select assembles the grounding context for a turn.
func (s *Selector) Select(ctx context.Context, sessionID, query string) (Context, error) {
	if files := s.files.Content(sessionID); len(files) > 0 {
		return s.fromFiles(files), nil
	}
	return s.fromSearch(ctx, query)
}

// fromFiles concatenates uploaded documents oldest first under the token
// budget, truncating the tail deterministically.
func (s *Selector) fromFiles(files []*models.UploadedFile) Context {
	var sb strings.Builder
	remaining := s.tokenBudget
	used := 0
	for i, f := range files {
		if remaining <= 0 {
			break
		}
		header := fmt.Sprintf("Document %d (%s):\n", i+1, f.Name)
		body := truncateTokens(f.Content, remaining)
		if strings.TrimSpace(body) == "" {
			break
		}
		sb.WriteString(header)
		sb.WriteString(body)
		sb.WriteString("\n\n")
		remaining -= countTokens(body)
		used++
	}
	return Context{
		Text:     strings.TrimSpace(sb.String()),
		Source:   SourceFiles,
		DocCount: used,
	}
}

func (s *Selector) fromSearch(ctx context.Context, query string) (Context, error) {
	if !s.searcher.Enabled() {
		return Context{Source: SourceNone}, nil
	}
	docs, err := s.searcher.Search(ctx, query, s.topK)
	if err != nil {
		return Context{}, fmt.Errorf("search: %w", err)
	}

	var sb strings.Builder
	used := 0
	for _, doc := range docs {
		if used >= s.maxSnippets {
			break
		}
		content := strings.TrimSpace(doc.Content)
		if content == "" {
			continue
		}
		fmt.Fprintf(&sb, "Document %d:\n%s\n\n", used+1, content)
		used++
	}
	return Context{
		Text:     strings.TrimSpace(sb.String()),
		Source:   SourceSearch,
		DocCount: used,
	}, nil
}
