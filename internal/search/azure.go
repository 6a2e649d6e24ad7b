// Package search talks to Azure AI Search over its REST API. Retrieval and
// ranking stay entirely on the service side; results come back in the
// service's own score order.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"hrchat/internal/config"
	"hrchat/internal/models"
)

// Field candidates mirror the index layouts seen in the wild; the first
// non-empty candidate wins.
var (
	contentFieldCandidates = []string{"content", "content_text", "chunk", "text", "body", "page_content"}
	titleFieldCandidates   = []string{"title", "document_title", "name", "heading"}
)

// Client queries one Azure AI Search index.
type Client struct {
	endpoint   string
	key        string
	index      string
	apiVersion string
	topK       int
	http       *http.Client
}

// NewClient builds a client from config. A client missing endpoint, key or
// index reports Enabled() == false and returns empty results.
func NewClient(cfg config.SearchConfig) *Client {
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "2024-07-01"
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 15
	}
	return &Client{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		key:        cfg.Key,
		index:      cfg.Index,
		apiVersion: apiVersion,
		topK:       topK,
		http:       &http.Client{Timeout: 15 * time.Second},
	}
}

// Enabled reports whether the client is fully configured.
func (c *Client) Enabled() bool {
	return c.endpoint != "" && c.key != "" && c.index != ""
}

type searchRequest struct {
	Search string `json:"search"`
	Top    int    `json:"top"`
}

type searchResponse struct {
	Value []map[string]any `json:"value"`
}

// Search runs a text query and returns up to topK score-ranked documents.
// Zero results is not an error.
func (c *Client) Search(ctx context.Context, query string, topK int) ([]models.SearchDocument, error) {
	if !c.Enabled() {
		return nil, nil
	}
	if topK <= 0 {
		topK = c.topK
	}

	body, err := json.Marshal(searchRequest{Search: query, Top: topK})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}
	url := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s", c.endpoint, c.index, c.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.key)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	docs := make([]models.SearchDocument, 0, len(parsed.Value))
	for _, raw := range parsed.Value {
		content := chooseField(raw, contentFieldCandidates)
		if content == "" {
			continue
		}
		doc := models.SearchDocument{
			Title:   chooseField(raw, titleFieldCandidates),
			Content: content,
		}
		if score, ok := raw["@search.score"].(float64); ok {
			doc.Score = score
		}
		if id, ok := raw["id"].(string); ok {
			doc.ID = id
		}
		docs = append(docs, doc)
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })
	return docs, nil
}

// Ping verifies the index answers at all by issuing a one-document query.
func (c *Client) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return fmt.Errorf("search not configured")
	}
	_, err := c.Search(ctx, "*", 1)
	return err
}

func chooseField(doc map[string]any, candidates []string) string {
	for _, field := range candidates {
		if v, ok := doc[field].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
