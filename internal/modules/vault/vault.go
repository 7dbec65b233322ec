package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/casevine/core/internal/config"
)

// RankedChunk is one scored passage returned by the evidence retrieval service.
type RankedChunk struct {
	DocumentID   string  `json:"documentId"`
	DocumentName string  `json:"documentName"`
	DocumentType string  `json:"documentType"`
	ChunkIndex   int     `json:"chunkIndex"`
	Text         string  `json:"text"`
	Score        float64 `json:"score"`
}

// Searcher is the evidence retrieval capability the agents consume.
// Implementations must return an empty slice, not an error, when the
// corpus has no indexed documents.
type Searcher interface {
	Search(ctx context.Context, corpusRef, query string, documentIDs []string, topK int) ([]RankedChunk, error)
}

// Client talks to the external chunk-search service over HTTP.
type Client struct {
	endpoint   string
	apiKey     string
	topK       int
	httpClient *http.Client
}

func NewClient(cfg config.VaultConfig) *Client {
	return &Client{
		endpoint:   strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		topK:       cfg.TopK,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

type searchRequest struct {
	Query       string   `json:"query"`
	CorpusRef   string   `json:"corpus_ref"`
	DocumentIDs []string `json:"document_ids,omitempty"`
	TopK        int      `json:"top_k"`
}

type searchResponse struct {
	Chunks []RankedChunk `json:"chunks"`
	Error  string        `json:"error,omitempty"`
}

// Search runs a ranked-passage query scoped to one client's corpus.
func (c *Client) Search(ctx context.Context, corpusRef, query string, documentIDs []string, topK int) ([]RankedChunk, error) {
	if c.endpoint == "" {
		return []RankedChunk{}, nil
	}
	if topK <= 0 {
		topK = c.topK
	}

	body, err := json.Marshal(searchRequest{
		Query:       query,
		CorpusRef:   corpusRef,
		DocumentIDs: documentIDs,
		TopK:        topK,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("vault search failed: %s", strings.TrimSpace(string(respBody)))
	}

	var result searchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, fmt.Errorf("vault search failed: %s", result.Error)
	}
	if result.Chunks == nil {
		return []RankedChunk{}, nil
	}
	return result.Chunks, nil
}

// FormatChunks renders ranked chunks as the textual tool result the
// research loop feeds back to the model.
func FormatChunks(chunks []RankedChunk) string {
	if len(chunks) == 0 {
		return "No matching passages found in the evidence vault."
	}
	var sb strings.Builder
	for i, ch := range chunks {
		fmt.Fprintf(&sb, "[%d] %s (chunk %d, score %.2f)\n%s\n", i+1, ch.DocumentName, ch.ChunkIndex, ch.Score, strings.TrimSpace(ch.Text))
		if i < len(chunks)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
