package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/forgewright/enginecore/pkg/enginerr"
)

// HTTPBackend is a Backend talking to an OpenAI-style or HF-style
// embeddings endpoint over HTTP (spec.md §6.2 "Embeddings").
type HTTPBackend struct {
	client *http.Client
}

// NewHTTPBackend constructs an HTTPBackend. A nil client defaults to
// http.DefaultClient.
func NewHTTPBackend(client *http.Client) *HTTPBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPBackend{client: client}
}

type openAIEmbedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openAIEmbedDatum struct {
	Embedding []float32 `json:"embedding"`
	Index     *int      `json:"index,omitempty"`
}

type openAIEmbedResponse struct {
	Data []openAIEmbedDatum `json:"data"`
}

// CreateEmbeddings implements Backend. The OpenAI style posts
// {input[], model} and reads back {data:[{embedding, index?}]}, tolerating
// a missing index by trusting response order (spec.md §6.2). The HF
// style is request-shape compatible for embeddings and reuses the same
// decode path.
func (b *HTTPBackend) CreateEmbeddings(ctx context.Context, style Style, model, endpoint, apiKey string, texts []string) ([][]float32, error) {
	body, err := json.Marshal(openAIEmbedRequest{Input: texts, Model: model})
	if err != nil {
		return nil, enginerr.Internal("marshaling embeddings request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, enginerr.Internal("building embeddings request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, enginerr.Upstream("embeddings request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, &StatusError{StatusCode: resp.StatusCode, Err: fmt.Errorf("embeddings endpoint throttled")}
	}
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, Err: fmt.Errorf("embeddings endpoint returned %d: %s", resp.StatusCode, detail)}
	}

	var parsed openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, enginerr.Upstream("decoding embeddings response", err)
	}

	out := make([][]float32, len(texts))
	for i, d := range parsed.Data {
		idx := i
		if d.Index != nil {
			idx = *d.Index
		}
		if idx < 0 || idx >= len(out) {
			continue
		}
		out[idx] = d.Embedding
	}
	return out, nil
}
