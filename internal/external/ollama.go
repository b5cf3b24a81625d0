package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaEmbedder calls an Ollama server's /api/embed endpoint.
type OllamaEmbedder struct {
	host   string
	model  string
	dims   int
	client *http.Client
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// NewOllamaEmbedder returns a client for host and model. dims may be 0, in
// which case it is learned from the first response.
func NewOllamaEmbedder(host, model string, dims int) *OllamaEmbedder {
	return &OllamaEmbedder{
		host:  strings.TrimRight(host, "/"),
		model: model,
		dims:  dims,
		// Timeouts come from the caller's context.
		client: &http.Client{Transport: &http.Transport{
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		}},
	}
}

func (o *OllamaEmbedder) ModelName() string { return o.model }
func (o *OllamaEmbedder) Dimensions() int   { return o.dims }

func (o *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama embed: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding ollama response: %w", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(parsed.Embeddings), len(texts))
	}
	out := make([][]float32, len(parsed.Embeddings))
	for i, emb := range parsed.Embeddings {
		if o.dims == 0 {
			o.dims = len(emb)
		}
		if len(emb) != o.dims {
			return nil, fmt.Errorf("ollama embedding %d has %d dimensions, want %d", i, len(emb), o.dims)
		}
		v := make([]float32, len(emb))
		for j, x := range emb {
			v[j] = float32(x)
		}
		out[i] = Normalize(v)
	}
	return out, nil
}
