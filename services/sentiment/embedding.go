package sentiment

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"lse_trading_system/models"

	"github.com/go-resty/resty/v2"
)

// Embedder turns free text into fixed-dimension vectors. When no endpoint is
// configured it falls back to a deterministic local embedding so the
// knowledge log and similarity search keep working offline.
type Embedder struct {
	client *resty.Client
	url    string
	model  string
}

// NewEmbedder creates an embedder. url may be empty; apiKey is optional.
func NewEmbedder(url, apiKey string) *Embedder {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}

	return &Embedder{
		client: client,
		url:    url,
		model:  "text-embedding-3-small",
	}
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns a vector of models.EmbeddingDim dimensions for the text
func (e *Embedder) Embed(text string) ([]float32, error) {
	if e.url == "" {
		return localEmbedding(text), nil
	}

	var result embeddingResponse
	resp, err := e.client.R().
		SetBody(embeddingRequest{Input: text, Model: e.model}).
		SetResult(&result).
		Post(e.url)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("embedding endpoint returned HTTP %d", resp.StatusCode())
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("embedding endpoint returned no data")
	}

	vec := result.Data[0].Embedding
	if len(vec) != models.EmbeddingDim {
		return nil, fmt.Errorf("embedding dimension %d, expected %d", len(vec), models.EmbeddingDim)
	}
	return vec, nil
}

// localEmbedding hashes tokens into a normalized bag-of-words vector.
// Identical text always maps to the identical vector.
func localEmbedding(text string) []float32 {
	vec := make([]float32, models.EmbeddingDim)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%models.EmbeddingDim] += 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}

// CosineSimilarity computes cosine similarity between two vectors of equal
// length. Zero vectors yield zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
