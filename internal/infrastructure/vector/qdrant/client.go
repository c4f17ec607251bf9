package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
	"github.com/kirillkom/rag-pipeline/internal/core/ports"
	"github.com/kirillkom/rag-pipeline/internal/infrastructure/resilience"
)

// Reranker narrows and reorders candidates locally.
type Reranker interface {
	Rerank(query string, candidates []domain.Hit, topN int) []domain.Hit
}

// Client is a VectorIndex over a Qdrant collection. Qdrant stores vectors
// only, so embedding happens here through an Embedder and reranking through
// a local Reranker.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	embedder   ports.Embedder
	reranker   Reranker
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, embedder ports.Embedder, reranker Reranker, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		embedder:   embedder,
		reranker:   reranker,
		executor:   executor,
	}
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) HasIndex(ctx context.Context) (bool, error) {
	status, err := c.do(ctx, http.MethodGet, c.collectionPath(), nil, nil, "describe collection")
	if status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) Search(ctx context.Context, req ports.SearchRequest) ([]domain.Hit, error) {
	vector, err := c.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	reqBody := map[string]any{
		"vector":       vector,
		"limit":        req.TopK,
		"with_payload": true,
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if _, err := c.do(ctx, http.MethodPost, c.collectionPath()+"/points/search", reqBody, &searchResp, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.Hit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.Hit{
			ID:        getStringPayload(r.Payload, "record_id"),
			Score:     r.Score,
			ChunkText: getStringPayload(r.Payload, "chunk_text"),
			Source:    getStringPayload(r.Payload, "source"),
			Pages:     getStringPayload(r.Payload, "pages"),
		})
	}
	return out, nil
}

func (c *Client) SearchWithRerank(ctx context.Context, req ports.RerankRequest) ([]domain.Hit, error) {
	candidates, err := c.Search(ctx, ports.SearchRequest{Query: req.Query, TopK: req.TopK})
	if err != nil {
		return nil, err
	}
	return c.reranker.Rerank(req.Query, candidates, req.TopN), nil
}

func (c *Client) Upsert(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	texts := make([]string, len(records))
	for i, record := range records {
		texts[i] = record.ChunkText
	}
	vectors, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed records: %w", err)
	}
	if len(vectors) != len(records) || len(vectors[0]) == 0 {
		return domain.WrapError(domain.ErrExternalService, "qdrant upsert", errors.New("embedder returned unusable vectors"))
	}

	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	points := make([]point, 0, len(records))
	for i, record := range records {
		points = append(points, point{
			ID:     PointID(record.ID),
			Vector: vectors[i],
			Payload: map[string]any{
				"record_id":  record.ID,
				"chunk_text": record.ChunkText,
				"source":     record.Source,
				"pages":      record.Pages,
			},
		})
	}

	_, err = c.do(ctx, http.MethodPut, c.collectionPath()+"/points?wait=true", map[string]any{"points": points}, nil, "upsert")
	return err
}

func (c *Client) SourceExists(ctx context.Context, source string) (bool, error) {
	reqBody := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{
					"key":   "source",
					"match": map[string]any{"value": source},
				},
			},
		},
		"limit":        1,
		"with_payload": false,
		"with_vector":  false,
	}

	var scrollResp struct {
		Result struct {
			Points []struct {
				ID any `json:"id"`
			} `json:"points"`
		} `json:"result"`
	}
	status, err := c.do(ctx, http.MethodPost, c.collectionPath()+"/points/scroll", reqBody, &scrollResp, "scroll")
	if status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(scrollResp.Result.Points) > 0, nil
}

// PointID derives a stable UUID from a record id; Qdrant only accepts
// integers or UUIDs as point ids.
func PointID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(recordID)).String()
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}

	status, err := c.do(ctx, http.MethodPut, c.collectionPath(), reqBody, nil, "ensure collection")
	// 409 when the collection already exists.
	if status == http.StatusConflict {
		c.markCollectionEnsured(vectorSize)
		return nil
	}
	if err != nil {
		return err
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func (c *Client) collectionPath() string {
	return "/collections/" + c.collection
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
