package pinecone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
	"github.com/kirillkom/rag-pipeline/internal/core/ports"
	"github.com/kirillkom/rag-pipeline/internal/infrastructure/resilience"
)

const (
	DefaultControlPlaneURL = "https://api.pinecone.io"
	apiVersion             = "2025-04"
)

var searchFields = []string{"chunk_text", "source", "pages"}

type Config struct {
	APIKey          string
	IndexName       string
	Namespace       string
	Cloud           string
	Region          string
	EmbedModel      string
	RerankModel     string
	ControlPlaneURL string
	// DataPlaneScheme is prepended to the host returned by describe; tests use http.
	DataPlaneScheme string
	ReadyPoll       time.Duration
	HTTPTimeout     time.Duration
}

// Client is a VectorIndex over a Pinecone index with integrated embedding
// and hosted reranking.
type Client struct {
	cfg        Config
	httpClient *http.Client
	executor   *resilience.Executor

	mu   sync.Mutex
	host string
}

func New(cfg Config, executor *resilience.Executor) *Client {
	if cfg.ControlPlaneURL == "" {
		cfg.ControlPlaneURL = DefaultControlPlaneURL
	}
	cfg.ControlPlaneURL = strings.TrimRight(cfg.ControlPlaneURL, "/")
	if cfg.DataPlaneScheme == "" {
		cfg.DataPlaneScheme = "https"
	}
	if cfg.ReadyPoll <= 0 {
		cfg.ReadyPoll = time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 60 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		executor:   executor,
	}
}

type indexDescription struct {
	Name   string `json:"name"`
	Host   string `json:"host"`
	Status struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

type searchResponse struct {
	Result struct {
		Hits []struct {
			ID     string         `json:"_id"`
			Score  float64        `json:"_score"`
			Fields map[string]any `json:"fields"`
		} `json:"hits"`
	} `json:"result"`
}

func (c *Client) HasIndex(ctx context.Context) (bool, error) {
	_, found, err := c.describe(ctx)
	return found, err
}

// EnsureIndex creates the index with integrated embedding when it is missing
// and blocks until it reports ready.
func (c *Client) EnsureIndex(ctx context.Context) error {
	_, found, err := c.describe(ctx)
	if err != nil {
		return err
	}
	if !found {
		slog.Info("pinecone_index_create", "index", c.cfg.IndexName, "embed_model", c.cfg.EmbedModel)
		body := map[string]any{
			"name":   c.cfg.IndexName,
			"cloud":  c.cfg.Cloud,
			"region": c.cfg.Region,
			"embed": map[string]any{
				"model":     c.cfg.EmbedModel,
				"field_map": map[string]string{"text": "chunk_text"},
			},
		}
		status, err := c.doJSON(ctx, http.MethodPost, c.cfg.ControlPlaneURL+"/indexes/create-for-model", body, nil, "create index")
		if err != nil && status != http.StatusConflict {
			return err
		}
	}

	for {
		desc, found, err := c.describe(ctx)
		if err != nil {
			return err
		}
		if found && desc.Status.Ready && desc.Host != "" {
			c.setHost(desc.Host)
			slog.Info("pinecone_index_ready", "index", c.cfg.IndexName, "host", desc.Host)
			return nil
		}

		timer := time.NewTimer(c.cfg.ReadyPoll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.WrapError(domain.ErrIndexNotReady, "ensure index", ctx.Err())
		case <-timer.C:
		}
	}
}

func (c *Client) Search(ctx context.Context, req ports.SearchRequest) ([]domain.Hit, error) {
	body := map[string]any{
		"query": map[string]any{
			"top_k":  req.TopK,
			"inputs": map[string]string{"text": req.Query},
		},
		"fields": searchFields,
	}
	return c.search(ctx, body, "search")
}

func (c *Client) SearchWithRerank(ctx context.Context, req ports.RerankRequest) ([]domain.Hit, error) {
	body := map[string]any{
		"query": map[string]any{
			"top_k":  req.TopK,
			"inputs": map[string]string{"text": req.Query},
		},
		"rerank": map[string]any{
			"model":       c.cfg.RerankModel,
			"top_n":       req.TopN,
			"rank_fields": []string{"chunk_text"},
		},
		"fields": searchFields,
	}
	return c.search(ctx, body, "rerank")
}

func (c *Client) SourceExists(ctx context.Context, source string) (bool, error) {
	found, err := c.HasIndex(ctx)
	if err != nil || !found {
		return false, err
	}

	body := map[string]any{
		"query": map[string]any{
			"top_k":  1,
			"inputs": map[string]string{"text": source},
			"filter": map[string]any{"source": map[string]string{"$eq": source}},
		},
		"fields": []string{"source"},
	}
	hits, err := c.search(ctx, body, "source lookup")
	if err != nil {
		return false, err
	}
	for _, hit := range hits {
		if hit.Source == source {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) Upsert(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	host, err := c.resolveHost(ctx)
	if err != nil {
		return err
	}

	lines := make([]any, 0, len(records))
	for _, record := range records {
		lines = append(lines, map[string]string{
			"_id":        record.ID,
			"chunk_text": record.ChunkText,
			"source":     record.Source,
			"pages":      record.Pages,
		})
	}

	url := c.dataPlaneURL(host, "/upsert")
	_, err = c.doNDJSON(ctx, url, lines, "upsert")
	return err
}

func (c *Client) search(ctx context.Context, body map[string]any, operation string) ([]domain.Hit, error) {
	host, err := c.resolveHost(ctx)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if _, err := c.doJSON(ctx, http.MethodPost, c.dataPlaneURL(host, "/search"), body, &resp, operation); err != nil {
		return nil, err
	}

	hits := make([]domain.Hit, 0, len(resp.Result.Hits))
	for _, item := range resp.Result.Hits {
		hits = append(hits, domain.Hit{
			ID:        item.ID,
			Score:     item.Score,
			ChunkText: stringField(item.Fields, "chunk_text"),
			Source:    stringField(item.Fields, "source"),
			Pages:     stringField(item.Fields, "pages"),
		})
	}
	return hits, nil
}

func (c *Client) describe(ctx context.Context) (*indexDescription, bool, error) {
	var desc indexDescription
	status, err := c.doJSON(ctx, http.MethodGet, c.cfg.ControlPlaneURL+"/indexes/"+c.cfg.IndexName, nil, &desc, "describe index")
	if status == http.StatusNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &desc, true, nil
}

func (c *Client) resolveHost(ctx context.Context) (string, error) {
	c.mu.Lock()
	host := c.host
	c.mu.Unlock()
	if host != "" {
		return host, nil
	}

	desc, found, err := c.describe(ctx)
	if err != nil {
		return "", err
	}
	if !found {
		return "", domain.WrapError(domain.ErrIndexUnavailable, "resolve index host", fmt.Errorf("index %q does not exist", c.cfg.IndexName))
	}
	if !desc.Status.Ready || desc.Host == "" {
		return "", domain.WrapError(domain.ErrIndexNotReady, "resolve index host", fmt.Errorf("index %q state %q", c.cfg.IndexName, desc.Status.State))
	}
	c.setHost(desc.Host)
	return desc.Host, nil
}

func (c *Client) setHost(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.host = host
}

func (c *Client) dataPlaneURL(host, action string) string {
	host = strings.TrimRight(host, "/")
	if !strings.Contains(host, "://") {
		host = c.cfg.DataPlaneScheme + "://" + host
	}
	return host + "/records/namespaces/" + c.cfg.Namespace + action
}

func (c *Client) credential() error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return domain.WrapError(domain.ErrMissingCredential, "pinecone", errors.New("PINECONE_API_KEY is not set"))
	}
	return nil
}

func stringField(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
