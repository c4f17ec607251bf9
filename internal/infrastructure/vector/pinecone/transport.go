package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/kirillkom/rag-pipeline/internal/infrastructure/resilience"
)

func (c *Client) doJSON(ctx context.Context, method, url string, payload any, out any, operation string) (int, error) {
	var body []byte
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = raw
	}
	return c.send(ctx, method, url, body, "application/json", out, operation)
}

// doNDJSON writes one JSON document per line, the format of the records upsert endpoint.
func (c *Client) doNDJSON(ctx context.Context, url string, lines []any, operation string) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, line := range lines {
		if err := enc.Encode(line); err != nil {
			return 0, fmt.Errorf("marshal %s line: %w", operation, err)
		}
	}
	return c.send(ctx, http.MethodPost, url, buf.Bytes(), "application/x-ndjson", nil, operation)
}

func (c *Client) send(ctx context.Context, method, url string, body []byte, contentType string, out any, operation string) (int, error) {
	if err := c.credential(); err != nil {
		return 0, err
	}

	status := 0
	err := c.executor.Execute(ctx, "pinecone."+operation, func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Api-Key", c.cfg.APIKey)
		req.Header.Set("X-Pinecone-API-Version", apiVersion)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("pinecone %s request: %w", operation, err)
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		if resp.StatusCode >= 300 {
			return resilience.NewStatusError("pinecone", operation, resp)
		}
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	}, resilience.ClassifyHTTPError)

	var statusErr *resilience.StatusError
	if errors.As(err, &statusErr) {
		status = statusErr.StatusCode
	}
	return status, resilience.WrapExternal("pinecone "+operation, err)
}
