package qdrant

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

// do sends one JSON request and returns the final HTTP status, if any,
// alongside the error so callers can treat 404 and 409 specially.
func (c *Client) do(ctx context.Context, method, path string, payload any, out any, operation string) (int, error) {
	var body []byte
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = raw
	}

	status := 0
	err := c.executor.Execute(ctx, "qdrant."+operation, func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant %s request: %w", operation, err)
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		if resp.StatusCode >= 300 {
			return resilience.NewStatusError("qdrant", operation, resp)
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
	return status, resilience.WrapExternal("qdrant "+operation, err)
}
