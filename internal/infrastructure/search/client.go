// Package search talks to the Elasticsearch cluster the auth service depends on.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/samber/oops"
)

// Client wraps the Elasticsearch client with the calls made at startup.
type Client struct {
	es     *elasticsearch.Client
	logger *slog.Logger
}

// NewClient builds a client for the given node URL. transport may be nil.
func NewClient(url string, transport http.RoundTripper, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
		Transport: transport,
	})
	if err != nil {
		return nil, oops.Code("search_client").With("url", url).Wrap(err)
	}
	return &Client{es: es, logger: logger}, nil
}

// Health returns the cluster health status (green, yellow or red).
func (c *Client) Health(ctx context.Context) (string, error) {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.IsError() {
		return "", fmt.Errorf("cluster health: %s", res.Status())
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode cluster health: %w", err)
	}
	return body.Status, nil
}

// EnsureIndex creates and refreshes the index when it does not exist yet.
// Errors are logged, not returned.
func (c *Client) EnsureIndex(ctx context.Context, name string) {
	exists, err := c.indexExists(ctx, name)
	if err != nil {
		c.logger.Error("check index failed", "index", name, "error", err)
		return
	}
	if exists {
		c.logger.Info("index already exists", "index", name)
		return
	}

	res, err := c.es.Indices.Create(name, c.es.Indices.Create.WithContext(ctx))
	if err != nil {
		c.logger.Error("create index failed", "index", name, "error", err)
		return
	}
	res.Body.Close()
	if res.IsError() {
		c.logger.Error("create index failed", "index", name, "status", res.Status())
		return
	}

	res, err = c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithIndex(name),
		c.es.Indices.Refresh.WithContext(ctx),
	)
	if err != nil {
		c.logger.Error("refresh index failed", "index", name, "error", err)
		return
	}
	res.Body.Close()
	if res.IsError() {
		c.logger.Error("refresh index failed", "index", name, "status", res.Status())
		return
	}
	c.logger.Info("index created", "index", name)
}

func (c *Client) indexExists(ctx context.Context, name string) (bool, error) {
	res, err := c.es.Indices.Exists([]string{name}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, err
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("index exists: %s", res.Status())
	}
}
