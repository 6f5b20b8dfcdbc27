// Package coreindex is the HTTP client for the Core vector index, the
// external system of record for searchable chunk nodes. The ingest database
// remains authoritative; Core only ever receives what we push.
package coreindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/qavanin/ingest-backend/internal/logger"
)

// Sync type hints sent alongside a batch so Core can route inserts and
// metadata refreshes differently.
const (
	SyncTypeNew      = "new"
	SyncTypeMetadata = "metadata_update"
)

type Client interface {
	SyncEmbeddings(ctx context.Context, payloads []EmbeddingPayload, syncType string) (*SyncResponse, error)
	GetNode(ctx context.Context, nodeID string) (*Node, bool, error)
	DeleteNode(ctx context.Context, nodeID string) error
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type client struct {
	log  *logger.Logger
	cfg  Config
	http *http.Client
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("missing Core base URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &client{
		log:  log.With("client", "CoreIndexClient"),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// EmbeddingPayload is one chunk node as Core expects it: vector plus the
// flattened unit/document metadata used for filtering on the search side.
type EmbeddingPayload struct {
	EmbeddingID string         `json:"embedding_id"`
	ChunkID     string         `json:"chunk_id"`
	Text        string         `json:"text"`
	Vector      []float32      `json:"vector,omitempty"`
	ModelID     string         `json:"model_id"`
	Metadata    map[string]any `json:"metadata"`
}

type syncRequest struct {
	Embeddings []EmbeddingPayload `json:"embeddings"`
	SyncType   string             `json:"sync_type"`
}

type SyncResponse struct {
	NodeIDs []string `json:"node_ids"`
	Synced  int      `json:"synced"`
}

func (c *client) SyncEmbeddings(ctx context.Context, payloads []EmbeddingPayload, syncType string) (*SyncResponse, error) {
	if len(payloads) == 0 {
		return &SyncResponse{}, nil
	}
	if strings.TrimSpace(syncType) == "" {
		syncType = SyncTypeNew
	}
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/v1/sync/embeddings"
	return doJSON[SyncResponse](c, ctx, "POST", u, syncRequest{Embeddings: payloads, SyncType: syncType})
}

type Node struct {
	NodeID   string         `json:"node_id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// GetNode reports whether the node exists in Core. A 404 is a normal answer,
// not an error.
func (c *client) GetNode(ctx context.Context, nodeID string) (*Node, bool, error) {
	nodeID = strings.TrimSpace(nodeID)
	if nodeID == "" {
		return nil, false, fmt.Errorf("nodeID required")
	}

	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/v1/sync/node/" + nodeID
	req, err := http.NewRequestWithContext(defaultCtx(ctx), "GET", u, nil)
	if err != nil {
		return nil, false, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("core get_node http %d: %s", resp.StatusCode, string(raw))
	}

	var out Node
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, fmt.Errorf("core get_node decode: %w", err)
	}
	return &out, true, nil
}

// DeleteNode removes a node from Core. A 404 counts as success since the
// desired end state (node absent) already holds.
func (c *client) DeleteNode(ctx context.Context, nodeID string) error {
	nodeID = strings.TrimSpace(nodeID)
	if nodeID == "" {
		return fmt.Errorf("nodeID required")
	}

	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/v1/sync/node/" + nodeID
	req, err := http.NewRequestWithContext(defaultCtx(ctx), "DELETE", u, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("core delete_node http %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}

// -------------------- helpers --------------------

func (c *client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}
}

func doJSON[T any](c *client, ctx context.Context, method, url string, body any) (*T, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(defaultCtx(ctx), method, url, &buf)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("core http %d: %s", resp.StatusCode, string(raw))
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("core decode error: %w; raw=%s", err, string(raw))
	}
	return &out, nil
}

func defaultCtx(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
