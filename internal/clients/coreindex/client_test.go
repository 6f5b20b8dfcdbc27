package coreindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/qavanin/ingest-backend/internal/logger"
)

func newTestClient(t *testing.T, handler http.Handler) (Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(logger.NewNop(), Config{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, srv
}

func TestSyncEmbeddingsSendsBatchAndAPIKey(t *testing.T) {
	var gotPath, gotKey string
	var gotReq syncRequest
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(SyncResponse{NodeIDs: []string{"n1", "n2"}, Synced: 2})
	}))

	resp, err := c.SyncEmbeddings(context.Background(), []EmbeddingPayload{
		{EmbeddingID: "e1", ChunkID: "c1", Text: "alpha"},
		{EmbeddingID: "e2", ChunkID: "c2", Text: "beta"},
	}, SyncTypeNew)
	if err != nil {
		t.Fatalf("SyncEmbeddings: %v", err)
	}
	if gotPath != "/api/v1/sync/embeddings" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("X-API-Key = %q", gotKey)
	}
	if gotReq.SyncType != SyncTypeNew || len(gotReq.Embeddings) != 2 {
		t.Fatalf("request = %+v", gotReq)
	}
	if len(resp.NodeIDs) != 2 {
		t.Fatalf("node ids = %v", resp.NodeIDs)
	}
}

func TestSyncEmbeddingsEmptyBatchSkipsHTTP(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty batch")
	}))
	resp, err := c.SyncEmbeddings(context.Background(), nil, SyncTypeNew)
	if err != nil {
		t.Fatalf("SyncEmbeddings: %v", err)
	}
	if len(resp.NodeIDs) != 0 {
		t.Fatalf("node ids = %v", resp.NodeIDs)
	}
}

func TestSyncEmbeddingsServerError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index unavailable", http.StatusBadGateway)
	}))
	_, err := c.SyncEmbeddings(context.Background(), []EmbeddingPayload{{EmbeddingID: "e1"}}, SyncTypeNew)
	if err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestGetNodeExistence(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/sync/node/present" {
			json.NewEncoder(w).Encode(Node{NodeID: "present"})
			return
		}
		http.NotFound(w, r)
	}))

	node, exists, err := c.GetNode(context.Background(), "present")
	if err != nil || !exists {
		t.Fatalf("GetNode(present) = %v, %v, %v", node, exists, err)
	}
	if node.NodeID != "present" {
		t.Fatalf("node = %+v", node)
	}

	_, exists, err = c.GetNode(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetNode(missing): %v", err)
	}
	if exists {
		t.Fatal("missing node reported as existing")
	}
}

func TestDeleteNodeTreats404AsSuccess(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		http.NotFound(w, r)
	}))
	if err := c.DeleteNode(context.Background(), "gone-already"); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}
}

func TestDeleteNodeServerError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	if err := c.DeleteNode(context.Background(), "n1"); err == nil {
		t.Fatal("expected error on 500")
	}
}
