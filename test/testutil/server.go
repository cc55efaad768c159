package testutil

import (
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/kumasuke/fakes3/internal/config"
	"github.com/kumasuke/fakes3/internal/server"
	"github.com/kumasuke/fakes3/internal/storage"
)

// TestServer provides an in-process FakeS3 server backed by a temporary directory.
type TestServer struct {
	t         testing.TB
	Endpoint  string
	AccessKey string
	SecretKey string
	DataDir   string

	server  *httptest.Server
	storage *storage.FileSystem
	once    sync.Once
}

// NewTestServer creates and starts a test server on a random port.
// Metrics are enabled so the full handler chain is exercised.
func NewTestServer(t testing.TB) *TestServer {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = t.TempDir()
	// Small chunks so multipart merges and range reads cross chunk boundaries.
	cfg.Storage.MergeChunkSize = 64 << 10
	cfg.Storage.ReadChunkSize = 64 << 10

	handler, store, err := server.NewHandler(cfg)
	if err != nil {
		t.Fatalf("failed to create handler: %v", err)
	}

	srv := httptest.NewServer(handler)

	ts := &TestServer{
		t:         t,
		Endpoint:  srv.URL,
		AccessKey: "fakes3",
		SecretKey: "fakes3",
		DataDir:   cfg.Storage.DataDir,
		server:    srv,
		storage:   store,
	}
	t.Cleanup(ts.Cleanup)

	return ts
}

// Cleanup stops the server. The data directory is removed by the testing framework.
func (ts *TestServer) Cleanup() {
	ts.once.Do(ts.server.Close)
}

// Storage returns the underlying storage for direct testing.
func (ts *TestServer) Storage() *storage.FileSystem {
	return ts.storage
}
