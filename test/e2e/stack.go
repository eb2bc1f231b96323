//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcafs/arca/internal/logger"
	"github.com/arcafs/arca/pkg/api"
	"github.com/arcafs/arca/pkg/api/handlers"
	"github.com/arcafs/arca/pkg/engine"
	"github.com/arcafs/arca/pkg/models"
	"github.com/arcafs/arca/pkg/signals"
	"github.com/arcafs/arca/pkg/storage"
	"github.com/arcafs/arca/pkg/storage/fs"
	"github.com/arcafs/arca/pkg/tasks"
	"github.com/arcafs/arca/pkg/store"
)

var quietLogger sync.Once

// Stack is one fully composed service instance: catalog, filesystem
// backend, durable task queue with a running worker pool, engine and HTTP
// server. Everything lives in temp directories and is torn down with the
// test.
type Stack struct {
	Catalog  *store.GORMStore
	Backends *storage.Factory
	Queue    *tasks.Queue
	Engine   *engine.Engine
	Server   *httptest.Server

	// BlobRoot is the directory the filesystem backend writes blobs
	// under, for tests that inspect or corrupt stored content.
	BlobRoot string
}

// runOnCatalogs runs the test body against a SQLite-backed stack and a
// PostgreSQL-backed one. The PostgreSQL variant needs Docker (or an
// external server via POSTGRES_HOST) and is skipped in short mode.
func runOnCatalogs(t *testing.T, fn func(t *testing.T, s *Stack)) {
	t.Run("sqlite", func(t *testing.T) {
		fn(t, newStack(t, nil))
	})
	t.Run("postgres", func(t *testing.T) {
		if testing.Short() {
			t.Skip("skipping postgres in short mode")
		}
		helper := NewPostgresHelper(t)
		require.NoError(t, helper.TruncateTables())
		fn(t, newStack(t, helper.StoreConfig()))
	})
}

// newStack composes a service instance. A nil database config selects a
// throwaway SQLite catalog.
func newStack(t *testing.T, dbCfg *store.Config) *Stack {
	t.Helper()

	quietLogger.Do(func() {
		logger.InitWithWriter(io.Discard, "error", "text", false)
	})

	base := t.TempDir()

	if dbCfg == nil {
		dbCfg = &store.Config{
			Type:   store.DatabaseTypeSQLite,
			SQLite: store.SQLiteConfig{Path: filepath.Join(base, "catalog.db")},
		}
	}
	catalog, err := store.New(dbCfg)
	require.NoError(t, err, "opening catalog")
	t.Cleanup(func() { _ = catalog.Close() })

	blobRoot := filepath.Join(base, "blobs")
	backend, err := fs.New(fs.DefaultConfig(blobRoot))
	require.NoError(t, err, "creating fs backend")
	backends := storage.NewFactory()
	backends.Add("fs", backend)
	t.Cleanup(func() { _ = backends.Close() })

	queue, err := tasks.OpenQueue(tasks.QueueConfig{
		Path:         filepath.Join(base, "queue"),
		MaxAttempts:  5,
		RetryBackoff: 100 * time.Millisecond,
		MaxBackoff:   time.Second,
		ClaimTimeout: 30 * time.Second,
	})
	require.NoError(t, err, "opening queue")
	t.Cleanup(func() { _ = queue.Close() })

	hub := signals.NewHub()

	cfg := engine.DefaultConfig()
	// The multipart scenarios use single-digit part sizes.
	cfg.ChunkSizeMin = 1

	eng, err := engine.New(engine.Services{
		Store:    catalog,
		Backends: backends,
		Queue:    queue,
		Signals:  hub,
	}, cfg)
	require.NoError(t, err, "creating engine")

	_, err = eng.CreateLocation(context.Background(), "primary", blobRoot, "fs", true)
	require.NoError(t, err, "creating location")

	// The pool runs the queued merge and verification tasks, polled fast
	// enough that tests can wait on their effects.
	maint := tasks.NewMaintenance(catalog, backends, queue, tasks.MaintenanceConfig{}, nil)
	pool := tasks.NewPool(queue, tasks.PoolConfig{
		Workers:      2,
		PollInterval: 20 * time.Millisecond,
		TaskTimeout:  30 * time.Second,
	}, nil)
	maint.Register(pool)
	poolCtx, cancelPool := context.WithCancel(context.Background())
	pool.Start(poolCtx)
	t.Cleanup(func() {
		cancelPool()
		pool.Stop(5 * time.Second)
	})

	server := httptest.NewServer(api.NewRouter(api.Config{}, api.Options{
		Engine:  eng,
		Version: "e2e",
	}))
	t.Cleanup(server.Close)

	return &Stack{
		Catalog:  catalog,
		Backends: backends,
		Queue:    queue,
		Engine:   eng,
		Server:   server,
		BlobRoot: blobRoot,
	}
}

// do issues a request against the stack's server. path starts with a slash.
func (s *Stack) do(t *testing.T, method, path string, header http.Header, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.Server.URL+path, body)
	require.NoError(t, err)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "%s %s", method, path)
	return resp
}

// readBody drains and closes a response body.
func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return data
}

// decodeJSON decodes a JSON response body and closes it.
func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// createBucket creates a bucket with default settings.
func (s *Stack) createBucket(t *testing.T) handlers.BucketResponse {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/files", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "POST /files")
	var bucket handlers.BucketResponse
	decodeJSON(t, resp, &bucket)
	require.NotEmpty(t, bucket.ID)
	return bucket
}

// putObject uploads a one-shot object version.
func (s *Stack) putObject(t *testing.T, bucketID, key, body string) handlers.ObjectResponse {
	t.Helper()
	resp := s.do(t, http.MethodPut, "/files/"+bucketID+"/"+key, nil, strings.NewReader(body))
	require.Equal(t, http.StatusOK, resp.StatusCode, "PUT %s", key)
	var obj handlers.ObjectResponse
	decodeJSON(t, resp, &obj)
	return obj
}

// getObject downloads an object; the query string may carry versionId and
// friends. The response body is left open for the caller.
func (s *Stack) getObject(t *testing.T, bucketID, keyAndQuery string) *http.Response {
	t.Helper()
	return s.do(t, http.MethodGet, "/files/"+bucketID+"/"+keyAndQuery, nil, nil)
}

// headFile resolves the file instance behind the head version of a key,
// straight from the catalog.
func (s *Stack) headFile(t *testing.T, bucketID, key string) *models.FileInstance {
	t.Helper()
	head, err := s.Catalog.GetHeadVersion(context.Background(), bucketID, key)
	require.NoError(t, err, "head of %s", key)
	require.NotNil(t, head.FileID, "head of %s is a delete marker", key)
	file, err := s.Catalog.GetFileInstance(context.Background(), *head.FileID)
	require.NoError(t, err)
	return file
}

// waitForObject polls until a GET of the key returns the wanted body, for
// content that appears asynchronously (multipart merges).
func (s *Stack) waitForObject(t *testing.T, bucketID, key, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp := s.getObject(t, bucketID, key)
		body := readBody(t, resp)
		return resp.StatusCode == http.StatusOK && string(body) == want
	}, 10*time.Second, 50*time.Millisecond, "object %s never materialized", key)
}
