package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/arcafs/arca/pkg/api/handlers"
	"github.com/arcafs/arca/pkg/auth"
	"github.com/arcafs/arca/pkg/engine"
	"github.com/arcafs/arca/pkg/storage"
	"github.com/arcafs/arca/pkg/storage/memory"
	"github.com/arcafs/arca/pkg/store"
)

// newTestEngine wires an engine over a throwaway SQLite catalog and one
// in-memory backend, with a default location ready for buckets. A nil
// oracle selects the permissive default.
func newTestEngine(t *testing.T, oracle auth.Oracle) *engine.Engine {
	t.Helper()

	catalog, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "catalog.db")},
	})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { _ = catalog.Close() })

	backends := storage.NewFactory()
	backends.Add("mem", memory.New())

	cfg := engine.DefaultConfig()
	cfg.ChunkSizeMin = 4

	eng, err := engine.New(engine.Services{Store: catalog, Backends: backends, Oracle: oracle}, cfg)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	if _, err := eng.CreateLocation(context.Background(), "main", "mem://blobs", "mem", true); err != nil {
		t.Fatalf("CreateLocation: %v", err)
	}
	return eng
}

// newTestServer serves the router over httptest, filling in an engine when
// the options carry none.
func newTestServer(t *testing.T, cfg Config, opts Options) *httptest.Server {
	t.Helper()
	if opts.Engine == nil {
		opts.Engine = newTestEngine(t, nil)
	}
	if opts.Version == "" {
		opts.Version = "test"
	}
	ts := httptest.NewServer(NewRouter(cfg, opts))
	t.Cleanup(ts.Close)
	return ts
}

// decodeBody decodes a JSON response body and closes it.
func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// createBucket creates a bucket through the API and returns its ID.
func createBucket(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(ts.URL+"/files", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /files: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /files: status %d", resp.StatusCode)
	}
	var bucket handlers.BucketResponse
	decodeBody(t, resp, &bucket)
	if bucket.ID == "" {
		t.Fatal("bucket response carries no id")
	}
	return bucket.ID
}

// do issues a request with optional body and bearer token.
func do(t *testing.T, method, url, token string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func TestRouter_HealthEndpoints(t *testing.T) {
	ts := newTestServer(t, Config{}, Options{})

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("liveness status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var live struct {
		Status string `json:"status"`
		Data   struct {
			Service string `json:"service"`
		} `json:"data"`
	}
	decodeBody(t, resp, &live)
	if live.Status != "healthy" || live.Data.Service != "arca" {
		t.Errorf("liveness body = %+v", live)
	}

	resp, err = http.Get(ts.URL + "/healthz/ready")
	if err != nil {
		t.Fatalf("GET /healthz/ready: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readiness status = %d, want 200", resp.StatusCode)
	}
	var ready struct {
		Status string `json:"status"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
	}
	decodeBody(t, resp, &ready)
	if ready.Status != "healthy" {
		t.Errorf("readiness = %+v", ready)
	}
	names := make(map[string]string, len(ready.Checks))
	for _, c := range ready.Checks {
		names[c.Name] = c.Status
	}
	if names["catalog"] != "healthy" || names["backend:mem"] != "healthy" {
		t.Errorf("checks = %v", names)
	}
}

func TestRouter_RootRedirectsToHealth(t *testing.T) {
	ts := newTestServer(t, Config{}, Options{})

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if loc := resp.Header.Get("Location"); loc != "/healthz" {
		t.Errorf("Location = %q, want /healthz", loc)
	}
}

func TestRouter_ObjectRoundtrip(t *testing.T) {
	ts := newTestServer(t, Config{}, Options{})
	bucketID := createBucket(t, ts)
	objectURL := ts.URL + "/files/" + bucketID + "/docs/hello.txt"

	// Upload.
	req, err := http.NewRequest(http.MethodPut, objectURL, strings.NewReader("hello\n"))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200", resp.StatusCode)
	}
	var uploaded handlers.ObjectResponse
	decodeBody(t, resp, &uploaded)
	if uploaded.Checksum != "md5:b1946ac92492d2347c6235b4d2611184" {
		t.Errorf("checksum = %q", uploaded.Checksum)
	}
	if uploaded.Size != 6 || !uploaded.IsHead || uploaded.VersionID == "" {
		t.Errorf("uploaded = %+v", uploaded)
	}
	firstVersion := uploaded.VersionID

	// Download with headers.
	resp = do(t, http.MethodGet, objectURL, "", nil)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "hello\n" {
		t.Fatalf("GET = %d %q", resp.StatusCode, body)
	}
	if etag := resp.Header.Get("ETag"); etag != `"md5:b1946ac92492d2347c6235b4d2611184"` {
		t.Errorf("ETag = %q", etag)
	}
	if md5 := resp.Header.Get("Content-MD5"); md5 != "b1946ac92492d2347c6235b4d2611184" {
		t.Errorf("Content-MD5 = %q", md5)
	}
	if ar := resp.Header.Get("Accept-Ranges"); ar != "bytes" {
		t.Errorf("Accept-Ranges = %q", ar)
	}

	// Range request.
	req, _ = http.NewRequest(http.MethodGet, objectURL, nil)
	req.Header.Set("Range", "bytes=0-4")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("ranged GET: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent || string(body) != "hello" {
		t.Fatalf("ranged GET = %d %q", resp.StatusCode, body)
	}
	if cr := resp.Header.Get("Content-Range"); cr != "bytes 0-4/6" {
		t.Errorf("Content-Range = %q", cr)
	}

	// Conditional request.
	req, _ = http.NewRequest(http.MethodGet, objectURL, nil)
	req.Header.Set("If-None-Match", `"md5:b1946ac92492d2347c6235b4d2611184"`)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("conditional GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotModified {
		t.Errorf("conditional GET = %d, want 304", resp.StatusCode)
	}

	// Metadata probe.
	resp = do(t, http.MethodHead, objectURL, "", nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("HEAD = %d", resp.StatusCode)
	}
	if cl := resp.Header.Get("Content-Length"); cl != "6" {
		t.Errorf("HEAD Content-Length = %q", cl)
	}

	// Delete hides the key behind a marker; the old version stays
	// addressable.
	resp = do(t, http.MethodDelete, objectURL, "", nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE = %d", resp.StatusCode)
	}
	resp = do(t, http.MethodGet, objectURL, "", nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET after delete = %d, want 404", resp.StatusCode)
	}
	resp = do(t, http.MethodGet, objectURL+"?versionId="+firstVersion, "", nil)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "hello\n" {
		t.Errorf("GET version = %d %q", resp.StatusCode, body)
	}

	// Permanent version removal.
	resp = do(t, http.MethodDelete, objectURL+"?versionId="+firstVersion, "", nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE version = %d", resp.StatusCode)
	}
	resp = do(t, http.MethodGet, objectURL+"?versionId="+firstVersion, "", nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET removed version = %d, want 404", resp.StatusCode)
	}
}

func TestRouter_MultipartFlow(t *testing.T) {
	ts := newTestServer(t, Config{}, Options{})
	bucketID := createBucket(t, ts)
	objectURL := ts.URL + "/files/" + bucketID + "/big.bin"

	// Initiate.
	resp := do(t, http.MethodPost, objectURL+"?uploads&size=11&partSize=4", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("initiate = %d", resp.StatusCode)
	}
	var upload handlers.MultipartResponse
	decodeBody(t, resp, &upload)
	if upload.ID == "" || upload.PartSize != 4 || upload.Size != 11 {
		t.Fatalf("upload = %+v", upload)
	}

	// Upload the first part.
	partURL := fmt.Sprintf("%s?uploadId=%s&partNumber=0", objectURL, upload.ID)
	resp = do(t, http.MethodPut, partURL, "", bytes.NewReader([]byte("AAAA")))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload part = %d", resp.StatusCode)
	}
	var part handlers.PartResponse
	decodeBody(t, resp, &part)
	if part.PartNumber != 0 {
		t.Errorf("part = %+v", part)
	}

	// List parts.
	resp = do(t, http.MethodGet, objectURL+"?uploadId="+upload.ID, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list parts = %d", resp.StatusCode)
	}
	var listing handlers.PartListingResponse
	decodeBody(t, resp, &listing)
	if len(listing.Parts) != 1 {
		t.Errorf("parts = %+v", listing.Parts)
	}

	// The upload is only reachable through its own bucket and key.
	wrongURL := ts.URL + "/files/" + bucketID + "/other.bin?uploadId=" + upload.ID
	resp = do(t, http.MethodGet, wrongURL, "", nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("wrong key = %d, want 404", resp.StatusCode)
	}

	// Abort, then the bucket lists no uploads.
	resp = do(t, http.MethodDelete, objectURL+"?uploadId="+upload.ID, "", nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("abort = %d", resp.StatusCode)
	}
	resp = do(t, http.MethodGet, ts.URL+"/files/"+bucketID+"?uploads", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list uploads = %d", resp.StatusCode)
	}
	var uploads []handlers.MultipartResponse
	decodeBody(t, resp, &uploads)
	if len(uploads) != 0 {
		t.Errorf("uploads = %+v", uploads)
	}
}

func TestRouter_AuthDisabled(t *testing.T) {
	ts := newTestServer(t, Config{}, Options{})

	// Without configured users the token endpoints do not exist.
	resp, err := http.Post(ts.URL+"/auth/login", "application/json",
		strings.NewReader(`{"username":"alice","password":"wonder"}`))
	if err != nil {
		t.Fatalf("POST /auth/login: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("login status = %d, want 404", resp.StatusCode)
	}
}

func TestRouter_AuthFlow(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("wonder"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	users, err := auth.NewUsers([]auth.User{
		{Username: "alice", PasswordHash: string(hash), Role: auth.RoleReader},
		{Username: "bob", PasswordHash: string(hash), Role: auth.RoleAdmin},
	})
	if err != nil {
		t.Fatalf("NewUsers: %v", err)
	}
	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret: "test-secret-key-for-testing-only-32chars",
	})
	if err != nil {
		t.Fatalf("NewJWTService: %v", err)
	}

	eng := newTestEngine(t, auth.RoleOracle{})
	ts := newTestServer(t, Config{}, Options{
		Engine:     eng,
		Users:      users,
		JWTService: jwtService,
	})

	login := func(username, password string) (*http.Response, handlers.LoginResponse) {
		body := fmt.Sprintf(`{"username":%q,"password":%q}`, username, password)
		resp, err := http.Post(ts.URL+"/auth/login", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		var tokens handlers.LoginResponse
		if resp.StatusCode == http.StatusOK {
			decodeBody(t, resp, &tokens)
		} else {
			_ = resp.Body.Close()
		}
		return resp, tokens
	}

	// Bad credentials are rejected.
	resp, _ := login("alice", "nope")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login = %d, want 401", resp.StatusCode)
	}

	resp, alice := login("alice", "wonder")
	if resp.StatusCode != http.StatusOK || alice.AccessToken == "" || alice.RefreshToken == "" {
		t.Fatalf("login = %d, tokens = %+v", resp.StatusCode, alice)
	}
	_, bob := login("bob", "wonder")

	bucketResp := do(t, http.MethodPost, ts.URL+"/files", bob.AccessToken, nil)
	if bucketResp.StatusCode != http.StatusOK {
		t.Fatalf("admin create bucket = %d", bucketResp.StatusCode)
	}
	var bucket handlers.BucketResponse
	decodeBody(t, bucketResp, &bucket)

	// A reader can list but not write.
	resp = do(t, http.MethodGet, ts.URL+"/files", alice.AccessToken, nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("reader list = %d, want 200", resp.StatusCode)
	}
	resp = do(t, http.MethodPut, ts.URL+"/files/"+bucket.ID+"/x.txt", alice.AccessToken,
		strings.NewReader("denied"))
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("reader write = %d, want 403", resp.StatusCode)
	}

	// Anonymous writes are told to authenticate.
	resp = do(t, http.MethodPut, ts.URL+"/files/"+bucket.ID+"/x.txt", "",
		strings.NewReader("denied"))
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous write = %d, want 401", resp.StatusCode)
	}

	// A broken token is rejected outright.
	resp = do(t, http.MethodGet, ts.URL+"/files", "not-a-token", nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("broken token = %d, want 401", resp.StatusCode)
	}

	// Refresh issues a fresh pair.
	refreshBody := fmt.Sprintf(`{"refresh_token":%q}`, alice.RefreshToken)
	resp, err = http.Post(ts.URL+"/auth/refresh", "application/json", strings.NewReader(refreshBody))
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh = %d, want 200", resp.StatusCode)
	}
	var refreshed handlers.LoginResponse
	decodeBody(t, resp, &refreshed)
	if refreshed.AccessToken == "" {
		t.Error("refresh returned no access token")
	}
}

func TestRouter_HideDeniedMasksErrors(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("wonder"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	users, err := auth.NewUsers([]auth.User{
		{Username: "alice", PasswordHash: string(hash), Role: auth.RoleReader},
	})
	if err != nil {
		t.Fatalf("NewUsers: %v", err)
	}
	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret: "test-secret-key-for-testing-only-32chars",
	})
	if err != nil {
		t.Fatalf("NewJWTService: %v", err)
	}

	ts := newTestServer(t, Config{}, Options{
		Engine:     newTestEngine(t, auth.RoleOracle{}),
		Users:      users,
		JWTService: jwtService,
		HideDenied: true,
	})

	// Denials look exactly like absence.
	resp := do(t, http.MethodPut, ts.URL+"/files/some-bucket/x.txt", "", strings.NewReader("x"))
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("masked denial = %d, want 404", resp.StatusCode)
	}
}

func TestRouter_BasePathOverride(t *testing.T) {
	ts := newTestServer(t, Config{BasePath: "/objects"}, Options{})

	resp, err := http.Post(ts.URL+"/objects", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /objects: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("POST /objects = %d, want 200", resp.StatusCode)
	}
	var bucket handlers.BucketResponse
	decodeBody(t, resp, &bucket)
	if !strings.Contains(bucket.Links.Self, "/objects/"+bucket.ID) {
		t.Errorf("self link = %q", bucket.Links.Self)
	}

	resp, err = http.Post(ts.URL+"/files", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /files: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("POST /files = %d, want 404", resp.StatusCode)
	}
}

func TestRouter_MetricsMount(t *testing.T) {
	ts := newTestServer(t, Config{}, Options{})
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unmounted /metrics = %d, want 404", resp.StatusCode)
	}

	stub := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	ts = newTestServer(t, Config{}, Options{MetricsHandler: stub})
	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("mounted /metrics = %d %q", resp.StatusCode, body)
	}
}

func TestServer_Lifecycle(t *testing.T) {
	eng := newTestEngine(t, nil)
	server := NewServer(Config{Host: "127.0.0.1", Port: 18090}, Options{Engine: eng, Version: "test"})

	ctx, cancel := context.WithCancel(context.Background())

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(ctx)
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:18090/healthz")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	// Shutdown
	cancel()

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Expected nil on graceful shutdown, got: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not shutdown in time")
	}
}

func TestServer_Defaults(t *testing.T) {
	eng := newTestEngine(t, nil)
	server := NewServer(Config{}, Options{Engine: eng})

	if server.Addr() != ":8080" {
		t.Errorf("Addr = %q, want :8080", server.Addr())
	}
}
