//go:build e2e

package e2e

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcafs/arca/pkg/api/handlers"
)

// TestObjectLifecycle walks one object through create, upload, download,
// logical delete and version retrieval.
func TestObjectLifecycle(t *testing.T) {
	runOnCatalogs(t, func(t *testing.T, s *Stack) {
		bucket := s.createBucket(t)

		obj := s.putObject(t, bucket.ID, "hello.txt", "hello\n")
		assert.Equal(t, int64(6), obj.Size)
		assert.Equal(t, "md5:b1946ac92492d2347c6235b4d2611184", obj.Checksum)
		assert.True(t, obj.IsHead)
		require.NotEmpty(t, obj.VersionID)

		resp := s.getObject(t, bucket.ID, "hello.txt")
		body := readBody(t, resp)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "hello\n", string(body))
		assert.Equal(t, `"md5:b1946ac92492d2347c6235b4d2611184"`, resp.Header.Get("ETag"))
		assert.Equal(t, "b1946ac92492d2347c6235b4d2611184", resp.Header.Get("Content-MD5"))
		assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))

		// Logical delete hides the key behind a marker.
		resp = s.do(t, http.MethodDelete, "/files/"+bucket.ID+"/hello.txt", nil, nil)
		readBody(t, resp)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp = s.getObject(t, bucket.ID, "hello.txt")
		readBody(t, resp)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		// The old version stays addressable by id.
		resp = s.getObject(t, bucket.ID, "hello.txt?versionId="+obj.VersionID)
		body = readBody(t, resp)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "hello\n", string(body))
	})
}

// TestVersionHistory uploads two versions of one key and checks head
// demotion, the history listing and the accumulated bucket size.
func TestVersionHistory(t *testing.T) {
	runOnCatalogs(t, func(t *testing.T, s *Stack) {
		bucket := s.createBucket(t)

		v1 := s.putObject(t, bucket.ID, "k", "a")
		// Keep the version timestamps strictly ordered.
		time.Sleep(20 * time.Millisecond)
		v2 := s.putObject(t, bucket.ID, "k", "bb")
		require.NotEqual(t, v1.VersionID, v2.VersionID)

		resp := s.do(t, http.MethodGet, "/files/"+bucket.ID+"?versions", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var listing handlers.BucketListingResponse
		decodeJSON(t, resp, &listing)

		require.Len(t, listing.Contents, 2)
		assert.Equal(t, v2.VersionID, listing.Contents[0].VersionID, "newest version listed first")
		assert.True(t, listing.Contents[0].IsHead)
		assert.Equal(t, v1.VersionID, listing.Contents[1].VersionID)
		assert.False(t, listing.Contents[1].IsHead, "old head demoted")

		assert.Equal(t, int64(3), listing.Size, "bucket size accumulates both versions")

		// The head serves the latest content.
		resp = s.getObject(t, bucket.ID, "k")
		body := readBody(t, resp)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "bb", string(body))
	})
}

// TestBucketQuota fills a bucket to its quota and checks that the next
// upload is rejected without changing state.
func TestBucketQuota(t *testing.T) {
	runOnCatalogs(t, func(t *testing.T, s *Stack) {
		bucket := s.createBucket(t)

		quota := int64(4)
		require.NoError(t, s.Engine.UpdateBucketLimits(context.Background(), bucket.ID, &quota, nil))

		s.putObject(t, bucket.ID, "first", "xxx")

		// Two more bytes would exceed the 4-byte quota.
		resp := s.do(t, http.MethodPut, "/files/"+bucket.ID+"/second", nil, strings.NewReader("yy"))
		body := readBody(t, resp)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, string(body), "quota")

		// The rejected upload reserved nothing.
		resp = s.do(t, http.MethodGet, "/files/"+bucket.ID, nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var listing handlers.BucketListingResponse
		decodeJSON(t, resp, &listing)
		assert.Equal(t, int64(3), listing.Size)
		require.Len(t, listing.Contents, 1)
		assert.Equal(t, "first", listing.Contents[0].Key)

		// Exactly filling the quota still works.
		s.putObject(t, bucket.ID, "second", "y")
	})
}
