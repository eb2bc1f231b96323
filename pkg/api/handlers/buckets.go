package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/arcafs/arca/pkg/auth"
	"github.com/arcafs/arca/pkg/engine"
	"github.com/arcafs/arca/pkg/store"
)

// CreateBucketRequest is the body of POST /files. Both fields are optional;
// the instance defaults apply when omitted.
type CreateBucketRequest struct {
	LocationName string `json:"location_name"`
	StorageClass string `json:"storage_class"`
}

// CreateBucket handles POST /files.
func (h *FilesHandler) CreateBucket(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, auth.ActionLocationUpdate, auth.Target{}) {
		return
	}

	// An empty body means "all defaults".
	var req CreateBucketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	bucket, err := h.engine.CreateBucket(r.Context(), engine.CreateBucketParams{
		LocationName: req.LocationName,
		StorageClass: req.StorageClass,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	logTarget(r, bucket.ID, "")
	WriteJSONOK(w, bucketToResponse(bucket, h.links(r)))
}

// ListBuckets handles GET /files. The listing is filtered to the buckets
// the caller may read, so denied entries are simply absent rather than
// erroring the whole request.
func (h *FilesHandler) ListBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.engine.ListBuckets(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	principal := authPrincipal(r)
	oracle := h.engine.Oracle()
	lb := h.links(r)

	visible := make([]BucketResponse, 0, len(buckets))
	for _, b := range buckets {
		target := auth.Target{Bucket: b.ID}
		if err := oracle.Authorize(r.Context(), principal, auth.ActionBucketRead, target); err != nil {
			continue
		}
		visible = append(visible, bucketToResponse(b, lb))
	}
	WriteJSONOK(w, visible)
}

// HeadBucket handles HEAD /files/{bucketID}.
func (h *FilesHandler) HeadBucket(w http.ResponseWriter, r *http.Request) {
	bucketID := chi.URLParam(r, "bucketID")
	logTarget(r, bucketID, "")

	if !h.authorize(w, r, auth.ActionBucketRead, auth.Target{Bucket: bucketID}) {
		return
	}
	if _, err := h.engine.GetBucket(r.Context(), bucketID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetBucket handles GET /files/{bucketID}. The bare form lists head
// versions; ?versions lists the full history and ?uploads the in-progress
// multipart uploads.
func (h *FilesHandler) GetBucket(w http.ResponseWriter, r *http.Request) {
	bucketID := chi.URLParam(r, "bucketID")
	logTarget(r, bucketID, "")
	q := r.URL.Query()

	switch {
	case q.Has("uploads"):
		h.listUploads(w, r, bucketID)
	case q.Has("versions"):
		h.listBucket(w, r, bucketID, true)
	default:
		h.listBucket(w, r, bucketID, false)
	}
}

// listBucket serves the bucket envelope with its head versions, or with
// every version when withHistory is set.
func (h *FilesHandler) listBucket(w http.ResponseWriter, r *http.Request, bucketID string, withHistory bool) {
	action := auth.ActionBucketRead
	if withHistory {
		action = auth.ActionBucketReadVersions
	}
	if !h.authorize(w, r, action, auth.Target{Bucket: bucketID}) {
		return
	}

	bucket, err := h.engine.GetBucket(r.Context(), bucketID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	opts := listOptions(r)
	list := h.engine.ListObjects
	if withHistory {
		list = h.engine.ListObjectVersions
	}
	versions, err := list(r.Context(), bucketID, opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSONOK(w, bucketListingToResponse(bucket, versions, h.links(r)))
}

// listUploads serves the active multipart uploads of a bucket.
func (h *FilesHandler) listUploads(w http.ResponseWriter, r *http.Request, bucketID string) {
	if !h.authorize(w, r, auth.ActionBucketListMultiparts, auth.Target{Bucket: bucketID}) {
		return
	}

	uploads, err := h.engine.ListMultipartUploads(r.Context(), bucketID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	lb := h.links(r)
	out := make([]MultipartResponse, 0, len(uploads))
	for _, m := range uploads {
		out = append(out, multipartToResponse(m, lb))
	}
	WriteJSONOK(w, out)
}

// DeleteBucket handles DELETE /files/{bucketID}. Deletion is soft: the
// bucket disappears from the API while its rows and blobs await cleanup.
func (h *FilesHandler) DeleteBucket(w http.ResponseWriter, r *http.Request) {
	bucketID := chi.URLParam(r, "bucketID")
	logTarget(r, bucketID, "")

	if !h.authorize(w, r, auth.ActionBucketUpdate, auth.Target{Bucket: bucketID}) {
		return
	}
	if err := h.engine.DeleteBucket(r.Context(), bucketID); err != nil {
		h.fail(w, r, err)
		return
	}
	WriteNoContent(w)
}

// listOptions reads the paging parameters shared by bucket listings.
func listOptions(r *http.Request) store.ListObjectsOptions {
	q := r.URL.Query()
	opts := store.ListObjectsOptions{
		Prefix:            q.Get("prefix"),
		Marker:            q.Get("marker"),
		WithDeleteMarkers: q.Has("withDeleteMarkers"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	return opts
}
