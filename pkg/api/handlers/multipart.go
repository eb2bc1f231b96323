package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/arcafs/arca/pkg/auth"
	"github.com/arcafs/arca/pkg/models"
)

// PostObject handles POST /files/{bucketID}/{key...}: ?uploads initiates a
// multipart upload, ?uploadId completes one.
func (h *FilesHandler) PostObject(w http.ResponseWriter, r *http.Request) {
	bucketID := chi.URLParam(r, "bucketID")
	key, err := objectKey(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	logTarget(r, bucketID, key)
	q := r.URL.Query()

	switch {
	case q.Has("uploads"):
		h.initiateMultipart(w, r, bucketID, key)
	case q.Has("uploadId"):
		h.completeMultipart(w, r, bucketID, key, q.Get("uploadId"))
	default:
		BadRequest(w, "either uploads or uploadId parameter is required")
	}
}

// initiateMultipart starts a chunked upload of ?size bytes cut into
// ?partSize pieces.
func (h *FilesHandler) initiateMultipart(w http.ResponseWriter, r *http.Request, bucketID, key string) {
	if !h.authorize(w, r, auth.ActionBucketUpdate, auth.Target{Bucket: bucketID, Key: key}) {
		return
	}

	q := r.URL.Query()
	size, err := strconv.ParseInt(q.Get("size"), 10, 64)
	if err != nil {
		BadRequest(w, "invalid size parameter")
		return
	}
	partSize, err := strconv.ParseInt(q.Get("partSize"), 10, 64)
	if err != nil {
		BadRequest(w, "invalid partSize parameter")
		return
	}

	upload, err := h.engine.InitiateMultipart(r.Context(), bucketID, key, size, partSize)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSONOK(w, multipartToResponse(upload, h.links(r)))
}

// resolveUpload loads an upload and checks it belongs to the addressed
// bucket and key; an upload reached through the wrong path is treated as
// absent.
func (h *FilesHandler) resolveUpload(w http.ResponseWriter, r *http.Request, bucketID, key, uploadID string) (*models.MultipartObject, bool) {
	m, err := h.engine.GetMultipartUpload(r.Context(), uploadID)
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	if m.BucketID != bucketID || m.Key != key {
		h.fail(w, r, models.ErrUploadNotFound)
		return nil, false
	}
	return m, true
}

// uploadPart stores the request body as part ?partNumber of an upload.
func (h *FilesHandler) uploadPart(w http.ResponseWriter, r *http.Request, bucketID, key, uploadID string) {
	if !h.authorize(w, r, auth.ActionBucketUpdate,
		auth.Target{Bucket: bucketID, Key: key, UploadID: uploadID}) {
		return
	}
	if _, ok := h.resolveUpload(w, r, bucketID, key, uploadID); !ok {
		return
	}

	raw := r.URL.Query().Get("partNumber")
	partNumber, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: partNumber %q", models.ErrMultipartInvalidPartNumber, raw))
		return
	}

	part, err := h.engine.UploadPart(r.Context(), uploadID, partNumber, r.Body, r.ContentLength)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSONOK(w, partToResponse(part))
}

// listParts serves the upload envelope with its parts. ?partNumberMarker
// resumes after a part number and ?maxParts bounds the page.
func (h *FilesHandler) listParts(w http.ResponseWriter, r *http.Request, bucketID, key, uploadID string) {
	if !h.authorize(w, r, auth.ActionMultipartRead,
		auth.Target{Bucket: bucketID, Key: key, UploadID: uploadID}) {
		return
	}
	m, ok := h.resolveUpload(w, r, bucketID, key, uploadID)
	if !ok {
		return
	}

	q := r.URL.Query()
	limit := 0
	if v := q.Get("maxParts"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	marker := int64(-1)
	if v := q.Get("partNumberMarker"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			marker = n
		}
	}

	parts, err := h.engine.ListParts(r.Context(), uploadID, limit, marker)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSONOK(w, partListingToResponse(m, parts, h.links(r)))
}

// completeMultipart seals the upload. Assembly happens in a queued merge
// task; the new head version appears when the merge lands.
func (h *FilesHandler) completeMultipart(w http.ResponseWriter, r *http.Request, bucketID, key, uploadID string) {
	if !h.authorize(w, r, auth.ActionBucketUpdate,
		auth.Target{Bucket: bucketID, Key: key, UploadID: uploadID}) {
		return
	}
	if _, ok := h.resolveUpload(w, r, bucketID, key, uploadID); !ok {
		return
	}

	upload, err := h.engine.CompleteMultipart(r.Context(), uploadID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSONOK(w, multipartToResponse(upload, h.links(r)))
}

// abortMultipart discards the upload and its staged parts.
func (h *FilesHandler) abortMultipart(w http.ResponseWriter, r *http.Request, bucketID, key, uploadID string) {
	if !h.authorize(w, r, auth.ActionMultipartDelete,
		auth.Target{Bucket: bucketID, Key: key, UploadID: uploadID}) {
		return
	}
	if _, ok := h.resolveUpload(w, r, bucketID, key, uploadID); !ok {
		return
	}

	if err := h.engine.AbortMultipart(r.Context(), uploadID); err != nil {
		h.fail(w, r, err)
		return
	}
	WriteNoContent(w)
}
