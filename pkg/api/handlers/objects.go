package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/arcafs/arca/pkg/auth"
	"github.com/arcafs/arca/pkg/engine"
	"github.com/arcafs/arca/pkg/models"
)

// GetObject handles GET /files/{bucketID}/{key...}. The bare form downloads
// content; ?uploadId lists the parts of a multipart upload and ?tagging
// returns the head version's tags.
func (h *FilesHandler) GetObject(w http.ResponseWriter, r *http.Request) {
	bucketID := chi.URLParam(r, "bucketID")
	key, err := objectKey(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	logTarget(r, bucketID, key)
	q := r.URL.Query()

	switch {
	case q.Has("uploadId"):
		h.listParts(w, r, bucketID, key, q.Get("uploadId"))
	case q.Has("tagging"):
		h.getObjectTags(w, r, bucketID, key)
	default:
		h.downloadObject(w, r, bucketID, key)
	}
}

// downloadObject streams object content, the head by default or the version
// named by ?versionId.
func (h *FilesHandler) downloadObject(w http.ResponseWriter, r *http.Request, bucketID, key string) {
	q := r.URL.Query()
	versionID := q.Get("versionId")

	action := auth.ActionObjectRead
	if versionID != "" {
		action = auth.ActionObjectReadVersion
	}
	if !h.authorize(w, r, action, auth.Target{Bucket: bucketID, Key: key, VersionID: versionID}) {
		return
	}

	dl, err := h.engine.DownloadObject(r.Context(), bucketID, key, versionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sendObject(w, r, dl, h.opts.Restricted, q.Has("download"))
}

// HeadObject handles HEAD /files/{bucketID}/{key...}: the download headers
// without the body. Delete markers answer 404 like a download would.
func (h *FilesHandler) HeadObject(w http.ResponseWriter, r *http.Request) {
	bucketID := chi.URLParam(r, "bucketID")
	key, err := objectKey(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	logTarget(r, bucketID, key)
	versionID := r.URL.Query().Get("versionId")

	action := auth.ActionObjectRead
	if versionID != "" {
		action = auth.ActionObjectReadVersion
	}
	if !h.authorize(w, r, action, auth.Target{Bucket: bucketID, Key: key, VersionID: versionID}) {
		return
	}

	v, err := h.engine.StatObject(r.Context(), bucketID, key, versionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if v.IsDeleteMarker() || v.File == nil || !v.File.Readable {
		h.fail(w, r, models.ErrObjectNotFound)
		return
	}

	objectHeaders(w, v, v.File, h.opts.Restricted, r.URL.Query().Has("download"))
	w.Header().Set("Content-Length", strconv.FormatInt(v.File.Size, 10))
	w.WriteHeader(http.StatusOK)
}

// PutObject handles PUT /files/{bucketID}/{key...}. The bare form uploads a
// new version in one shot; ?uploadId&partNumber uploads one multipart part
// and ?tagging replaces tags on the head version.
func (h *FilesHandler) PutObject(w http.ResponseWriter, r *http.Request) {
	bucketID := chi.URLParam(r, "bucketID")
	key, err := objectKey(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	logTarget(r, bucketID, key)
	q := r.URL.Query()

	switch {
	case q.Has("uploadId"):
		h.uploadPart(w, r, bucketID, key, q.Get("uploadId"))
	case q.Has("tagging"):
		h.setObjectTags(w, r, bucketID, key)
	default:
		h.uploadObject(w, r, bucketID, key)
	}
}

// uploadObject stores the request body as the new head version of the key.
func (h *FilesHandler) uploadObject(w http.ResponseWriter, r *http.Request, bucketID, key string) {
	if !h.authorize(w, r, auth.ActionBucketUpdate, auth.Target{Bucket: bucketID, Key: key}) {
		return
	}

	version, err := h.engine.UploadObject(r.Context(), bucketID, key, r.Body, engine.UploadOptions{
		ContentLength: r.ContentLength,
		ContentMD5:    r.Header.Get("Content-MD5"),
		Mimetype:      r.Header.Get("Content-Type"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSONOK(w, objectToResponse(version, nil, h.links(r)))
}

// DeleteObject handles DELETE /files/{bucketID}/{key...}. The bare form
// writes a delete marker; ?versionId permanently removes one version,
// ?uploadId aborts a multipart upload and ?tagging clears tags.
func (h *FilesHandler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	bucketID := chi.URLParam(r, "bucketID")
	key, err := objectKey(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	logTarget(r, bucketID, key)
	q := r.URL.Query()

	switch {
	case q.Has("uploadId"):
		h.abortMultipart(w, r, bucketID, key, q.Get("uploadId"))
	case q.Has("tagging"):
		h.deleteObjectTags(w, r, bucketID, key)
	case q.Has("versionId"):
		h.deleteVersion(w, r, bucketID, key, q.Get("versionId"))
	default:
		h.deleteMarker(w, r, bucketID, key)
	}
}

// deleteMarker hides the key behind a new delete marker. Deleting a key
// that has no head succeeds without writing anything.
func (h *FilesHandler) deleteMarker(w http.ResponseWriter, r *http.Request, bucketID, key string) {
	if !h.authorize(w, r, auth.ActionObjectDelete, auth.Target{Bucket: bucketID, Key: key}) {
		return
	}
	if _, err := h.engine.DeleteObject(r.Context(), bucketID, key); err != nil {
		h.fail(w, r, err)
		return
	}
	WriteNoContent(w)
}

// deleteVersion permanently removes one version of the key.
func (h *FilesHandler) deleteVersion(w http.ResponseWriter, r *http.Request, bucketID, key, versionID string) {
	if !h.authorize(w, r, auth.ActionObjectDeleteVersion,
		auth.Target{Bucket: bucketID, Key: key, VersionID: versionID}) {
		return
	}
	if _, err := h.engine.DeleteObjectVersion(r.Context(), bucketID, key, versionID); err != nil {
		h.fail(w, r, err)
		return
	}
	WriteNoContent(w)
}
