package handlers

import (
	"net/http"

	"github.com/arcafs/arca/pkg/auth"
)

// TagsRequest is the body of PUT /files/{bucket}/{key}?tagging.
type TagsRequest struct {
	Tags map[string]string `json:"tags"`
}

// TagsResponse is the body of GET /files/{bucket}/{key}?tagging.
type TagsResponse struct {
	Tags map[string]string `json:"tags"`
}

// getObjectTags returns the tags on the head version of the key.
func (h *FilesHandler) getObjectTags(w http.ResponseWriter, r *http.Request, bucketID, key string) {
	if !h.authorize(w, r, auth.ActionObjectRead, auth.Target{Bucket: bucketID, Key: key}) {
		return
	}

	tags, err := h.engine.GetObjectTags(r.Context(), bucketID, key)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	m := objectTagsToMap(tags)
	if m == nil {
		m = map[string]string{}
	}
	WriteJSONOK(w, TagsResponse{Tags: m})
}

// setObjectTags merges the submitted tags into the head version of the key.
func (h *FilesHandler) setObjectTags(w http.ResponseWriter, r *http.Request, bucketID, key string) {
	if !h.authorize(w, r, auth.ActionBucketUpdate, auth.Target{Bucket: bucketID, Key: key}) {
		return
	}

	var req TagsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if len(req.Tags) == 0 {
		BadRequest(w, "tags are required")
		return
	}

	if err := h.engine.SetObjectTags(r.Context(), bucketID, key, req.Tags); err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSONOK(w, TagsResponse{Tags: req.Tags})
}

// deleteObjectTags removes tags from the head version of the key: the ones
// named by ?key parameters, or every tag when none are named.
func (h *FilesHandler) deleteObjectTags(w http.ResponseWriter, r *http.Request, bucketID, key string) {
	if !h.authorize(w, r, auth.ActionBucketUpdate, auth.Target{Bucket: bucketID, Key: key}) {
		return
	}

	keys := r.URL.Query()["key"]
	if len(keys) == 0 {
		tags, err := h.engine.GetObjectTags(r.Context(), bucketID, key)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		for _, t := range tags {
			keys = append(keys, t.Key)
		}
	}

	// Called even with nothing to remove so lock and existence checks
	// still apply.
	if err := h.engine.DeleteObjectTags(r.Context(), bucketID, key, keys); err != nil {
		h.fail(w, r, err)
		return
	}
	WriteNoContent(w)
}
