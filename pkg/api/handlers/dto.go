package handlers

import (
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/arcafs/arca/pkg/models"
)

// linkBuilder composes absolute resource URLs for response links. The base
// comes from the configured public URL when set, otherwise from the request
// host, so links survive reverse proxies that rewrite Host.
type linkBuilder struct {
	base     string
	basePath string
}

func newLinkBuilder(publicURL, basePath string, r *http.Request) *linkBuilder {
	base := strings.TrimSuffix(publicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return &linkBuilder{base: base, basePath: basePath}
}

// bucketURL returns the absolute URL of a bucket resource.
func (lb *linkBuilder) bucketURL(bucketID string) string {
	u := url.URL{Path: path.Join(lb.basePath, bucketID)}
	return lb.base + u.EscapedPath()
}

// objectURL returns the absolute URL of an object resource. Keys may
// contain slashes; those stay path separators while other reserved
// characters are escaped.
func (lb *linkBuilder) objectURL(bucketID, key string) string {
	u := url.URL{Path: path.Join(lb.basePath, bucketID, key)}
	return lb.base + u.EscapedPath()
}

// BucketLinks are the navigation links attached to a bucket.
type BucketLinks struct {
	Self     string `json:"self"`
	Versions string `json:"versions"`
	Uploads  string `json:"uploads"`
}

// BucketResponse is the JSON shape of a bucket.
type BucketResponse struct {
	ID          string      `json:"id"`
	Size        int64       `json:"size"`
	QuotaSize   *int64      `json:"quota_size"`
	MaxFileSize *int64      `json:"max_file_size"`
	Locked      bool        `json:"locked"`
	Created     time.Time   `json:"created"`
	Updated     time.Time   `json:"updated"`
	Links       BucketLinks `json:"links"`
}

func bucketToResponse(b *models.Bucket, lb *linkBuilder) BucketResponse {
	self := lb.bucketURL(b.ID)
	return BucketResponse{
		ID:          b.ID,
		Size:        b.Size,
		QuotaSize:   b.QuotaSize,
		MaxFileSize: b.MaxFileSize,
		Locked:      b.Locked,
		Created:     b.CreatedAt.UTC(),
		Updated:     b.UpdatedAt.UTC(),
		Links: BucketLinks{
			Self:     self,
			Versions: self + "?versions",
			Uploads:  self + "?uploads",
		},
	}
}

// ObjectLinks are the navigation links attached to an object version. The
// uploads link appears only on live heads, where initiating a multipart
// upload makes sense.
type ObjectLinks struct {
	Self    string `json:"self"`
	Version string `json:"version"`
	Uploads string `json:"uploads,omitempty"`
}

// ObjectResponse is the JSON shape of one object version. Size and checksum
// come from the underlying file instance and stay zero-valued on delete
// markers.
type ObjectResponse struct {
	Key          string            `json:"key"`
	VersionID    string            `json:"version_id"`
	IsHead       bool              `json:"is_head"`
	Mimetype     string            `json:"mimetype,omitempty"`
	Size         int64             `json:"size"`
	Checksum     string            `json:"checksum,omitempty"`
	DeleteMarker bool              `json:"delete_marker"`
	Tags         map[string]string `json:"tags,omitempty"`
	Created      time.Time         `json:"created"`
	Updated      time.Time         `json:"updated"`
	Links        ObjectLinks       `json:"links"`
}

func objectToResponse(v *models.ObjectVersion, tags map[string]string, lb *linkBuilder) ObjectResponse {
	objectURL := lb.objectURL(v.BucketID, v.Key)
	versionURL := objectURL + "?versionId=" + url.QueryEscape(v.VersionID)
	marker := v.IsDeleteMarker()

	links := ObjectLinks{Self: objectURL, Version: versionURL}
	if !v.IsHead || marker {
		links.Self = versionURL
	}
	if v.IsHead && !marker {
		links.Uploads = objectURL + "?uploads"
	}

	resp := ObjectResponse{
		Key:          v.Key,
		VersionID:    v.VersionID,
		IsHead:       v.IsHead,
		Mimetype:     v.Mimetype,
		DeleteMarker: marker,
		Tags:         tags,
		Created:      v.CreatedAt.UTC(),
		Updated:      v.UpdatedAt.UTC(),
		Links:        links,
	}
	if v.File != nil {
		resp.Size = v.File.Size
		resp.Checksum = v.File.Checksum
	}
	return resp
}

// BucketListingResponse merges the bucket's own fields with the listed
// versions under a contents key.
type BucketListingResponse struct {
	BucketResponse
	Contents []ObjectResponse `json:"contents"`
}

func bucketListingToResponse(b *models.Bucket, versions []*models.ObjectVersion, lb *linkBuilder) BucketListingResponse {
	contents := make([]ObjectResponse, 0, len(versions))
	for _, v := range versions {
		contents = append(contents, objectToResponse(v, nil, lb))
	}
	return BucketListingResponse{
		BucketResponse: bucketToResponse(b, lb),
		Contents:       contents,
	}
}

// MultipartLinks are the navigation links attached to a multipart upload.
type MultipartLinks struct {
	Self   string `json:"self"`
	Object string `json:"object"`
	Bucket string `json:"bucket"`
}

// MultipartResponse is the JSON shape of a multipart upload. The chunk size
// is published as part_size.
type MultipartResponse struct {
	ID             string         `json:"id"`
	Bucket         string         `json:"bucket"`
	Key            string         `json:"key"`
	Size           int64          `json:"size"`
	PartSize       int64          `json:"part_size"`
	LastPartNumber int64          `json:"last_part_number"`
	LastPartSize   int64          `json:"last_part_size"`
	Completed      bool           `json:"completed"`
	Created        time.Time      `json:"created"`
	Updated        time.Time      `json:"updated"`
	Links          MultipartLinks `json:"links"`
}

func multipartToResponse(m *models.MultipartObject, lb *linkBuilder) MultipartResponse {
	objectURL := lb.objectURL(m.BucketID, m.Key)
	return MultipartResponse{
		ID:             m.UploadID,
		Bucket:         m.BucketID,
		Key:            m.Key,
		Size:           m.Size,
		PartSize:       m.ChunkSize,
		LastPartNumber: m.LastPartNumber,
		LastPartSize:   m.LastPartSize,
		Completed:      m.Completed,
		Created:        m.CreatedAt.UTC(),
		Updated:        m.UpdatedAt.UTC(),
		Links: MultipartLinks{
			Self:   objectURL + "?uploadId=" + url.QueryEscape(m.UploadID),
			Object: objectURL,
			Bucket: lb.bucketURL(m.BucketID),
		},
	}
}

// PartResponse is the JSON shape of one uploaded part. Parts carry no links.
type PartResponse struct {
	PartNumber int64     `json:"part_number"`
	StartByte  int64     `json:"start_byte"`
	EndByte    int64     `json:"end_byte"`
	Checksum   string    `json:"checksum,omitempty"`
	Created    time.Time `json:"created"`
	Updated    time.Time `json:"updated"`
}

func partToResponse(p *models.Part) PartResponse {
	return PartResponse{
		PartNumber: p.PartNumber,
		StartByte:  p.StartByte,
		EndByte:    p.EndByte,
		Checksum:   p.Checksum,
		Created:    p.CreatedAt.UTC(),
		Updated:    p.UpdatedAt.UTC(),
	}
}

// PartListingResponse merges the multipart upload's own fields with its
// parts under a parts key.
type PartListingResponse struct {
	MultipartResponse
	Parts []PartResponse `json:"parts"`
}

func partListingToResponse(m *models.MultipartObject, parts []models.Part, lb *linkBuilder) PartListingResponse {
	out := make([]PartResponse, 0, len(parts))
	for i := range parts {
		out = append(out, partToResponse(&parts[i]))
	}
	return PartListingResponse{
		MultipartResponse: multipartToResponse(m, lb),
		Parts:             out,
	}
}

// objectTagsToMap flattens tag rows into the key/value map responses use.
func objectTagsToMap(tags []models.ObjectVersionTag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[t.Key] = t.Value
	}
	return m
}
