package handlers

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/arcafs/arca/internal/logger"
	"github.com/arcafs/arca/pkg/engine"
	"github.com/arcafs/arca/pkg/models"
	"github.com/arcafs/arca/pkg/storage"
)

// xssVulnerableMimetypes lists content types browsers may execute when
// rendered inline. Objects with these types are always sent as attachments.
var xssVulnerableMimetypes = map[string]bool{
	"text/html":              true,
	"application/xhtml+xml":  true,
	"image/svg+xml":          true,
	"application/javascript": true,
	"text/javascript":        true,
	"application/xml":        true,
	"text/xml":               true,
}

// contentType resolves the served media type: the stored mimetype when set,
// a guess from the key extension otherwise, octet-stream as last resort.
func contentType(v *models.ObjectVersion) string {
	if v.Mimetype != "" {
		return v.Mimetype
	}
	if ct := mime.TypeByExtension(path.Ext(v.Key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// mediaType strips parameters like charset from a content type.
func mediaType(ct string) string {
	mt, _, _ := strings.Cut(ct, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// contentDisposition renders an inline or attachment disposition. Non-ASCII
// filenames get an RFC 5987 filename* parameter next to an ASCII fallback.
func contentDisposition(kind, filename string) string {
	ascii := true
	for _, r := range filename {
		if r > 126 || r < 32 || r == '"' || r == '\\' {
			ascii = false
			break
		}
	}
	if ascii {
		return fmt.Sprintf(`%s; filename="%s"`, kind, filename)
	}

	fallback := make([]rune, 0, len(filename))
	for _, r := range filename {
		if r > 126 || r < 32 || r == '"' || r == '\\' {
			r = '_'
		}
		fallback = append(fallback, r)
	}
	return fmt.Sprintf(`%s; filename="%s"; filename*=UTF-8''%s`,
		kind, string(fallback), url.PathEscape(filename))
}

// contentRangeUnsatisfied is the Content-Range value for 416 responses.
func contentRangeUnsatisfied(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}

// parseRange interprets a single-range Range header against the object
// size. ok is false when the header is absent, malformed or multi-range
// (the full object is served then); err flags a syntactically valid but
// unsatisfiable range.
func parseRange(header string, size int64) (start, length int64, ok bool, err error) {
	const prefix = "bytes="
	if header == "" || !strings.HasPrefix(header, prefix) {
		return 0, 0, false, nil
	}
	spec := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if spec == "" || strings.Contains(spec, ",") {
		return 0, 0, false, nil
	}

	first, last, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, false, nil
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		// Suffix range: the final n bytes.
		n, perr := strconv.ParseInt(last, 10, 64)
		if perr != nil {
			return 0, 0, false, nil
		}
		if n <= 0 || size == 0 {
			return 0, 0, false, storage.ErrInvalidRange
		}
		if n > size {
			n = size
		}
		return size - n, n, true, nil
	}

	begin, perr := strconv.ParseInt(first, 10, 64)
	if perr != nil || begin < 0 {
		return 0, 0, false, nil
	}
	if begin >= size {
		return 0, 0, false, storage.ErrInvalidRange
	}

	end := size - 1
	if last != "" {
		end, perr = strconv.ParseInt(last, 10, 64)
		if perr != nil {
			return 0, 0, false, nil
		}
		if end < begin {
			return 0, 0, false, storage.ErrInvalidRange
		}
		if end > size-1 {
			end = size - 1
		}
	}
	return begin, end - begin + 1, true, nil
}

// objectHeaders sets the metadata and safety headers shared by GET and
// HEAD object responses.
func objectHeaders(w http.ResponseWriter, v *models.ObjectVersion, f *models.FileInstance, restricted, asAttachment bool) {
	h := w.Header()
	ct := contentType(v)

	h.Set("Content-Type", ct)
	h.Set("Accept-Ranges", "bytes")
	h.Set("Last-Modified", v.UpdatedAt.UTC().Format(http.TimeFormat))

	if f.Checksum != "" {
		h.Set("ETag", `"`+f.Checksum+`"`)
		if f.ChecksumAlgorithm() == storage.DefaultAlgorithm {
			h.Set("Content-MD5", f.ChecksumHex())
		}
	}

	if restricted {
		h.Set("Cache-Control", "private, no-cache")
	} else {
		h.Set("Cache-Control", "public")
	}

	// Served files are user content. Browsers must never execute them in
	// this origin.
	h.Set("Content-Security-Policy", "default-src 'none'")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Download-Options", "noopen")
	h.Set("X-Frame-Options", "deny")
	h.Set("X-XSS-Protection", "1; mode=block")

	disposition := "inline"
	if asAttachment || xssVulnerableMimetypes[mediaType(ct)] {
		disposition = contentDisposition("attachment", path.Base(v.Key))
	}
	h.Set("Content-Disposition", disposition)
}

// sendObject streams a download to the client, honoring conditional and
// single-range requests.
func sendObject(w http.ResponseWriter, r *http.Request, dl *engine.Download, restricted, asAttachment bool) {
	v, f := dl.Version, dl.File
	etag := `"` + f.Checksum + `"`
	lastModified := v.UpdatedAt.UTC().Truncate(time.Second)

	objectHeaders(w, v, f, restricted, asAttachment)

	if match := r.Header.Get("If-None-Match"); match != "" {
		if match == "*" || strings.Contains(match, etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	start, length, ranged, err := parseRange(r.Header.Get("Range"), f.Size)
	if err != nil {
		RangeNotSatisfiable(w, f.Size)
		return
	}
	if ranged && !ifRangeCurrent(r.Header.Get("If-Range"), etag, lastModified) {
		ranged = false
	}

	var rc io.ReadCloser
	status := http.StatusOK
	size := f.Size
	if ranged {
		status = http.StatusPartialContent
		size = length
		w.Header().Set("Content-Range",
			fmt.Sprintf("bytes %d-%d/%d", start, start+length-1, f.Size))
		rc, err = dl.OpenRange(r.Context(), start, length)
	} else {
		rc, err = dl.Open(r.Context())
	}
	if err != nil {
		logger.Error("Failed to open object content",
			"bucket", v.BucketID, "key", v.Key, "error", err)
		InternalServerError(w, "internal server error")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(status)
	if _, err := io.Copy(w, rc); err != nil {
		// Headers are gone; all we can do is log the broken transfer.
		logger.Debug("Object download aborted",
			"bucket", v.BucketID, "key", v.Key, "error", err)
	}
}

// ifRangeCurrent reports whether a Range request may proceed given the
// If-Range validator: absent, a matching ETag, or a date not older than the
// current version all allow the partial response.
func ifRangeCurrent(header, etag string, lastModified time.Time) bool {
	if header == "" {
		return true
	}
	if strings.HasPrefix(header, `"`) || strings.HasPrefix(header, "W/") {
		return header == etag
	}
	t, err := http.ParseTime(header)
	if err != nil {
		return false
	}
	return !lastModified.After(t)
}
