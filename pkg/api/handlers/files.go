package handlers

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/arcafs/arca/internal/logger"
	"github.com/arcafs/arca/pkg/api/middleware"
	"github.com/arcafs/arca/pkg/auth"
	"github.com/arcafs/arca/pkg/engine"
	"github.com/arcafs/arca/pkg/models"
)

// FilesHandler serves the object-store REST surface: buckets, object
// versions, multipart uploads and tags. One handler method per route;
// operations multiplexed on query parameters (?versions, ?uploads,
// ?uploadId, ?tagging) dispatch inside the method, matching how clients
// address them.
type FilesHandler struct {
	engine *engine.Engine
	opts   FilesOptions
}

// FilesOptions configures link building and error disclosure.
type FilesOptions struct {
	// BasePath is the mount prefix used when composing resource links.
	BasePath string

	// PublicURL overrides the request host in links when set.
	PublicURL string

	// HideDenied writes denied authorization as 404 instead of 401/403.
	HideDenied bool

	// Restricted marks served content as non-cacheable by shared caches.
	// Set when authentication is enabled.
	Restricted bool
}

// NewFilesHandler creates the object-store handler.
func NewFilesHandler(eng *engine.Engine, opts FilesOptions) *FilesHandler {
	if opts.BasePath == "" {
		opts.BasePath = "/files"
	}
	return &FilesHandler{engine: eng, opts: opts}
}

// links returns a link builder bound to this request.
func (h *FilesHandler) links(r *http.Request) *linkBuilder {
	return newLinkBuilder(h.opts.PublicURL, h.opts.BasePath, r)
}

// authPrincipal returns the principal the middleware resolved for this
// request.
func authPrincipal(r *http.Request) auth.Principal {
	return middleware.PrincipalFromContext(r.Context())
}

// fail maps a domain error onto the HTTP response.
func (h *FilesHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	WriteDomainError(w, authPrincipal(r), h.opts.HideDenied, err)
}

// authorize consults the oracle and writes the error response on denial.
func (h *FilesHandler) authorize(w http.ResponseWriter, r *http.Request, action auth.Action, target auth.Target) bool {
	principal := authPrincipal(r)
	if err := h.engine.Oracle().Authorize(r.Context(), principal, action, target); err != nil {
		WriteDomainError(w, principal, h.opts.HideDenied, err)
		return false
	}
	return true
}

// objectKey extracts the object key from the wildcard route segment. Keys
// may span path segments; percent escapes are decoded here because the
// router matches the escaped form.
func objectKey(r *http.Request) (string, error) {
	key, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		return "", models.ErrInvalidKey
	}
	return key, nil
}

// logTarget records the addressed bucket and key for request logging.
func logTarget(r *http.Request, bucket, key string) {
	if lc := logger.FromContext(r.Context()); lc != nil {
		lc.WithTarget(bucket, key)
	}
}
