package server

import (
	"net/http"
	"strings"

	"github.com/kumasuke/fakes3/internal/api"
)

// unsupportedSubresources are query parameters selecting S3 features this server does not
// emulate. Requests carrying one get NotImplemented rather than falling through to a
// plain bucket or object operation.
var unsupportedSubresources = []string{
	"accelerate",
	"acl",
	"analytics",
	"attributes",
	"cors",
	"encryption",
	"intelligent-tiering",
	"inventory",
	"legal-hold",
	"lifecycle",
	"logging",
	"metrics",
	"notification",
	"object-lock",
	"ownershipControls",
	"policy",
	"policyStatus",
	"publicAccessBlock",
	"replication",
	"requestPayment",
	"restore",
	"retention",
	"select",
	"tagging",
	"torrent",
	"versionId",
	"versions",
	"website",
}

// Router handles S3 API routing.
type Router struct {
	handler *api.Handler
	chain   http.Handler
}

// NewRouter creates a new Router.
func NewRouter(handler *api.Handler) *Router {
	r := &Router{handler: handler}

	var chain http.Handler = r.routeRequest()
	chain = LoggingMiddleware(chain)
	chain = RecoveryMiddleware(chain)
	chain = RequestIDMiddleware(chain)
	r.chain = chain

	return r
}

// ServeHTTP handles HTTP requests.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.chain.ServeHTTP(w, req)
}

func hasUnsupportedSubresource(req *http.Request) bool {
	query := req.URL.Query()
	for _, name := range unsupportedSubresources {
		if query.Has(name) {
			return true
		}
	}
	return false
}

// routeRequest splits path-style requests into /{bucket} and /{bucket}/{key} and
// dispatches on the scope the path addresses.
func (r *Router) routeRequest() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		bucket, key, _ := strings.Cut(strings.TrimPrefix(req.URL.Path, "/"), "/")
		req = api.WithKey(api.WithBucket(req, bucket), key)

		switch {
		case bucket == "":
			r.serviceScope(w, req)
		case hasUnsupportedSubresource(req):
			api.WriteError(w, api.ErrNotImplemented)
		case key == "":
			r.bucketScope(w, req)
		default:
			r.objectScope(w, req)
		}
	}
}

func (r *Router) serviceScope(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		r.handler.ListBuckets(w, req)
	case http.MethodHead:
		w.WriteHeader(http.StatusBadRequest)
	case http.MethodPut, http.MethodPost, http.MethodDelete:
		api.WriteError(w, api.ErrInvalidRequest)
	default:
		api.WriteError(w, api.ErrMethodNotAllowed)
	}
}

func (r *Router) bucketScope(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()

	switch req.Method {
	case http.MethodGet:
		switch {
		case query.Has("uploads"):
			api.WriteError(w, api.ErrNotImplemented)
		case query.Has("location"):
			r.handler.GetBucketLocation(w, req)
		case query.Has("versioning"):
			r.handler.GetBucketVersioning(w, req)
		case query.Get("list-type") == "2":
			r.handler.ListObjectsV2(w, req)
		default:
			r.handler.ListObjects(w, req)
		}
	case http.MethodHead:
		r.handler.HeadBucket(w, req)
	case http.MethodPut:
		if query.Has("versioning") {
			api.WriteError(w, api.ErrNotImplemented)
			return
		}
		r.handler.CreateBucket(w, req)
	case http.MethodPost:
		if !query.Has("delete") {
			api.WriteError(w, api.ErrInvalidRequest)
			return
		}
		r.handler.DeleteObjects(w, req)
	case http.MethodDelete:
		r.handler.DeleteBucket(w, req)
	default:
		api.WriteError(w, api.ErrMethodNotAllowed)
	}
}

func (r *Router) objectScope(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()
	inUpload := query.Has("uploadId")

	switch req.Method {
	case http.MethodGet:
		if inUpload {
			r.handler.ListParts(w, req)
			return
		}
		r.handler.GetObject(w, req)
	case http.MethodHead:
		r.handler.HeadObject(w, req)
	case http.MethodPut:
		switch {
		case req.Header.Get("x-amz-copy-source") != "":
			// CopyObject and UploadPartCopy.
			api.WriteError(w, api.ErrNotImplemented)
		case inUpload && query.Has("partNumber"):
			r.handler.UploadPart(w, req)
		default:
			r.handler.PutObject(w, req)
		}
	case http.MethodPost:
		switch {
		case query.Has("uploads"):
			r.handler.CreateMultipartUpload(w, req)
		case inUpload:
			r.handler.CompleteMultipartUpload(w, req)
		default:
			api.WriteError(w, api.ErrInvalidRequest)
		}
	case http.MethodDelete:
		if inUpload {
			r.handler.AbortMultipartUpload(w, req)
			return
		}
		r.handler.DeleteObject(w, req)
	default:
		api.WriteError(w, api.ErrMethodNotAllowed)
	}
}
