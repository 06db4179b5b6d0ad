// Package cid carries per-request correlation ids used to tie HTTP requests,
// WebSocket sessions, log lines and spans together.
package cid

import (
	"context"
	"net/http"

	"github.com/segmentio/ksuid"
)

// ContextKey is the type used for storing the CID in a context.
type ContextKey struct{}

// HeaderName is the HTTP header used to propagate the correlation id.
// Incoming requests that already carry it keep their value.
const HeaderName = "X-Chat-CID"

// AttributeName is the span attribute key used for the CID.
const AttributeName = "chathub.cid"

// New returns a fresh correlation id.
func New() string {
	return ksuid.New().String()
}

// WithCID returns a new context containing the provided correlation id.
func WithCID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKey{}, id)
}

// FromContext extracts the correlation id from ctx, if present.
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ContextKey{}).(string); ok {
		return v
	}
	return ""
}

// Middleware ensures every request has a CID, echoes it on the response and
// stores it on the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderName)
		if id == "" {
			id = New()
		}
		w.Header().Set(HeaderName, id)
		next.ServeHTTP(w, r.WithContext(WithCID(r.Context(), id)))
	})
}
