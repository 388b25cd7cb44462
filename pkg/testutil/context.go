package testutil

import (
	"net/http"

	id "safetyaudit/pkg/domain"
	"safetyaudit/pkg/requestcontext"
)

// WithOwner scopes the request to ownerID the way the auth middleware does.
// A nil owner leaves the request unauthenticated.
func WithOwner(req *http.Request, ownerID id.OwnerID) *http.Request {
	if ownerID.IsNil() {
		return req
	}
	return req.WithContext(requestcontext.WithOwnerID(req.Context(), ownerID))
}

// OwnerMiddleware applies WithOwner to every request.
func OwnerMiddleware(ownerID id.OwnerID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, WithOwner(r, ownerID))
		})
	}
}
