package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// errMissingToken reports a request with no usable Authorization header.
var errMissingToken = errors.New("auth: missing bearer token")

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. If you use a plain string like
// context.WithValue(ctx, "subject", s), ANY package that knows the string "subject"
// can read or shadow your value. Using a package-private type prevents collisions:
// only THIS package can create a key of type contextKey, so only this package
// can read or write subject values in the context.
type contextKey string

const (
	subjectKey  contextKey = "subject"
	recorderKey contextKey = "subjectRecorder"
)

// subjectRecorder lets an outer middleware observe the subject that
// RequireAuth, running deeper in the chain, attached to the request.
// Context values only flow downward; writing through a pointer placed in
// the context beforehand is the standard way to pass one back up.
type subjectRecorder struct {
	subject string
}

// WithSubjectRecorder returns a context that can capture the subject of a
// request authenticated further down the middleware chain. The access
// logger installs one so its log lines can name the client.
func WithSubjectRecorder(ctx context.Context) context.Context {
	return context.WithValue(ctx, recorderKey, &subjectRecorder{})
}

// RecordedSubject returns the subject captured by a recorder installed
// with WithSubjectRecorder. Returns ("", false) if no recorder was
// installed or the request never authenticated.
func RecordedSubject(ctx context.Context) (string, bool) {
	rec, ok := ctx.Value(recorderKey).(*subjectRecorder)
	if !ok || rec.subject == "" {
		return "", false
	}
	return rec.subject, true
}

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads the JWT from the "Authorization: Bearer <token>" header, validates
// it, and stores the subject in the request context. If the token is missing
// or invalid, it returns 401 Unauthorized and stops the request chain.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware is a function that takes an http.Handler and returns a new
// http.Handler. The new handler "wraps" the original:
//
//	func Middleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // ... do stuff before the handler ...
//	        next.ServeHTTP(w, r)
//	        // ... do stuff after the handler ...
//	    })
//	}
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
//
// WHY A HEADER, NOT A COOKIE:
// The API is called by scripts and agents, not browsers. The Bearer header
// is explicit, works from curl, and never rides along on a cross-site
// request the way a cookie does.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := extractSubject(r, tokens)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="shellbox"`)
				http.Error(w, `{"error":"unauthorized","message":"valid authentication required"}`, http.StatusUnauthorized)
				return
			}

			// Report the subject to the access logger, if one is listening
			if rec, ok := r.Context().Value(recorderKey).(*subjectRecorder); ok {
				rec.subject = subject
			}

			// Store the subject in context so handlers can read it
			ctx := context.WithValue(r.Context(), subjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectFromContext retrieves the authenticated subject from the request context.
//
// Returns ("", false) if the request is anonymous (no valid token was present).
// Returns (subject, true) if the caller is authenticated.
//
// Usage in handlers:
//
//	subject, ok := auth.SubjectFromContext(r.Context())
//	if !ok {
//	    // anonymous caller
//	}
func SubjectFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectKey).(string)
	return s, ok && s != ""
}

// extractSubject reads the Bearer token from the Authorization header and
// validates it.
//
// HEADER FLOW:
// 1. Client exchanges the API key for a JWT at POST /api/auth/token
// 2. Client sends Authorization: Bearer <jwt> on subsequent requests
// 3. We strip the "Bearer " prefix and validate what's left
func extractSubject(r *http.Request, tokens *TokenService) (string, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", errMissingToken
	}

	return tokens.Validate(strings.TrimSpace(token))
}
