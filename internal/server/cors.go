package server

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gorilla/handlers"
)

var localhostOrigin = regexp.MustCompile(`^http://localhost(:[0-9]+)?$`)

// originAllowed accepts origins from the configured list and, outside
// production, any http://localhost origin.
func originAllowed(allowed []string, production bool) func(string) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(origin string) bool {
		if _, ok := set[origin]; ok {
			return true
		}
		return !production && localhostOrigin.MatchString(origin)
	}
}

// corsMiddleware wraps h with the CORS policy. Requests without an Origin
// header are not cross-origin and pass through untouched, as do requests
// from unknown origins, which simply get no CORS headers.
func corsMiddleware(allowed []string, production bool) func(http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedOriginValidator(originAllowed(allowed, production)),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Request-ID"}),
		handlers.ExposedHeaders([]string{"X-Request-ID", "Retry-After"}),
		handlers.AllowCredentials(),
		handlers.MaxAge(600),
	)
}
