package middleware

import (
	"net/http"
	"strings"
)

// maxBodyBytes bounds JSON request bodies. Transcripts dominate the
// payload and are themselves truncated downstream, so 1 MiB is ample.
const maxBodyBytes = 1 << 20

// RequestBounds rejects unparseable requests before a handler sees
// them: bodies over maxBodyBytes and non-JSON content types on
// mutating methods.
func RequestBounds(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnsupportedMediaType)
				w.Write([]byte(`{"error":"content type must be application/json"}`))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}
