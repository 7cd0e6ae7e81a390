package shield

import (
	"fmt"
	"net/http"
)

// MaxBody caps request bodies at maxBytes. A declared Content-Length above
// the cap is rejected with 413 before the body is read; otherwise the body
// is wrapped in http.MaxBytesReader and the handler sees
// *http.MaxBytesError when it reads past the cap.
func MaxBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "file_too_large",
					fmt.Sprintf("request body exceeds %d bytes", maxBytes))
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
