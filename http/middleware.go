package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/flowstate/flowcloud"
	"github.com/go-chi/chi/v5/middleware"
)

// ResourceFunc extracts the resource ID a timestamped signature covers.
type ResourceFunc func(r *http.Request) (string, error)

// VerifyMiddleware requires the caller to prove it holds the shared secret.
// Requests carrying a signature header are checked in timestamped mode over
// the resource returned by resource; all others are challenged at their
// Origin.
func VerifyMiddleware(verifier Verifier, resource ResourceFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var err error

			if sig := r.Header.Get(flowcloud.HeaderSignature); sig != "" {
				var id string
				id, err = resource(r)
				if err == nil {
					err = verifier.VerifyTimestamped(id, r.Header.Get(flowcloud.HeaderDate), sig)
				}
			} else {
				err = verifier.VerifyChallenge(r.Context(), r.Header.Get("Origin"))
			}

			if err != nil {
				if r.Context().Err() != nil {
					return
				}
				HandleError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs one line per request at debug level.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		slog.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}
