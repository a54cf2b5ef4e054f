package partner

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/flowstate/flowcloud"
	"github.com/go-chi/chi/v5"
)

const maxVerifyBody = 4 << 10

// Mount installs the verify endpoint on a partner server's router. The
// gateway sends challenges there and expects the HMAC of the challenge
// under the shared secret. The secret itself is never sent.
func Mount(r chi.Router, secret, path string) {
	if path == "" {
		path = flowcloud.DefaultVerifyPath
	}
	h := VerifyHandler(secret)
	r.Get(path, h)
	r.Post(path, h)
}

// VerifyHandler answers a gateway challenge with its hex HMAC-SHA256 under
// the shared secret. The secret itself is never sent.
func VerifyHandler(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		challenge := r.Header.Get(flowcloud.HeaderChallenge)
		if challenge == "" {
			r.Body = http.MaxBytesReader(w, r.Body, maxVerifyBody)
			challenge = r.FormValue("challenge")
		}

		sig, err := flowcloud.RespondChallenge(secret, challenge)
		switch {
		case errors.Is(err, flowcloud.ErrNotConfigured):
			slog.Error("verify endpoint has no shared secret")
			http.NotFound(w, r)
			return
		case err != nil:
			http.Error(w, "invalid challenge", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = io.WriteString(w, sig)
	}
}
