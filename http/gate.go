package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/flowstate/flowcloud"
)

const (
	DefaultMarkerHeader = "X-App-Request"
	DefaultMarkerValue  = "1"

	testPath = "/test"
)

var (
	DefaultAllowedPrefixes = []string{"/api/", "/files/", "/@", "/src/", "/node_modules/"}
	DefaultAllowedSuffixes = []string{".js", ".css", ".ico", ".png"}
)

// GateConfig configures the access gate in front of every route.
type GateConfig struct {
	// AllowedPrefixes and AllowedSuffixes form the path allow-list. The
	// verify path is always allowed; /test only in dev mode.
	AllowedPrefixes []string
	AllowedSuffixes []string

	// MarkerHeader must carry MarkerValue on proxy requests.
	MarkerHeader string
	MarkerValue  string

	// DevMode skips origin checks regardless of the hosts record.
	DevMode bool
}

func (g GateConfig) withDefaults() GateConfig {
	if g.AllowedPrefixes == nil {
		g.AllowedPrefixes = DefaultAllowedPrefixes
	}
	if g.AllowedSuffixes == nil {
		g.AllowedSuffixes = DefaultAllowedSuffixes
	}
	if g.MarkerHeader == "" {
		g.MarkerHeader = DefaultMarkerHeader
	}
	if g.MarkerValue == "" {
		g.MarkerValue = DefaultMarkerValue
	}
	return g
}

// AllowsPath reports whether p may reach any route.
func (g GateConfig) AllowsPath(p, verifyPath string, devMode bool) bool {
	if p == testPath {
		return devMode
	}
	if verifyPath != "" && strings.HasPrefix(p, verifyPath) {
		return true
	}
	for _, prefix := range g.AllowedPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	for _, suffix := range g.AllowedSuffixes {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

type hostsKey struct{}

// hostsFromContext returns the allowed-hosts snapshot taken for the
// request, or the zero config when there is none.
func hostsFromContext(ctx context.Context) flowcloud.AllowedConfig {
	cfg, _ := ctx.Value(hostsKey{}).(flowcloud.AllowedConfig)
	return cfg
}

func deny(w http.ResponseWriter, r *http.Request, rule string) {
	slog.Warn("request denied",
		"rule", rule,
		"method", r.Method,
		"path", r.URL.Path,
		"origin", r.Header.Get("Origin"),
	)
	writeDefaultNotFound(w)
}

// loadHosts takes one snapshot of the allowed-hosts record per request so
// CORS and the origin checks agree. A record that fails to load allows no
// origins.
func (h *Handler) loadHosts(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cfg flowcloud.AllowedConfig
		if h.config.Hosts != nil {
			loaded, err := h.config.Hosts.Load(r.Context())
			if err != nil {
				slog.Error("failed to load allowed hosts", "error", err)
			} else {
				cfg = loaded
			}
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), hostsKey{}, cfg)))
	})
}

func (h *Handler) devMode(r *http.Request) bool {
	return h.config.Gate.DevMode || hostsFromContext(r.Context()).DevMode
}

func (h *Handler) pathGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.config.Gate.AllowsPath(r.URL.Path, h.config.Verifier.VerifyPath(), h.devMode(r)) {
			deny(w, r, "path")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) corsAllowOrigin(r *http.Request, origin string) bool {
	return h.devMode(r) || hostsFromContext(r.Context()).IsAllowed(origin)
}

// strictOrigin denies a present Origin that is not allow-listed. With
// requireOrigin set, a missing Origin is denied too.
func (h *Handler) strictOrigin(requireOrigin bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.devMode(r) {
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			switch {
			case origin == "" && requireOrigin:
				deny(w, r, "origin_missing")
				return
			case origin != "" && !hostsFromContext(r.Context()).IsAllowed(origin):
				deny(w, r, "origin")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (h *Handler) requireMarker(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(h.config.Gate.MarkerHeader) != h.config.Gate.MarkerValue {
			deny(w, r, "marker")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.config.Verifier.Configured() {
			deny(w, r, "secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}
