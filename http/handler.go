package http

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"slices"

	"github.com/flowstate/flowcloud"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const (
	ProxyRoute    = "/api/proxy/files"
	MetadataRoute = "/api/files"
	PublicRoute   = "/files"

	maxVerifyBody = 4 << 10
)

type Service interface {
	Normalize(raw string) (string, error)
	Open(ctx context.Context, path string) (flowcloud.Object, error)
	OpenWithKey(ctx context.Context, path, key string) (flowcloud.Object, error)
	Describe(ctx context.Context, path string) (flowcloud.FileMetadata, error)
}

// Verifier is the server side of origin verification.
// *flowcloud.OriginVerifier implements it.
type Verifier interface {
	Configured() bool
	IsSystemKey(candidate string) bool
	VerifyPath() string
	VerifyTimestamped(resourceID, date, signature string) error
	VerifyChallenge(ctx context.Context, origin string) error
	Respond(challenge string) (string, error)
}

var DefaultCORSHeaders = []string{
	"Origin",
	"X-Requested-With",
	"Content-Type",
	"Accept",
	DefaultMarkerHeader,
	flowcloud.HeaderDate,
	flowcloud.HeaderSignature,
	flowcloud.HeaderChallenge,
	flowcloud.HeaderAccessKey,
}

type CORSConfig struct {
	AllowedHeaders []string
	MaxAge         int
}

type HandlerConfig struct {
	Gate     GateConfig
	CORS     CORSConfig
	Hosts    flowcloud.HostStore
	Verifier Verifier

	// StaticFS, when set, serves allow-listed asset paths.
	StaticFS fs.FS
}

// Handler provides the gateway's HTTP routes.
type Handler struct {
	config  HandlerConfig
	service Service
}

// NewHandler creates a new Handler with the given configuration and service.
// A nil Verifier is replaced by an unconfigured one, which denies every
// secret-gated route.
func NewHandler(config *HandlerConfig, service Service) *Handler {
	cfg := *config
	cfg.Gate = cfg.Gate.withDefaults()
	if cfg.CORS.AllowedHeaders == nil {
		cfg.CORS.AllowedHeaders = DefaultCORSHeaders
		if cfg.Gate.MarkerHeader != DefaultMarkerHeader {
			cfg.CORS.AllowedHeaders = append(slices.Clip(DefaultCORSHeaders), cfg.Gate.MarkerHeader)
		}
	}
	if cfg.Verifier == nil {
		cfg.Verifier = flowcloud.NewOriginVerifier(flowcloud.OriginVerifierConfig{})
	}

	return &Handler{
		config:  cfg,
		service: service,
	}
}

// Router returns an http.Handler with every route behind the access gate.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestLogger)
	r.Use(middleware.GetHead)
	r.Use(h.loadHosts)
	r.Use(h.pathGate)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  h.corsAllowOrigin,
		AllowedMethods:   []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   h.config.CORS.AllowedHeaders,
		AllowCredentials: false,
		MaxAge:           h.config.CORS.MaxAge,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { writeDefaultNotFound(w) })
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) { writeDefaultNotFound(w) })

	r.Group(func(r chi.Router) {
		r.Use(h.strictOrigin(true))
		r.Use(h.requireMarker)
		r.Use(h.requireSecret)
		r.Use(VerifyMiddleware(h.config.Verifier, h.resourceID))
		r.Get(ProxyRoute+"/*", h.handleProxy)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.strictOrigin(false))
		r.Use(h.requireSecret)
		r.Get(MetadataRoute+"/*", h.handleMetadata)
	})

	r.Get(PublicRoute+"/*", h.handlePublicFile)

	verifyPath := h.config.Verifier.VerifyPath()
	r.Get(verifyPath, h.handleVerify)
	r.Post(verifyPath, h.handleVerify)

	r.Get(testPath, h.handleTest)

	if h.config.StaticFS != nil {
		r.Get("/*", h.handleStatic)
	}

	return r
}

func (h *Handler) resourceID(r *http.Request) (string, error) {
	return h.service.Normalize(chi.URLParam(r, "*"))
}

func (h *Handler) handleProxy(w http.ResponseWriter, r *http.Request) {
	obj, err := h.service.Open(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		HandleError(w, err)
		return
	}
	defer func() { _ = obj.Content.Close() }()

	serveObject(w, r, obj)
}

func (h *Handler) handleMetadata(w http.ResponseWriter, r *http.Request) {
	if !h.config.Verifier.IsSystemKey(r.Header.Get(flowcloud.HeaderAccessKey)) {
		HandleError(w, flowcloud.ErrUnauthorized)
		return
	}

	meta, err := h.service.Describe(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		HandleError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	_ = WriteJSON(w, http.StatusOK, meta)
}

func (h *Handler) handlePublicFile(w http.ResponseWriter, r *http.Request) {
	obj, err := h.service.OpenWithKey(r.Context(), chi.URLParam(r, "*"), r.URL.Query().Get("key"))
	if err != nil {
		w.WriteHeader(publicStatus(err))
		return
	}
	defer func() { _ = obj.Content.Close() }()

	serveObject(w, r, obj)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	if !h.config.Verifier.Configured() {
		writeDefaultNotFound(w)
		return
	}

	challenge := r.Header.Get(flowcloud.HeaderChallenge)
	if challenge == "" {
		r.Body = http.MaxBytesReader(w, r.Body, maxVerifyBody)
		challenge = r.FormValue("challenge")
	}

	sig, err := h.config.Verifier.Respond(challenge)
	if err != nil {
		if errors.Is(err, flowcloud.ErrInvalidInput) {
			WriteError(w, http.StatusBadRequest, "invalid_challenge", "Missing or malformed challenge")
			return
		}
		HandleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, sig)
}

func (h *Handler) handleTest(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

func (h *Handler) handleStatic(w http.ResponseWriter, r *http.Request) {
	name, err := flowcloud.NormalizePath(r.URL.Path)
	if err != nil {
		writeDefaultNotFound(w)
		return
	}

	info, err := fs.Stat(h.config.StaticFS, name)
	if err != nil || !info.Mode().IsRegular() {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("static asset stat failed", "error", err)
		}
		writeDefaultNotFound(w)
		return
	}

	http.ServeFileFS(w, r, h.config.StaticFS, name)
}

func serveObject(w http.ResponseWriter, r *http.Request, obj flowcloud.Object) {
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")

	http.ServeContent(w, r, obj.Path, obj.ModTime, obj.Content)
}
