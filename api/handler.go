// Package api exposes the factory repository over HTTP.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kilianp07/dspfactory/auth"
	"github.com/kilianp07/dspfactory/core/catalog"
	"github.com/kilianp07/dspfactory/core/factory"
	coremon "github.com/kilianp07/dspfactory/core/monitoring"
	"github.com/kilianp07/dspfactory/core/repository"
	"github.com/kilianp07/dspfactory/infra/logger"
)

// DefaultMaxUpload bounds POST /factories bodies.
const DefaultMaxUpload = 32 << 20

// Options configures the router.
type Options struct {
	// Token, when set, is required as a bearer token on /factories routes.
	Token     string
	MaxUpload int64
	// Metrics is mounted on /metrics when non-nil.
	Metrics http.Handler
	Logger  logger.Logger
}

// FactoryView is the JSON identity of a stored factory.
type FactoryView struct {
	factory.Identity
	Backend string        `json:"backend"`
	Entry   catalog.Entry `json:"entry"`
}

// MetaPair is one declared metadata item, in declaration order.
type MetaPair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type handler struct {
	repo      *repository.Repository
	maxUpload int64
	log       logger.Logger
}

// NewRouter returns the HTTP API for repo.
func NewRouter(repo *repository.Repository, opts Options) http.Handler {
	h := &handler{repo: repo, maxUpload: opts.MaxUpload, log: opts.Logger}
	if h.maxUpload <= 0 {
		h.maxUpload = DefaultMaxUpload
	}
	if h.log == nil {
		h.log = logger.NopLogger{}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}
	r.Route("/factories", func(r chi.Router) {
		r.Use(auth.RequireBearer(opts.Token))
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{sha}", h.get)
		r.Delete("/{sha}", h.remove)
		r.Get("/{sha}/artifact", h.artifact)
		r.Get("/{sha}/metadata", h.metadata)
	})
	return r
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debugw("http request", map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	q := catalog.Query{Name: r.URL.Query().Get("name")}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		q.Limit = n
	}
	entries, err := h.repo.List(r.Context(), q)
	if err != nil {
		h.fail(w, err)
		return
	}
	if entries == nil {
		entries = []catalog.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	sha := chi.URLParam(r, "sha")
	entry, err := h.repo.Entry(r.Context(), sha)
	if err != nil {
		h.fail(w, err)
		return
	}
	f, err := h.repo.Load(r.Context(), sha)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FactoryView{Identity: factory.IdentityOf(f), Backend: entry.Backend, Entry: entry})
}

func (h *handler) artifact(w http.ResponseWriter, r *http.Request) {
	opts, err := writeOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sha := chi.URLParam(r, "sha")
	f, err := h.repo.Load(r.Context(), sha)
	if err != nil {
		h.fail(w, err)
		return
	}
	var buf bytes.Buffer
	if err := f.Write(&buf, opts); err != nil {
		h.fail(w, err)
		return
	}
	ext, ctype := ".txt", "text/plain; charset=utf-8"
	if opts.Binary {
		ext, ctype = ".bin", "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", `attachment; filename="`+sha+ext+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

func (h *handler) metadata(w http.ResponseWriter, r *http.Request) {
	f, err := h.repo.Load(r.Context(), chi.URLParam(r, "sha"))
	if err != nil {
		h.fail(w, err)
		return
	}
	pairs := []MetaPair{}
	f.Metadata(factory.MetaFunc(func(k, v string) {
		pairs = append(pairs, MetaPair{Key: k, Value: v})
	}))
	writeJSON(w, http.StatusOK, pairs)
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	opts, err := writeOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	body := http.MaxBytesReader(w, r.Body, h.maxUpload)
	entry, err := h.repo.Import(r.Context(), body, opts)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			http.Error(w, "artifact too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.fail(w, err)
		return
	}
	w.Header().Set("Location", "/factories/"+entry.SHAKey)
	writeJSON(w, http.StatusCreated, entry)
}

func (h *handler) remove(w http.ResponseWriter, r *http.Request) {
	ok, err := h.repo.Delete(r.Context(), chi.URLParam(r, "sha"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, repository.ErrUnrecognized):
		http.Error(w, "artifact not recognized", http.StatusUnprocessableEntity)
	default:
		h.log.Errorf("request failed: %v", err)
		coremon.CaptureException(err, map[string]string{"module": "api"})
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeOptions(r *http.Request) (factory.WriteOptions, error) {
	var opts factory.WriteOptions
	for name, dst := range map[string]*bool{"binary": &opts.Binary, "small": &opts.Small} {
		s := r.URL.Query().Get(name)
		if s == "" {
			continue
		}
		v, err := strconv.ParseBool(s)
		if err != nil {
			return opts, errors.New("invalid " + name + " flag")
		}
		*dst = v
	}
	return opts, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
