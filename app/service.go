package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/dspfactory/api"
	"github.com/kilianp07/dspfactory/app/plugins"
	"github.com/kilianp07/dspfactory/config"
	"github.com/kilianp07/dspfactory/core/catalog"
	coremetrics "github.com/kilianp07/dspfactory/core/metrics"
	coremon "github.com/kilianp07/dspfactory/core/monitoring"
	coremqtt "github.com/kilianp07/dspfactory/core/mqtt"
	"github.com/kilianp07/dspfactory/core/repository"
	"github.com/kilianp07/dspfactory/infra/blob"
	"github.com/kilianp07/dspfactory/infra/cache"
	_ "github.com/kilianp07/dspfactory/infra/catalog"
	"github.com/kilianp07/dspfactory/infra/logger"
	"github.com/kilianp07/dspfactory/infra/metrics"
	"github.com/kilianp07/dspfactory/infra/monitoring"
	"github.com/kilianp07/dspfactory/infra/mqtt"
)

// Service wires the repository to the HTTP API and the announcer.
type Service struct {
	Repo *repository.Repository

	cfg       *config.Config
	announcer coremqtt.Announcer
	sink      coremetrics.Sink
	log       logger.Logger
	handler   http.Handler

	ready   chan struct{}
	mu      sync.Mutex
	addr    string
	started bool
}

// Option customises New.
type Option func(*options)

type options struct {
	announcer coremqtt.Announcer
}

// WithAnnouncer replaces the announcer built from the mqtt section.
func WithAnnouncer(a coremqtt.Announcer) Option {
	return func(o *options) { o.announcer = a }
}

// NewRepository builds the repository described by cfg without the
// surrounding service. The CLI store commands use it directly.
func NewRepository(ctx context.Context, cfg *config.Config, sink coremetrics.Sink) (*repository.Repository, error) {
	log := logger.New("repository")
	readers, err := plugins.NewReaders(cfg.Readers)
	if err != nil {
		return nil, fmt.Errorf("readers: %w", err)
	}
	store, err := blob.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}
	cat, err := catalog.New(cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	opts := repository.Options{Readers: readers, Store: store, Catalog: cat, Sink: sink, Logger: log}
	if cfg.Cache.Enabled {
		c, err := cache.New(cfg.Cache.Size, logger.New("cache"))
		if err != nil {
			_ = cat.Close()
			return nil, fmt.Errorf("cache: %w", err)
		}
		opts.Cache = c
	}
	repo, err := repository.New(opts)
	if err != nil {
		_ = cat.Close()
		return nil, err
	}
	return repo, nil
}

// New creates a Service from the configuration.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if err := logger.Configure(cfg.Logging.Options()); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, err
	}
	coremon.Init(mon)

	sink, err := coremetrics.NewSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	repo, err := NewRepository(ctx, cfg, sink)
	if err != nil {
		return nil, err
	}

	ann := o.announcer
	if ann == nil {
		ann, err = mqtt.New(cfg.MQTT)
		if err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("mqtt announcer: %w", err)
		}
	}

	apiOpts := api.Options{
		Token:     cfg.HTTP.Token,
		MaxUpload: cfg.HTTP.MaxUploadBytes,
		Logger:    logger.New("api"),
	}
	if hasSink(cfg.Metrics, "prometheus") {
		apiOpts.Metrics = promhttp.Handler()
	}

	return &Service{
		Repo:      repo,
		cfg:       cfg,
		announcer: ann,
		sink:      sink,
		log:       logg,
		handler:   api.NewRouter(repo, apiOpts),
		ready:     make(chan struct{}),
	}, nil
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler { return s.handler }

// Ready is closed once the API listener is bound.
func (s *Service) Ready() <-chan struct{} { return s.ready }

// Addr is the bound API address, empty before Ready.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ErrStarted is returned by Run when the service has already been started.
var ErrStarted = errors.New("service already started")

// Run serves the API and forwards repository events to the announcer until
// ctx is cancelled or the HTTP server fails. A Service runs at most once.
func (s *Service) Run(parent context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrStarted
	}
	s.started = true
	s.mu.Unlock()

	ln, err := net.Listen("tcp", s.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.HTTP.Addr, err)
	}
	return s.serve(parent, ln)
}

func (s *Service) serve(parent context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	// Background workers stop with the server, not only with parent.
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	events := s.Repo.Events()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.forward(ctx, events)
	}()

	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	if s.cfg.MQTT.Enabled && s.cfg.Cache.Enabled {
		w, err := mqtt.NewWatcher(s.cfg.MQTT, s.Repo, prometheus.DefaultRegisterer)
		if err != nil {
			s.log.Warnf("peer watcher disabled: %v", err)
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := w.Start(ctx); err != nil {
					s.log.Errorf("peer watcher: %v", err)
				}
			}()
		}
	}

	srv := &http.Server{Handler: s.handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("http shutdown: %v", err)
		}
	}()
	s.log.Infof("serving factories on %s", s.Addr())
	close(s.ready)
	err := srv.Serve(ln)
	cancel()
	s.Repo.Unsubscribe(events)
	wg.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Service) forward(ctx context.Context, events <-chan repository.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a := coremqtt.NewAnnouncement(ev)
			if err := s.announcer.Announce(ctx, a); err != nil {
				s.log.Warnf("announce %s %s: %v", a.Op, a.SHAKey, err)
			}
		}
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.announcer.Close()
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	coremon.Flush(2 * time.Second)
	return s.Repo.Close()
}

func hasSink(cfg coremetrics.Config, typ string) bool {
	for _, s := range cfg.Sinks {
		if s.Type == typ {
			return true
		}
	}
	return false
}
