// Package app wires the induction engine to its adapters and runs it as a
// long-lived service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	apiinduction "github.com/kilianp07/induction/api/induction"
	"github.com/kilianp07/induction/config"
	"github.com/kilianp07/induction/core/engine"
	"github.com/kilianp07/induction/core/engine/history"
	coremetrics "github.com/kilianp07/induction/core/metrics"
	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/core/scheduler"
	"github.com/kilianp07/induction/infra/logger"
	"github.com/kilianp07/induction/infra/metrics"
	"github.com/kilianp07/induction/infra/mqtt"
	infrastore "github.com/kilianp07/induction/infra/store"
	"github.com/kilianp07/induction/internal/eventbus"
)

// Service runs the engine behind the HTTP API, publishes decisions and
// triggers planning cycles.
type Service struct {
	cfg      *config.Config
	Engine   *engine.Engine
	store    *infrastore.MemoryStore
	history  history.Store
	sink     coremetrics.MetricsSink
	bus      *eventbus.Bus
	mqtt     *mqtt.PahoPublisher
	server   *http.Server
	log      logger.Logger
	cycle    *scheduler.Scheduler
	closeOne sync.Once
}

// New creates a Service from the configuration.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	logger.Configure(cfg.Logging.Level, cfg.Logging.Format)
	logg := logger.New("service")
	if err := cfg.Store.Validate(); err != nil {
		return nil, err
	}
	snap, err := infrastore.LoadSnapshot(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("load fleet snapshot: %w", err)
	}
	st := infrastore.NewMemoryStore(snap)

	eng, err := engine.New(ctx, cfg.Engine, st, logger.New("engine"))
	if err != nil {
		return nil, err
	}
	hist, err := history.Open(cfg.History)
	if err != nil {
		return nil, fmt.Errorf("decision history: %w", err)
	}
	sink, err := coremetrics.Open(cfg.Metrics)
	if err != nil {
		_ = hist.Close()
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	bus := eventbus.New()
	eng.SetHistory(hist)
	eng.SetMetrics(sink)
	eng.SetBus(bus)

	svc := &Service{cfg: cfg, Engine: eng, store: st, history: hist, sink: sink, bus: bus, log: logg}
	if svc.cycle, err = newCycle(cfg.Cycle, svc.plan); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("planning cycle: %w", err)
	}
	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewPahoPublisher(cfg.MQTT)
		if err != nil {
			_ = svc.Close()
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		svc.mqtt = pub
	}
	svc.server = &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: apiinduction.NewRouter(eng, apiinduction.Options{
			Token:   cfg.HTTP.Token,
			Metrics: promhttp.Handler(),
			Logger:  logger.New("api"),
			Timeout: cfg.HTTP.RequestTimeout,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return svc, nil
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	collected := metrics.StartEventCollector(ctx, s.bus, s.sink)
	var published <-chan struct{}
	if s.mqtt != nil {
		published = mqtt.StartPublisher(ctx, s.bus, s.mqtt, logger.New("mqtt_publisher"))
	}

	var wg sync.WaitGroup
	if s.cfg.Store.Watch {
		w, err := newStoreWatcher(s.cfg.Store.Path, s.Reload, logger.New("store_watcher"))
		if err != nil {
			s.log.Errorf("watch fleet snapshot: %v", err)
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.Run(ctx)
			}()
		}
	}
	if s.cfg.Store.ReloadInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.reloadLoop(ctx, s.cfg.Store.ReloadInterval)
		}()
	}
	if s.cfg.Cycle.RunOnStart {
		s.plan(ctx)
	}
	if s.cycle != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.cycle.Run(ctx)
		}()
	}

	s.log.Infof("HTTP API listening on %s", s.server.Addr)
	err := serve(ctx, s.server, s.cfg.HTTP.ShutdownGrace)
	wg.Wait()
	<-collected
	if published != nil {
		<-published
	}
	return err
}

// serve runs srv until ctx is canceled, then shuts it down within grace.
func serve(ctx context.Context, srv *http.Server, grace time.Duration) error {
	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errc
}

func newCycle(c config.CycleConfig, job scheduler.Job) (*scheduler.Scheduler, error) {
	if c.Interval == 0 {
		return nil, nil
	}
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	return scheduler.New(scheduler.Config{Interval: c.Interval, At: c.At, Location: loc}, job)
}

// plan runs one planning cycle. Shortfalls are logged and kept in history.
func (s *Service) plan(ctx context.Context) {
	ds, err := s.Engine.Plan(ctx, s.cfg.Cycle.Demand)
	switch {
	case errors.Is(err, model.ErrInfeasibleDemand):
		s.log.Warnf("planning cycle: %v", err)
	case err != nil:
		s.log.Errorf("planning cycle: %v", err)
	default:
		s.log.Infof("planning cycle complete: %d in service", len(ds.WithStatus(model.StatusService)))
	}
}

func (s *Service) reloadLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Reload(); err != nil {
				s.log.Errorf("reload fleet snapshot: %v", err)
			}
		}
	}
}

// Reload re-reads the fleet snapshot file. Saved overrides are kept.
func (s *Service) Reload() error {
	snap, err := infrastore.LoadSnapshot(s.cfg.Store.Path)
	if err != nil {
		return err
	}
	s.store.Replace(snap)
	s.log.Debugw("fleet snapshot reloaded", map[string]any{"path": s.cfg.Store.Path, "trainsets": len(snap.Trainsets)})
	return nil
}

// Handler returns the HTTP handler of the API.
func (s *Service) Handler() http.Handler { return s.server.Handler }

// Close releases resources held by the service.
func (s *Service) Close() error {
	var err error
	s.closeOne.Do(func() {
		s.bus.Close()
		if s.mqtt != nil {
			s.mqtt.Disconnect()
		}
		coremetrics.Close(s.sink)
		err = s.history.Close()
	})
	return err
}
