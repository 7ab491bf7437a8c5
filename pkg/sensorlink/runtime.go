package sensorlink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/avetra/sensorlink/internal/adapters/buffer"
	"github.com/avetra/sensorlink/internal/adapters/observability"
	"github.com/avetra/sensorlink/internal/adapters/socket"
	"github.com/avetra/sensorlink/internal/adapters/statusfeed"
	"github.com/avetra/sensorlink/internal/adapters/store"
	"github.com/avetra/sensorlink/internal/adapters/wireless"
	"github.com/avetra/sensorlink/internal/app/health"
	"github.com/avetra/sensorlink/internal/app/manager"
	"github.com/avetra/sensorlink/internal/app/session"
	"github.com/avetra/sensorlink/internal/domain"
	"github.com/avetra/sensorlink/internal/ports"
)

// Version is stamped into every saved session batch.
const Version = "1.2.0"

const pressurePollInterval = 5 * time.Second

// Option customizes the dependencies used by Runtime.
type Option func(*overrides)

type overrides struct {
	transports      []ports.Transport
	wirelessBackend wireless.Backend
	store           ports.BatchStore
	capability      ports.Capability
	observability   ports.Observability
	pressure        ports.MemoryPressureSource
}

// WithTransports replaces the default transport set entirely (simulators,
// extra links, test fakes).
func WithTransports(ts ...Transport) Option {
	return func(o *overrides) { o.transports = ts }
}

// WithWirelessBackend supplies the platform radio stack; without it the
// wireless transport is left out and only the socket transport is wired.
func WithWirelessBackend(b wireless.Backend) Option {
	return func(o *overrides) { o.wirelessBackend = b }
}

// WithStore injects a custom batch store.
func WithStore(s BatchStore) Option {
	return func(o *overrides) { o.store = s }
}

// WithCapability injects the host platform's permission/feature check.
func WithCapability(c Capability) Option {
	return func(o *overrides) { o.capability = c }
}

// WithObservability plugs in a custom telemetry backend.
func WithObservability(obs Observability) Option {
	return func(o *overrides) { o.observability = obs }
}

// WithMemoryPressure wires an external memory-pressure signal into the
// session buffer.
func WithMemoryPressure(src MemoryPressureSource) Option {
	return func(o *overrides) { o.pressure = src }
}

// Runtime wires the transports, connection manager, health monitor,
// session recorder, store, and telemetry into one embeddable unit.
type Runtime struct {
	cfg      *Config
	obs      ports.Observability
	manager  *manager.Manager
	monitor  *health.Monitor
	recorder *session.Recorder
	store    ports.BatchStore
	pressure ports.MemoryPressureSource
	db       *sql.DB
	archive  *store.Archive
	feed     *statusfeed.Hub
	srv      *http.Server
}

// NewRuntime bootstraps the default adapters: the socket transport from
// config, the wireless transport when a backend is supplied, a file store,
// and Prometheus observability. Options override any of them.
func NewRuntime(cfg *Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var o overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	obs := o.observability
	if obs == nil {
		obs = observability.NewPromObs()
	}

	transports := o.transports
	if transports == nil {
		transports = []ports.Transport{socket.NewConnector(cfg.Socket, obs)}
		if o.wirelessBackend != nil {
			transports = append(transports, wireless.NewConnector(cfg.Wireless, o.wirelessBackend, obs))
		}
	}
	if len(transports) == 0 {
		return nil, fmt.Errorf("at least one transport is required")
	}

	batchStore := o.store
	if batchStore == nil {
		fs, err := store.NewFileStore(cfg.Storage.Dir)
		if err != nil {
			return nil, err
		}
		batchStore = fs
	}

	mgr := manager.New(transports, o.capability, obs)
	mon := health.NewMonitor(cfg.Health, mgr, obs)
	ring := buffer.NewRing(cfg.Policy.BufferCapacity)
	rec := session.NewRecorder(ring, batchStore, obs, Version)

	rt := &Runtime{
		cfg:      cfg,
		obs:      obs,
		manager:  mgr,
		monitor:  mon,
		recorder: rec,
		store:    batchStore,
		pressure: o.pressure,
		feed:     statusfeed.NewHub(mgr.StatusWatch(), mon.Health(), obs),
	}

	if cfg.Archive.ConnString != "" {
		db, err := sql.Open("postgres", cfg.Archive.ConnString)
		if err != nil {
			return nil, err
		}
		rt.db = db
		rt.archive = store.NewArchive(db, cfg.Archive.Table)
	}

	return rt, nil
}

func (r *Runtime) Manager() *manager.Manager   { return r.manager }
func (r *Runtime) Monitor() *health.Monitor    { return r.monitor }
func (r *Runtime) Recorder() *session.Recorder { return r.recorder }
func (r *Runtime) Store() BatchStore           { return r.store }

// Run serves the health monitor, the metrics endpoint, and the status feed
// until ctx is cancelled, then shuts everything down.
func (r *Runtime) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/feed", r.feed)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.srv = &http.Server{Addr: r.cfg.Metrics.Addr, Handler: mux}

	g.Go(func() error {
		if err := r.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		r.monitor.Start(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return r.srv.Shutdown(shutdownCtx)
	})
	if r.pressure != nil {
		g.Go(func() error {
			r.pollPressure(gctx)
			return nil
		})
	}

	err := g.Wait()

	var errs []error
	if err != nil && !errors.Is(err, context.Canceled) {
		errs = append(errs, err)
	}
	if derr := r.manager.DisconnectFromDevice(context.Background()); derr != nil {
		errs = append(errs, derr)
	}
	if r.db != nil {
		if cerr := r.db.Close(); cerr != nil {
			errs = append(errs, cerr)
		}
	}
	return errors.Join(errs...)
}

func (r *Runtime) pollPressure(ctx context.Context) {
	ticker := time.NewTicker(pressurePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.recorder.Buffer().ApplyPressure(r.pressure.Pressure())
		}
	}
}

// Record consumes the active device's stream into the session buffer until
// ctx is cancelled, autosaving along the way when configured. On exit any
// remaining readings are persisted; a failed save leaves them buffered.
func (r *Runtime) Record(ctx context.Context, metadata map[string]string) error {
	dev := r.manager.ConnectedDevice()
	if dev == nil {
		return domain.ErrNoActiveConnection
	}

	stream, err := r.manager.StartStreaming(ctx)
	if err != nil {
		return err
	}

	sinceSave := 0
	for {
		select {
		case <-ctx.Done():
			return r.finalSave(*dev, metadata)
		case reading, ok := <-stream:
			if !ok {
				return r.finalSave(*dev, metadata)
			}
			r.recorder.Append(reading)
			sinceSave++
			if r.cfg.Policy.AutosaveEvery > 0 && sinceSave >= r.cfg.Policy.AutosaveEvery {
				if _, err := r.SaveSession(*dev, metadata); err != nil {
					r.obs.LogError("autosave_failed", err)
				} else {
					sinceSave = 0
				}
			}
		}
	}
}

func (r *Runtime) finalSave(dev Device, metadata map[string]string) error {
	_, err := r.SaveSession(dev, metadata)
	if errors.Is(err, domain.ErrNoDataToSave) {
		return nil
	}
	return err
}

// SaveSession persists the current buffer as one artifact and mirrors it
// into the SQL archive when one is configured. The buffer is only cleared
// after the primary save succeeds; a failing archive mirror is reported
// but does not undo the save.
func (r *Runtime) SaveSession(dev Device, metadata map[string]string) (ArtifactInfo, error) {
	info, err := r.recorder.SaveCurrentSession(dev, metadata)
	if err != nil {
		return info, err
	}

	if r.archive != nil {
		batch, err := r.store.Load(info.Name)
		if err != nil {
			r.obs.LogError("archive_reload_failed", err)
			return info, nil
		}
		if err := r.archive.WriteBatch(batch); err != nil {
			r.obs.LogError("archive_mirror_failed", err)
		}
	}
	return info, nil
}
