package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/tsw"
	"github.com/aretw0/tsw/internal/presentation/tui"
	"github.com/aretw0/tsw/internal/runtime"
	"github.com/aretw0/tsw/pkg/adapters/file"
	httpAdapter "github.com/aretw0/tsw/pkg/adapters/http"
	"github.com/aretw0/tsw/pkg/adapters/process"
	"github.com/aretw0/tsw/pkg/adapters/redis"
	"github.com/aretw0/tsw/pkg/adapters/tmux"
	"github.com/aretw0/tsw/pkg/runner"
)

// shutdownTimeout bounds the graceful stop of the ops HTTP server.
const shutdownTimeout = 5 * time.Second

// Daemon is the long-running supervisor of one host: the dispatch loop plus
// the optional relay, notifier and ops HTTP server.
type Daemon struct {
	app     *App
	tracker *runtime.Tracker
	engine  *runtime.Engine
	server  *http.Server
}

// NewDaemon wires the execution engine for app. ctx bounds the output
// interpreters and must outlive Run.
func NewDaemon(ctx context.Context, app *App) (*Daemon, error) {
	cfg := app.Config
	logger := app.Logger

	hooks := map[string]process.HookConfig{}
	if cfg.Provision.Hooks != "" {
		var err error
		if hooks, err = process.LoadHooks(cfg.Provision.Hooks); err != nil {
			return nil, err
		}
	}

	mux := tmux.New(cfg.SocketPath(), tmux.WithBinary(cfg.Tmux.Binary), tmux.WithLogger(logger))
	fs := afero.NewOsFs()
	provisioner := process.NewProvisioner(cfg.Server.Command,
		process.WithHooks(hooks),
		process.WithPlatforms(cfg.Provision.Platforms...),
		process.WithLogger(logger),
	)
	tracker := runtime.NewTracker(ctx, app.Manager, mux,
		runtime.WithProbeSettle(cfg.Timeouts.ProbeSettle),
		runtime.WithTrackerHooks(app.Hooks),
		runtime.WithTrackerLogger(logger),
	)
	engine := runtime.NewEngine(app.Manager, mux, file.New(fs, cfg.InstancesDir()), provisioner,
		runtime.WithWorlds(app.Store),
		runtime.WithArchiver(file.NewArchiver(fs, cfg.ArchiveRoot())),
		runtime.WithTracker(tracker),
		runtime.WithTimeouts(runtime.Timeouts{
			Command:     cfg.Timeouts.Command,
			Boot:        cfg.Timeouts.Boot,
			ModReload:   cfg.Timeouts.ModReload,
			WorldCreate: cfg.Timeouts.WorldCreate,
			Shutdown:    cfg.Timeouts.Shutdown,
		}),
		runtime.WithLogger(logger),
	)

	d := &Daemon{app: app, tracker: tracker, engine: engine}
	if cfg.Metrics.Addr != "" {
		d.server = &http.Server{
			Addr: cfg.Metrics.Addr,
			Handler: httpAdapter.NewHandler(app.Instances,
				httpAdapter.WithHub(app.Manager.Hub()),
				httpAdapter.WithGatherer(app.Registry),
				httpAdapter.WithLogger(logger),
			),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return d, nil
}

// Run dispatches actions until stop is closed or ctx is canceled. A stop
// lets the action in flight finish; a canceled ctx interrupts it.
func (d *Daemon) Run(ctx context.Context, stop <-chan struct{}) error {
	defer d.tracker.Close()
	cfg := d.app.Config

	r := runner.New(
		runner.WithHostID(cfg.Host),
		runner.WithManager(d.app.Manager),
		runner.WithEngine(d.engine),
		runner.WithPollInterval(cfg.Dispatch.PollInterval),
		runner.WithHooks(d.app.Hooks),
		runner.WithLogger(d.app.Logger),
		runner.WithStopSource(stop),
	)

	g, gctx := errgroup.WithContext(ctx)
	auxCtx, stopAux := context.WithCancel(gctx)
	defer stopAux()

	g.Go(func() error {
		defer stopAux()
		return r.Run(gctx)
	})
	if d.app.Redis != nil {
		relay := redis.NewRelay(d.app.Redis, d.app.Manager.Hub(), cfg.Host, d.app.Origin,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithLogger(d.app.Logger),
		)
		g.Go(func() error { return ignoreCanceled(relay.Run(auxCtx)) })
		g.Go(func() error { return ignoreCanceled(d.app.Notifier.Run(auxCtx)) })
	}
	if d.server != nil {
		g.Go(func() error { return d.serve(auxCtx) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (d *Daemon) serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		d.app.Logger.Info("Ops server listening", "addr", d.server.Addr)
		errc <- d.server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ops server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.app.Logger.Warn("Graceful shutdown did not complete", "err", err)
			_ = d.server.Close()
		}
		return nil
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// RunDaemon runs the supervisor until SIGINT or SIGTERM. The first signal
// drains the dispatch loop, a second one interrupts the action in flight.
func RunDaemon(app *App, out io.Writer) error {
	sm := runner.NewSignalManager()
	defer sm.Stop()

	if tui.IsTerminal(out) {
		tui.PrintBanner(out, tsw.Version)
	}

	d, err := NewDaemon(sm.Context(), app)
	if err != nil {
		return err
	}
	app.Logger.Info("Supervisor started", "host_id", app.Config.Host, "database", app.Config.DatabasePath())
	go func() {
		<-sm.Drain()
		printSystemMessage(out, "Draining, waiting for the running action. Press Ctrl+C again to interrupt it.")
	}()

	if err := d.Run(sm.Context(), sm.Drain()); err != nil {
		return err
	}
	printSystemMessage(out, "Supervisor stopped.")
	return nil
}
