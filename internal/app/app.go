// Package app implements the application layer for kbridge.
package app

import (
	"context"
	"errors"
	"io"
	"os"

	"go.trai.ch/kbridge/internal/adapters/transport/inproc"
	"go.trai.ch/kbridge/internal/adapters/transport/stream"
	"go.trai.ch/kbridge/internal/core/domain"
	"go.trai.ch/kbridge/internal/core/ports"
	"go.trai.ch/kbridge/internal/engine/canonical"
	"go.trai.ch/kbridge/internal/engine/correlator"
	"go.trai.ch/kbridge/internal/engine/dispatcher"
	"go.trai.ch/kbridge/internal/engine/objectcache"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	logger       ports.Logger
	config       *domain.Config
	backend      ports.KernelBackend
	telemetry    ports.Telemetry
	launcher     ports.WorkerLauncher

	out           io.Writer
	workerCommand []string
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	logger ports.Logger,
	cfg *domain.Config,
	backend ports.KernelBackend,
	telemetry ports.Telemetry,
	launcher ports.WorkerLauncher,
) *App {
	return &App{
		configLoader: loader,
		logger:       logger,
		config:       cfg,
		backend:      backend,
		telemetry:    telemetry,
		launcher:     launcher,
		out:          os.Stdout,
	}
}

// WithOutput sets the writer that receives run reports and key descriptions.
func (a *App) WithOutput(w io.Writer) *App {
	a.out = w
	return a
}

// WithWorkerCommand sets the command that starts an out-of-process worker.
// It defaults to the running executable with the "worker" argument.
func (a *App) WithWorkerCommand(command ...string) *App {
	a.workerCommand = command
	return a
}

// RunOptions configures a scenario run.
type RunOptions struct {
	// Process runs the kernel in a spawned worker process instead of in-process.
	Process bool
	// Repeat runs the scenario rounds this many times. Zero means once.
	Repeat int
	// Flush disposes every cached entry after the last round.
	Flush bool
}

// Run drives the scenario at path against a kernel worker and prints the report.
func (a *App) Run(ctx context.Context, path string, opts RunOptions) (*Report, error) {
	scenario, err := a.configLoader.LoadScenario(path)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load scenario")
	}

	report, err := a.run(ctx, scenario, opts)
	if err != nil {
		return nil, err
	}
	if err := report.Print(a.out); err != nil {
		return nil, zerr.Wrap(err, "failed to print report")
	}
	return report, nil
}

func (a *App) run(ctx context.Context, scenario *domain.Scenario, opts RunOptions) (*Report, error) {
	g, gctx := errgroup.WithContext(ctx)

	var (
		caller ports.Transport
		worker *dispatcher.Dispatcher
	)
	if opts.Process {
		t, err := a.launcher.Launch(ctx, a.command())
		if err != nil {
			return nil, zerr.Wrap(err, "failed to launch worker")
		}
		caller = t
	} else {
		callerEnd, workerEnd := inproc.Pipe()
		d, closeJournal, err := a.newDispatcher(workerEnd)
		if err != nil {
			_ = callerEnd.Close()
			return nil, err
		}
		defer a.closeQuietly("journal", closeJournal)
		caller, worker = callerEnd, d
		g.Go(func() error { return d.Serve(gctx) })
	}

	c := correlator.New(caller,
		correlator.WithLogger(a.logger),
		correlator.WithErrorHook(func(id, function string, err error) {
			a.logger.Debug("call rejected", "id", id, "function", function, "error", err)
		}),
		correlator.WithStateHook(func(s domain.WorkerState) {
			a.logger.Debug("worker state changed", "state", string(s))
		}),
	)

	stopped := make(chan struct{})
	g.Go(func() error {
		defer close(stopped)
		return c.Listen(gctx)
	})

	report := &Report{Scenario: scenario.Name}
	g.Go(func() error {
		driveErr := a.drive(gctx, c, stopped, scenario, opts, report)
		closeErr := caller.Close()
		return errors.Join(driveErr, closeErr)
	})

	if err := g.Wait(); err != nil {
		return nil, zerr.Wrap(err, "scenario run failed")
	}

	if worker != nil {
		stats := worker.Cache().Stats()
		report.Cache = &stats
	}
	if t, ok := a.telemetry.(totaler); ok {
		totals := t.Totals()
		report.Telemetry = &totals
	}
	return report, nil
}

func (a *App) drive(
	ctx context.Context,
	c *correlator.Correlator,
	stopped <-chan struct{},
	scenario *domain.Scenario,
	opts RunOptions,
	report *Report,
) error {
	select {
	case <-c.Ready():
	case <-stopped:
		return zerr.Wrap(domain.ErrTransportClosed, "worker stopped before announcing itself")
	case <-ctx.Done():
		return ctx.Err()
	}

	repeat := max(opts.Repeat, 1)
	d := newDriver(c)
	for rep := range repeat {
		for r, round := range scenario.Rounds {
			n := rep*len(scenario.Rounds) + r + 1
			if err := c.StartRound(ctx); err != nil {
				return zerr.With(zerr.Wrap(err, "failed to start round"), "round", n)
			}
			outcomes, err := d.round(ctx, n, round)
			if err != nil {
				return err
			}
			report.Outcomes = append(report.Outcomes, outcomes...)
		}
	}

	if opts.Flush {
		if err := c.Flush(ctx); err != nil {
			return zerr.Wrap(err, "failed to flush worker cache")
		}
	}
	return nil
}

// ServeWorker serves the configured kernel over r and w until r is exhausted.
func (a *App) ServeWorker(ctx context.Context, r io.Reader, w io.Writer) error {
	t := stream.New(r, w, stream.WithLogger(a.logger))
	defer a.closeQuietly("transport", t.Close)

	d, closeJournal, err := a.newDispatcher(t)
	if err != nil {
		return err
	}
	defer a.closeQuietly("journal", closeJournal)
	defer a.closeQuietly("telemetry", a.telemetry.Close)

	a.logger.Debug("worker serving", "kernel", a.backend.Name(), "pid", os.Getpid())
	if err := d.Serve(ctx); err != nil {
		return zerr.Wrap(err, "worker failed")
	}

	stats := d.Cache().Stats()
	a.logger.Info("worker stopped",
		"entries", stats.Entries,
		"handles", stats.Handles,
		"hits", stats.Hits,
		"misses", stats.Misses,
		"evictions", stats.Evictions,
	)
	return nil
}

// Hash prints the cache key and canonical form of the call described at path.
func (a *App) Hash(path string) (domain.CacheKey, error) {
	args, err := a.configLoader.LoadCall(path)
	if err != nil {
		return 0, zerr.Wrap(err, "failed to load call")
	}

	key, form, err := canonical.NewHasher(a.config.Cache.TransientFields...).Describe(args)
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to hash call"), "path", path)
	}

	if _, err := io.WriteString(a.out, key.String()+"  "+form+"\n"); err != nil {
		return 0, zerr.Wrap(err, "failed to print key")
	}
	return key, nil
}

// newDispatcher builds a dispatcher with its own cache for the configured backend.
// The returned function closes the key journal.
func (a *App) newDispatcher(t ports.Transport) (*dispatcher.Dispatcher, func() error, error) {
	journal, err := openJournal(a.config.Journal)
	if err != nil {
		return nil, nil, err
	}

	cacheOpts := []objectcache.Option{objectcache.WithLogger(a.logger)}
	if journal != nil {
		cacheOpts = append(cacheOpts, objectcache.WithJournal(journal))
	}
	cache := objectcache.New(
		canonical.NewHasher(a.config.Cache.TransientFields...),
		a.backend.Handles(),
		cacheOpts...,
	)

	d := dispatcher.New(t, a.backend, cache,
		dispatcher.WithLogger(a.logger),
		dispatcher.WithTelemetry(a.telemetry),
		dispatcher.WithFlushThreshold(a.config.Cache.FlushThreshold),
	)

	closeJournal := func() error {
		if journal == nil {
			return nil
		}
		return journal.Close()
	}
	return d, closeJournal, nil
}

func (a *App) command() []string {
	if len(a.workerCommand) > 0 {
		return a.workerCommand
	}
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	return []string{exe, "worker"}
}

func (a *App) closeQuietly(what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		a.logger.Warn("failed to close "+what, "error", err)
	}
}
