package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var (
	flagMetricsAddr string
	flagDebounce    time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch [paths...]",
	Short: "Check the sources again whenever they change",
	Long: "Check the sources, then watch them and check again after every change.\n" +
		"Bursts of file events are coalesced with --debounce.\n\n" +
		"With --metrics-addr (or watch.metrics_addr), an HTTP server exposes\n" +
		"  /metrics  Prometheus metrics of the engine\n" +
		"  /report   the latest report as JSON\n" +
		"  /health   liveness",
	ValidArgsFunction: completeSources,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := args
		if len(paths) == 0 {
			paths = cfg.Paths
		}
		if _, err := resolveSources(paths, cfg); err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		r, err := newRunner(cfg, logger, cfg.Enabled && !flagDisable, reg, io.Discard)
		if err != nil {
			return err
		}

		w := &watcher{
			r:        r,
			paths:    paths,
			store:    &reportStore{},
			out:      cmd.OutOrStdout(),
			debounce: cfg.Watch.Debounce,
		}
		if cmd.Flags().Changed("debounce") {
			w.debounce = flagDebounce
		}

		addr := cfg.Watch.MetricsAddr
		if flagMetricsAddr != "" {
			addr = flagMetricsAddr
		}
		if addr != "" {
			srv := &http.Server{
				Addr:              addr,
				Handler:           newRouter(reg, w.store, logger),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				logger.Info().Str("addr", addr).Msg("serving metrics and report")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error().Err(err).Msg("metrics server stopped")
				}
			}()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
		}

		return w.run(cmd.Context())
	},
}

func init() {
	watchCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve /metrics and /report on this address (e.g. 127.0.0.1:9464)")
	watchCmd.Flags().DurationVar(&flagDebounce, "debounce", 250*time.Millisecond, "quiet period before checking again")
	watchCmd.Flags().BoolVar(&flagDisable, "disable", false, "load the sources with checking turned off")
}

// watcher re-checks paths on file changes.
type watcher struct {
	r        *runner
	paths    []string
	store    *reportStore
	out      io.Writer
	debounce time.Duration
}

// check resolves the sources again, so files created since the last run are
// picked up, and publishes the report.
func (w *watcher) check(ctx context.Context) {
	files, err := resolveSources(w.paths, cfg)
	if err != nil {
		fmt.Fprintln(w.out, styleWarn.Render(err.Error()))
		return
	}
	rep := w.r.run(ctx, files)
	w.store.set(rep)
	fmt.Fprintln(w.out, styleDim.Render(fmt.Sprintf("── %s ──", rep.Started.Format(time.TimeOnly))))
	renderText(w.out, rep)
}

func (w *watcher) run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	for _, p := range w.paths {
		if err := w.add(fw, p); err != nil {
			return err
		}
	}

	w.check(ctx)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				w.addCreated(fw, event.Name)
			}
			if !w.relevant(event) {
				continue
			}
			logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("change detected")
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("watch error")
		case <-timer.C:
			w.check(ctx)
		}
	}
}

// add watches p. Directories are watched with all their subdirectories; for
// a file, its directory is watched.
func (w *watcher) add(fw *fsnotify.Watcher, p string) error {
	info, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("watching %s: %w", p, err)
	}
	if !info.IsDir() {
		return fw.Add(filepath.Dir(p))
	}
	return filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != p && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// addCreated watches name if it is a newly created directory.
func (w *watcher) addCreated(fw *fsnotify.Watcher, name string) {
	info, err := os.Stat(name)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.add(fw, name); err != nil {
		logger.Warn().Err(err).Str("dir", name).Msg("cannot watch new directory")
	}
}

// relevant reports whether event touches a source file.
func (w *watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return sourceExts[strings.ToLower(filepath.Ext(event.Name))]
}
