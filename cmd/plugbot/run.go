package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quailyquaily/plugbot/bridge"
	"github.com/quailyquaily/plugbot/dispatch"
	"github.com/quailyquaily/plugbot/i18n"
	"github.com/quailyquaily/plugbot/internal/fsstore"
	"github.com/quailyquaily/plugbot/internal/logutil"
	"github.com/quailyquaily/plugbot/internal/statepaths"
	"github.com/quailyquaily/plugbot/plugin"
	"github.com/quailyquaily/plugbot/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Log in to the active bridge and serve messages until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			name := viper.GetString("active_bridge")
			b, err := bridgeFromViper(name, logger, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return runBot(ctx, botOptions{
				DataDir:           statepaths.DataDir(),
				LocalesDir:        statepaths.LocalesDir(),
				Bridge:            b,
				Plugins:           builtinPlugins(),
				Config:            pluginConfigFromViper(b.Name()),
				WriteBatchSize:    viper.GetInt("internal.db_write_batch_size"),
				DieOnHandlerError: viper.GetBool("debug.die_for_uncaught_error"),
				WatchLocales:      viper.GetBool("i18n.watch"),
				RecordMissing:     viper.GetBool("i18n.record_missing"),
				MetricsListen:     viper.GetString("metrics.listen"),
				DrainTimeout:      viper.GetDuration("shutdown.drain_timeout"),
				Logger:            logger,
			})
		},
	}
	cmd.Flags().String("bridge", "", "Bridge to run (overrides active_bridge).")
	_ = viper.BindPFlag("active_bridge", cmd.Flags().Lookup("bridge"))
	return cmd
}

func pluginConfigFromViper(bridgeName string) plugin.Config {
	prefix := "bridges." + bridgeName + "."
	return plugin.Config{
		SelfPronoun: viper.GetString("self_pronoun"),
		CmdPrefix:   viper.GetString(prefix + "cmd_prefix"),
		Addresser:   viper.GetString(prefix + "bot_addresser"),
		Owners:      viper.GetStringSlice("owners"),
	}
}

type botOptions struct {
	DataDir           string
	LocalesDir        string
	Bridge            bridge.Bridge
	Plugins           []*plugin.Manifest
	Config            plugin.Config
	WriteBatchSize    int
	DieOnHandlerError bool
	WatchLocales      bool
	RecordMissing     bool
	MetricsListen     string
	DrainTimeout      time.Duration
	Logger            *slog.Logger
}

// runBot holds the data dir lock for the whole run so two processes never
// write the same namespace files.
func runBot(ctx context.Context, opts botOptions) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	lockPath, err := fsstore.DirLockPath(opts.DataDir)
	if err != nil {
		return err
	}
	err = fsstore.TryWithLock(ctx, lockPath, func() error {
		return serveBot(ctx, opts)
	})
	if errors.Is(err, fsstore.ErrLockHeld) {
		return fmt.Errorf("data dir %s is used by another plugbot process: %w", opts.DataDir, err)
	}
	return err
}

func serveBot(ctx context.Context, opts botOptions) (err error) {
	logger := opts.Logger
	st := store.NewManager(nil, store.Options{
		Dir:            opts.DataDir,
		WriteBatchSize: opts.WriteBatchSize,
		Logger:         logger,
	})

	var rec i18n.MissingRecorder
	if opts.RecordMissing {
		rec = i18n.NewYAMLRecorder(i18n.RawFile(opts.LocalesDir), logger)
	}
	catalog := i18n.NewCatalog(opts.LocalesDir, rec, logger)

	if err := opts.Bridge.Login(ctx); err != nil {
		return fmt.Errorf("login %s: %w", opts.Bridge.Name(), err)
	}
	defer func() {
		err = errors.Join(err, shutdown(st, opts))
	}()

	cfg := opts.Config
	if strings.TrimSpace(cfg.Addresser) == "" {
		if self := opts.Bridge.Self(); self != nil {
			cfg.Addresser = self.Username
		}
	}
	d, err := dispatch.New(dispatch.Options{
		Store:             st,
		Catalog:           catalog,
		Logger:            logger,
		Config:            cfg,
		DieOnHandlerError: opts.DieOnHandlerError,
	})
	if err != nil {
		return err
	}
	if err := d.Load(ctx, opts.Plugins...); err != nil {
		return err
	}
	logger.Info("bot_ready",
		"bridge", opts.Bridge.Name(),
		"addresser", cfg.Addresser,
		"cmd_prefix", d.Config().CmdPrefix,
		"data_dir", st.Dir(),
		"locales_dir", catalog.Dir(),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	if opts.WatchLocales {
		g.Go(func() error {
			return catalog.Watch(gctx)
		})
	}
	if addr := strings.TrimSpace(opts.MetricsListen); addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics_listen", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		defer cancel()
		return pollLoop(gctx, opts.Bridge, d, logger)
	})
	return g.Wait()
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// pollLoop feeds messages to the dispatcher one at a time until the bridge
// closes or ctx ends.
func pollLoop(ctx context.Context, b bridge.Bridge, d *dispatch.Dispatcher, logger *slog.Logger) error {
	for {
		polled, err := b.Poll(ctx)
		switch {
		case errors.Is(err, bridge.ErrClosed):
			logger.Info("bridge_closed", "bridge", b.Name())
			return nil
		case ctx.Err() != nil:
			return nil
		case err != nil:
			return fmt.Errorf("poll %s: %w", b.Name(), err)
		}
		if err := d.Dispatch(ctx, polled); err != nil {
			return err
		}
	}
}

// shutdown writes every pending namespace and logs out, bounded by the
// drain timeout.
func shutdown(st *store.Manager, opts botOptions) error {
	timeout := opts.DrainTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger, end := logutil.Region(opts.Logger, "shutdown")
	defer end()
	var errs []error
	if err := st.Flush(ctx); err != nil {
		logger.Error("store_flush_failed", "pending", st.Pending(), "error", err.Error())
		errs = append(errs, err)
	}
	if err := opts.Bridge.Logout(ctx); err != nil {
		logger.Warn("bridge_logout_failed", "error", err.Error())
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
