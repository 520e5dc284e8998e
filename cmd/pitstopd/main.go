package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"pitstop/internal/config"
	"pitstop/internal/engine"
	"pitstop/internal/notify"
	"pitstop/internal/store"
	logx "pitstop/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml/json")
	flag.Parse()

	// Secrets (SENDGRID_API_KEY) come from the environment; .env is a
	// convenience for local runs.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	defer logSvc.Close()
	mgr.SetLogger(log)

	st, err := store.Open(store.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.BusyTimeoutDuration(),
	}, log.With(logx.String("component", "store")))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	mailer := notify.NewSendGrid(cfg.Mailer.FromEmail, cfg.Mailer.FromName)
	sender := notify.NewService(notify.Config{
		Enabled:       cfg.Mailer.Enabled,
		RatePerMinute: cfg.Mailer.RatePerMinute,
	}, mailer, log.With(logx.String("component", "notify")))

	eng, err := engine.New(engine.Config{
		Timezone:      cfg.Engine.Timezone,
		TickInterval:  cfg.TickIntervalDuration(),
		FailurePolicy: cfg.Engine.FailurePolicy,
	}, st, sender, log.With(logx.String("component", "engine")))
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer eng.Stop()

	// Hot reload: logging and mailer knobs can change at runtime. Engine
	// timezone/tick changes need a restart and are logged as such.
	mgr.OnChange(func(next *config.Config) {
		logSvc.Apply(logx.Config{
			Level:   next.Logging.Level,
			Console: next.Logging.Console,
			File: logx.FileConfig{
				Enabled: next.Logging.File.Enabled,
				Path:    next.Logging.File.Path,
			},
		})
		sender.Apply(notify.Config{
			Enabled:       next.Mailer.Enabled,
			RatePerMinute: next.Mailer.RatePerMinute,
		})
		if next.Engine != cfg.Engine {
			log.Warn("engine config changed; restart required to apply")
		}
	})
	go func() {
		if err := mgr.Watch(ctx); err != nil {
			log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("sd_notify failed", logx.Err(err))
	} else if ok {
		log.Debug("sd_notify: ready")
	}

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	return nil
}
