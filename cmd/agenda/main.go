// Command agenda runs the calendaring backend: the JSON API, the CalDAV
// endpoint and the notification scheduler, all over one SQLite database.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"agenda/internal/api"
	"agenda/internal/caldav"
	"agenda/internal/config"
	"agenda/internal/event"
	"agenda/internal/filter"
	"agenda/internal/notify"
	"agenda/internal/scheduler"
	"agenda/internal/store"
)

func main() {
	cfg := config.FromEnv()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	db, err := store.Open(cfg.DBPath, log)
	if err != nil {
		return err
	}

	compiler := filter.NewCompiler(filter.DefaultRegistry(), log)
	events := event.NewManager(db, compiler, log)

	sink := &notify.Dispatcher{
		Email: notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}),
		WhatsApp: notify.NewWhatsAppClient(cfg.WhatsAppURL),
	}
	sched := scheduler.New(db, sink, log)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	bridge := caldav.NewBridge(db, events)
	dav := caldav.NewHandler(cfg.DavPrefix, "agenda", bridge, log)

	mux := http.NewServeMux()
	mux.Handle(strings.TrimSuffix(cfg.DavPrefix, "/")+"/", dav)
	mux.Handle("/", api.New(db, events, compiler, log).Routes())

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.ListenAddr, "dav_prefix", cfg.DavPrefix)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
