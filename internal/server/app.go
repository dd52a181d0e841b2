// Package server initializes and runs the forum server application. It
// wires the credential store, forum store, transfer coordinator, and UDP
// dispatcher together and handles graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"udpforum/internal/filex"
	"udpforum/internal/logging"
	"udpforum/internal/server/auth"
	"udpforum/internal/server/config"
	"udpforum/internal/server/creds"
	"udpforum/internal/server/store"
	"udpforum/internal/server/transfer"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	dispatcher *Dispatcher
}

func NewApp(cfg *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	uploadDir, err := filex.EnsureDir(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("upload dir init error: %w", err)
	}

	st := store.New()
	users := auth.NewManager(creds.NewFileRepository(cfg.CredentialsFile))
	transfers := transfer.NewCoordinator(logger, st, uploadDir, []byte(cfg.SecretKey), cfg.TicketValidityDuration, transfer.DefaultAcceptTimeout)

	d := NewDispatcher(cfg, logger, st, users, transfers)

	return &App{config: cfg, logger: logger, dispatcher: d}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.dispatcher.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()
}
