package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/searchktools/hermit-server/config"
	"github.com/searchktools/hermit-server/core"
	"github.com/searchktools/hermit-server/core/logger"
	"github.com/sirupsen/logrus"
)

// App ties the logger and engine lifecycles to the process.
type App struct {
	cfg    *config.Config
	log    *logger.Logger
	engine *core.Engine
}

// New creates the logger and binds the engine described by cfg.
func New(cfg *config.Config) (*App, error) {
	log := logger.New(os.Stderr, cfg.LogBuffer, cfg.Level())

	engine, err := core.NewEngine(core.Options{
		Host:          cfg.Host,
		Port:          cfg.Port,
		MaxLines:      cfg.MaxLines,
		StreamTimeout: cfg.SocketTimeout,
		Logger:        log,
	})
	if err != nil {
		log.Errorf("server startup failed: %v", err)
		log.Close()
		return nil, err
	}

	return &App{
		cfg:    cfg,
		log:    log,
		engine: engine,
	}, nil
}

// Engine returns the underlying engine for route registration
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Logger returns the application logger
func (a *App) Logger() logrus.Ext1FieldLogger {
	return a.log
}

// Run serves until SIGINT, SIGTERM or Shutdown. The logger is closed on
// return, so Run can only be called once.
func (a *App) Run() error {
	defer a.log.Close()

	if a.cfg.StaticDir != "" {
		n, err := a.engine.ServeStatic(a.cfg.StaticPrefix, a.cfg.StaticDir)
		if err != nil {
			a.log.Errorf("failed to load static files: %v", err)
			return fmt.Errorf("static files: %w", err)
		}
		a.log.Infof("serving %d static files from %s under %s", n, a.cfg.StaticDir, a.cfg.StaticPrefix)
	}

	done := make(chan struct{})
	defer close(done)
	go a.awaitSignal(done)

	a.log.Infof("hermit server starting on %s [%s]", a.engine.Addr(), a.cfg.Env)
	err := a.engine.Start()
	if err != nil {
		a.log.Errorf("server stopped: %v", err)
	}
	a.log.Infof("final statistics:\n%s", a.engine.Stats())
	return err
}

// Shutdown stops accepting connections. Run returns once in-flight
// connections are served.
func (a *App) Shutdown() {
	a.engine.Stop()
}

func (a *App) awaitSignal(done <-chan struct{}) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		a.log.Infof("signal received: %v, shutting down", sig)
		a.Shutdown()
	case <-done:
	}
}
