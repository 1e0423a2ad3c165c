package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-session-keeper/internal/config"
	"github.com/jrsteele09/go-session-keeper/internal/metrics"
	"github.com/jrsteele09/go-session-keeper/provider"
	"github.com/jrsteele09/go-session-keeper/refresh"
	"github.com/jrsteele09/go-session-keeper/server"
	"github.com/jrsteele09/go-session-keeper/triggers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Err(err).Msg("Error running server, restarting")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Recovered from panic: %v", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	ctx := context.Background()
	store, closeStore, err := newSessionRepo(ctx, c)
	if err != nil {
		return err
	}
	defer closeStore()

	refresher, err := newRefresher(ctx, c)
	if err != nil {
		return err
	}
	client := provider.NewClient(store, refresher, c.GetSessionKey(), log.Logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	refreshMetrics, err := metrics.NewRefresh(reg)
	if err != nil {
		return fmt.Errorf("metrics.NewRefresh: %w", err)
	}

	visible := triggers.NewManual("visible")
	online := triggers.NewManual("online")
	resumed := triggers.NewSignal(syscall.SIGCONT)
	resumed.Start()
	defer resumed.Stop()
	wakeTriggers := []refresh.Trigger{visible, online, resumed}

	if addr := c.GetConnectivityProbeAddr(); addr != "" {
		probe := triggers.NewConnectivity(triggers.ConnectivityConfig{
			Addr:     addr,
			Interval: c.GetConnectivityProbeInterval(),
			Log:      log.Logger,
		})
		probe.Start(ctx)
		defer probe.Stop()
		wakeTriggers = append(wakeTriggers, probe)
	}

	scheduler := refresh.New(client, refreshConfig(c),
		refresh.WithLogger(log.Logger),
		refresh.WithMetrics(refreshMetrics),
		refresh.WithTriggers(wakeTriggers...),
	)
	if err := scheduler.Initialize(ctx); err != nil {
		return fmt.Errorf("scheduler.Initialize: %w", err)
	}
	defer scheduler.Destroy()

	handler := server.New(c, scheduler, client, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), visible, online)
	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler}

	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(httpServer) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

func refreshConfig(c config.RefreshConfig) refresh.Config {
	return refresh.Config{
		RefreshMargin:   c.GetRefreshMargin(),
		MaxRetries:      c.GetMaxRetries(),
		RetryDelay:      c.GetRetryDelay(),
		MinRefreshDelay: refresh.DefaultMinRefreshDelay,
	}
}

func setupLogging(c config.EnvConfig) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Msgf("Server listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
