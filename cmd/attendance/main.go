package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-attendance/attendance"
	"github.com/jrsteele09/go-attendance/internal/config"
	"github.com/jrsteele09/go-attendance/internal/janitor"
	"github.com/jrsteele09/go-attendance/internal/logging"
	"github.com/jrsteele09/go-attendance/internal/metrics"
	"github.com/jrsteele09/go-attendance/kvstore"
	"github.com/jrsteele09/go-attendance/loginsession"
	"github.com/jrsteele09/go-attendance/qrsession"
	"github.com/jrsteele09/go-attendance/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	demo := flag.Bool("demo", false, "run the teacher/student walkthrough once and exit")
	envFile := flag.String("env", ".env", "dotenv file to load")
	flag.Parse()

	if err := run(*envFile, *demo); err != nil {
		log.Fatal().Err(err).Msg("attendance stopped with an error")
	}
	log.Info().Msg("attendance stopped")
}

// app is everything one process shares between its tabs.
type app struct {
	cfg      config.Config
	store    kvstore.Store
	users    users.UserRepo
	engine   *qrsession.Engine
	ledger   *attendance.Ledger
	marker   *attendance.Marker
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	logger   zerolog.Logger
}

// newTab returns the login session manager of a fresh tab with its own tab storage.
func (a *app) newTab() *loginsession.Manager {
	return loginsession.NewManager(a.store, kvstore.NewMemory(), a.users,
		loginsession.WithTTL(a.cfg.GetSessionTTL()),
		loginsession.WithLogger(a.logger.With().Str("component", "loginsession").Logger()),
		loginsession.WithMetrics(a.metrics),
	)
}

func run(envFile string, demo bool) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}
	logger := logging.Setup(c.GetLogLevel(), c.GetEnv())
	displayAppname(c.GetAppName())

	store, closeStore, err := openStore(c.GetDataFile())
	if err != nil {
		return err
	}
	defer closeStore()

	a, err := newApp(c, store, logger)
	if err != nil {
		return err
	}

	stopJanitor := janitor.Start(context.Background(), logger,
		janitor.Task{Name: "qr_sessions", Interval: c.GetQRCleanupInterval(), Run: a.engine.CleanupExpired},
		janitor.Task{Name: "login_sessions", Interval: c.GetSessionCleanupInterval(), Run: a.newTab().CleanupExpiredSessions},
		janitor.Task{Name: "scan_lists", Interval: c.GetScanCleanupInterval(), Run: func() (int, error) {
			return a.ledger.SweepScanLists(a.engine)
		}},
	)
	defer stopJanitor()

	if demo {
		returnError = runDemo(a)
	} else {
		logger.Info().Str("env", c.GetEnv()).Str("dataFile", c.GetDataFile()).Msg("attendance engine ready")
		waitForStopSignal()
	}

	stopJanitor()
	logTotals(logger, a.registry)
	return returnError
}

func newApp(c config.Config, store kvstore.Store, logger zerolog.Logger) (*app, error) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	userRepo := users.NewKVRepo(store)
	seeded, err := users.SeedDefaults(userRepo)
	if err != nil {
		return nil, fmt.Errorf("users.SeedDefaults: %w", err)
	}
	if seeded {
		logger.Info().Msg("default accounts created")
	}

	engine := qrsession.NewEngine(store,
		qrsession.WithValidity(c.GetQRValidity()),
		qrsession.WithRetention(c.GetQRRetention()),
		qrsession.WithLogger(logger.With().Str("component", "qrsession").Logger()),
		qrsession.WithMetrics(m),
	)
	ledger := attendance.NewLedger(store, attendance.WithLedgerLogger(logger.With().Str("component", "attendance").Logger()))

	return &app{
		cfg:      c,
		store:    store,
		users:    userRepo,
		engine:   engine,
		ledger:   ledger,
		marker:   attendance.NewMarker(engine, ledger, attendance.WithMetrics(m)),
		metrics:  m,
		registry: registry,
		logger:   logger,
	}, nil
}

// openStore opens the SQLite file at path, or an in-memory store when path is empty.
func openStore(path string) (kvstore.Store, func(), error) {
	if path == "" {
		return kvstore.NewMemory(), func() {}, nil
	}
	s, err := kvstore.OpenSQLite(path)
	if err != nil {
		return nil, nil, fmt.Errorf("kvstore.OpenSQLite: %w", err)
	}
	return s, func() {
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Msg("closing data file")
		}
	}, nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func logTotals(logger zerolog.Logger, registry *prometheus.Registry) {
	families, err := registry.Gather()
	if err != nil {
		logger.Warn().Err(err).Msg("gathering metrics")
		return
	}
	for _, fam := range families {
		var total float64
		for _, m := range fam.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		logger.Info().Str("metric", fam.GetName()).Float64("total", total).Msg("totals")
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
