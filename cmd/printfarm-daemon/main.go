package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/polyforge/printfarm-go/internal/adapters/metrics"
	"github.com/polyforge/printfarm-go/internal/adapters/persistence"
	"github.com/polyforge/printfarm-go/internal/adapters/printhost"
	"github.com/polyforge/printfarm-go/internal/adapters/rest"
	"github.com/polyforge/printfarm-go/internal/application/dispatch"
	"github.com/polyforge/printfarm-go/internal/application/fleet"
	"github.com/polyforge/printfarm-go/internal/application/orders"
	appscheduling "github.com/polyforge/printfarm-go/internal/application/scheduling"
	"github.com/polyforge/printfarm-go/internal/application/slicing"
	"github.com/polyforge/printfarm-go/internal/domain/scheduling"
	"github.com/polyforge/printfarm-go/internal/domain/shared"
	"github.com/polyforge/printfarm-go/internal/infrastructure/config"
	"github.com/polyforge/printfarm-go/internal/infrastructure/database"
	"github.com/polyforge/printfarm-go/internal/infrastructure/logging"
	"github.com/polyforge/printfarm-go/internal/infrastructure/pidfile"
)

func main() {
	forceFlag := flag.Bool("force", false, "Kill any existing daemon and start a new one")
	configFlag := flag.String("config", "", "Path to config file (default: search standard locations)")
	flag.Parse()

	fmt.Println("PrintFarm Daemon v0.1.0")
	fmt.Println("=======================")

	cfg := config.MustLoadConfig(*configFlag)

	fmt.Printf("Acquiring PID file lock: %s\n", cfg.Daemon.PIDFile)
	pf := pidfile.New(cfg.Daemon.PIDFile)
	if err := pf.Acquire(); err != nil {
		if !*forceFlag {
			log.Fatalf("Failed to acquire PID file lock: %v\nUse --force to kill the existing daemon", err)
		}
		fmt.Println("Force mode enabled - killing existing daemon...")
		if killErr := pf.KillExisting(); killErr != nil {
			log.Fatalf("Failed to kill existing daemon: %v", killErr)
		}
		if err := pf.Acquire(); err != nil {
			log.Fatalf("Failed to acquire PID file lock after kill: %v", err)
		}
	}
	defer func() {
		if err := pf.Release(); err != nil {
			log.Printf("Warning: failed to release PID file: %v", err)
		}
	}()

	if err := run(cfg); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run(cfg *config.Config) error {
	logger := logging.MustLogger(&cfg.Logging)
	defer logger.Sync()
	logs := logger.Sugar()

	// Database
	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close(db)
	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	logs.Infow("database connected", "type", cfg.Database.Type)

	// Repositories
	printerRepo := persistence.NewGormPrinterRepository(db)
	filamentRepo := persistence.NewGormFilamentRepository(db)
	orderRepo := persistence.NewGormOrderRepository(db)
	scheduleRepo := persistence.NewGormScheduleRepository(db)
	jobRepo := persistence.NewGormJobRepository(db)

	clock := shared.NewRealClock()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Fleet
	registry := fleet.NewStatusRegistry(cfg.Fleet.PollPeriod)
	fl := fleet.New(registry, clock, logs, fleet.Options{
		PollPeriod:     cfg.Fleet.PollPeriod,
		DispatchPeriod: cfg.Fleet.DispatchPeriod,
		BeepThreshold:  cfg.Fleet.BeepThreshold,
	})
	fl.SetJobRecorder(jobRepo)

	printers, err := printerRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load printers: %w", err)
	}
	hostOpts := printhost.Options{
		ConnectTimeout: cfg.Fleet.Host.ConnectTimeout,
		ReadTimeout:    cfg.Fleet.Host.ReadTimeout,
		MaxRetries:     uint(cfg.Fleet.Host.Retry.MaxAttempts),
		BackoffBase:    cfg.Fleet.Host.Retry.BackoffBase,
	}
	for _, printer := range printers {
		client := printhost.NewClient(printer.Endpoint, printer.APIKey, hostOpts)
		fl.AddPrinter(printer, client)
	}
	logs.Infow("fleet assembled", "printers", len(printers))

	// Slicing and intake
	slicer := slicing.NewHTTPService(cfg.Slicer.BaseURL, cfg.Slicer.WorkDir, clock, logs)
	store := orders.NewStore(slicer, logs)

	filaments, err := filamentRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load filaments: %w", err)
	}
	for _, f := range filaments {
		store.AddFilament(f)
	}
	profiles, err := printerRepo.ListMaterialProfiles(ctx)
	if err != nil {
		return fmt.Errorf("failed to load material profiles: %w", err)
	}
	for _, p := range profiles {
		store.AddMaterialProfile(p)
	}
	pieces, err := orderRepo.ListPieces(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pieces: %w", err)
	}
	if err := store.Restore(pieces); err != nil {
		return fmt.Errorf("failed to restore pieces: %w", err)
	}
	logs.Infow("intake restored", "pieces", len(pieces), "filaments", len(filaments))

	// Metrics
	collector := metrics.NewFarmMetricsCollector()
	if cfg.Server.Metrics.Enabled {
		if err := collector.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	// Scheduler and dispatcher
	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("invalid scheduler timezone %q: %w", cfg.Scheduler.Timezone, err)
	}
	zones := make([]scheduling.ForbiddenZone, 0, len(cfg.Scheduler.ForbiddenZones))
	for _, z := range cfg.Scheduler.ForbiddenZones {
		zones = append(zones, scheduling.ForbiddenZone{
			StartHour:     z.StartHour,
			DurationHours: z.DurationHours,
		})
	}
	dispatcher := dispatch.New(fl, slicer, store, clock, logs)
	scheduler := appscheduling.New(fl, store, dispatcher, scheduleRepo, collector, clock, logs, appscheduling.Options{
		Period:   cfg.Scheduler.Period,
		Zones:    zones,
		Location: loc,
		NodeCap:  cfg.Scheduler.NodeCap,
	})

	// Operator API
	metricsPath := ""
	if cfg.Server.Metrics.Enabled {
		metricsPath = cfg.Server.Metrics.Path
	}
	server := rest.NewServer(fl, clock, logs, rest.Options{
		Address:     cfg.Server.Address,
		MetricsPath: metricsPath,
	})

	// Services
	go fl.RunStatusPollers(ctx)
	go fl.RunDispatchLoop(ctx)
	go scheduler.Run(ctx)
	go collector.RunGaugeRefresher(ctx, fl, 5*time.Second)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()
	logs.Infow("daemon running", "api", cfg.Server.Address)

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logs.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Daemon.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
