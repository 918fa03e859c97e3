package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"agenda.org/internal/auth"
	"agenda.org/internal/config"
	"agenda.org/internal/event"
	"agenda.org/internal/httpapi"
	"agenda.org/internal/obs"
	"agenda.org/internal/roles"
	"agenda.org/internal/store/pg"
	"agenda.org/internal/stream"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg := config.Load()

	var (
		eventStore event.Store
		userStore  event.UserStore
		directory  auth.DirectoryStore
		db         *sql.DB
	)
	if cfg.PGDSN != "" {
		store, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		eventStore = store
		userStore = store
		directory = store
		db = store.DB()
	} else {
		// Dev mode without a database: everything lives in memory
		mem := event.NewInMemory()
		eventStore = mem
		userStore = mem
		log.Println("AGENDA_PG_DSN is empty, running with the in-memory store")
	}

	hub := stream.New()
	svc, err := event.NewService(eventStore, userStore, event.WithStream(hub))
	if err != nil {
		log.Fatalf("event service: %v", err)
	}

	api := httpapi.New(svc, httpapi.Options{
		Resolver:       auth.NewResolver(directory, cfg.GitHubOrg, cfg.CommunityDomain),
		Hub:            hub,
		Probe:          httpapi.ReadyProbe{DB: db},
		Version:        version,
		ExchangeSecret: cfg.ExchangeSecret,
		CORSOrigin:     cfg.CORSOrigin,
		RateBurst:      cfg.RateBurst,
		RatePerSec:     cfg.RatePerSec,
	})

	// Periodic refresh of the upcoming-stamps gauge
	jobs := cron.New()
	refreshUpcoming := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		now := time.Now().UTC()
		stamps, err := svc.StampsInRange(ctx, roles.Admin, now, now.AddDate(0, 0, 7), false)
		if err != nil {
			log.Printf("upcoming stamps refresh: %v", err)
			return
		}
		obs.SetUpcomingStamps(len(stamps))
	}
	if _, err := jobs.AddFunc(cfg.UpcomingCron, refreshUpcoming); err != nil {
		log.Fatalf("schedule upcoming refresh (%q): %v", cfg.UpcomingCron, err)
	}
	jobs.Start()
	refreshUpcoming()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second, // SSE clients hold their connection
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting agenda-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	jobs.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
