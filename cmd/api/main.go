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

	_ "github.com/jackc/pgx/v5/stdlib"

	"tasktrail.org/internal/audit"
	"tasktrail.org/internal/auth"
	"tasktrail.org/internal/directory"
	"tasktrail.org/internal/httpapi"
	"tasktrail.org/internal/obs"
	"tasktrail.org/internal/task"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("TASKTRAIL_PG_DSN")
	if dsn == "" {
		log.Fatal("TASKTRAIL_PG_DSN is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	secret := os.Getenv("TASKTRAIL_TOKEN_SECRET")
	ttl := 15 * time.Minute
	if raw := os.Getenv("TASKTRAIL_TOKEN_TTL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("parse TASKTRAIL_TOKEN_TTL: %v", err)
		}
		ttl = parsed
	}
	signer, err := auth.NewSigner(secret, ttl)
	if err != nil {
		log.Fatalf("configure signer: %v", err)
	}

	recorder := audit.NewRecorder(audit.NewPGStore(db))
	dir := directory.NewPGStore(db)
	resolver := directory.NewResolver(dir)
	lookup := directory.NewLookup(dir)
	tasks := task.NewService(task.NewPGStore(db), resolver, lookup, recorder)
	identity := auth.NewService(dir, signer, recorder)

	api := httpapi.New(httpapi.Config{
		ReadyProbe: httpapi.ReadyProbe{DB: db},
		Version:    version,
		Signer:     signer,
		Identity:   identity,
		Tasks:      tasks,
		Recorder:   recorder,
	})

	addr := os.Getenv("TASKTRAIL_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting tasktrail-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
