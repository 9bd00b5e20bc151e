package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/pflag"

	"github.com/lowerthirds/lowerthirds/internal/config"
	"github.com/lowerthirds/lowerthirds/internal/db"
	"github.com/lowerthirds/lowerthirds/server"
)

func main() {
	configPath := pflag.String("config", "", "path to settings.yml (default $"+config.EnvConfigPath+" or "+config.DefaultConfigPath+")")
	listen := pflag.String("listen", "", "address to listen on (overrides the settings file)")
	dbPath := pflag.String("database", "", "path to the state database (overrides the settings file; empty keeps state in memory)")
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()
	defer glog.Flush()

	path := config.ResolvePath(*configPath)
	cfg, err := config.Load(path)
	if err != nil {
		glog.Exitf("Failed to load configuration: %v", err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *dbPath != "" {
		cfg.Database = *dbPath
	}

	database, err := db.NewServerDB(cfg.Database)
	if err != nil {
		glog.Exitf("Failed to open database: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := server.NewHub()
	go hub.Run(ctx)

	srv, err := server.NewServer(hub, server.NewRegistry(cfg.Channels), database, cfg.ExclusiveShow)
	if err != nil {
		glog.Exitf("Failed to restore channel state: %v", err)
	}

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: srv.Router(),
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		for sig := range sigCh {
			if sig == syscall.SIGHUP {
				reloaded, err := config.Load(path)
				if err != nil {
					glog.Errorf("[main]reload of %s failed, keeping the current channels: %v\n", path, err)
					continue
				}
				srv.ReloadConfig(reloaded)
				continue
			}

			glog.Infof("[main]shutting down\n")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			httpServer.Shutdown(shutdownCtx)
			shutdownCancel()
			cancel()
			return
		}
	}()

	glog.Infof("[main]lower thirds server with %d channels listening on %s\n", len(cfg.Channels), cfg.Listen)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		glog.Fatalf("Server error: %v", err)
	}
}
