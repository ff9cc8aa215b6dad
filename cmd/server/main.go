package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

var (
	// default build fields populated by GoReleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func init() {
	cfgFile := flag.String("config", "settings.env", "Path to config file")
	showHelp := flag.Bool("help", false, "Display help")
	showVersion := flag.Bool("version", false, "Display build information")

	flag.Parse()

	switch {
	case *showVersion:
		fmt.Printf("%-10s %s\n", "version:", version)
		fmt.Printf("%-10s %s\n", "commit:", commit)
		fmt.Printf("%-10s %s\n", "date:", date)
		os.Exit(0)
	case *showHelp:
		flag.PrintDefaults()
		os.Exit(0)
	}

	// optionally populate environment variables with config file
	if err := godotenv.Load(*cfgFile); err != nil {
		fmt.Printf("Config file (%s) not found, defaulting to env vars for app config...\n", *cfgFile)
	} else {
		fmt.Printf("Successfully loaded config file (%s)\n", *cfgFile)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := MakeCommonDeps()
	if err != nil {
		fmt.Printf("startup failed: %s\n", err)
		os.Exit(1)
	}

	hub := TCPHub(deps)

	httpMux := http.NewServeMux()
	httpMux.Handle("/ws/signaling", Signaling(deps))
	httpMux.Handle("/ws/voice", VoiceRelayWS(deps))
	httpMux.Handle("/", Bridge(deps))
	httpSrv := &http.Server{Addr: deps.cfg.HTTPAddr, Handler: httpMux}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.ListenAndServe(deps.cfg.TCPChatAddr)
	})

	g.Go(func() error {
		deps.logger.Info("bridge: listening", "addr", deps.cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		deps.voiceMgr.RunSweeper(ctx)
		return nil
	})

	g.Go(func() error {
		deps.boardMgr.RunSweeper(ctx)
		return nil
	})

	if deps.cfg.StunEnabled {
		g.Go(func() error {
			return deps.stunResp.ListenAndServe(ctx, deps.cfg.StunAddr)
		})
	}

	g.Go(func() error {
		return deps.discoverer.ListenAndServe(ctx, deps.cfg.DiscoveryAddr)
	})

	select {
	case <-ctx.Done():
		deps.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hub.Shutdown(shutdownCtx)
		_ = httpSrv.Shutdown(shutdownCtx)
		deps.voiceMgr.Stop()
		deps.boardMgr.Stop()
		deps.stunResp.Stop()
		deps.discoverer.Stop()
	}

	if err = g.Wait(); err != nil {
		deps.logger.Error("server exited with error", "err", err.Error())
		os.Exit(1)
	}
}
