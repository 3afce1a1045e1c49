package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/positivef/udo-sync/internal/common/clock"
	"github.com/positivef/udo-sync/internal/common/log"
	"github.com/positivef/udo-sync/internal/config"
	"github.com/positivef/udo-sync/internal/coordinator"
	"github.com/positivef/udo-sync/internal/metrics"
)

const (
	version = "0.1.0-dev"
	appName = "udo-syncd"
)

func main() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Home directory error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(envMap(), homeDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Configure(cfg.Env, cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":   version,
		"env":       cfg.Env,
		"log_level": cfg.Log.Level,
		"vault":     cfg.Vault.Root,
		"state_dir": cfg.Vault.StateDir,
	}, "starting "+appName)

	coord, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "failed to build application")
	}

	if err := coord.Start(); err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "failed to start coordinator")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "shutdown signal received")
		cancel()
	}()

	<-ctx.Done()

	if err := coord.Stop(); err != nil {
		log.Error(map[string]any{"error": err.Error()}, "coordinator shutdown failed")
		os.Exit(1)
	}
}

// buildApplication constructs the sync coordinator with its Prometheus
// registry and real clock. The coordinator owns the vault watcher, belief
// store, and every other C1-C7 component internally; this is the only
// thing main needs to hold a reference to.
func buildApplication(cfg *config.AppConfig) (*coordinator.Coordinator, error) {
	reg := metrics.New(prometheus.DefaultRegisterer)

	coord, err := coordinator.New(coordinator.Options{
		Config:  cfg,
		Logger:  log.GetLogger(),
		Clock:   clock.RealClock{},
		Metrics: reg,
	})
	if err != nil {
		return nil, fmt.Errorf("build coordinator: %w", err)
	}
	return coord, nil
}

// envMap snapshots os.Environ into the map[string]string shape config.Load
// expects, matching the teacher's preference for an explicit, testable
// input over a package that reads os.Getenv directly.
func envMap() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return out
}
