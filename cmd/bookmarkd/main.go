// Package main provides the entry point for the bookmark sync daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-bookmarks/internal/di"
	"github.com/listenupapp/listenup-bookmarks/internal/di/providers"
	"github.com/listenupapp/listenup-bookmarks/internal/logger"
)

func main() {
	// Create DI container
	injector := di.NewContainer()

	// Bootstrap all services
	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap daemon: %v\n", err)
		os.Exit(1)
	}

	// Get logger for shutdown messages
	log := do.MustInvoke[*logger.Logger](injector)
	coordinator := do.MustInvoke[*providers.CoordinatorHandle](injector)

	// Warm the in-memory state from local storage, then reconcile against the
	// annotation services. Both run on the coordinator's worker; failures are
	// per-account and logged there.
	go func() {
		if _, err := coordinator.LoadAll().Await(context.Background()); err != nil {
			log.Warn("Initial load did not complete", "error", err)
			return
		}
		if _, err := coordinator.SyncAll().Await(context.Background()); err != nil {
			log.Warn("Initial sync did not complete", "error", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down daemon gracefully...")

	// Shutdown all services in reverse order
	// The DI container handles shutdown order automatically
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	// Storage handles use wrapper types and need explicit shutdown
	if dbHandle, err := do.Invoke[*providers.BookDBHandle](injector); err == nil {
		log.Info("Closing bookmark database...")
		if err := dbHandle.Shutdown(); err != nil {
			log.Error("Failed to close bookmark database", "error", err)
		}
	}

	if journalHandle, err := do.Invoke[*providers.JournalHandle](injector); err == nil {
		log.Info("Closing sync history journal...")
		if err := journalHandle.Shutdown(); err != nil {
			log.Error("Failed to close sync history journal", "error", err)
		}
	}

	log.Info("See you space cowboy...")
}
