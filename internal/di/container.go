// Package di provides dependency injection configuration for the bookmark engine.
package di

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-bookmarks/internal/config"
	"github.com/listenupapp/listenup-bookmarks/internal/di/providers"
	"github.com/listenupapp/listenup-bookmarks/internal/events"
	"github.com/listenupapp/listenup-bookmarks/internal/logger"
	"github.com/listenupapp/listenup-bookmarks/internal/profiles"
	"github.com/listenupapp/listenup-bookmarks/internal/service"
	"github.com/listenupapp/listenup-bookmarks/internal/store"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSlogLogger)
	do.Provide(injector, providers.ProvideBus)

	// Storage layer
	do.Provide(injector, providers.ProvideBookDB)
	do.Provide(injector, providers.ProvideJournal)
	do.Provide(injector, providers.ProvideProfiles)
	do.Provide(injector, providers.ProvideStore)

	// Remote layer
	do.Provide(injector, providers.ProvideAnnotationClient)

	// Engine
	do.Provide(injector, providers.ProvideEngine)
	do.Provide(injector, providers.ProvideCoordinator)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*events.Bus](injector)

	_ = do.MustInvoke[*providers.BookDBHandle](injector)
	_ = do.MustInvoke[*providers.JournalHandle](injector)
	_ = do.MustInvoke[*profiles.Registry](injector)
	_ = do.MustInvoke[*store.Store](injector)

	_ = do.MustInvoke[*providers.AnnotationClientHandle](injector)

	_ = do.MustInvoke[*service.Engine](injector)
	_ = do.MustInvoke[*providers.CoordinatorHandle](injector)

	return nil
}
