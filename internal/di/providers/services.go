package providers

import (
	"net/http"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-bookmarks/internal/annotations"
	"github.com/listenupapp/listenup-bookmarks/internal/config"
	"github.com/listenupapp/listenup-bookmarks/internal/events"
	"github.com/listenupapp/listenup-bookmarks/internal/logger"
	"github.com/listenupapp/listenup-bookmarks/internal/profiles"
	"github.com/listenupapp/listenup-bookmarks/internal/service"
	"github.com/listenupapp/listenup-bookmarks/internal/store"
)

// ProvideBus provides the engine's lifecycle event bus.
func ProvideBus(i do.Injector) (*events.Bus, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return events.NewBus(log.Logger), nil
}

// AnnotationClientHandle wraps the remote annotation client with shutdown capability.
type AnnotationClientHandle struct {
	*annotations.Client
}

// Shutdown implements do.Shutdownable.
func (h *AnnotationClientHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideAnnotationClient provides the web-annotation service client.
func ProvideAnnotationClient(i do.Injector) (*AnnotationClientHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	client := annotations.New(&http.Client{Timeout: cfg.Sync.RemoteTimeout}, log.Logger)
	return &AnnotationClientHandle{Client: client}, nil
}

// ProvideEngine provides the sync engine.
func ProvideEngine(i do.Injector) (*service.Engine, error) {
	log := do.MustInvoke[*logger.Logger](i)
	st := do.MustInvoke[*store.Store](i)
	bookDB := do.MustInvoke[*BookDBHandle](i)
	client := do.MustInvoke[*AnnotationClientHandle](i)
	registry := do.MustInvoke[*profiles.Registry](i)
	bus := do.MustInvoke[*events.Bus](i)
	journal := do.MustInvoke[*JournalHandle](i)

	return service.NewEngine(st, bookDB.DB, client.Client, registry, bus, journal.Journal, log.Logger), nil
}

// CoordinatorHandle wraps the coordinator with shutdown capability.
type CoordinatorHandle struct {
	*service.Coordinator
}

// Shutdown implements do.Shutdownable.
func (h *CoordinatorHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideCoordinator provides the single-worker sync coordinator.
func ProvideCoordinator(i do.Injector) (*CoordinatorHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	engine := do.MustInvoke[*service.Engine](i)

	coordinator, err := service.NewCoordinator(engine, cfg.Sync.Schedule, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Sync coordinator started", "schedule", cfg.Sync.Schedule)

	return &CoordinatorHandle{Coordinator: coordinator}, nil
}
