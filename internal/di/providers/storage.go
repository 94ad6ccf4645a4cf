package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-bookmarks/internal/bookdb"
	"github.com/listenupapp/listenup-bookmarks/internal/config"
	"github.com/listenupapp/listenup-bookmarks/internal/history"
	"github.com/listenupapp/listenup-bookmarks/internal/logger"
	"github.com/listenupapp/listenup-bookmarks/internal/profiles"
	"github.com/listenupapp/listenup-bookmarks/internal/store"
)

// BookDBHandle wraps the per-book bookmark database with shutdown capability.
type BookDBHandle struct {
	*bookdb.DB
}

// Shutdown implements do.Shutdownable.
func (h *BookDBHandle) Shutdown() error {
	return h.Close()
}

// ProvideBookDB provides the durable per-book bookmark database.
func ProvideBookDB(i do.Injector) (*BookDBHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	db, err := bookdb.Open(cfg.Storage.BookDBPath, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Bookmark database initialized", "path", cfg.Storage.BookDBPath)

	return &BookDBHandle{DB: db}, nil
}

// JournalHandle wraps the sync-run journal with shutdown capability.
type JournalHandle struct {
	*history.Journal
}

// Shutdown implements do.Shutdownable.
func (h *JournalHandle) Shutdown() error {
	return h.Close()
}

// ProvideJournal provides the sync-run history journal.
func ProvideJournal(i do.Injector) (*JournalHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	journal, err := history.Open(cfg.Storage.HistoryDBPath, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Sync history journal initialized", "path", cfg.Storage.HistoryDBPath)

	return &JournalHandle{Journal: journal}, nil
}

// ProvideProfiles provides the reader profile registry.
func ProvideProfiles(i do.Injector) (*profiles.Registry, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return profiles.Load(cfg.Storage.ProfilesPath, log.Logger)
}

// ProvideStore provides the in-memory bookmark snapshot store.
func ProvideStore(i do.Injector) (*store.Store, error) {
	return store.New(), nil
}
