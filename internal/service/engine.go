// Package service implements the sync engine: the operations that reconcile
// local and remote bookmark state, and the coordinator that executes them on a
// single worker.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/listenupapp/listenup-bookmarks/internal/annotations"
	"github.com/listenupapp/listenup-bookmarks/internal/codec"
	"github.com/listenupapp/listenup-bookmarks/internal/domain"
	"github.com/listenupapp/listenup-bookmarks/internal/errors"
	"github.com/listenupapp/listenup-bookmarks/internal/events"
	"github.com/listenupapp/listenup-bookmarks/internal/history"
	"github.com/listenupapp/listenup-bookmarks/internal/store"
)

// AnnotationClient is the engine's view of the remote annotation service.
type AnnotationClient interface {
	FetchAll(ctx context.Context, account domain.Account) ([]annotations.Annotation, error)
	Add(ctx context.Context, account domain.Account, annotation annotations.Annotation) (string, error)
	Delete(ctx context.Context, account domain.Account, annotationURI string) (bool, error)
}

// Engine holds the collaborators the sync operations work against. Operations
// are invoked only from the coordinator's worker; the engine itself carries no
// synchronization.
type Engine struct {
	store    *store.Store
	storage  domain.BookStorage
	remote   AnnotationClient
	profiles domain.ProfileReader
	bus      *events.Bus
	journal  *history.Journal // optional
	logger   *slog.Logger
}

// NewEngine wires up an engine. journal may be nil to disable run journaling.
func NewEngine(
	st *store.Store,
	storage domain.BookStorage,
	remote AnnotationClient,
	profiles domain.ProfileReader,
	bus *events.Bus,
	journal *history.Journal,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		store:    st,
		storage:  storage,
		remote:   remote,
		profiles: profiles,
		bus:      bus,
		journal:  journal,
		logger:   logger,
	}
}

// Store exposes the in-memory snapshot store for readers.
func (e *Engine) Store() *store.Store { return e.store }

// Bus exposes the engine's event stream.
func (e *Engine) Bus() *events.Bus { return e.bus }

// runSyncAccount reconciles one account against the remote annotation service:
// remote records not yet known locally are folded in, local-only explicit
// bookmarks are pushed up. Returns the account's reconciled records.
//
// Unreadable remote records are logged and skipped, never fatal. A transport
// failure fails the whole operation.
func (e *Engine) runSyncAccount(ctx context.Context, account domain.Account) ([]domain.Bookmark, error) {
	e.bus.Publish(events.Event{Type: events.TypeSyncStarted, AccountID: account.ID})

	run := history.Run{AccountID: account.ID, StartedAt: time.Now()}
	defer func() {
		run.FinishedAt = time.Now()
		if e.journal != nil {
			e.journal.RecordRun(ctx, run)
		}
		e.bus.Publish(events.Event{Type: events.TypeSyncFinished, AccountID: account.ID})
	}()

	// No annotation endpoint means the account is local-only.
	if account.AnnotationsURI == "" {
		return e.accountRecords(account.ID), nil
	}

	remote, err := e.remote.FetchAll(ctx, account)
	if err != nil {
		run.Error = err.Error()
		return nil, err
	}
	run.Fetched = len(remote)

	// Encode the local records once; wire identity is byte identity of the
	// encoded selector, so both directions compare against these.
	type localWire struct {
		record domain.Bookmark
		wire   annotations.Annotation
	}
	var locals []localWire
	for _, books := range e.store.Snapshot()[account.ID] {
		for _, rec := range books.All() {
			wire, err := annotations.FromBookmark(rec)
			if err != nil {
				e.logger.Warn("local bookmark not encodable, skipping",
					"account_id", account.ID,
					"book_id", rec.Book,
					"error", err,
				)
				continue
			}
			locals = append(locals, localWire{record: rec, wire: wire})
		}
	}

	hasLocal := func(ann annotations.Annotation) bool {
		for _, l := range locals {
			if annotations.SameWire(l.wire, ann) {
				return true
			}
		}
		return false
	}
	hasRemote := func(wire annotations.Annotation) bool {
		for _, ann := range remote {
			if annotations.SameWire(ann, wire) {
				return true
			}
		}
		return false
	}

	for _, ann := range remote {
		if hasLocal(ann) {
			continue
		}
		rec, err := annotations.ToBookmark(ann, codec.Fallback{})
		if err != nil {
			run.Dropped++
			e.logger.Warn("skipping unreadable remote annotation",
				"account_id", account.ID,
				"annotation_id", ann.ID,
				"error", err,
			)
			continue
		}
		e.store.Update(func(s store.Snapshot) store.Snapshot {
			return store.AddBookmark(s, account.ID, rec)
		})
	}

	for _, l := range locals {
		if l.record.Kind != domain.KindExplicit || hasRemote(l.wire) {
			continue
		}
		uri, err := e.remote.Add(ctx, account, l.wire)
		if err != nil {
			// A failed push leaves the record local-only until the next sync.
			e.logger.Warn("failed to push local bookmark",
				"account_id", account.ID,
				"book_id", l.record.Book,
				"error", err,
			)
			continue
		}
		run.Pushed++
		if uri != "" {
			rec := l.record.WithURI(uri)
			e.store.Update(func(s store.Snapshot) store.Snapshot {
				return store.AddBookmark(s, account.ID, rec)
			})
		}
	}

	e.logger.Info("account synced",
		"account_id", account.ID,
		"fetched", run.Fetched,
		"pushed", run.Pushed,
		"dropped", run.Dropped,
	)
	return e.accountRecords(account.ID), nil
}

// runSyncAll syncs every logged-in account in the current profile. One
// account's failure never prevents the remaining accounts from being
// attempted.
func (e *Engine) runSyncAll(ctx context.Context) error {
	profile, ok := e.profiles.CurrentProfile()
	if !ok {
		e.logger.Debug("sync all skipped, no profile selected")
		return nil
	}
	for _, account := range profile.Accounts {
		if !account.LoggedIn {
			continue
		}
		if _, err := e.runSyncAccount(ctx, account); err != nil {
			e.logger.Error("account sync failed",
				"account_id", account.ID,
				"error", err,
			)
		}
	}
	return nil
}

// runLoadForBook reads one book's bookmarks from local storage and folds them
// into the store. Any failure yields an empty aggregate for the book rather
// than propagating.
func (e *Engine) runLoadForBook(ctx context.Context, account domain.AccountID, book domain.BookID) domain.BookAggregate {
	agg, err := e.loadAggregate(ctx, account, book)
	if err != nil {
		e.logger.Warn("failed to load book from local storage",
			"account_id", account,
			"book_id", book,
			"error", err,
		)
		return domain.EmptyAggregate(book)
	}
	e.store.Update(func(s store.Snapshot) store.Snapshot {
		return store.AddAggregate(s, account, agg)
	})
	return agg
}

func (e *Engine) loadAggregate(ctx context.Context, account domain.AccountID, book domain.BookID) (domain.BookAggregate, error) {
	handles, err := e.storage.Entry(account, book).Handles(ctx)
	if err != nil {
		return domain.BookAggregate{}, err
	}
	if len(handles) == 0 {
		return domain.EmptyAggregate(book), nil
	}

	// Handles come back in format priority order; the first one wins.
	h := handles[0]

	stored, err := h.Bookmarks(ctx)
	if err != nil {
		return domain.BookAggregate{}, err
	}
	explicit := make([]domain.Bookmark, 0, len(stored))
	for _, b := range stored {
		if b.Kind == domain.KindExplicit && b.Book == book {
			explicit = append(explicit, b)
		}
	}

	var lastRead *domain.Bookmark
	if lr, ok, err := h.LastRead(ctx); err != nil {
		return domain.BookAggregate{}, err
	} else if ok && lr.Kind == domain.KindLastRead && lr.Book == book {
		lastRead = &lr
	}

	return domain.NewBookAggregate(book, lastRead, explicit)
}

// runLoadAll loads every book of every account in the current profile.
// Per-account failures are logged and never abort the pass.
func (e *Engine) runLoadAll(ctx context.Context) error {
	profile, ok := e.profiles.CurrentProfile()
	if !ok {
		e.logger.Debug("load all skipped, no profile selected")
		return nil
	}
	for _, account := range profile.Accounts {
		books, err := e.storage.Books(ctx, account.ID)
		if err != nil {
			e.logger.Error("failed to list books for account",
				"account_id", account.ID,
				"error", err,
			)
			continue
		}
		for _, book := range books {
			e.runLoadForBook(ctx, account.ID, book)
		}
	}
	return nil
}

// runCreateLocal writes a record into local storage, folds it into the store,
// and publishes a saved event.
func (e *Engine) runCreateLocal(ctx context.Context, account domain.Account, record domain.Bookmark) (domain.Bookmark, error) {
	if !record.Kind.Valid() {
		return domain.Bookmark{}, errors.ValidationWithDetails("unknown bookmark kind", string(record.Kind))
	}
	if record.Location == nil {
		return domain.Bookmark{}, errors.Validation("bookmark has no location")
	}

	handle := e.storage.Entry(account.ID, record.Book).HandleFor(record.Location.Format())
	switch record.Kind {
	case domain.KindExplicit:
		if err := handle.AddBookmark(ctx, record); err != nil {
			return domain.Bookmark{}, err
		}
	case domain.KindLastRead:
		if err := handle.SetLastRead(ctx, record); err != nil {
			return domain.Bookmark{}, err
		}
	}

	e.store.Update(func(s store.Snapshot) store.Snapshot {
		return store.AddBookmark(s, account.ID, record)
	})
	e.bus.Publish(events.Event{
		Type:      events.TypeSaved,
		AccountID: account.ID,
		Record:    &record,
	})
	return record, nil
}

// runCreateRemote pushes a record to the annotation service and returns it,
// augmented with the server-assigned URI when one is reported.
func (e *Engine) runCreateRemote(ctx context.Context, account domain.Account, record domain.Bookmark) (domain.Bookmark, error) {
	wire, err := annotations.FromBookmark(record)
	if err != nil {
		return domain.Bookmark{}, err
	}
	uri, err := e.remote.Add(ctx, account, wire)
	if err != nil {
		return domain.Bookmark{}, err
	}
	if uri != "" {
		record = record.WithURI(uri)
	}
	return record, nil
}

// runCreateCombined is CreateLocal then CreateRemote. When the remote call
// fails and ignoreRemoteFailures is set, the operation degrades to a local-only
// success.
func (e *Engine) runCreateCombined(ctx context.Context, account domain.Account, record domain.Bookmark, ignoreRemoteFailures bool) (domain.Bookmark, error) {
	local, err := e.runCreateLocal(ctx, account, record)
	if err != nil {
		return domain.Bookmark{}, err
	}
	remote, err := e.runCreateRemote(ctx, account, local)
	if err != nil {
		if ignoreRemoteFailures {
			e.logger.Warn("remote create failed, keeping local-only bookmark",
				"account_id", account.ID,
				"book_id", record.Book,
				"error", err,
			)
			return local, nil
		}
		return domain.Bookmark{}, err
	}
	if remote.URI != "" {
		e.store.Update(func(s store.Snapshot) store.Snapshot {
			return store.AddBookmark(s, account.ID, remote)
		})
	}
	return remote, nil
}

// runDelete removes a record locally and, when it carries a remote URI, from
// the annotation service. A record already gone remotely is not a failure.
func (e *Engine) runDelete(ctx context.Context, account domain.Account, record domain.Bookmark, ignoreRemoteFailures bool) error {
	if record.Kind == domain.KindExplicit && record.Location != nil {
		handle := e.storage.Entry(account.ID, record.Book).HandleFor(record.Location.Format())
		if err := handle.DeleteBookmark(ctx, record); err != nil {
			return err
		}
	}

	e.store.Update(func(s store.Snapshot) store.Snapshot {
		return store.RemoveBookmark(s, account.ID, record)
	})
	e.bus.Publish(events.Event{
		Type:      events.TypeDeleted,
		AccountID: account.ID,
		Record:    &record,
	})

	if record.URI != "" {
		if _, err := e.remote.Delete(ctx, account, record.URI); err != nil {
			if ignoreRemoteFailures {
				e.logger.Warn("remote delete failed, bookmark removed locally only",
					"account_id", account.ID,
					"book_id", record.Book,
					"error", err,
				)
				return nil
			}
			return err
		}
	}
	return nil
}

// accountRecords flattens the account's current snapshot into a record list.
func (e *Engine) accountRecords(account domain.AccountID) []domain.Bookmark {
	var out []domain.Bookmark
	for _, agg := range e.store.Snapshot()[account] {
		out = append(out, agg.All()...)
	}
	return out
}
