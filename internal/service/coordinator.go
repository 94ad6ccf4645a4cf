package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/listenupapp/listenup-bookmarks/internal/domain"
	"github.com/listenupapp/listenup-bookmarks/internal/errors"
	"github.com/listenupapp/listenup-bookmarks/internal/events"
	"github.com/listenupapp/listenup-bookmarks/internal/store"
)

// queueDepth bounds the operation queue. A full queue rejects new work instead
// of blocking callers.
const queueDepth = 128

// DefaultSyncSchedule is the periodic full-sync schedule.
const DefaultSyncSchedule = "@hourly"

type task struct {
	name   string
	run    func(ctx context.Context)
	reject func(err error)
}

// Coordinator executes sync operations strictly one at a time on a single
// worker goroutine. That single-worker discipline is the engine's only
// concurrency-correctness mechanism: the store is never mutated off the
// worker, so its copy-on-write updates need no lock.
//
// Public methods enqueue an operation and return a future; they are safe to
// call from any goroutine.
type Coordinator struct {
	engine *Engine
	logger *slog.Logger

	mu     sync.Mutex
	closed bool

	tasks chan *task
	done  chan struct{}
	wg    sync.WaitGroup

	cron          *cron.Cron
	cancelProfile func()
	cancelAccount func()

	closeOnce sync.Once
}

// NewCoordinator starts the worker, the periodic full-sync timer, and the
// profile/account event subscriptions. An empty schedule means
// DefaultSyncSchedule.
func NewCoordinator(engine *Engine, schedule string, logger *slog.Logger) (*Coordinator, error) {
	if schedule == "" {
		schedule = DefaultSyncSchedule
	}

	c := &Coordinator{
		engine: engine,
		logger: logger,
		tasks:  make(chan *task, queueDepth),
		done:   make(chan struct{}),
	}

	c.cron = cron.New()
	if _, err := c.cron.AddFunc(schedule, func() {
		c.logger.Debug("periodic sync triggered")
		c.SyncAll()
	}); err != nil {
		return nil, errors.Wrapf(err, errors.CodeValidation, "invalid sync schedule %q", schedule)
	}

	profileCh, cancelProfile := engine.profiles.ProfileEvents()
	accountCh, cancelAccount := engine.profiles.AccountEvents()
	c.cancelProfile = cancelProfile
	c.cancelAccount = cancelAccount

	c.wg.Add(1)
	go c.worker()
	go c.watchProfiles(profileCh)
	go c.watchAccounts(accountCh)
	c.cron.Start()

	return c, nil
}

// SyncAccount reconciles one account against the remote service.
func (c *Coordinator) SyncAccount(account domain.Account) *Future[[]domain.Bookmark] {
	return submit(c, "sync account", func(ctx context.Context) ([]domain.Bookmark, error) {
		return c.engine.runSyncAccount(ctx, account)
	})
}

// SyncAll reconciles every logged-in account in the current profile.
func (c *Coordinator) SyncAll() *Future[struct{}] {
	return submit(c, "sync all", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.engine.runSyncAll(ctx)
	})
}

// SyncAndLoad syncs the account, then loads the book from local storage. A
// sync failure is tolerated and treated as "no remote bookmarks".
func (c *Coordinator) SyncAndLoad(account domain.Account, book domain.BookID) *Future[domain.BookAggregate] {
	return submit(c, "sync and load", func(ctx context.Context) (domain.BookAggregate, error) {
		if _, err := c.engine.runSyncAccount(ctx, account); err != nil {
			c.logger.Warn("sync failed before load, proceeding with local state",
				"account_id", account.ID,
				"book_id", book,
				"error", err,
			)
		}
		return c.engine.runLoadForBook(ctx, account.ID, book), nil
	})
}

// Load reads one book's bookmarks from local storage into the store.
func (c *Coordinator) Load(account domain.AccountID, book domain.BookID) *Future[domain.BookAggregate] {
	return submit(c, "load", func(ctx context.Context) (domain.BookAggregate, error) {
		return c.engine.runLoadForBook(ctx, account, book), nil
	})
}

// LoadAll loads every book of every account in the current profile.
func (c *Coordinator) LoadAll() *Future[struct{}] {
	return submit(c, "load all", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.engine.runLoadAll(ctx)
	})
}

// CreateLocal writes a bookmark to local storage only.
func (c *Coordinator) CreateLocal(account domain.Account, record domain.Bookmark) *Future[domain.Bookmark] {
	return submit(c, "create local", func(ctx context.Context) (domain.Bookmark, error) {
		return c.engine.runCreateLocal(ctx, account, record)
	})
}

// CreateRemote pushes a bookmark to the annotation service only.
func (c *Coordinator) CreateRemote(account domain.Account, record domain.Bookmark) *Future[domain.Bookmark] {
	return submit(c, "create remote", func(ctx context.Context) (domain.Bookmark, error) {
		return c.engine.runCreateRemote(ctx, account, record)
	})
}

// Create writes a bookmark locally and pushes it to the annotation service.
func (c *Coordinator) Create(account domain.Account, record domain.Bookmark, ignoreRemoteFailures bool) *Future[domain.Bookmark] {
	return submit(c, "create", func(ctx context.Context) (domain.Bookmark, error) {
		return c.engine.runCreateCombined(ctx, account, record, ignoreRemoteFailures)
	})
}

// Delete removes a bookmark locally and from the annotation service.
func (c *Coordinator) Delete(account domain.Account, record domain.Bookmark, ignoreRemoteFailures bool) *Future[struct{}] {
	return submit(c, "delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.engine.runDelete(ctx, account, record, ignoreRemoteFailures)
	})
}

// Events subscribes to the engine's event stream.
func (c *Coordinator) Events() (<-chan events.Event, func()) {
	return c.engine.bus.Subscribe()
}

// Store exposes the in-memory snapshot store for readers.
func (c *Coordinator) Store() *store.Store {
	return c.engine.store
}

// Close stops the timer, releases the event subscriptions, waits for the
// running operation, and rejects everything still queued. Idempotent.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.cron.Stop()
		c.cancelProfile()
		c.cancelAccount()
		close(c.done)
		c.wg.Wait()

		c.engine.bus.Close()
		c.logger.Info("sync coordinator stopped")
	})
}

// submit enqueues one operation and returns its future. After Close, or when
// the queue is full, the future is rejected immediately.
func submit[T any](c *Coordinator, name string, op func(ctx context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	t := &task{
		name: name,
		run: func(ctx context.Context) {
			if !f.begin() {
				return
			}
			value, err := op(ctx)
			f.settle(value, err)
		},
		reject: func(err error) {
			var zero T
			f.settle(zero, err)
		},
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		t.reject(errors.ErrNotRunning)
		return f
	}
	select {
	case c.tasks <- t:
	default:
		c.logger.Warn("operation queue full, rejecting", "operation", name)
		t.reject(errors.Internal("operation queue full"))
	}
	return f
}

// worker runs queued operations strictly in FIFO order, then drains and
// rejects the remainder on shutdown.
func (c *Coordinator) worker() {
	defer c.wg.Done()
	for {
		// Shutdown wins over queued work.
		select {
		case <-c.done:
			for {
				select {
				case t := <-c.tasks:
					t.reject(errors.ErrNotRunning)
				default:
					return
				}
			}
		default:
		}

		select {
		case t := <-c.tasks:
			t.run(context.Background())
		case <-c.done:
		}
	}
}

// watchProfiles enqueues a full sync whenever a profile becomes current. The
// channel closes when the subscription is cancelled on Close.
func (c *Coordinator) watchProfiles(ch <-chan domain.ProfileEvent) {
	for ev := range ch {
		if ev.Type == domain.ProfileSelected {
			c.logger.Debug("profile selected, syncing all accounts", "profile_id", ev.ProfileID)
			c.SyncAll()
		}
	}
}

// watchAccounts reacts to account lifecycle changes: a login syncs the
// account, a deletion drops its state from the store.
func (c *Coordinator) watchAccounts(ch <-chan domain.AccountEvent) {
	for ev := range ch {
		switch ev.Type {
		case domain.AccountLoggedIn:
			profile, ok := c.engine.profiles.CurrentProfile()
			if !ok {
				continue
			}
			account, ok := profile.Accounts[ev.AccountID]
			if !ok {
				continue
			}
			c.logger.Debug("account logged in, syncing", "account_id", ev.AccountID)
			c.SyncAccount(account)
		case domain.AccountDeleted:
			accountID := ev.AccountID
			c.logger.Debug("account deleted, dropping state", "account_id", accountID)
			submit(c, "remove account", func(ctx context.Context) (struct{}, error) {
				c.engine.store.Update(func(s store.Snapshot) store.Snapshot {
					return store.RemoveAccount(s, accountID)
				})
				return struct{}{}, nil
			})
		}
	}
}
