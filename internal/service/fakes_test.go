package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/listenupapp/listenup-bookmarks/internal/annotations"
	"github.com/listenupapp/listenup-bookmarks/internal/domain"
	"github.com/listenupapp/listenup-bookmarks/internal/events"
	"github.com/listenupapp/listenup-bookmarks/internal/logger"
	"github.com/listenupapp/listenup-bookmarks/internal/store"
)

// memStorage is an in-memory domain.BookStorage with failure injection.
type memStorage struct {
	mu         sync.Mutex
	handles    map[string]*memHandle
	handlesErr error
	writeLog   []string
}

func newMemStorage() *memStorage {
	return &memStorage{handles: make(map[string]*memHandle)}
}

func handleKey(account domain.AccountID, book domain.BookID, format domain.BookFormat) string {
	return fmt.Sprintf("%s|%s|%s", account, book, format)
}

func (m *memStorage) handle(account domain.AccountID, book domain.BookID, format domain.BookFormat) *memHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := handleKey(account, book, format)
	h, ok := m.handles[key]
	if !ok {
		h = &memHandle{storage: m, format: format}
		m.handles[key] = h
	}
	return h
}

func (m *memStorage) Entry(account domain.AccountID, book domain.BookID) domain.BookEntry {
	return &memEntry{storage: m, account: account, book: book}
}

func (m *memStorage) Books(ctx context.Context, account domain.AccountID) ([]domain.BookID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[domain.BookID]struct{})
	var books []domain.BookID
	for key, h := range m.handles {
		if !h.hasData() {
			continue
		}
		parts := splitKey(key)
		acct, book := domain.AccountID(parts[0]), domain.BookID(parts[1])
		if acct != account {
			continue
		}
		if _, dup := seen[book]; !dup {
			seen[book] = struct{}{}
			books = append(books, book)
		}
	}
	return books, nil
}

func splitKey(key string) [3]string {
	var parts [3]string
	idx := 0
	for _, r := range key {
		if r == '|' {
			idx++
			continue
		}
		parts[idx] += string(r)
	}
	return parts
}

func (m *memStorage) logWrite(entry string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeLog = append(m.writeLog, entry)
}

func (m *memStorage) writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writeLog...)
}

type memEntry struct {
	storage *memStorage
	account domain.AccountID
	book    domain.BookID
}

func (e *memEntry) HandleFor(format domain.BookFormat) domain.FormatHandle {
	return e.storage.handle(e.account, e.book, format)
}

func (e *memEntry) Handles(ctx context.Context) ([]domain.FormatHandle, error) {
	e.storage.mu.Lock()
	err := e.storage.handlesErr
	e.storage.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var out []domain.FormatHandle
	for _, format := range domain.FormatPriority {
		e.storage.mu.Lock()
		h, ok := e.storage.handles[handleKey(e.account, e.book, format)]
		e.storage.mu.Unlock()
		if ok && h.hasData() {
			out = append(out, h)
		}
	}
	return out, nil
}

type memHandle struct {
	storage *memStorage
	format  domain.BookFormat

	mu        sync.Mutex
	bookmarks []domain.Bookmark
	lastRead  *domain.Bookmark
	addErr    error

	// block, when set, makes AddBookmark wait until the channel closes.
	block     chan struct{}
	addActive chan struct{} // closed when a blocked add has started
}

func (h *memHandle) hasData() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.bookmarks) > 0 || h.lastRead != nil
}

func (h *memHandle) Format() domain.BookFormat { return h.format }

func (h *memHandle) AddBookmark(ctx context.Context, b domain.Bookmark) error {
	h.mu.Lock()
	block, active, err := h.block, h.addActive, h.addErr
	h.mu.Unlock()
	if active != nil {
		close(active)
		h.mu.Lock()
		h.addActive = nil
		h.mu.Unlock()
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.bookmarks = append(h.bookmarks, b)
	h.mu.Unlock()
	h.storage.logWrite(string(b.Book) + "/" + b.ChapterTitle)
	return nil
}

func (h *memHandle) SetLastRead(ctx context.Context, b domain.Bookmark) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.addErr != nil {
		return h.addErr
	}
	h.lastRead = &b
	return nil
}

func (h *memHandle) DeleteBookmark(ctx context.Context, b domain.Bookmark) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, existing := range h.bookmarks {
		if existing.Equal(b) {
			h.bookmarks = append(h.bookmarks[:i], h.bookmarks[i+1:]...)
			return nil
		}
	}
	return nil
}

func (h *memHandle) Bookmarks(ctx context.Context) ([]domain.Bookmark, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Bookmark(nil), h.bookmarks...), nil
}

func (h *memHandle) LastRead(ctx context.Context) (domain.Bookmark, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastRead == nil {
		return domain.Bookmark{}, false, nil
	}
	return *h.lastRead, true, nil
}

// fakeRemote is an in-memory AnnotationClient with failure injection.
type fakeRemote struct {
	mu       sync.Mutex
	anns     map[domain.AccountID][]annotations.Annotation
	fetchErr map[domain.AccountID]error
	addErr   error
	delErr   error

	fetched []domain.AccountID
	added   []annotations.Annotation
	deleted []string
	nextID  int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		anns:     make(map[domain.AccountID][]annotations.Annotation),
		fetchErr: make(map[domain.AccountID]error),
	}
}

func (r *fakeRemote) FetchAll(ctx context.Context, account domain.Account) ([]annotations.Annotation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetched = append(r.fetched, account.ID)
	if err := r.fetchErr[account.ID]; err != nil {
		return nil, err
	}
	return append([]annotations.Annotation(nil), r.anns[account.ID]...), nil
}

func (r *fakeRemote) Add(ctx context.Context, account domain.Account, ann annotations.Annotation) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.addErr != nil {
		return "", r.addErr
	}
	r.nextID++
	ann.ID = fmt.Sprintf("https://annotations.example/%d", r.nextID)
	r.added = append(r.added, ann)
	r.anns[account.ID] = append(r.anns[account.ID], ann)
	return ann.ID, nil
}

func (r *fakeRemote) Delete(ctx context.Context, account domain.Account, annotationURI string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.delErr != nil {
		return false, r.delErr
	}
	r.deleted = append(r.deleted, annotationURI)
	return true, nil
}

func (r *fakeRemote) fetchCount(account domain.AccountID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range r.fetched {
		if id == account {
			n++
		}
	}
	return n
}

func (r *fakeRemote) addedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.added)
}

// fakeProfiles is an in-memory domain.ProfileReader.
type fakeProfiles struct {
	mu         sync.Mutex
	profile    domain.Profile
	hasProfile bool

	profCh chan domain.ProfileEvent
	acctCh chan domain.AccountEvent

	profOnce sync.Once
	acctOnce sync.Once
}

func newFakeProfiles(accounts ...domain.Account) *fakeProfiles {
	p := &fakeProfiles{
		profCh: make(chan domain.ProfileEvent, 8),
		acctCh: make(chan domain.AccountEvent, 8),
	}
	if len(accounts) > 0 {
		m := make(map[domain.AccountID]domain.Account, len(accounts))
		for _, a := range accounts {
			m[a.ID] = a
		}
		p.profile = domain.Profile{ID: "prof-1", Name: "Reader", Accounts: m}
		p.hasProfile = true
	}
	return p
}

func (p *fakeProfiles) CurrentProfile() (domain.Profile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profile, p.hasProfile
}

func (p *fakeProfiles) ProfileEvents() (<-chan domain.ProfileEvent, func()) {
	return p.profCh, func() { p.profOnce.Do(func() { close(p.profCh) }) }
}

func (p *fakeProfiles) AccountEvents() (<-chan domain.AccountEvent, func()) {
	return p.acctCh, func() { p.acctOnce.Do(func() { close(p.acctCh) }) }
}

// Test fixture helpers.

func testAccount(id domain.AccountID) domain.Account {
	return domain.Account{
		ID:             id,
		Name:           "Library " + string(id),
		AnnotationsURI: "https://annotations.example/" + string(id),
		Credentials:    domain.Credentials{Username: "u", Password: "p"},
		LoggedIn:       true,
	}
}

func explicitRecord(book domain.BookID, href, chapter string) domain.Bookmark {
	return domain.Bookmark{
		Kind:         domain.KindExplicit,
		Location:     domain.HrefProgression{Href: href, Progression: 0.5},
		Book:         book,
		DeviceID:     "dev-1",
		Time:         time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC),
		BookTitle:    "Title",
		ChapterTitle: chapter,
	}
}

func lastReadRecord(book domain.BookID, chapter int) domain.Bookmark {
	return domain.Bookmark{
		Kind:     domain.KindLastRead,
		Location: domain.AudioTimeV1{Chapter: chapter, OffsetMilliseconds: 1234},
		Book:     book,
		Time:     time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC),
	}
}

type testEnv struct {
	engine   *Engine
	storage  *memStorage
	remote   *fakeRemote
	profiles *fakeProfiles
	bus      *events.Bus
}

func newTestEnv(t *testing.T, accounts ...domain.Account) *testEnv {
	t.Helper()
	log := logger.Discard().Logger
	env := &testEnv{
		storage:  newMemStorage(),
		remote:   newFakeRemote(),
		profiles: newFakeProfiles(accounts...),
		bus:      events.NewBus(log),
	}
	env.engine = NewEngine(store.New(), env.storage, env.remote, env.profiles, env.bus, nil, log)
	return env
}

func newTestCoordinator(t *testing.T, accounts ...domain.Account) (*Coordinator, *testEnv) {
	t.Helper()
	env := newTestEnv(t, accounts...)
	c, err := NewCoordinator(env.engine, "", logger.Discard().Logger)
	if err != nil {
		t.Fatalf("start coordinator: %v", err)
	}
	t.Cleanup(c.Close)
	return c, env
}
