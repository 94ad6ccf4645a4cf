package domain

import "context"

// BookFormat identifies which reader component owns a locator or a storage
// handle. A book usually has exactly one format, but nothing here assumes it.
type BookFormat string

const (
	FormatEPUB  BookFormat = "epub"
	FormatAudio BookFormat = "audio"
	FormatPDF   BookFormat = "pdf"
)

// FormatPriority is the order in which per-book format handles are consulted
// when loading: first match wins.
var FormatPriority = []BookFormat{FormatEPUB, FormatAudio, FormatPDF}

// FormatHandle is read/write access to one format's bookmark storage for one
// book. Implementations are safe for sequential reuse across operations; the
// engine never calls them concurrently.
type FormatHandle interface {
	Format() BookFormat
	// AddBookmark appends an explicit bookmark.
	AddBookmark(ctx context.Context, b Bookmark) error
	// SetLastRead replaces the reading position marker.
	SetLastRead(ctx context.Context, b Bookmark) error
	// DeleteBookmark removes an explicit bookmark by structural equality.
	// Removing a record that is not present is not an error.
	DeleteBookmark(ctx context.Context, b Bookmark) error
	// Bookmarks returns the stored explicit bookmarks.
	Bookmarks(ctx context.Context) ([]Bookmark, error)
	// LastRead returns the reading position, or ok=false when none is stored.
	LastRead(ctx context.Context) (Bookmark, bool, error)
}

// BookEntry is the per-book view of local storage.
type BookEntry interface {
	// Handles returns the format handles that currently hold data for this
	// book, in FormatPriority order.
	Handles(ctx context.Context) ([]FormatHandle, error)
	// HandleFor returns the handle that stores locators of the given format,
	// creating storage lazily on first write.
	HandleFor(format BookFormat) FormatHandle
}

// BookStorage is the durable local per-book bookmark storage collaborator.
// It is the source of truth for local state; the engine's in-memory store is
// only a cache over it and the remote service.
type BookStorage interface {
	// Entry returns the per-book view for one account/book pair.
	Entry(account AccountID, book BookID) BookEntry
	// Books lists the books that have any stored bookmark data for an account.
	Books(ctx context.Context, account AccountID) ([]BookID, error)
}
