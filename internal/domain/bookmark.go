// Package domain holds the bookmark engine's core types: locators, bookmark
// records, per-book aggregates, and the profile/account and local-storage
// collaborator interfaces.
package domain

import "time"

// BookmarkKind distinguishes user-placed bookmarks from the single reading
// position marker a book carries.
type BookmarkKind string

const (
	// KindExplicit is a bookmark the user placed deliberately.
	KindExplicit BookmarkKind = "explicit"
	// KindLastRead is the per-book "reading position" marker. There is at most
	// one per book; it is replaced, never accumulated.
	KindLastRead BookmarkKind = "last-read"
)

// Valid reports whether k is a known kind.
func (k BookmarkKind) Valid() bool {
	return k == KindExplicit || k == KindLastRead
}

// Bookmark is the full persisted/transmitted representation of one bookmark.
// Values are immutable once constructed; operations build modified copies.
type Bookmark struct {
	Kind            BookmarkKind
	Location        Locator
	Book            BookID // opaque catalog (OPDS) identifier
	DeviceID        string
	Time            time.Time // creation time, timezone-aware
	BookTitle       string
	ChapterTitle    string
	BookProgress    float64 // 0..1
	ChapterProgress float64 // 0..1
	URI             string // remote annotation URI; empty until the server assigns one
}

// WithURI returns a copy of the bookmark carrying the server-assigned URI.
func (b Bookmark) WithURI(uri string) Bookmark {
	b.URI = uri
	return b
}

// Interchangeable reports whether two records denote the same logical bookmark:
// same kind, same book, and locators equivalent under the variant-specific
// rule. This is the dedup predicate, weaker than Equal.
func (b Bookmark) Interchangeable(other Bookmark) bool {
	return b.Kind == other.Kind &&
		b.Book == other.Book &&
		Interchangeable(b.Location, other.Location)
}

// Equal reports structural equality, used when removing a specific record.
// Timestamps compare by instant, not by formatting or timezone.
func (b Bookmark) Equal(other Bookmark) bool {
	return b.Kind == other.Kind &&
		b.Book == other.Book &&
		b.DeviceID == other.DeviceID &&
		b.Time.Equal(other.Time) &&
		b.BookTitle == other.BookTitle &&
		b.ChapterTitle == other.ChapterTitle &&
		b.BookProgress == other.BookProgress &&
		b.ChapterProgress == other.ChapterProgress &&
		b.URI == other.URI &&
		EqualLocators(b.Location, other.Location)
}
