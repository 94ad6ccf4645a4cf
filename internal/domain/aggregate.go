package domain

import "fmt"

// BookAggregate is the merged view of all bookmarks for one book within one
// account: the last-read slot plus the explicit list.
//
// Invariants, enforced at construction: every entry in Bookmarks has
// Kind == KindExplicit and Book == BookID; if LastRead is present, it has
// Kind == KindLastRead and Book == BookID.
type BookAggregate struct {
	BookID    BookID
	LastRead  *Bookmark
	Bookmarks []Bookmark
}

// NewBookAggregate constructs an aggregate, validating the invariants.
func NewBookAggregate(book BookID, lastRead *Bookmark, bookmarks []Bookmark) (BookAggregate, error) {
	for _, b := range bookmarks {
		if b.Kind != KindExplicit {
			return BookAggregate{}, fmt.Errorf("bookmark list entry for %s has kind %q, want %q", book, b.Kind, KindExplicit)
		}
		if b.Book != book {
			return BookAggregate{}, fmt.Errorf("bookmark list entry belongs to %s, want %s", b.Book, book)
		}
	}
	if lastRead != nil {
		if lastRead.Kind != KindLastRead {
			return BookAggregate{}, fmt.Errorf("last-read for %s has kind %q, want %q", book, lastRead.Kind, KindLastRead)
		}
		if lastRead.Book != book {
			return BookAggregate{}, fmt.Errorf("last-read belongs to %s, want %s", lastRead.Book, book)
		}
	}
	return BookAggregate{BookID: book, LastRead: lastRead, Bookmarks: bookmarks}, nil
}

// EmptyAggregate returns an aggregate with no bookmarks for the given book.
func EmptyAggregate(book BookID) BookAggregate {
	return BookAggregate{BookID: book}
}

// All returns the explicit bookmarks plus the last-read record, if set.
func (a BookAggregate) All() []Bookmark {
	out := make([]Bookmark, 0, len(a.Bookmarks)+1)
	out = append(out, a.Bookmarks...)
	if a.LastRead != nil {
		out = append(out, *a.LastRead)
	}
	return out
}
