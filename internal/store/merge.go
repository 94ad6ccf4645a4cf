package store

import "github.com/listenupapp/listenup-bookmarks/internal/domain"

// Merge policy: pure functions folding records into a snapshot. They are the
// only place nested-map mutation logic lives; the Store itself is a thin
// wrapper with atomic swap semantics. All functions are total and return a new
// snapshot; the input is never modified.

// RemoveAccount drops an account and everything under it. Removing an absent
// account is a no-op, not an error.
func RemoveAccount(s Snapshot, account domain.AccountID) Snapshot {
	if _, ok := s[account]; !ok {
		return s
	}
	next := make(Snapshot, len(s))
	for acct, books := range s {
		if acct != account {
			next[acct] = books
		}
	}
	return next
}

// AddBookmark folds one record into the account's per-book aggregate.
//
// A last-read record replaces the aggregate's last-read slot unconditionally:
// last write wins, with ordering the caller's responsibility. An explicit
// record first evicts any stored entry interchangeable with it, then appends,
// so the aggregate holds at most one explicit bookmark per interchangeability
// class. The scan is linear on purpose: records carry no stable
// client-assigned identity to index by.
//
// Records with an unknown kind leave the snapshot unchanged.
func AddBookmark(s Snapshot, account domain.AccountID, record domain.Bookmark) Snapshot {
	if !record.Kind.Valid() {
		return s
	}

	agg := aggregateFor(s, account, record.Book)

	switch record.Kind {
	case domain.KindLastRead:
		agg.LastRead = &record
	case domain.KindExplicit:
		kept := make([]domain.Bookmark, 0, len(agg.Bookmarks)+1)
		for _, existing := range agg.Bookmarks {
			if !existing.Interchangeable(record) {
				kept = append(kept, existing)
			}
		}
		agg.Bookmarks = append(kept, record)
	}

	return withAggregate(s, account, agg)
}

// AddAggregate wholesale-replaces one book's aggregate, typically after a full
// load from local storage.
func AddAggregate(s Snapshot, account domain.AccountID, aggregate domain.BookAggregate) Snapshot {
	return withAggregate(s, account, aggregate)
}

// RemoveBookmark removes an explicit record by structural equality. Last-read
// records are replaced, never independently deleted, so removing one is a
// no-op. So is removing a record that is not present.
func RemoveBookmark(s Snapshot, account domain.AccountID, record domain.Bookmark) Snapshot {
	if record.Kind != domain.KindExplicit {
		return s
	}
	books, ok := s[account]
	if !ok {
		return s
	}
	agg, ok := books[record.Book]
	if !ok {
		return s
	}

	kept := make([]domain.Bookmark, 0, len(agg.Bookmarks))
	removed := false
	for _, existing := range agg.Bookmarks {
		if !removed && existing.Equal(record) {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}
	if !removed {
		return s
	}
	agg.Bookmarks = kept
	return withAggregate(s, account, agg)
}

// aggregateFor returns a copy of the stored aggregate for account/book, or an
// empty one. The copy shares the bookmark slice; callers rebuild it before
// mutating.
func aggregateFor(s Snapshot, account domain.AccountID, book domain.BookID) domain.BookAggregate {
	if books, ok := s[account]; ok {
		if agg, ok := books[book]; ok {
			return agg
		}
	}
	return domain.EmptyAggregate(book)
}

// withAggregate produces a new snapshot with one aggregate replaced,
// copy-on-write at both map levels.
func withAggregate(s Snapshot, account domain.AccountID, agg domain.BookAggregate) Snapshot {
	next := make(Snapshot, len(s)+1)
	for acct, books := range s {
		next[acct] = books
	}

	var books map[domain.BookID]domain.BookAggregate
	if existing, ok := s[account]; ok {
		books = make(map[domain.BookID]domain.BookAggregate, len(existing)+1)
		for id, a := range existing {
			books[id] = a
		}
	} else {
		books = make(map[domain.BookID]domain.BookAggregate, 1)
	}
	books[agg.BookID] = agg
	next[account] = books
	return next
}
