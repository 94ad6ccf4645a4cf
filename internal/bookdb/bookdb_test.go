package bookdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-bookmarks/internal/domain"
	"github.com/listenupapp/listenup-bookmarks/internal/logger"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir(), logger.Discard().Logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func epubBookmark(book domain.BookID, href string) domain.Bookmark {
	return domain.Bookmark{
		Kind:            domain.KindExplicit,
		Location:        domain.HrefProgression{Href: href, Progression: 0.4},
		Book:            book,
		DeviceID:        "dev-1",
		Time:            time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC),
		BookTitle:       "Title",
		ChapterTitle:    "Ch",
		BookProgress:    0.2,
		ChapterProgress: 0.4,
	}
}

func TestHandle_AddAndListBookmarks(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	h := db.Entry("acct", "urn:isbn:123").HandleFor(domain.FormatEPUB)
	b1 := epubBookmark("urn:isbn:123", "/ch1")
	b2 := epubBookmark("urn:isbn:123", "/ch2")

	require.NoError(t, h.AddBookmark(ctx, b1))
	require.NoError(t, h.AddBookmark(ctx, b2))

	got, err := h.Bookmarks(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestHandle_ReAddIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	h := db.Entry("acct", "urn:isbn:123").HandleFor(domain.FormatEPUB)
	b := epubBookmark("urn:isbn:123", "/ch1")

	require.NoError(t, h.AddBookmark(ctx, b))
	require.NoError(t, h.AddBookmark(ctx, b))

	got, err := h.Bookmarks(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, b.Equal(got[0]))
}

func TestHandle_LastReadReplaced(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	h := db.Entry("acct", "urn:isbn:123").HandleFor(domain.FormatAudio)

	_, ok, err := h.LastRead(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	first := domain.Bookmark{
		Kind:     domain.KindLastRead,
		Location: domain.AudioTimeV1{Part: 0, Chapter: 1, OffsetMilliseconds: 5000},
		Book:     "urn:isbn:123",
		Time:     time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, h.SetLastRead(ctx, first))

	second := first
	second.Location = domain.AudioTimeV1{Part: 0, Chapter: 2, OffsetMilliseconds: 100}
	second.Time = first.Time.Add(time.Hour)
	require.NoError(t, h.SetLastRead(ctx, second))

	got, ok, err := h.LastRead(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, second.Equal(got))
}

func TestHandle_DeleteAbsentIsNoOp(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	h := db.Entry("acct", "urn:isbn:123").HandleFor(domain.FormatEPUB)
	require.NoError(t, h.DeleteBookmark(ctx, epubBookmark("urn:isbn:123", "/never-stored")))
}

func TestHandle_DeleteRemovesOnlyMatch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	h := db.Entry("acct", "urn:isbn:123").HandleFor(domain.FormatEPUB)
	b1 := epubBookmark("urn:isbn:123", "/ch1")
	b2 := epubBookmark("urn:isbn:123", "/ch2")
	require.NoError(t, h.AddBookmark(ctx, b1))
	require.NoError(t, h.AddBookmark(ctx, b2))

	require.NoError(t, h.DeleteBookmark(ctx, b1))

	got, err := h.Bookmarks(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, b2.Equal(got[0]))
}

func TestEntry_HandlesInPriorityOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	entry := db.Entry("acct", "urn:isbn:123")

	// Audio data first, then EPUB; priority order still puts EPUB first.
	require.NoError(t, entry.HandleFor(domain.FormatAudio).SetLastRead(ctx, domain.Bookmark{
		Kind:     domain.KindLastRead,
		Location: domain.AudioTimeV1{Chapter: 1},
		Book:     "urn:isbn:123",
	}))
	require.NoError(t, entry.HandleFor(domain.FormatEPUB).AddBookmark(ctx, epubBookmark("urn:isbn:123", "/ch1")))

	handles, err := entry.Handles(ctx)
	require.NoError(t, err)
	require.Len(t, handles, 2)
	assert.Equal(t, domain.FormatEPUB, handles[0].Format())
	assert.Equal(t, domain.FormatAudio, handles[1].Format())
}

func TestDB_BooksListsDistinctBooks(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Entry("acct", "urn:isbn:1").HandleFor(domain.FormatEPUB).
		AddBookmark(ctx, epubBookmark("urn:isbn:1", "/a")))
	require.NoError(t, db.Entry("acct", "urn:isbn:1").HandleFor(domain.FormatEPUB).
		AddBookmark(ctx, epubBookmark("urn:isbn:1", "/b")))
	require.NoError(t, db.Entry("acct", "urn:isbn:2").HandleFor(domain.FormatAudio).
		SetLastRead(ctx, domain.Bookmark{
			Kind:     domain.KindLastRead,
			Location: domain.AudioTimeV2{ReadingOrderItem: "track-3", OffsetMilliseconds: 10},
			Book:     "urn:isbn:2",
		}))
	require.NoError(t, db.Entry("other", "urn:isbn:9").HandleFor(domain.FormatEPUB).
		AddBookmark(ctx, epubBookmark("urn:isbn:9", "/x")))

	books, err := db.Books(ctx, "acct")
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.BookID{"urn:isbn:1", "urn:isbn:2"}, books)
}

func TestDB_AccountsIsolated(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Entry("a", "urn:isbn:1").HandleFor(domain.FormatEPUB).
		AddBookmark(ctx, epubBookmark("urn:isbn:1", "/a")))

	got, err := db.Entry("b", "urn:isbn:1").HandleFor(domain.FormatEPUB).Bookmarks(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}
