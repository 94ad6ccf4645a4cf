package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-bookmarks/internal/annotations"
	"github.com/listenupapp/listenup-bookmarks/internal/domain"
	"github.com/listenupapp/listenup-bookmarks/internal/errors"
	"github.com/listenupapp/listenup-bookmarks/internal/events"
	"github.com/listenupapp/listenup-bookmarks/internal/store"
)

func wireOf(t *testing.T, b domain.Bookmark) annotations.Annotation {
	t.Helper()
	ann, err := annotations.FromBookmark(b)
	require.NoError(t, err)
	return ann
}

func TestSyncAccount_FoldsRemoteRecords(t *testing.T) {
	account := testAccount("acct-1")
	env := newTestEnv(t, account)
	ctx := context.Background()

	r1 := explicitRecord("urn:isbn:1", "/ch1", "One")
	r2 := explicitRecord("urn:isbn:2", "/ch5", "Five")
	env.remote.anns[account.ID] = []annotations.Annotation{wireOf(t, r1), wireOf(t, r2)}

	got, err := env.engine.runSyncAccount(ctx, account)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	snap := env.engine.Store().Snapshot()
	assert.Len(t, snap[account.ID]["urn:isbn:1"].Bookmarks, 1)
	assert.Len(t, snap[account.ID]["urn:isbn:2"].Bookmarks, 1)
}

func TestSyncAccount_SkipsWireIdenticalAndPushesLocalOnly(t *testing.T) {
	account := testAccount("acct-1")
	env := newTestEnv(t, account)
	ctx := context.Background()

	shared := explicitRecord("urn:isbn:1", "/ch1", "One")
	localOnly := explicitRecord("urn:isbn:1", "/ch2", "Two")

	env.remote.anns[account.ID] = []annotations.Annotation{wireOf(t, shared)}
	env.engine.Store().Update(func(s store.Snapshot) store.Snapshot {
		s = store.AddBookmark(s, account.ID, shared)
		return store.AddBookmark(s, account.ID, localOnly)
	})

	_, err := env.engine.runSyncAccount(ctx, account)
	require.NoError(t, err)

	// The shared record was not duplicated and only the local-only record
	// was pushed.
	snap := env.engine.Store().Snapshot()
	assert.Len(t, snap[account.ID]["urn:isbn:1"].Bookmarks, 2)
	require.Equal(t, 1, env.remote.addedCount())
	assert.True(t, annotations.SameWire(env.remote.added[0], wireOf(t, localOnly)))

	// The pushed record picked up its server-assigned URI.
	var found bool
	for _, b := range snap[account.ID]["urn:isbn:1"].Bookmarks {
		if b.ChapterTitle == "Two" {
			found = true
			assert.NotEmpty(t, b.URI)
		}
	}
	assert.True(t, found)
}

func TestSyncAccount_DropsUnreadableRemote(t *testing.T) {
	account := testAccount("acct-1")
	env := newTestEnv(t, account)
	ctx := context.Background()

	good := wireOf(t, explicitRecord("urn:isbn:1", "/ch1", "One"))
	bad := good
	bad.Motivation = "http://example.com/ns/highlighting"
	bad.Target.Selector.Value = `{"@type":"LocatorHrefProgression20210317","href":"/x","progression":0}`
	env.remote.anns[account.ID] = []annotations.Annotation{bad, good}

	got, err := env.engine.runSyncAccount(ctx, account)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSyncAccount_FetchFailureFailsOperation(t *testing.T) {
	account := testAccount("acct-1")
	env := newTestEnv(t, account)
	env.remote.fetchErr[account.ID] = errors.IO("remote down")

	_, err := env.engine.runSyncAccount(context.Background(), account)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIO))
}

func TestSyncAccount_LocalOnlyAccountSkipsRemote(t *testing.T) {
	account := testAccount("acct-1")
	account.AnnotationsURI = ""
	env := newTestEnv(t, account)

	_, err := env.engine.runSyncAccount(context.Background(), account)
	require.NoError(t, err)
	assert.Zero(t, env.remote.fetchCount(account.ID))
}

func TestSyncAccount_PublishesLifecycleEvents(t *testing.T) {
	account := testAccount("acct-1")
	env := newTestEnv(t, account)

	ch, cancel := env.bus.Subscribe()
	defer cancel()

	_, err := env.engine.runSyncAccount(context.Background(), account)
	require.NoError(t, err)

	assert.Equal(t, events.TypeSyncStarted, (<-ch).Type)
	assert.Equal(t, events.TypeSyncFinished, (<-ch).Type)
}

func TestSyncAll_AccountIsolation(t *testing.T) {
	a1, a2, a3 := testAccount("acct-1"), testAccount("acct-2"), testAccount("acct-3")
	env := newTestEnv(t, a1, a2, a3)
	env.remote.fetchErr[a2.ID] = errors.IO("remote down")

	require.NoError(t, env.engine.runSyncAll(context.Background()))

	// The failing account never prevents the others from being attempted.
	assert.Equal(t, 1, env.remote.fetchCount(a1.ID))
	assert.Equal(t, 1, env.remote.fetchCount(a2.ID))
	assert.Equal(t, 1, env.remote.fetchCount(a3.ID))
}

func TestSyncAll_SkipsLoggedOutAccounts(t *testing.T) {
	a1, a2 := testAccount("acct-1"), testAccount("acct-2")
	a2.LoggedIn = false
	env := newTestEnv(t, a1, a2)

	require.NoError(t, env.engine.runSyncAll(context.Background()))
	assert.Equal(t, 1, env.remote.fetchCount(a1.ID))
	assert.Zero(t, env.remote.fetchCount(a2.ID))
}

func TestSyncAll_NoProfileIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.engine.runSyncAll(context.Background()))
}

func TestLoadForBook_FirstFormatWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	book := domain.BookID("urn:isbn:1")

	epub := env.storage.handle("acct-1", book, domain.FormatEPUB)
	require.NoError(t, epub.AddBookmark(ctx, explicitRecord(book, "/ch1", "One")))

	audio := env.storage.handle("acct-1", book, domain.FormatAudio)
	require.NoError(t, audio.SetLastRead(ctx, lastReadRecord(book, 3)))

	agg := env.engine.runLoadForBook(ctx, "acct-1", book)

	// EPUB outranks audio; the audio last-read is not consulted.
	require.Len(t, agg.Bookmarks, 1)
	assert.Nil(t, agg.LastRead)
	assert.Equal(t, book, agg.BookID)

	snap := env.engine.Store().Snapshot()
	assert.Len(t, snap["acct-1"][book].Bookmarks, 1)
}

func TestLoadForBook_IncludesLastReadOfWinningFormat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	book := domain.BookID("urn:isbn:1")

	audio := env.storage.handle("acct-1", book, domain.FormatAudio)
	require.NoError(t, audio.SetLastRead(ctx, lastReadRecord(book, 3)))

	agg := env.engine.runLoadForBook(ctx, "acct-1", book)
	require.NotNil(t, agg.LastRead)
	assert.Equal(t, domain.KindLastRead, agg.LastRead.Kind)
}

func TestLoadForBook_StorageFailureYieldsEmptyAggregate(t *testing.T) {
	env := newTestEnv(t)
	env.storage.handlesErr = errors.Storage("disk gone")

	agg := env.engine.runLoadForBook(context.Background(), "acct-1", "urn:isbn:1")
	assert.Equal(t, domain.EmptyAggregate("urn:isbn:1"), agg)
	assert.Empty(t, env.engine.Store().Snapshot())
}

func TestLoadAll_IteratesProfileBooks(t *testing.T) {
	a1 := testAccount("acct-1")
	env := newTestEnv(t, a1)
	ctx := context.Background()

	h := env.storage.handle(a1.ID, "urn:isbn:1", domain.FormatEPUB)
	require.NoError(t, h.AddBookmark(ctx, explicitRecord("urn:isbn:1", "/ch1", "One")))

	require.NoError(t, env.engine.runLoadAll(ctx))
	assert.Len(t, env.engine.Store().Snapshot()[a1.ID]["urn:isbn:1"].Bookmarks, 1)
}

func TestCreateLocal_ExplicitWritesStorageStoreAndEvent(t *testing.T) {
	account := testAccount("acct-1")
	env := newTestEnv(t, account)
	ctx := context.Background()

	ch, cancel := env.bus.Subscribe()
	defer cancel()

	record := explicitRecord("urn:isbn:1", "/ch1", "One")
	got, err := env.engine.runCreateLocal(ctx, account, record)
	require.NoError(t, err)
	assert.True(t, record.Equal(got))

	stored, err := env.storage.handle(account.ID, record.Book, domain.FormatEPUB).Bookmarks(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	assert.Len(t, env.engine.Store().Snapshot()[account.ID][record.Book].Bookmarks, 1)

	ev := <-ch
	assert.Equal(t, events.TypeSaved, ev.Type)
	require.NotNil(t, ev.Record)
	assert.True(t, record.Equal(*ev.Record))
}

func TestCreateLocal_LastReadReplaces(t *testing.T) {
	account := testAccount("acct-1")
	env := newTestEnv(t, account)
	ctx := context.Background()

	first := lastReadRecord("urn:isbn:1", 1)
	second := lastReadRecord("urn:isbn:1", 2)
	second.Time = first.Time.Add(time.Hour)

	_, err := env.engine.runCreateLocal(ctx, account, first)
	require.NoError(t, err)
	_, err = env.engine.runCreateLocal(ctx, account, second)
	require.NoError(t, err)

	lr, ok, err := env.storage.handle(account.ID, "urn:isbn:1", domain.FormatAudio).LastRead(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, second.Equal(lr))

	agg := env.engine.Store().Snapshot()[account.ID]["urn:isbn:1"]
	require.NotNil(t, agg.LastRead)
	assert.True(t, second.Equal(*agg.LastRead))
}

func TestCreateLocal_InvalidKindRejected(t *testing.T) {
	account := testAccount("acct-1")
	env := newTestEnv(t, account)

	record := explicitRecord("urn:isbn:1", "/ch1", "One")
	record.Kind = "nonsense"

	_, err := env.engine.runCreateLocal(context.Background(), account, record)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestCreateCombined_Success(t *testing.T) {
	account := testAccount("acct-1")
	env := newTestEnv(t, account)

	record := explicitRecord("urn:isbn:1", "/ch1", "One")
	got, err := env.engine.runCreateCombined(context.Background(), account, record, false)
	require.NoError(t, err)
	assert.NotEmpty(t, got.URI)

	// The store holds the URI-bearing version, not a duplicate.
	agg := env.engine.Store().Snapshot()[account.ID][record.Book]
	require.Len(t, agg.Bookmarks, 1)
	assert.Equal(t, got.URI, agg.Bookmarks[0].URI)
}

func TestCreateCombined_IgnoreRemoteFailures(t *testing.T) {
	account := testAccount("acct-1")
	env := newTestEnv(t, account)
	env.remote.addErr = errors.IO("remote down")
	ctx := context.Background()

	record := explicitRecord("urn:isbn:1", "/ch1", "One")
	got, err := env.engine.runCreateCombined(ctx, account, record, true)
	require.NoError(t, err)
	assert.Empty(t, got.URI)

	// Local storage received the write.
	stored, err := env.storage.handle(account.ID, record.Book, domain.FormatEPUB).Bookmarks(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestCreateCombined_RemoteFailurePropagates(t *testing.T) {
	account := testAccount("acct-1")
	env := newTestEnv(t, account)
	env.remote.addErr = errors.IO("remote down")

	_, err := env.engine.runCreateCombined(context.Background(), account, explicitRecord("urn:isbn:1", "/ch1", "One"), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIO))
}

func TestDelete_RemovesLocallyAndRemotely(t *testing.T) {
	account := testAccount("acct-1")
	env := newTestEnv(t, account)
	ctx := context.Background()

	record := explicitRecord("urn:isbn:1", "/ch1", "One")
	record.URI = "https://annotations.example/7"
	_, err := env.engine.runCreateLocal(ctx, account, record)
	require.NoError(t, err)

	ch, cancel := env.bus.Subscribe()
	defer cancel()

	require.NoError(t, env.engine.runDelete(ctx, account, record, false))

	stored, err := env.storage.handle(account.ID, record.Book, domain.FormatEPUB).Bookmarks(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Empty(t, env.engine.Store().Snapshot()[account.ID][record.Book].Bookmarks)
	assert.Equal(t, []string{record.URI}, env.remote.deleted)

	ev := <-ch
	assert.Equal(t, events.TypeDeleted, ev.Type)
}

func TestDelete_RemoteFailureIgnoredWhenAsked(t *testing.T) {
	account := testAccount("acct-1")
	env := newTestEnv(t, account)
	env.remote.delErr = errors.IO("remote down")
	ctx := context.Background()

	record := explicitRecord("urn:isbn:1", "/ch1", "One")
	record.URI = "https://annotations.example/7"
	_, err := env.engine.runCreateLocal(ctx, account, record)
	require.NoError(t, err)

	require.NoError(t, env.engine.runDelete(ctx, account, record, true))
	assert.Empty(t, env.engine.Store().Snapshot()[account.ID][record.Book].Bookmarks)

	err = env.engine.runDelete(ctx, account, record, false)
	require.Error(t, err)
}
