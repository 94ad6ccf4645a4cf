package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func explicitMark(book BookID, loc Locator) Bookmark {
	return Bookmark{
		Kind:     KindExplicit,
		Location: loc,
		Book:     book,
		DeviceID: "dev-1",
		Time:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewBookAggregate_Valid(t *testing.T) {
	mark := explicitMark("book-1", Page{Page: 3})
	lastRead := Bookmark{Kind: KindLastRead, Location: Page{Page: 9}, Book: "book-1"}

	agg, err := NewBookAggregate("book-1", &lastRead, []Bookmark{mark})
	require.NoError(t, err)
	assert.Equal(t, BookID("book-1"), agg.BookID)
	assert.Len(t, agg.Bookmarks, 1)
	require.NotNil(t, agg.LastRead)
	assert.Equal(t, KindLastRead, agg.LastRead.Kind)
}

func TestNewBookAggregate_RejectsWrongKindInList(t *testing.T) {
	lastRead := Bookmark{Kind: KindLastRead, Location: Page{Page: 9}, Book: "book-1"}
	_, err := NewBookAggregate("book-1", nil, []Bookmark{lastRead})
	assert.Error(t, err)
}

func TestNewBookAggregate_RejectsForeignBook(t *testing.T) {
	mark := explicitMark("book-2", Page{Page: 3})
	_, err := NewBookAggregate("book-1", nil, []Bookmark{mark})
	assert.Error(t, err)

	lastRead := Bookmark{Kind: KindLastRead, Location: Page{Page: 9}, Book: "book-2"}
	_, err = NewBookAggregate("book-1", &lastRead, nil)
	assert.Error(t, err)
}

func TestNewBookAggregate_RejectsExplicitLastRead(t *testing.T) {
	mark := explicitMark("book-1", Page{Page: 3})
	_, err := NewBookAggregate("book-1", &mark, nil)
	assert.Error(t, err)
}

func TestBookmark_Interchangeable(t *testing.T) {
	a := explicitMark("book-1", HrefProgression{Href: "/ch1", Progression: 0.5})
	b := explicitMark("book-1", HrefProgression{Href: "/ch1", Progression: 0.5004})
	b.DeviceID = "dev-2" // metadata differences don't matter

	assert.True(t, a.Interchangeable(b))

	c := b
	c.Book = "book-2"
	assert.False(t, a.Interchangeable(c), "different book")

	d := b
	d.Kind = KindLastRead
	assert.False(t, a.Interchangeable(d), "different kind")
}

func TestBookmark_EqualComparesInstants(t *testing.T) {
	a := explicitMark("book-1", Page{Page: 3})
	b := a
	b.Time = a.Time.In(time.FixedZone("CET", 3600))
	assert.True(t, a.Equal(b), "same instant in another zone")

	c := a
	c.Time = a.Time.Add(time.Second)
	assert.False(t, a.Equal(c))
}
