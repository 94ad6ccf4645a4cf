package annotations

import (
	"time"

	"github.com/listenupapp/listenup-bookmarks/internal/codec"
	"github.com/listenupapp/listenup-bookmarks/internal/domain"
	"github.com/listenupapp/listenup-bookmarks/internal/errors"
)

// FromBookmark builds the wire annotation for a record. The selector value is
// the locator serialized to JSON and embedded as a string.
func FromBookmark(b domain.Bookmark) (Annotation, error) {
	locData, err := codec.WriteLocator(b.Location)
	if err != nil {
		return Annotation{}, err
	}

	progress := b.BookProgress
	return Annotation{
		Context:    ContextWebAnnotation,
		ID:         b.URI,
		Type:       TypeAnnotation,
		Motivation: codec.MotivationFromKind(b.Kind),
		Target: Target{
			Source: string(b.Book),
			Selector: Selector{
				Type:  SelectorTypeFragment,
				Value: string(locData),
			},
		},
		Body: Body{
			Timestamp:    b.Time.UTC().Format(time.RFC3339),
			Device:       b.DeviceID,
			ChapterTitle: b.ChapterTitle,
			BookProgress: &progress,
		},
	}, nil
}

// ToBookmark decodes a wire annotation into a record. An unrecognized
// motivation is a parse error, never a default; the failure is scoped to this
// one annotation.
func ToBookmark(a Annotation, fallback codec.Fallback) (domain.Bookmark, error) {
	kind, err := codec.KindFromMotivation(a.Motivation)
	if err != nil {
		return domain.Bookmark{}, err
	}

	if a.Target.Selector.Value == "" {
		return domain.Bookmark{}, errors.Parse("annotation has no selector value")
	}
	loc, err := codec.ParseLocator([]byte(a.Target.Selector.Value))
	if err != nil {
		return domain.Bookmark{}, err
	}

	book := domain.BookID(a.Target.Source)
	if book == "" {
		book = fallback.Book
	}

	var when time.Time
	if a.Body.Timestamp != "" {
		when, err = time.Parse(time.RFC3339, a.Body.Timestamp)
		if err != nil {
			return domain.Bookmark{}, errors.Wrapf(err, errors.CodeParse,
				"malformed annotation timestamp %q", a.Body.Timestamp)
		}
	}

	var bookProgress float64
	if a.Body.BookProgress != nil {
		bookProgress = *a.Body.BookProgress
	}

	return domain.Bookmark{
		Kind:            kind,
		Location:        loc,
		Book:            book,
		DeviceID:        a.Body.Device,
		Time:            when,
		BookTitle:       fallback.BookTitle,
		ChapterTitle:    a.Body.ChapterTitle,
		BookProgress:    bookProgress,
		ChapterProgress: chapterProgressOf(loc),
		URI:             a.ID,
	}, nil
}

// chapterProgressOf recovers chapter progress from locator variants that carry
// it; the wire body has no term of its own for it.
func chapterProgressOf(loc domain.Locator) float64 {
	switch l := loc.(type) {
	case domain.HrefProgression:
		return l.Progression
	case domain.LegacyCFI:
		return l.Progression
	default:
		return 0
	}
}
