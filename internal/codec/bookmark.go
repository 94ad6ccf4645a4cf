package codec

import (
	"encoding/json/jsontext"
	"encoding/json/v2"
	"strconv"
	"time"

	"github.com/listenupapp/listenup-bookmarks/internal/domain"
	"github.com/listenupapp/listenup-bookmarks/internal/errors"
)

// Bookmark schema versions. "1"-"3" are the numbered audio-position formats
// that predate wrapped bookmarks; the date-stamped versions are full records.
// Version 20210910 is the current schema and the only one ever written.
const (
	versionAudio1  = "1"
	versionAudio2  = "2"
	versionAudio3  = "3"
	version2021031 = "20210317"
	version2021082 = "20210828"
	versionCurrent = "20210910"

	currentVersionNumber = 20210910
)

// Kind encodings across schema generations. The current schema reuses the
// web-annotation motivation URIs; the 2021031x/2021082x schemas used
// class-name-like strings.
const (
	kindMotivationBookmarking = "http://www.w3.org/ns/oa#bookmarking"
	kindMotivationIdling      = "http://librarysimplified.org/terms/annotation/idling"
	kindClassExplicit         = "ExplicitBookmark"
	kindClassLastRead         = "LastReadBookmark"
)

// Fallback supplies defaults for legacy payloads that predate carrying their
// own book id, book title, or kind.
type Fallback struct {
	Book      domain.BookID
	BookTitle string
	// Kind defaults to KindExplicit when unset.
	Kind domain.BookmarkKind
}

func (f Fallback) kind() domain.BookmarkKind {
	if f.Kind == "" {
		return domain.KindExplicit
	}
	return f.Kind
}

type versionProbe struct {
	Version any `json:"@version"`
}

// versionTag normalizes the @version field, which old readers wrote as a JSON
// number and newer ones as a string. Absent means the oldest legacy schema.
func versionTag(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

// ParseBookmark parses one serialized bookmark in any of the six historical
// schemas. Errors are always scoped to the single record: callers drop the
// record and continue, they never abort a whole load or sync.
func ParseBookmark(data []byte, fallback Fallback) (domain.Bookmark, error) {
	var probe versionProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return domain.Bookmark{}, errors.Wrap(err, errors.CodeParse, "malformed bookmark")
	}

	switch versionTag(probe.Version) {
	case "":
		return parseLegacy(data, fallback)
	case versionAudio1, versionAudio2:
		return parseAudioPosition12(data, fallback)
	case versionAudio3:
		return parseAudioPosition3(data, fallback)
	case version2021031:
		return parse20210317(data, fallback)
	case version2021082:
		return parse20210828(data, fallback)
	case versionCurrent:
		return parse20210910(data, fallback)
	default:
		// Unknown versions route through the legacy parser rather than failing:
		// a reader downgrade must not strand newer on-disk bookmarks entirely.
		return parseLegacy(data, fallback)
	}
}

// legacyJSON is the oldest schema: no version tag, no locator object, an
// EPUB-style chapter shape assumed. Very old records used idref/contentCFI
// instead of a chapter href.
type legacyJSON struct {
	ChapterHref        string  `json:"chapterHref"`
	ChapterProgression float64 `json:"chapterProgression"`
	IDRef              string  `json:"idref"`
	ContentCFI         string  `json:"contentCFI"`
	Time               string  `json:"time"`
	DeviceID           string  `json:"deviceID"`
	ChapterTitle       string  `json:"chapterTitle"`
	BookProgress       float64 `json:"bookProgress"`
}

func parseLegacy(data []byte, fallback Fallback) (domain.Bookmark, error) {
	var v legacyJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return domain.Bookmark{}, errors.Wrap(err, errors.CodeParse, "malformed legacy bookmark")
	}

	var loc domain.Locator
	switch {
	case v.ChapterHref != "":
		loc = domain.HrefProgression{Href: v.ChapterHref, Progression: v.ChapterProgression}
	case v.IDRef != "" || v.ContentCFI != "":
		loc = domain.LegacyCFI{IDRef: v.IDRef, ContentCFI: v.ContentCFI, Progression: v.ChapterProgression}
	default:
		return domain.Bookmark{}, errors.ParseWithDetails(
			"legacy bookmark has neither chapterHref nor contentCFI", string(data))
	}

	return domain.Bookmark{
		Kind:            fallback.kind(),
		Location:        loc,
		Book:            fallback.Book,
		DeviceID:        v.DeviceID,
		Time:            parseTimeLenient(v.Time),
		BookTitle:       fallback.BookTitle,
		ChapterTitle:    v.ChapterTitle,
		BookProgress:    v.BookProgress,
		ChapterProgress: v.ChapterProgression,
	}, nil
}

// audioPosition12JSON covers versions 1 and 2: a raw audiobook position, not a
// wrapped bookmark. Version 2 added audiobookID and duration, which carry
// nothing the upgraded record needs.
type audioPosition12JSON struct {
	Part      int    `json:"part"`
	Chapter   int    `json:"chapter"`
	Time      int64  `json:"time"`
	Title     string `json:"title"`
	Timestamp string `json:"timestamp"`
}

func parseAudioPosition12(data []byte, fallback Fallback) (domain.Bookmark, error) {
	var v audioPosition12JSON
	if err := json.Unmarshal(data, &v); err != nil {
		return domain.Bookmark{}, errors.Wrap(err, errors.CodeParse, "malformed audio position")
	}
	return upgradeAudioPosition(domain.AudioTimeV1{
		Part:               v.Part,
		Chapter:            v.Chapter,
		OffsetMilliseconds: v.Time,
		Title:              v.Title,
	}, v.Title, v.Timestamp, fallback), nil
}

// audioPosition3JSON is version 3: still a raw position, but addressed by
// reading-order item like modern audiobook manifests.
type audioPosition3JSON struct {
	ReadingOrderItem string `json:"readingOrderItem"`
	Offset           int64  `json:"readingOrderItemOffsetMilliseconds"`
	Timestamp        string `json:"timestamp"`
}

func parseAudioPosition3(data []byte, fallback Fallback) (domain.Bookmark, error) {
	var v audioPosition3JSON
	if err := json.Unmarshal(data, &v); err != nil {
		return domain.Bookmark{}, errors.Wrap(err, errors.CodeParse, "malformed audio position")
	}
	return upgradeAudioPosition(domain.AudioTimeV2{
		ReadingOrderItem:   v.ReadingOrderItem,
		OffsetMilliseconds: v.Offset,
	}, "", v.Timestamp, fallback), nil
}

// upgradeAudioPosition synthesizes a full bookmark record from a raw audio
// position: zero progress, fallback title and book id.
func upgradeAudioPosition(loc domain.Locator, chapterTitle, timestamp string, fallback Fallback) domain.Bookmark {
	return domain.Bookmark{
		Kind:         fallback.kind(),
		Location:     loc,
		Book:         fallback.Book,
		Time:         parseTimeLenient(timestamp),
		BookTitle:    fallback.BookTitle,
		ChapterTitle: chapterTitle,
	}
}

// bookmark20210317JSON was the first wrapped-bookmark schema: a real locator
// object and a class-like kind string, but no book id or title of its own.
type bookmark20210317JSON struct {
	Version         int            `json:"@version"`
	Kind            string         `json:"kind"`
	Location        jsontext.Value `json:"location"`
	Time            string         `json:"time"`
	DeviceID        string         `json:"deviceID"`
	ChapterTitle    string         `json:"chapterTitle"`
	ChapterProgress float64        `json:"chapterProgress"`
	BookProgress    float64        `json:"bookProgress"`
}

func parse20210317(data []byte, fallback Fallback) (domain.Bookmark, error) {
	var v bookmark20210317JSON
	if err := json.Unmarshal(data, &v); err != nil {
		return domain.Bookmark{}, errors.Wrap(err, errors.CodeParse, "malformed 20210317 bookmark")
	}
	kind, err := kindFromClass(v.Kind)
	if err != nil {
		return domain.Bookmark{}, err
	}
	loc, err := ParseLocator(v.Location)
	if err != nil {
		return domain.Bookmark{}, err
	}
	t, err := parseTime(v.Time)
	if err != nil {
		return domain.Bookmark{}, err
	}
	return domain.Bookmark{
		Kind:            kind,
		Location:        loc,
		Book:            fallback.Book,
		DeviceID:        v.DeviceID,
		Time:            t,
		BookTitle:       fallback.BookTitle,
		ChapterTitle:    v.ChapterTitle,
		BookProgress:    v.BookProgress,
		ChapterProgress: v.ChapterProgress,
	}, nil
}

// bookmark20210828JSON added the opdsId and book title and renamed the
// chapter keys.
type bookmark20210828JSON struct {
	Version         int            `json:"@version"`
	Kind            string         `json:"kind"`
	Location        jsontext.Value `json:"location"`
	OPDSID          string         `json:"opdsId"`
	Time            string         `json:"time"`
	DeviceID        string         `json:"deviceID"`
	BookTitle       string         `json:"bookTitle"`
	ChapterTitle    string         `json:"bookChapterTitle"`
	BookProgress    float64        `json:"bookProgress"`
	ChapterProgress float64        `json:"bookChapterProgress"`
}

func parse20210828(data []byte, fallback Fallback) (domain.Bookmark, error) {
	var v bookmark20210828JSON
	if err := json.Unmarshal(data, &v); err != nil {
		return domain.Bookmark{}, errors.Wrap(err, errors.CodeParse, "malformed 20210828 bookmark")
	}
	kind, err := kindFromClass(v.Kind)
	if err != nil {
		return domain.Bookmark{}, err
	}
	loc, err := ParseLocator(v.Location)
	if err != nil {
		return domain.Bookmark{}, err
	}
	t, err := parseTime(v.Time)
	if err != nil {
		return domain.Bookmark{}, err
	}
	book := domain.BookID(v.OPDSID)
	if book == "" {
		book = fallback.Book
	}
	title := v.BookTitle
	if title == "" {
		title = fallback.BookTitle
	}
	return domain.Bookmark{
		Kind:            kind,
		Location:        loc,
		Book:            book,
		DeviceID:        v.DeviceID,
		Time:            t,
		BookTitle:       title,
		ChapterTitle:    v.ChapterTitle,
		BookProgress:    v.BookProgress,
		ChapterProgress: v.ChapterProgress,
	}, nil
}

// bookmark20210910JSON is the current schema. The top-level @type mirrors the
// locator's @type, a quirk kept for compatibility, and the kind is encoded as
// a web-annotation motivation URI.
type bookmark20210910JSON struct {
	Type            string         `json:"@type"`
	Version         int            `json:"@version"`
	Kind            string         `json:"kind"`
	Location        jsontext.Value `json:"location"`
	OPDSID          string         `json:"opdsId"`
	Time            string         `json:"time"`
	DeviceID        string         `json:"deviceID"`
	URI             string         `json:"uri,omitempty"`
	BookTitle       string         `json:"bookTitle"`
	ChapterTitle    string         `json:"bookChapterTitle"`
	BookProgress    float64        `json:"bookProgress"`
	ChapterProgress float64        `json:"bookChapterProgress"`
}

func parse20210910(data []byte, fallback Fallback) (domain.Bookmark, error) {
	var v bookmark20210910JSON
	if err := json.Unmarshal(data, &v); err != nil {
		return domain.Bookmark{}, errors.Wrap(err, errors.CodeParse, "malformed 20210910 bookmark")
	}
	kind, err := KindFromMotivation(v.Kind)
	if err != nil {
		return domain.Bookmark{}, err
	}
	loc, err := ParseLocator(v.Location)
	if err != nil {
		return domain.Bookmark{}, err
	}
	t, err := parseTime(v.Time)
	if err != nil {
		return domain.Bookmark{}, err
	}
	book := domain.BookID(v.OPDSID)
	if book == "" {
		book = fallback.Book
	}
	title := v.BookTitle
	if title == "" {
		title = fallback.BookTitle
	}
	return domain.Bookmark{
		Kind:            kind,
		Location:        loc,
		Book:            book,
		DeviceID:        v.DeviceID,
		Time:            t,
		BookTitle:       title,
		ChapterTitle:    v.ChapterTitle,
		BookProgress:    v.BookProgress,
		ChapterProgress: v.ChapterProgress,
		URI:             v.URI,
	}, nil
}

// WriteBookmark serializes a record in the current schema. The engine never
// regenerates obsolete formats.
func WriteBookmark(b domain.Bookmark) ([]byte, error) {
	locData, err := WriteLocator(b.Location)
	if err != nil {
		return nil, err
	}
	return json.Marshal(bookmark20210910JSON{
		Type:            LocatorTypeName(b.Location),
		Version:         currentVersionNumber,
		Kind:            MotivationFromKind(b.Kind),
		Location:        jsontext.Value(locData),
		OPDSID:          string(b.Book),
		Time:            b.Time.UTC().Format(time.RFC3339),
		DeviceID:        b.DeviceID,
		URI:             b.URI,
		BookTitle:       b.BookTitle,
		ChapterTitle:    b.ChapterTitle,
		BookProgress:    b.BookProgress,
		ChapterProgress: b.ChapterProgress,
	})
}

// KindFromMotivation maps a web-annotation motivation URI to a bookmark kind.
// The lookup is injective; an unrecognized motivation is a parse error, never
// a silent default.
func KindFromMotivation(motivation string) (domain.BookmarkKind, error) {
	switch motivation {
	case kindMotivationBookmarking:
		return domain.KindExplicit, nil
	case kindMotivationIdling:
		return domain.KindLastRead, nil
	default:
		return "", errors.ParseWithDetails("unrecognized bookmark motivation", motivation)
	}
}

// MotivationFromKind is the inverse of KindFromMotivation.
func MotivationFromKind(kind domain.BookmarkKind) string {
	if kind == domain.KindLastRead {
		return kindMotivationIdling
	}
	return kindMotivationBookmarking
}

func kindFromClass(class string) (domain.BookmarkKind, error) {
	switch class {
	case kindClassExplicit:
		return domain.KindExplicit, nil
	case kindClassLastRead:
		return domain.KindLastRead, nil
	default:
		return "", errors.ParseWithDetails("unrecognized bookmark kind", class)
	}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, errors.CodeParse, "malformed bookmark time %q", s)
	}
	return t, nil
}

// parseTimeLenient tolerates the missing or sloppy timestamps of the legacy
// schemas; anything unparseable becomes the zero time.
func parseTimeLenient(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
