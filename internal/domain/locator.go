package domain

import (
	"fmt"
	"hash"
	"math"
)

// Locator is a position within a book's content, format-specific. The variant
// set is closed and versioned; consumers dispatch with a type switch. A locator
// of the wrong variant for a given reader component is unsupported and ignored
// there, never an error.
type Locator interface {
	// Format returns which reader component can consume this locator.
	Format() BookFormat
	// Digest contributes the locator's fields to a hash. Deterministic and
	// field-complete: two independently constructed equal locators hash
	// identically.
	Digest(h hash.Hash)

	isLocator()
}

// AudioTimeV1 is the legacy audiobook position: part/chapter indexes plus a
// millisecond offset into the chapter.
type AudioTimeV1 struct {
	Part               int
	Chapter            int
	OffsetMilliseconds int64
	Title              string
}

// AudioTimeV2 is the current audiobook position: a reading-order item
// identifier plus a millisecond offset into that item.
type AudioTimeV2 struct {
	ReadingOrderItem   string
	OffsetMilliseconds int64
}

// HrefProgression is an EPUB position: chapter href plus fractional progress
// through the chapter in [0,1].
type HrefProgression struct {
	Href        string
	Progression float64
}

// LegacyCFI is an EPUB position from the oldest readers: spine idref plus a
// raw content CFI string.
type LegacyCFI struct {
	IDRef       string
	ContentCFI  string
	Progression float64
}

// Page is a PDF position.
type Page struct {
	Page int
}

func (AudioTimeV1) isLocator()     {}
func (AudioTimeV2) isLocator()     {}
func (HrefProgression) isLocator() {}
func (LegacyCFI) isLocator()       {}
func (Page) isLocator()            {}

// Format implements Locator.
func (AudioTimeV1) Format() BookFormat { return FormatAudio }

// Format implements Locator.
func (AudioTimeV2) Format() BookFormat { return FormatAudio }

// Format implements Locator.
func (HrefProgression) Format() BookFormat { return FormatEPUB }

// Format implements Locator.
func (LegacyCFI) Format() BookFormat { return FormatEPUB }

// Format implements Locator.
func (Page) Format() BookFormat { return FormatPDF }

// Digest implements Locator.
func (l AudioTimeV1) Digest(h hash.Hash) {
	fmt.Fprintf(h, "audio-time-v1:%d:%d:%d:%s", l.Part, l.Chapter, l.OffsetMilliseconds, l.Title)
}

// Digest implements Locator.
func (l AudioTimeV2) Digest(h hash.Hash) {
	fmt.Fprintf(h, "audio-time-v2:%s:%d", l.ReadingOrderItem, l.OffsetMilliseconds)
}

// Digest implements Locator.
func (l HrefProgression) Digest(h hash.Hash) {
	fmt.Fprintf(h, "href-progression:%s:%.6f", l.Href, l.Progression)
}

// Digest implements Locator.
func (l LegacyCFI) Digest(h hash.Hash) {
	fmt.Fprintf(h, "legacy-cfi:%s:%s:%.6f", l.IDRef, l.ContentCFI, l.Progression)
}

// Digest implements Locator.
func (l Page) Digest(h hash.Hash) {
	fmt.Fprintf(h, "page:%d", l.Page)
}

// Tolerances for the interchangeability predicates. An audio position within
// one second, or an EPUB progression within a tenth of a percent, denotes the
// same logical place: clients round offsets differently when they re-serialize.
const (
	audioOffsetToleranceMs = 1000
	progressionTolerance   = 0.001
)

// Interchangeable reports whether two locators denote the same logical
// position under the variant-specific equivalence rule. This is deliberately
// weaker than equality; it drives explicit-bookmark deduplication on merge.
// Locators of different variants are never interchangeable.
func Interchangeable(a, b Locator) bool {
	switch av := a.(type) {
	case AudioTimeV1:
		bv, ok := b.(AudioTimeV1)
		return ok && av.Part == bv.Part && av.Chapter == bv.Chapter &&
			absInt64(av.OffsetMilliseconds-bv.OffsetMilliseconds) <= audioOffsetToleranceMs
	case AudioTimeV2:
		bv, ok := b.(AudioTimeV2)
		return ok && av.ReadingOrderItem == bv.ReadingOrderItem &&
			absInt64(av.OffsetMilliseconds-bv.OffsetMilliseconds) <= audioOffsetToleranceMs
	case HrefProgression:
		bv, ok := b.(HrefProgression)
		return ok && av.Href == bv.Href &&
			math.Abs(av.Progression-bv.Progression) < progressionTolerance
	case LegacyCFI:
		bv, ok := b.(LegacyCFI)
		return ok && av.IDRef == bv.IDRef && av.ContentCFI == bv.ContentCFI
	case Page:
		bv, ok := b.(Page)
		return ok && av.Page == bv.Page
	default:
		return false
	}
}

// EqualLocators reports exact structural equality of two locators.
func EqualLocators(a, b Locator) bool {
	switch av := a.(type) {
	case AudioTimeV1:
		bv, ok := b.(AudioTimeV1)
		return ok && av == bv
	case AudioTimeV2:
		bv, ok := b.(AudioTimeV2)
		return ok && av == bv
	case HrefProgression:
		bv, ok := b.(HrefProgression)
		return ok && av == bv
	case LegacyCFI:
		bv, ok := b.(LegacyCFI)
		return ok && av == bv
	case Page:
		bv, ok := b.(Page)
		return ok && av == bv
	default:
		return false
	}
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
