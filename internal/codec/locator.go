// Package codec parses and serializes bookmark records and their locators
// across every JSON schema the readers have historically produced. Parsing is
// lenient across versions; writing always emits the newest schema.
package codec

import (
	"encoding/json/v2"

	"github.com/listenupapp/listenup-bookmarks/internal/domain"
	"github.com/listenupapp/listenup-bookmarks/internal/errors"
)

// Locator @type discriminators. The date/version suffixes are part of the wire
// protocol and must not be normalized away.
const (
	typeAudioBookTime   = "LocatorAudioBookTime"
	typeHrefProgression = "LocatorHrefProgression20210317"
	typeLegacyCFI       = "LocatorLegacyCFI"
	typePage            = "LocatorPage1"
)

type locatorProbe struct {
	Type    string `json:"@type"`
	Version int    `json:"@version"`
}

type audioTimeV1JSON struct {
	Type    string `json:"@type"`
	Version int    `json:"@version"`
	Part    int    `json:"part"`
	Chapter int    `json:"chapter"`
	Time    int64  `json:"time"`
	Title   string `json:"title"`
}

type audioTimeV2JSON struct {
	Type             string `json:"@type"`
	Version          int    `json:"@version"`
	ReadingOrderItem string `json:"readingOrderItem"`
	Offset           int64  `json:"readingOrderItemOffsetMilliseconds"`
}

type hrefProgressionJSON struct {
	Type        string  `json:"@type"`
	Href        string  `json:"href"`
	Progression float64 `json:"progression"`
}

type legacyCFIJSON struct {
	Type        string  `json:"@type"`
	IDRef       string  `json:"idref"`
	ContentCFI  string  `json:"contentCFI"`
	Progression float64 `json:"progression"`
}

type pageJSON struct {
	Type string `json:"@type"`
	Page int    `json:"page"`
}

// ParseLocator parses a locator JSON document. Dispatch is purely structural:
// the @type discriminator (and, for audio, the @version) selects the variant
// parser. An unrecognized shape is a parse error.
func ParseLocator(data []byte) (domain.Locator, error) {
	var probe locatorProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errors.Wrap(err, errors.CodeParse, "malformed locator")
	}

	switch probe.Type {
	case typeAudioBookTime:
		// Version 1 predates the @version field.
		switch probe.Version {
		case 0, 1:
			var v audioTimeV1JSON
			if err := json.Unmarshal(data, &v); err != nil {
				return nil, errors.Wrap(err, errors.CodeParse, "malformed audio locator")
			}
			return domain.AudioTimeV1{
				Part:               v.Part,
				Chapter:            v.Chapter,
				OffsetMilliseconds: v.Time,
				Title:              v.Title,
			}, nil
		case 2:
			var v audioTimeV2JSON
			if err := json.Unmarshal(data, &v); err != nil {
				return nil, errors.Wrap(err, errors.CodeParse, "malformed audio locator")
			}
			return domain.AudioTimeV2{
				ReadingOrderItem:   v.ReadingOrderItem,
				OffsetMilliseconds: v.Offset,
			}, nil
		default:
			return nil, errors.ParseWithDetails("unrecognized audio locator version", probe.Version)
		}
	case typeHrefProgression:
		var v hrefProgressionJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, errors.Wrap(err, errors.CodeParse, "malformed href locator")
		}
		return domain.HrefProgression{Href: v.Href, Progression: v.Progression}, nil
	case typeLegacyCFI:
		var v legacyCFIJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, errors.Wrap(err, errors.CodeParse, "malformed CFI locator")
		}
		return domain.LegacyCFI{IDRef: v.IDRef, ContentCFI: v.ContentCFI, Progression: v.Progression}, nil
	case typePage:
		var v pageJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, errors.Wrap(err, errors.CodeParse, "malformed page locator")
		}
		return domain.Page{Page: v.Page}, nil
	default:
		return nil, errors.ParseWithDetails("unrecognized locator", probe.Type)
	}
}

// WriteLocator serializes a locator. Field order is fixed by the wire structs,
// so the output is byte-deterministic; remote deduplication relies on that.
func WriteLocator(loc domain.Locator) ([]byte, error) {
	switch l := loc.(type) {
	case domain.AudioTimeV1:
		return json.Marshal(audioTimeV1JSON{
			Type:    typeAudioBookTime,
			Version: 1,
			Part:    l.Part,
			Chapter: l.Chapter,
			Time:    l.OffsetMilliseconds,
			Title:   l.Title,
		})
	case domain.AudioTimeV2:
		return json.Marshal(audioTimeV2JSON{
			Type:             typeAudioBookTime,
			Version:          2,
			ReadingOrderItem: l.ReadingOrderItem,
			Offset:           l.OffsetMilliseconds,
		})
	case domain.HrefProgression:
		return json.Marshal(hrefProgressionJSON{
			Type:        typeHrefProgression,
			Href:        l.Href,
			Progression: l.Progression,
		})
	case domain.LegacyCFI:
		return json.Marshal(legacyCFIJSON{
			Type:        typeLegacyCFI,
			IDRef:       l.IDRef,
			ContentCFI:  l.ContentCFI,
			Progression: l.Progression,
		})
	case domain.Page:
		return json.Marshal(pageJSON{Type: typePage, Page: l.Page})
	default:
		return nil, errors.Internalf("unhandled locator variant %T", loc)
	}
}

// LocatorTypeName returns the @type string a locator serializes under. The
// current bookmark schema mirrors it at the top level of the record.
func LocatorTypeName(loc domain.Locator) string {
	switch loc.(type) {
	case domain.AudioTimeV1, domain.AudioTimeV2:
		return typeAudioBookTime
	case domain.HrefProgression:
		return typeHrefProgression
	case domain.LegacyCFI:
		return typeLegacyCFI
	case domain.Page:
		return typePage
	default:
		return ""
	}
}
