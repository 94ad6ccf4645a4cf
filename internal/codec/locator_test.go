package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-bookmarks/internal/domain"
	"github.com/listenupapp/listenup-bookmarks/internal/errors"
)

func TestParseLocator_AudioV1(t *testing.T) {
	data := []byte(`{"@type":"LocatorAudioBookTime","part":0,"chapter":3,"time":120000,"title":"Chapter 3"}`)

	loc, err := ParseLocator(data)
	require.NoError(t, err)
	require.IsType(t, domain.AudioTimeV1{}, loc)
	v := loc.(domain.AudioTimeV1)
	assert.Equal(t, 3, v.Chapter)
	assert.Equal(t, int64(120000), v.OffsetMilliseconds)
	assert.Equal(t, "Chapter 3", v.Title)
}

func TestParseLocator_AudioV1_ExplicitVersion(t *testing.T) {
	data := []byte(`{"@type":"LocatorAudioBookTime","@version":1,"part":1,"chapter":2,"time":5000,"title":"x"}`)
	loc, err := ParseLocator(data)
	require.NoError(t, err)
	assert.Equal(t, domain.AudioTimeV1{Part: 1, Chapter: 2, OffsetMilliseconds: 5000, Title: "x"}, loc)
}

func TestParseLocator_AudioV2(t *testing.T) {
	data := []byte(`{"@type":"LocatorAudioBookTime","@version":2,"readingOrderItem":"urn:x#3","readingOrderItemOffsetMilliseconds":88000}`)
	loc, err := ParseLocator(data)
	require.NoError(t, err)
	assert.Equal(t, domain.AudioTimeV2{ReadingOrderItem: "urn:x#3", OffsetMilliseconds: 88000}, loc)
}

func TestParseLocator_AudioUnknownVersion(t *testing.T) {
	data := []byte(`{"@type":"LocatorAudioBookTime","@version":9}`)
	_, err := ParseLocator(data)
	assert.True(t, errors.Is(err, errors.ErrParse))
}

func TestParseLocator_HrefProgression(t *testing.T) {
	data := []byte(`{"@type":"LocatorHrefProgression20210317","href":"/xhtml/ch03.xhtml","progression":0.25}`)
	loc, err := ParseLocator(data)
	require.NoError(t, err)
	assert.Equal(t, domain.HrefProgression{Href: "/xhtml/ch03.xhtml", Progression: 0.25}, loc)
}

func TestParseLocator_LegacyCFI(t *testing.T) {
	data := []byte(`{"@type":"LocatorLegacyCFI","idref":"ch03","contentCFI":"/4/2/8:0","progression":0.5}`)
	loc, err := ParseLocator(data)
	require.NoError(t, err)
	assert.Equal(t, domain.LegacyCFI{IDRef: "ch03", ContentCFI: "/4/2/8:0", Progression: 0.5}, loc)
}

func TestParseLocator_Page(t *testing.T) {
	data := []byte(`{"@type":"LocatorPage1","page":42}`)
	loc, err := ParseLocator(data)
	require.NoError(t, err)
	assert.Equal(t, domain.Page{Page: 42}, loc)
}

func TestParseLocator_UnrecognizedShape(t *testing.T) {
	_, err := ParseLocator([]byte(`{"@type":"LocatorHolodeck","deck":7}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrParse))

	var domainErr *errors.Error
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "LocatorHolodeck", domainErr.Details)
}

func TestWriteLocator_RoundTrip(t *testing.T) {
	locators := []domain.Locator{
		domain.AudioTimeV1{Part: 0, Chapter: 3, OffsetMilliseconds: 120000, Title: "Chapter 3"},
		domain.AudioTimeV2{ReadingOrderItem: "urn:x#3", OffsetMilliseconds: 88000},
		domain.HrefProgression{Href: "/xhtml/ch03.xhtml", Progression: 0.25},
		domain.LegacyCFI{IDRef: "ch03", ContentCFI: "/4/2/8:0", Progression: 0.5},
		domain.Page{Page: 42},
	}
	for _, loc := range locators {
		data, err := WriteLocator(loc)
		require.NoError(t, err)
		back, err := ParseLocator(data)
		require.NoError(t, err, "round trip for %T", loc)
		assert.True(t, domain.EqualLocators(loc, back), "round trip for %T", loc)
	}
}

func TestWriteLocator_Deterministic(t *testing.T) {
	loc := domain.HrefProgression{Href: "/a", Progression: 0.125}
	a, err := WriteLocator(loc)
	require.NoError(t, err)
	b, err := WriteLocator(loc)
	require.NoError(t, err)
	assert.Equal(t, a, b, "wire dedup relies on byte-identical serialization")
}
