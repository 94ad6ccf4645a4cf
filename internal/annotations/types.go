// Package annotations talks the web-annotation wire protocol: it translates
// between bookmark records and remote annotation documents and issues the
// read/add/delete calls against an account's annotation container.
package annotations

// Wire-protocol constants. The vocabulary follows the W3C web-annotation
// model with Library Simplified extension terms.
const (
	ContextWebAnnotation = "http://www.w3.org/ns/anno.jsonld"
	TypeAnnotation       = "Annotation"
	SelectorTypeFragment = "oa:FragmentSelector"

	termTime         = "http://librarysimplified.org/terms/time"
	termDevice       = "http://librarysimplified.org/terms/device"
	termChapter      = "http://librarysimplified.org/terms/chapter"
	termBookProgress = "http://librarysimplified.org/terms/bookProgress"
)

// Annotation is the wire shape of one remote bookmark.
type Annotation struct {
	Context    string `json:"@context,omitempty"`
	ID         string `json:"id,omitempty"`
	Type       string `json:"type"`
	Motivation string `json:"motivation"`
	Target     Target `json:"target"`
	Body       Body   `json:"body"`
}

// Target addresses the book and the position within it.
type Target struct {
	Source   string   `json:"source"`
	Selector Selector `json:"selector"`
}

// Selector carries the locator. Value is the locator's JSON serialization
// embedded as a string - double-encoded, not a nested object. The quirk is
// part of the protocol and must be preserved for compatibility.
type Selector struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Body carries the bookmark metadata under extension terms.
type Body struct {
	Timestamp    string   `json:"http://librarysimplified.org/terms/time"`
	Device       string   `json:"http://librarysimplified.org/terms/device"`
	ChapterTitle string   `json:"http://librarysimplified.org/terms/chapter,omitempty"`
	BookProgress *float64 `json:"http://librarysimplified.org/terms/bookProgress,omitempty"`
}

// container is the collection document returned by GET on an annotation
// container. Some servers inline the items, others nest them one page deep
// under "first"; both are accepted.
type container struct {
	Items []Annotation `json:"items"`
	First *struct {
		Items []Annotation `json:"items"`
	} `json:"first"`
	Total int `json:"total"`
}

// SameWire reports whether two annotations denote the same remote bookmark.
// Wire identity is the raw selector value string: two annotations match only
// if their encoded locator text is byte-identical. Semantic locator equality
// deliberately plays no part here.
func SameWire(a, b Annotation) bool {
	return a.Target.Selector.Value == b.Target.Selector.Value
}
