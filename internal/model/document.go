package model

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Document is the closed set of data payloads a commit can point at. Links
// are perspective ids of child documents.
type Document interface {
	Object
	Links() []string
	WithLinks(links []string) Document
}

// Page is a titled, ordered collection of child pages.
type Page struct {
	Title string   `json:"title"`
	Pages []string `json:"pages"`
}

func (*Page) EntityType() Type { return TypePage }

func (p *Page) Links() []string { return slices.Clone(p.Pages) }

func (p *Page) WithLinks(links []string) Document {
	out := *p
	out.Pages = nonNil(links)
	return &out
}

// TextNode is a block of text with optional child links.
type TextNode struct {
	Text     string   `json:"text"`
	Style    string   `json:"type"` // "paragraph" or "title"
	Children []string `json:"links"`
}

func (*TextNode) EntityType() Type { return TypeTextNode }

func (n *TextNode) Links() []string { return slices.Clone(n.Children) }

func (n *TextNode) WithLinks(links []string) Document {
	out := *n
	out.Children = nonNil(links)
	return &out
}

// Title is a leaf document holding a single title string.
type Title struct {
	Title string `json:"title"`
}

func (*Title) EntityType() Type { return TypeTitle }

func (*Title) Links() []string { return nil }

func (t *Title) WithLinks([]string) Document {
	out := *t
	return &out
}

// Opaque carries a payload of a type this build does not know. It can be
// stored and forked but not merged.
type Opaque struct {
	Kind Type
	Body json.RawMessage
}

func (o *Opaque) EntityType() Type { return o.Kind }

func (o *Opaque) MarshalJSON() ([]byte, error) {
	if len(o.Body) == 0 {
		return []byte("null"), nil
	}
	return o.Body, nil
}

func (*Opaque) Links() []string { return nil }

func (o *Opaque) WithLinks([]string) Document { return o }

// AsDocument narrows a decoded object to a Document.
func AsDocument(obj Object) (Document, error) {
	doc, ok := obj.(Document)
	if !ok {
		return nil, fmt.Errorf("%s is not a document", obj.EntityType())
	}
	return doc, nil
}

func nonNil(links []string) []string {
	if links == nil {
		return []string{}
	}
	return slices.Clone(links)
}
