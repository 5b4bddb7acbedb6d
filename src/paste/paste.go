// Copyright 2021 Ilia Frenkel. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE.txt file.

// Package paste turns what a user typed into the editor into a validated
// entry. The content of a paste is one of a closed set of variants (Code,
// Markdown, HTML, Note and Link), each carrying only what it needs.
//
// Functions in this package are pure: they never touch the storage and never
// log anything.
package paste

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrValidation is the parent of every error returned by Normalize, use
// errors.Is(err, ErrValidation) to tell bad input from anything else.
var (
	ErrValidation   = errors.New("validation failed")
	ErrMissingField = fmt.Errorf("%w: missing field", ErrValidation)
	ErrInvalidURL   = fmt.Errorf("%w: invalid url", ErrValidation)
	ErrUnknownKind  = fmt.Errorf("%w: unknown content type", ErrValidation)
)

// Kind is a content type.
type Kind string

// All the supported content types.
const (
	KindCode     Kind = "code"
	KindMarkdown Kind = "markdown"
	KindHTML     Kind = "html"
	KindNote     Kind = "note"
	KindLink     Kind = "link"
)

var kinds = []Kind{KindCode, KindMarkdown, KindHTML, KindNote, KindLink}

// Kinds returns all the content types in the order they are shown in the editor.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// ParseKind converts a string into a Kind. Empty string and "text" are what
// older rows carry, both are read as a note.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindCode, KindMarkdown, KindHTML, KindNote, KindLink:
		return k, nil
	case "", "text":
		return KindNote, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Label is a human readable name of the content type.
func (k Kind) Label() string {
	switch k {
	case KindCode:
		return "Code"
	case KindMarkdown:
		return "Markdown"
	case KindHTML:
		return "HTML/CSS"
	case KindNote:
		return "Note"
	case KindLink:
		return "Link"
	}
	return string(k)
}

// Placeholder is the hint shown in an empty editor.
func (k Kind) Placeholder() string {
	switch k {
	case KindCode:
		return "Enter your code here..."
	case KindMarkdown:
		return "Write your markdown content here..."
	case KindHTML:
		return "Enter HTML/CSS code here..."
	case KindLink:
		return "Enter URL here..."
	}
	return "Write your note here..."
}

// Body is the content of a paste. The set of implementations is closed.
type Body interface {
	Kind() Kind
	Content() string
	isBody()
}

// Code is a piece of source code in a given language.
type Code struct {
	Source   string
	Language string
}

// Markdown is a markdown document.
type Markdown struct {
	Source string
}

// HTML is an HTML/CSS fragment.
type HTML struct {
	Markup string
}

// Note is plain text.
type Note struct {
	Source string
}

// Link is an absolute URL. Raw is what the user typed (trimmed), URL is the
// parsed version of it.
type Link struct {
	Raw string
	URL *url.URL
}

func (Code) Kind() Kind     { return KindCode }
func (Markdown) Kind() Kind { return KindMarkdown }
func (HTML) Kind() Kind     { return KindHTML }
func (Note) Kind() Kind     { return KindNote }
func (Link) Kind() Kind     { return KindLink }

func (c Code) Content() string     { return c.Source }
func (m Markdown) Content() string { return m.Source }
func (h HTML) Content() string     { return h.Markup }
func (n Note) Content() string     { return n.Source }
func (l Link) Content() string     { return l.Raw }

func (Code) isBody()     {}
func (Markdown) isBody() {}
func (HTML) isBody()     {}
func (Note) isBody()     {}
func (Link) isBody()     {}

// Draft is an unsaved paste exactly as it comes from a form or a JSON request.
type Draft struct {
	Title       string `json:"title"`
	Tag         string `json:"tag"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
	Language    string `json:"language,omitempty"`
}

// Entry is a validated and normalised draft, ready to be stored.
type Entry struct {
	Title string
	Tag   string
	Body  Body
}

// Fields flattens the entry body into its row representation.
func (e Entry) Fields() (contentType, content, language string) {
	if c, ok := e.Body.(Code); ok {
		language = c.Language
	}
	return string(e.Body.Kind()), e.Body.Content(), language
}

// Editor validates drafts. The zero value is not usable, call NewEditor.
type Editor struct {
	classifier Classifier
}

// NewEditor returns an Editor that uses c to guess the language of code
// pastes. If c is nil the chroma based classifier is used.
func NewEditor(c Classifier) *Editor {
	if c == nil {
		c = ChromaClassifier{}
	}
	return &Editor{classifier: c}
}

var defaultEditor = NewEditor(nil)

// Normalize validates a draft with the default editor.
func Normalize(d Draft) (Entry, error) {
	return defaultEditor.Normalize(d)
}

// Normalize checks that title, content and tag are not empty, that the
// content type is known and that the content fits the content type. For
// code pastes the language is detected if it wasn't given. Detection never
// fails the validation.
func (e *Editor) Normalize(d Draft) (Entry, error) {
	for _, f := range []struct{ name, value string }{
		{"title", d.Title},
		{"content", d.Content},
		{"tag", d.Tag},
	} {
		if strings.TrimSpace(f.value) == "" {
			return Entry{}, fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
	}

	kind, err := ParseKind(d.ContentType)
	if err != nil {
		return Entry{}, err
	}

	var body Body
	switch kind {
	case KindCode:
		body = Code{Source: d.Content, Language: e.language(d.Content, d.Language)}
	case KindMarkdown:
		body = Markdown{Source: d.Content}
	case KindHTML:
		body = HTML{Markup: d.Content}
	case KindNote:
		body = Note{Source: d.Content}
	case KindLink:
		raw := strings.TrimSpace(d.Content)
		u, err := parseAbsoluteURL(raw)
		if err != nil {
			return Entry{}, err
		}
		body = Link{Raw: raw, URL: u}
	}
	if err := Validate(body); err != nil {
		return Entry{}, err
	}

	return Entry{
		Title: strings.TrimSpace(d.Title),
		Tag:   strings.TrimSpace(d.Tag),
		Body:  body,
	}, nil
}

// Validate checks the body against the rules of its content type.
func Validate(b Body) error {
	switch v := b.(type) {
	case Code:
		return requireContent(v.Source)
	case Markdown:
		return requireContent(v.Source)
	case HTML:
		return requireContent(v.Markup)
	case Note:
		return requireContent(v.Source)
	case Link:
		if v.URL == nil || !v.URL.IsAbs() || v.URL.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidURL, v.Raw)
		}
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnknownKind, b)
	}
}

// FromRow rebuilds a body from its stored representation without running
// the language detection.
func FromRow(contentType, content, language string) (Body, error) {
	kind, err := ParseKind(contentType)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindCode:
		if language == "" {
			language = PlainText
		}
		return Code{Source: content, Language: language}, nil
	case KindMarkdown:
		return Markdown{Source: content}, nil
	case KindHTML:
		return HTML{Markup: content}, nil
	case KindLink:
		u, err := parseAbsoluteURL(content)
		if err != nil {
			return nil, err
		}
		return Link{Raw: content, URL: u}, nil
	}
	return Note{Source: content}, nil
}

func requireContent(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: content", ErrMissingField)
	}
	return nil
}

// parseAbsoluteURL accepts only URLs with a scheme and a host.
func parseAbsoluteURL(raw string) (*url.URL, error) {
	if strings.ContainsAny(raw, " \t\r\n") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return u, nil
}
