// Copyright 2021 Ilia Frenkel. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE.txt file.

package paste

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// HighlightStyle is the chroma style used for code pastes.
const HighlightStyle = "github"

var (
	policy    = bluemonday.UGCPolicy()
	markdown  = goldmark.New(goldmark.WithExtensions(extension.GFM))
	formatter = chromahtml.New(chromahtml.WithLineNumbers(true), chromahtml.TabWidth(4))
)

// Render turns a body into HTML that is safe to put on a page.
func Render(b Body) (template.HTML, error) {
	switch v := b.(type) {
	case Code:
		return highlight(v)
	case Markdown:
		var buf bytes.Buffer
		if err := markdown.Convert([]byte(v.Source), &buf); err != nil {
			return "", fmt.Errorf("Render: markdown: %w", err)
		}
		return template.HTML(policy.SanitizeBytes(buf.Bytes())), nil // #nosec G203
	case HTML:
		return template.HTML(policy.Sanitize(v.Markup)), nil // #nosec G203
	case Note:
		return template.HTML(`<pre class="note">` + template.HTMLEscapeString(v.Source) + `</pre>`), nil // #nosec G203
	case Link:
		text := template.HTMLEscapeString(v.Raw)
		if v.URL == nil || (v.URL.Scheme != "http" && v.URL.Scheme != "https") {
			return template.HTML(`<span class="link">` + text + `</span>`), nil // #nosec G203
		}
		return template.HTML(fmt.Sprintf( // #nosec G203
			`<a class="link" href="%s" rel="noopener noreferrer nofollow" target="_blank">%s</a>`,
			template.HTMLEscapeString(v.URL.String()), text)), nil
	default:
		return "", fmt.Errorf("Render: %w: %T", ErrUnknownKind, b)
	}
}

func highlight(c Code) (template.HTML, error) {
	l := lexers.Get(c.Language)
	if l == nil {
		l = lexers.Fallback
	}
	it, err := chroma.Coalesce(l).Tokenise(nil, c.Source)
	if err != nil {
		return "", fmt.Errorf("Render: tokenise: %w", err)
	}
	var buf bytes.Buffer
	if err := formatter.Format(&buf, styles.Get(HighlightStyle), it); err != nil {
		return "", fmt.Errorf("Render: format: %w", err)
	}
	return template.HTML(buf.String()), nil // #nosec G203
}
