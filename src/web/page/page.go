// Package page describes the data passed to the HTML templates.
package page

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"

	"github.com/go-pkgz/auth/token"
	"github.com/iliafrenkel/snippetvault/src/paste"
	"github.com/iliafrenkel/snippetvault/src/store"
	"github.com/iliafrenkel/snippetvault/src/view"
)

// Page type represent a single HTML page with all the data that any page
// might need. Most pages won't need all of the data options. Use Data
// functions defined below to add data to the page.
type Page struct {
	// common for all pages
	Title   string // page title, used a value for the <title> tag
	Brand   string // text displayed in big letters at the top of each page
	Tagline string // text displayed below the Brand
	Version string // application version to show at the bottom of every page
	Totals  Stats  // totals, such as total number of pastes and users

	// not common for all pages
	User      token.User    // user details parsed from the JWT token
	Profile   store.User    // stored user details for the profile page
	Paste     store.Paste   // a single paste
	Rendered  template.HTML // rendered content of the paste
	Draft     paste.Draft   // editor form values
	Query     string        // search query on the dashboard
	List      view.Page     // a page of pastes
	Kinds     []paste.Kind  // content types for the editor
	Tags      []paste.Tag   // suggested tags for the editor
	Languages []string      // language suggestions for code pastes
	Providers []string      // oauth providers for the sign-in page
	From      string        // where to go after signing in
	Message   string        // inline form error
	Notice    string        // one-off notice, like "paste deleted"

	// only for error pages
	ErrorCode    int    // error code, to show on the error page (404, 500, etc.)
	ErrorText    string // error text, friendly text to accompany the error code
	ErrorMessage string // optional error message to help the user with what to do next

	// for internal use
	templates *template.Template // all the loaded templates from the server
	template  string             // template name to generate HTML
}

// Data func type.
type Data func(p *Page)

// Stats application-wide statistics.
type Stats struct {
	Pastes int64
	Users  int64
}

// Title sets page title.
func Title(title string) Data {
	return func(p *Page) {
		p.Title = title
	}
}

// Brand sets page brand and tagline.
func Brand(brand, tagline string) Data {
	return func(p *Page) {
		p.Brand = brand
		p.Tagline = tagline
	}
}

// Version sets page version.
func Version(version string) Data {
	return func(p *Page) {
		p.Version = version
	}
}

// Totals sets page totals.
func Totals(totals Stats) Data {
	return func(p *Page) {
		p.Totals = totals
	}
}

// User sets page user.
func User(usr token.User) Data {
	return func(p *Page) {
		p.User = usr
	}
}

// Profile sets the stored user details.
func Profile(usr store.User) Data {
	return func(p *Page) {
		p.Profile = usr
	}
}

// Paste sets a single paste together with its rendered content.
func Paste(paste store.Paste, rendered template.HTML) Data {
	return func(p *Page) {
		p.Paste = paste
		p.Rendered = rendered
	}
}

// Editor sets the editor form values and the choices the editor offers.
func Editor(d paste.Draft) Data {
	return func(p *Page) {
		p.Draft = d
		p.Kinds = paste.Kinds()
		p.Tags = paste.Tags
		p.Languages = paste.Languages()
	}
}

// List sets a page of pastes and the query it was filtered with.
func List(query string, list view.Page) Data {
	return func(p *Page) {
		p.Query = query
		p.List = list
	}
}

// Providers sets the names of the oauth providers.
func Providers(names []string) Data {
	return func(p *Page) {
		p.Providers = names
	}
}

// From sets the redirect target after signing in.
func From(from string) Data {
	return func(p *Page) {
		p.From = from
	}
}

// Message sets an inline form error.
func Message(msg string) Data {
	return func(p *Page) {
		p.Message = msg
	}
}

// Notice sets a one-off notice.
func Notice(msg string) Data {
	return func(p *Page) {
		p.Notice = msg
	}
}

// Error sets code, text and message for the error page.
func Error(code int, msg string) Data {
	return func(p *Page) {
		p.ErrorCode = code
		p.ErrorText = http.StatusText(code)
		p.ErrorMessage = msg
	}
}

// Template sets the template name for the page.
func Template(name string) Data {
	return func(p *Page) {
		p.template = name
	}
}

// New returns a new page.
func New(t *template.Template, data ...Data) *Page {
	p := Page{
		templates: t,
	}
	for _, d := range data {
		d(&p)
	}

	return &p
}

// Render executes the page template.
func (p *Page) Render() ([]byte, error) {
	var html bytes.Buffer
	if err := p.templates.ExecuteTemplate(&html, p.template, p); err != nil {
		return nil, fmt.Errorf("Page.Render: executing template %s: %w", p.template, err)
	}
	return html.Bytes(), nil
}

