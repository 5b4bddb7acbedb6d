// Copyright 2021 Ilia Frenkel. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE.txt file.

// Package view keeps the pastes of a user in memory and derives the pages
// shown on the dashboard from a search query and a page number.
//
// Filter and Paginate are pure functions. A Session owns the collection of a
// single user and keeps it in sync with the store after every successful
// mutation, without loading the whole list again.
package view

import (
	"strings"

	"github.com/iliafrenkel/snippetvault/src/store"
)

// DefaultPageSize is used when the page size is not positive.
const DefaultPageSize = 10

// Filter returns the pastes whose title, content or tag contain the query,
// ignoring case. The query is matched as typed, whitespace included. An
// empty query returns pastes as is.
func Filter(pastes []store.Paste, query string) []store.Paste {
	if query == "" {
		return pastes
	}
	q := strings.ToLower(query)
	res := make([]store.Paste, 0, len(pastes))
	for _, p := range pastes {
		if strings.Contains(strings.ToLower(p.Title), q) ||
			strings.Contains(strings.ToLower(p.Content), q) ||
			strings.Contains(strings.ToLower(p.Tag), q) {
			res = append(res, p)
		}
	}
	return res
}

// Page is a single page of a paste list.
type Page struct {
	Items      []store.Paste
	Number     int // 1-based
	Size       int
	TotalPages int
	Total      int
}

// HasPrev reports whether there is a page before this one.
func (p Page) HasPrev() bool { return p.Number > 1 && p.Number <= p.TotalPages+1 }

// HasNext reports whether there is a page after this one.
func (p Page) HasNext() bool { return p.Number >= 1 && p.Number < p.TotalPages }

// Prev returns the number of the previous page.
func (p Page) Prev() int { return p.Number - 1 }

// Next returns the number of the next page.
func (p Page) Next() int { return p.Number + 1 }

// Numbers returns the numbers of all pages, for paginators.
func (p Page) Numbers() []int {
	res := make([]int, p.TotalPages)
	for i := range res {
		res[i] = i + 1
	}
	return res
}

// Paginate returns page number page (1-based) of size items. A page that is
// out of range has no items. A non-positive size means DefaultPageSize.
func Paginate(pastes []store.Paste, size, page int) Page {
	if size <= 0 {
		size = DefaultPageSize
	}
	total := len(pastes)
	pg := Page{
		Items:      []store.Paste{},
		Number:     page,
		Size:       size,
		TotalPages: (total + size - 1) / size,
		Total:      total,
	}
	if page < 1 || page > pg.TotalPages {
		return pg
	}
	start := (page - 1) * size
	end := start + size
	if end > total {
		end = total
	}
	pg.Items = make([]store.Paste, end-start)
	copy(pg.Items, pastes[start:end])

	return pg
}
