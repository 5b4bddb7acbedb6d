// Copyright 2021 Ilia Frenkel. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE.txt file.

package paste

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
)

// PlainText is the language of code that nobody could recognise.
const PlainText = "plaintext"

// Classifier guesses the programming language of a piece of source code.
// It returns an empty string if it has no idea.
type Classifier interface {
	Classify(src string) string
}

// ClassifierFunc is an adapter to use ordinary functions as a Classifier.
type ClassifierFunc func(src string) string

// Classify calls f(src).
func (f ClassifierFunc) Classify(src string) string { return f(src) }

// ChromaClassifier recognises a shebang line first, then scores a few
// distinctive keywords per language and only then asks the chroma lexers
// analysers. Analysers known to claim almost anything are ignored.
type ChromaClassifier struct{}

// Classify implements Classifier.
func (ChromaClassifier) Classify(src string) string {
	if lang := shebang(src); lang != "" {
		return lang
	}
	if lang := keywords(src); lang != "" {
		return lang
	}
	l := lexers.Analyse(src)
	if l == nil {
		return ""
	}
	name := lexerName(l)
	if noisyLexers[name] {
		return ""
	}
	return name
}

// noisyLexers are chroma lexers whose analysers fire on unrelated code.
var noisyLexers = map[string]bool{
	"gdscript":  true,
	"gdscript3": true,
}

var interpreters = map[string]string{
	"node":   "javascript",
	"nodejs": "javascript",
	"sh":     "bash",
	"zsh":    "bash",
	"ksh":    "bash",
	"dash":   "bash",
}

// shebang returns the language of the interpreter named on the first line.
func shebang(src string) string {
	line, _, _ := strings.Cut(src, "\n")
	if !strings.HasPrefix(line, "#!") {
		return ""
	}
	fields := strings.Fields(line[2:])
	if len(fields) == 0 {
		return ""
	}
	interp := path.Base(fields[0])
	if interp == "env" {
		interp = ""
		for _, f := range fields[1:] {
			if !strings.HasPrefix(f, "-") {
				interp = f
				break
			}
		}
	}
	// python3.11 is python
	interp = strings.TrimRight(interp, "0123456789.")
	if l, ok := interpreters[interp]; ok {
		interp = l
	}
	return Language(interp)
}

type signature struct {
	lang     string
	patterns []*regexp.Regexp
}

// signatures are checked in order, the first one wins a tie.
var signatures = []signature{
	{"go", compile(`(?m)^package \w+`, `\bfunc (\(\w+ \*?\w+\) )?\w+\(`, `\w+ := `, `\bfmt\.\w+\(`, `(?m)^import \(`)},
	{"python", compile(`(?m)^\s*def \w+\(.*\):\s*$`, `(?m)^\s*import \w+`, `(?m)^\s*from [\w.]+ import\b`, `\bprint\(`, `\bself\.`, `(?m)^\s*(elif .*|except.*|class \w+.*):\s*$`)},
	{"typescript", compile(`\w+\??: (string|number|boolean|any)\b`, `\binterface \w+ \{`, `(?m)^\s*(export )?type \w+ = `)},
	{"javascript", compile(`\bfunction\b`, `\b(const|let|var) \w+ = `, `\bconsole\.log\(`, `\brequire\(`, `=> `, `\bdocument\.\w+`)},
	{"java", compile(`\bpublic (static )?(class|void|int)\b`, `\bSystem\.out\.print`, `(?m)^import java\.`)},
	{"c", compile(`(?m)^#include\s*<`, `\bint main\(`, `\bprintf\(`)},
	{"rust", compile(`\bfn \w+\(`, `\blet mut\b`, `\bprintln!\(`, `(?m)^use \w+::`)},
	{"ruby", compile(`\bputs\b`, `(?m)^\s*end\s*$`, `\.each do\b`, `(?m)^\s*require '`)},
	{"php", compile(`<\?php`, `\$\w+ = `, `\becho\b`)},
	{"sql", compile(`(?im)^\s*select\b`, `(?i)\bfrom \w+`, `(?i)\bwhere\b`, `(?i)\binsert into\b`, `(?i)\bcreate table\b`, `(?i)\bupdate \w+ set\b`, `(?i)\bjoin\b`)},
	{"html", compile(`(?i)<!doctype html`, `(?i)<html\b`, `(?i)<(div|span|p|a|body|head|script|ul|li)\b[^>]*>`, `</\w+>`)},
	{"css", compile(`(?m)^\s*[.#]?[\w-]+\s*\{\s*$`, `\b(color|margin|padding|display|font-size|background)\s*:`)},
	{"bash", compile(`(?m)^\s*echo\b`, `(?m)^\s*(if|for|while) .*; (then|do)\b`, `(?m)^\s*(fi|done)\s*$`, `(?m)^\s*export \w+=`)},
	{"json", compile(`(?s)^\s*[\{\[].*[\}\]]\s*$`, `"[^"]+"\s*:`)},
}

func compile(exprs ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		res[i] = regexp.MustCompile(e)
	}
	return res
}

// keywords returns the language with the most matching patterns, it needs
// at least two of them.
func keywords(src string) string {
	best, score := "", 1
	for _, sig := range signatures {
		n := 0
		for _, re := range sig.patterns {
			if re.MatchString(src) {
				n++
			}
		}
		if n > score {
			best, score = sig.lang, n
		}
	}
	return Language(best)
}

// Language returns the canonical name of a language given by the user, or an
// empty string if chroma doesn't know it.
func Language(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	l := lexers.Get(name)
	if l == nil {
		return ""
	}
	return lexerName(l)
}

// Languages returns the names of all the languages a user can choose from,
// in the same form Language returns them.
func Languages() []string {
	names := lexers.Names(false)
	seen := make(map[string]bool, len(names))
	res := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(n)
		if !seen[n] {
			seen[n] = true
			res = append(res, n)
		}
	}
	sort.Strings(res)
	return res
}

func (e *Editor) language(src, explicit string) string {
	if lang := Language(explicit); lang != "" {
		return lang
	}
	if lang := e.classifier.Classify(src); lang != "" {
		return lang
	}
	return PlainText
}

func lexerName(l chroma.Lexer) string {
	return strings.ToLower(l.Config().Name)
}
